package experiment_test

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
)

// memRepo is an in-memory experiment repository for unit testing.
type memRepo struct {
	mu          sync.Mutex
	experiments map[string]*domain.Experiment
}

func newMemRepo() *memRepo {
	return &memRepo{experiments: make(map[string]*domain.Experiment)}
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return nil, experiment.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, e *domain.Experiment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *e
	m.experiments[e.ID] = &cp
	return nil
}

func (m *memRepo) UpdateStatus(_ context.Context, id string, from, to domain.ExperimentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.experiments[id]
	if !ok {
		return experiment.ErrNotFound
	}
	if e.Status != from {
		return experiment.ErrInvalidTransition
	}
	e.Status = to
	return nil
}

func (m *memRepo) ListActive(_ context.Context, businessID string) ([]domain.Experiment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Experiment
	for _, e := range m.experiments {
		if e.Status == domain.ExperimentActive && (businessID == "" || e.BusinessID == businessID) {
			out = append(out, *e)
		}
	}
	return out, nil
}

type memPerf struct {
	records []domain.PerformanceRecord
	err     error
}

func (m *memPerf) ListByExperiment(_ context.Context, experimentID string, from, to time.Time) ([]domain.PerformanceRecord, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.PerformanceRecord
	for _, r := range m.records {
		if r.ExperimentID == nil || *r.ExperimentID != experimentID {
			continue
		}
		if r.Date.Before(from) || r.Date.After(to) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

type memResults struct {
	mu      sync.Mutex
	results map[string]domain.ExperimentResult
	upserts int
}

func (m *memResults) Upsert(_ context.Context, r *domain.ExperimentResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = map[string]domain.ExperimentResult{}
	}
	m.results[r.ExperimentID] = *r
	m.upserts++
	return nil
}

func (m *memResults) Get(_ context.Context, id string) (*domain.ExperimentResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.results[id]
	if !ok {
		return nil, experiment.ErrResultNotFound
	}
	return &r, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (f *fakeNotifier) Notify(_ context.Context, a domain.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}
