package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/service/pattern"
)

// ExperimentRepo implements experiment.Repository.
type ExperimentRepo struct {
	mu          sync.RWMutex
	experiments map[string]domain.Experiment
}

// NewExperimentRepo creates an empty store.
func NewExperimentRepo() *ExperimentRepo {
	return &ExperimentRepo{experiments: make(map[string]domain.Experiment)}
}

func (r *ExperimentRepo) Get(_ context.Context, id string) (*domain.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.experiments[id]
	if !ok {
		return nil, experiment.ErrNotFound
	}
	return &e, nil
}

func (r *ExperimentRepo) Create(_ context.Context, e *domain.Experiment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[e.ID] = *e
	return nil
}

func (r *ExperimentRepo) UpdateStatus(_ context.Context, id string, from, to domain.ExperimentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.experiments[id]
	if !ok {
		return experiment.ErrNotFound
	}
	if e.Status != from {
		return experiment.ErrInvalidTransition
	}
	e.Status = to
	r.experiments[id] = e
	return nil
}

func (r *ExperimentRepo) ListActive(_ context.Context, businessID string) ([]domain.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Experiment
	for _, e := range r.experiments {
		if e.Status == domain.ExperimentActive && (businessID == "" || e.BusinessID == businessID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *ExperimentRepo) ListExpiredPaused(_ context.Context, businessID string, now time.Time) ([]domain.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Experiment
	for _, e := range r.experiments {
		if e.Status == domain.ExperimentPaused && e.Expired(now) && (businessID == "" || e.BusinessID == businessID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListOverlapping returns experiments of any status whose window overlaps
// the day starting at day.
func (r *ExperimentRepo) ListOverlapping(_ context.Context, businessID string, day time.Time) ([]domain.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	next := day.AddDate(0, 0, 1)
	var out []domain.Experiment
	for _, e := range r.experiments {
		if e.StartDate.Before(next) && !e.EndDate.Before(day) && (businessID == "" || e.BusinessID == businessID) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ResultRepo implements experiment.ResultRepository.
type ResultRepo struct {
	mu      sync.RWMutex
	results map[string]domain.ExperimentResult
}

// NewResultRepo creates an empty store.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{results: make(map[string]domain.ExperimentResult)}
}

func (r *ResultRepo) Upsert(_ context.Context, res *domain.ExperimentResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[res.ExperimentID] = *res
	return nil
}

func (r *ResultRepo) Get(_ context.Context, experimentID string) (*domain.ExperimentResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[experimentID]
	if !ok {
		return nil, experiment.ErrResultNotFound
	}
	return &res, nil
}

// InsightRepo implements pattern.InsightRepository.
type InsightRepo struct {
	mu   sync.RWMutex
	sets map[string]domain.InsightSet
}

// NewInsightRepo creates an empty store.
func NewInsightRepo() *InsightRepo {
	return &InsightRepo{sets: make(map[string]domain.InsightSet)}
}

func (r *InsightRepo) Replace(_ context.Context, set domain.InsightSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets[set.BusinessID] = set
	return nil
}

func (r *InsightRepo) Get(_ context.Context, businessID string) (*domain.InsightSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.sets[businessID]
	if !ok {
		return nil, pattern.ErrNotFound
	}
	return &set, nil
}
