package experiment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/logger"
)

// Service implements the experiment lifecycle on top of the repositories
// and the results calculator. All public methods are safe for concurrent
// use if the underlying repositories are.
type Service struct {
	repo    Repository
	results ResultRepository
	calc    *Calculator
	now     func() time.Time
}

// NewService creates an experiment service.
func NewService(repo Repository, results ResultRepository, calc *Calculator) *Service {
	return &Service{repo: repo, results: results, calc: calc, now: time.Now}
}

// SetClock overrides the time source.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// CreateInput holds the fields for creating an experiment.
type CreateInput struct {
	BusinessID        string       `json:"business_id"`
	Name              string       `json:"name"`
	ContentIDOriginal string       `json:"content_id_original"`
	ContentIDVariant  string       `json:"content_id_variant"`
	Split             domain.Split `json:"split"`
	StartDate         time.Time    `json:"start_date"`
	EndDate           time.Time    `json:"end_date"`
}

// Create validates and persists a new active experiment. A split that does
// not sum to 100 is rejected, never adjusted.
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Experiment, error) {
	if strings.TrimSpace(in.BusinessID) == "" {
		return nil, fmt.Errorf("%w: business_id is required", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.ContentIDOriginal == "" || in.ContentIDVariant == "" {
		return nil, fmt.Errorf("%w: both content ids are required", ErrInvalidInput)
	}
	if in.ContentIDOriginal == in.ContentIDVariant {
		return nil, ErrSameContent
	}

	now := s.now().UTC()
	e := &domain.Experiment{
		ID:                uuid.New().String(),
		BusinessID:        in.BusinessID,
		Name:              strings.TrimSpace(in.Name),
		ContentIDOriginal: in.ContentIDOriginal,
		ContentIDVariant:  in.ContentIDVariant,
		Split:             in.Split,
		StartDate:         in.StartDate.UTC(),
		EndDate:           in.EndDate.UTC(),
		Status:            domain.ExperimentActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if e.StartDate.IsZero() {
		e.StartDate = now
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, e); err != nil {
		return nil, fmt.Errorf("create experiment: %w", err)
	}
	return e, nil
}

// Get returns a single experiment.
func (s *Service) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	return s.repo.Get(ctx, id)
}

// ListActive returns active experiments for a business, or all when
// businessID is empty.
func (s *Service) ListActive(ctx context.Context, businessID string) ([]domain.Experiment, error) {
	return s.repo.ListActive(ctx, businessID)
}

// Pause stops an active experiment from being recomputed or auto-completed.
func (s *Service) Pause(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.ExperimentActive, domain.ExperimentPaused)
}

// Resume reactivates a paused experiment.
func (s *Service) Resume(ctx context.Context, id string) error {
	return s.transition(ctx, id, domain.ExperimentPaused, domain.ExperimentActive)
}

// Complete ends an experiment now and returns its final result.
func (s *Service) Complete(ctx context.Context, id string) (*domain.ExperimentResult, error) {
	return s.calc.Complete(ctx, id)
}

func (s *Service) transition(ctx context.Context, id string, from, to domain.ExperimentStatus) error {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if e.Status != from {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	return s.repo.UpdateStatus(ctx, id, from, to)
}

// Results returns the experiment's result. Active experiments are
// recomputed; others return the stored result, computing it once if none
// exists. When recomputation fails the stored result is served, and
// ErrResultNotFound is returned if there is none.
func (s *Service) Results(ctx context.Context, id string) (*domain.ExperimentResult, error) {
	e, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Status == domain.ExperimentActive {
		r, err := s.calc.ComputeResults(ctx, id)
		if err == nil {
			return r, nil
		}
		logger.Warn("results recompute failed, serving stored result", "experiment_id", id, "error", err)
		return s.results.Get(ctx, id)
	}

	r, err := s.results.Get(ctx, id)
	if !errors.Is(err, ErrResultNotFound) {
		return r, err
	}
	r, err = s.calc.ComputeResults(ctx, id)
	if err != nil {
		logger.Warn("results compute failed", "experiment_id", id, "error", err)
		return nil, ErrResultNotFound
	}
	return r, nil
}

// AssignVariant loads the experiment and buckets subjectID into an arm.
func (s *Service) AssignVariant(ctx context.Context, experimentID, subjectID string) (domain.Variant, error) {
	e, err := s.repo.Get(ctx, experimentID)
	if err != nil {
		return "", err
	}
	return Assign(subjectID, *e), nil
}
