package experiment

import (
	"context"
	"time"

	"github.com/ignite/adinsight/internal/domain"
)

// Repository defines the data access contract for experiments.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a single experiment. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Experiment, error)

	// Create inserts a new experiment.
	Create(ctx context.Context, e *domain.Experiment) error

	// UpdateStatus moves an experiment from one status to another. Returns
	// ErrInvalidTransition if the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to domain.ExperimentStatus) error

	// ListActive returns active experiments, for one business or for all
	// when businessID is empty.
	ListActive(ctx context.Context, businessID string) ([]domain.Experiment, error)
}

// PerformanceReader reads experiment-tagged performance records.
type PerformanceReader interface {
	// ListByExperiment returns records tagged with experimentID dated
	// within [from, to].
	ListByExperiment(ctx context.Context, experimentID string, from, to time.Time) ([]domain.PerformanceRecord, error)
}

// ResultRepository stores one result document per experiment.
type ResultRepository interface {
	Upsert(ctx context.Context, r *domain.ExperimentResult) error

	// Get returns ErrResultNotFound if no result has been computed yet.
	Get(ctx context.Context, experimentID string) (*domain.ExperimentResult, error)
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, a domain.Alert)
}
