package pattern

import (
	"context"
	"time"

	"github.com/ignite/adinsight/internal/domain"
)

// ContentSource lists a business's content records that reference an
// external ad id.
type ContentSource interface {
	ListPublished(ctx context.Context, businessID string) ([]domain.ContentRecord, error)
}

// PerformanceReader reads stored performance records.
type PerformanceReader interface {
	// ListSince returns the business's records dated on or after since.
	ListSince(ctx context.Context, businessID string, since time.Time) ([]domain.PerformanceRecord, error)
}

// InsightRepository stores one insight document per business.
// Implementations must be safe for concurrent use.
type InsightRepository interface {
	// Replace overwrites the business's insight set.
	Replace(ctx context.Context, set domain.InsightSet) error

	// Get returns the stored set. Returns ErrNotFound if the business has
	// never been analyzed.
	Get(ctx context.Context, businessID string) (*domain.InsightSet, error)
}
