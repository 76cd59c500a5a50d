package memory

import (
	"context"
	"sync"

	"github.com/ignite/adinsight/internal/domain"
)

// ContentRepo holds content records.
type ContentRepo struct {
	mu      sync.RWMutex
	records []domain.ContentRecord
}

// NewContentRepo creates a store seeded with records.
func NewContentRepo(records ...domain.ContentRecord) *ContentRepo {
	return &ContentRepo{records: records}
}

// Add appends content records.
func (r *ContentRepo) Add(records ...domain.ContentRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, records...)
}

// ListPublished returns the business's content that references an ad.
func (r *ContentRepo) ListPublished(_ context.Context, businessID string) ([]domain.ContentRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.ContentRecord
	for _, c := range r.records {
		if c.BusinessID == businessID && c.AdID != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
