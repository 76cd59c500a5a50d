package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ignite/adinsight/internal/domain"
)

// PerformanceRepo stores performance records by natural key.
type PerformanceRepo struct {
	mu      sync.RWMutex
	records map[domain.RecordKey]domain.PerformanceRecord
}

// NewPerformanceRepo creates an empty store.
func NewPerformanceRepo() *PerformanceRepo {
	return &PerformanceRepo{records: make(map[domain.RecordKey]domain.PerformanceRecord)}
}

// BulkUpsert overwrites records with the same natural key.
func (r *PerformanceRepo) BulkUpsert(_ context.Context, records []domain.PerformanceRecord) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.records[rec.Key()] = rec
	}
	return len(records), nil
}

func (r *PerformanceRepo) ListSince(_ context.Context, businessID string, since time.Time) ([]domain.PerformanceRecord, error) {
	return r.filter(func(rec domain.PerformanceRecord) bool {
		return rec.BusinessID == businessID && !rec.Date.Before(since)
	}), nil
}

func (r *PerformanceRepo) ListByExperiment(_ context.Context, experimentID string, from, to time.Time) ([]domain.PerformanceRecord, error) {
	return r.filter(func(rec domain.PerformanceRecord) bool {
		return rec.ExperimentID != nil && *rec.ExperimentID == experimentID &&
			!rec.Date.Before(from) && !rec.Date.After(to)
	}), nil
}

// All returns every record ordered by business, platform, ad and date.
func (r *PerformanceRepo) All() []domain.PerformanceRecord {
	return r.filter(func(domain.PerformanceRecord) bool { return true })
}

func (r *PerformanceRepo) filter(keep func(domain.PerformanceRecord) bool) []domain.PerformanceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.PerformanceRecord
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Key(), out[j].Key()
		if a.BusinessID != b.BusinessID {
			return a.BusinessID < b.BusinessID
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		if a.AdID != b.AdID {
			return a.AdID < b.AdID
		}
		return a.Date < b.Date
	})
	return out
}
