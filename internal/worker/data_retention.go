package worker

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/adinsight/internal/pkg/logger"
)

// =============================================================================
// DATA RETENTION WORKER
// =============================================================================
// Daily performance rows are only read back for the analysis lookback and
// for experiment windows. Rows older than the retention window are removed
// in batches so a long backlog never holds locks on the hot table.

const (
	// DefaultRetentionDays keeps a little over a year of daily rows.
	DefaultRetentionDays = 400

	retentionBatchSize = 10000
)

// DataRetentionWorker deletes expired performance records.
type DataRetentionWorker struct {
	db        *sql.DB
	days      int
	batchSize int
	pause     time.Duration
}

// NewDataRetentionWorker creates a retention worker. days <= 0 uses
// DefaultRetentionDays.
func NewDataRetentionWorker(db *sql.DB, days int) *DataRetentionWorker {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return &DataRetentionWorker{
		db:        db,
		days:      days,
		batchSize: retentionBatchSize,
		pause:     100 * time.Millisecond,
	}
}

// Run deletes expired rows and returns how many were removed. It is meant
// to be scheduled after the nightly batch.
func (w *DataRetentionWorker) Run(ctx context.Context) int64 {
	start := time.Now()
	total := w.batchDelete(ctx, "performance_records", `
		DELETE FROM performance_records
		WHERE ctid IN (
			SELECT ctid FROM performance_records
			WHERE date < CURRENT_DATE - $2::int
			LIMIT $1
		)
	`)
	logger.Info("data retention complete",
		"table", "performance_records",
		"deleted", total,
		"retention_days", w.days,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return total
}

// batchDelete repeats query until no rows are affected. A missing table
// (migrations not yet applied) is logged once and treated as empty.
func (w *DataRetentionWorker) batchDelete(ctx context.Context, table, query string) int64 {
	var deleted int64
	for {
		if ctx.Err() != nil {
			return deleted
		}

		qctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		res, err := w.db.ExecContext(qctx, query, w.batchSize, w.days)
		cancel()
		if err != nil {
			if isUndefinedTable(err) {
				logger.Warn("retention table does not exist, skipping", "table", table)
				return deleted
			}
			logger.Error("retention delete failed", "table", table, "error", err)
			return deleted
		}

		affected, _ := res.RowsAffected()
		if affected == 0 {
			return deleted
		}
		deleted += affected
		if affected < int64(w.batchSize) {
			return deleted
		}

		select {
		case <-ctx.Done():
			return deleted
		case <-time.After(w.pause):
		}
	}
}

func isUndefinedTable(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "42P01"
}
