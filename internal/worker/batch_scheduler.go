package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ignite/adinsight/internal/pkg/distlock"
	"github.com/ignite/adinsight/internal/pkg/logger"
)

// =============================================================================
// BATCH SCHEDULER
// =============================================================================
// Triggers the ETL batch on a cron expression and on demand. Every run goes
// through one distributed lock so two instances (or a cron tick and a manual
// trigger) never ingest at the same time. The retention sweep, when set,
// runs after a scheduled batch under the same lock.

// BatchRunner runs one ingestion batch.
type BatchRunner interface {
	RunBatch(ctx context.Context, businessIDs []string) (*BatchStats, error)
}

// BatchScheduler owns the cron trigger and the batch lock.
type BatchScheduler struct {
	runner    BatchRunner
	newLock   func() distlock.DistLock
	retention *DataRetentionWorker
	timeout   time.Duration
	baseCtx   context.Context

	mu      sync.Mutex
	cron    *cron.Cron
	last    *BatchStats
	lastRun time.Time
}

// NewBatchScheduler creates a scheduler. newLock is called for every run.
func NewBatchScheduler(runner BatchRunner, newLock func() distlock.DistLock) *BatchScheduler {
	return &BatchScheduler{
		runner:  runner,
		newLock: newLock,
		timeout: 2 * time.Hour,
		baseCtx: context.Background(),
	}
}

// SetBaseContext sets the parent context of scheduled runs. Canceling it
// stops a running scheduled batch, so cancel it before Stop on shutdown.
func (s *BatchScheduler) SetBaseContext(ctx context.Context) { s.baseCtx = ctx }

// SetRetention runs w after each scheduled batch.
func (s *BatchScheduler) SetRetention(w *DataRetentionWorker) { s.retention = w }

// SetTimeout bounds a scheduled run.
func (s *BatchScheduler) SetTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Start registers the cron expression (standard 5-field form) and starts
// the cron loop.
func (s *BatchScheduler) Start(expr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("batch scheduler already started")
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(expr, s.scheduled); err != nil {
		return fmt.Errorf("invalid batch cron %q: %w", expr, err)
	}
	c.Start()
	s.cron = c
	logger.Info("batch scheduler started", "cron", expr)
	return nil
}

// Stop halts the cron loop and waits for a running job to return.
func (s *BatchScheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	logger.Info("batch scheduler stopped")
}

func (s *BatchScheduler) scheduled() {
	ctx, cancel := context.WithTimeout(s.baseCtx, s.timeout)
	defer cancel()

	_, err := s.run(ctx, nil, true)
	switch {
	case errors.Is(err, distlock.ErrLocked):
		logger.Info("scheduled batch skipped, another run holds the lock")
	case err != nil:
		logger.Error("scheduled batch failed", "error", err)
	}
}

// Trigger runs a batch now for businessIDs (all when empty). It returns
// distlock.ErrLocked when another run is in progress.
func (s *BatchScheduler) Trigger(ctx context.Context, businessIDs []string) (*BatchStats, error) {
	return s.run(ctx, businessIDs, false)
}

func (s *BatchScheduler) run(ctx context.Context, businessIDs []string, sweep bool) (*BatchStats, error) {
	var stats *BatchStats
	err := distlock.Run(ctx, s.newLock(), func(ctx context.Context) error {
		var err error
		stats, err = s.runner.RunBatch(ctx, businessIDs)
		if err != nil {
			return err
		}
		if sweep && s.retention != nil {
			s.retention.Run(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.last = stats
	s.lastRun = time.Now()
	s.mu.Unlock()
	return stats, nil
}

// Last returns the stats and start time of the most recent completed run
// in this process.
func (s *BatchScheduler) Last() (*BatchStats, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastRun
}
