package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adinsight/internal/pkg/distlock"
)

type countingRunner struct {
	calls   int32
	block   chan struct{}
	started chan struct{}
	err     error
}

func (r *countingRunner) RunBatch(ctx context.Context, ids []string) (*BatchStats, error) {
	atomic.AddInt32(&r.calls, 1)
	if r.started != nil {
		close(r.started)
	}
	if r.block != nil {
		<-r.block
	}
	if r.err != nil {
		return nil, r.err
	}
	return &BatchStats{Businesses: int64(len(ids))}, nil
}

func newSchedulerLock(t *testing.T) func() distlock.DistLock {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return func() distlock.DistLock { return distlock.NewRedisLock(client, "etl-batch", time.Minute) }
}

func TestBatchScheduler_TriggerRecordsStats(t *testing.T) {
	runner := &countingRunner{}
	s := NewBatchScheduler(runner, newSchedulerLock(t))

	stats, err := s.Trigger(context.Background(), []string{"biz-1", "biz-2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Businesses)

	last, at := s.Last()
	assert.Same(t, stats, last)
	assert.False(t, at.IsZero())
}

func TestBatchScheduler_ConcurrentTriggerIsLocked(t *testing.T) {
	runner := &countingRunner{block: make(chan struct{}), started: make(chan struct{})}
	s := NewBatchScheduler(runner, newSchedulerLock(t))

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), nil)
		done <- err
	}()
	<-runner.started

	_, err := s.Trigger(context.Background(), nil)
	assert.ErrorIs(t, err, distlock.ErrLocked)

	close(runner.block)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), atomic.LoadInt32(&runner.calls))
}

func TestBatchScheduler_RunnerError(t *testing.T) {
	runner := &countingRunner{err: errors.New("list businesses: db down")}
	s := NewBatchScheduler(runner, newSchedulerLock(t))

	_, err := s.Trigger(context.Background(), nil)
	require.Error(t, err)
	last, _ := s.Last()
	assert.Nil(t, last)
}

func TestBatchScheduler_StartRejectsBadCron(t *testing.T) {
	s := NewBatchScheduler(&countingRunner{}, newSchedulerLock(t))
	require.Error(t, s.Start("not a cron"))

	require.NoError(t, s.Start("0 3 * * *"))
	assert.Error(t, s.Start("0 4 * * *"))
	s.Stop()
}

type ctxRunner struct {
	once    sync.Once
	started chan struct{}
	err     chan error
}

func (r *ctxRunner) RunBatch(ctx context.Context, _ []string) (*BatchStats, error) {
	first := false
	r.once.Do(func() {
		first = true
		close(r.started)
	})
	<-ctx.Done()
	if first {
		r.err <- ctx.Err()
	}
	return nil, ctx.Err()
}

func TestBatchScheduler_StopCancelsScheduledRun(t *testing.T) {
	runner := &ctxRunner{started: make(chan struct{}), err: make(chan error, 1)}
	s := NewBatchScheduler(runner, newSchedulerLock(t))

	ctx, cancel := context.WithCancel(context.Background())
	s.SetBaseContext(ctx)
	require.NoError(t, s.Start("@every 1s"))

	select {
	case <-runner.started:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled batch did not start")
	}

	cancel()
	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop waited for the batch despite canceled context")
	}
	assert.ErrorIs(t, <-runner.err, context.Canceled)
}
