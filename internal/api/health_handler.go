package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adinsight/internal/pkg/httputil"
	"github.com/ignite/adinsight/internal/worker"
)

// Component states reported by a check.
const (
	statusUp            = "up"
	statusDown          = "down"
	statusDegraded      = "degraded"
	statusNotConfigured = "not_configured"
	statusPending       = "pending"
)

// DefaultBatchStaleAfter is how old the last batch may be before the batch
// check reports degraded. It leaves slack over a daily schedule.
const DefaultBatchStaleAfter = 26 * time.Hour

// HealthStatus is the overall health of the service.
type HealthStatus struct {
	Status string                    `json:"status"` // healthy, degraded, unhealthy
	Uptime string                    `json:"uptime"`
	Checks map[string]ComponentCheck `json:"checks"`
}

// ComponentCheck is the health of a single dependency.
type ComponentCheck struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// BatchStatus exposes the most recent batch run.
type BatchStatus interface {
	Last() (*worker.BatchStats, time.Time)
}

// HealthChecker checks Postgres, Redis, the raw archive bucket, the state
// of platform integrations and the freshness of the last batch. Any
// dependency may be nil.
type HealthChecker struct {
	db         *sql.DB
	redis      *redis.Client
	s3         s3.HeadBucketAPIClient
	bucket     string
	batch      BatchStatus
	staleAfter time.Duration
	started    time.Time
	now        func() time.Time
}

// NewHealthChecker creates a HealthChecker.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client, s3Client s3.HeadBucketAPIClient, bucket string) *HealthChecker {
	return &HealthChecker{
		db:         db,
		redis:      redisClient,
		s3:         s3Client,
		bucket:     bucket,
		staleAfter: DefaultBatchStaleAfter,
		started:    time.Now(),
		now:        time.Now,
	}
}

// SetBatchStatus enables the batch freshness check.
func (hc *HealthChecker) SetBatchStatus(b BatchStatus, staleAfter time.Duration) {
	hc.batch = b
	if staleAfter > 0 {
		hc.staleAfter = staleAfter
	}
}

// HandleHealth reports every check. It always answers 200; probes use
// /health/ready.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := hc.runChecks(r.Context())
	httputil.OK(w, HealthStatus{
		Status: overallStatus(checks),
		Uptime: hc.uptime(),
		Checks: checks,
	})
}

// HandleLiveness answers 200 while the process runs.
//
//	GET /health/live
func (hc *HealthChecker) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "alive", "uptime": hc.uptime()})
}

// HandleReadiness answers 503 when the database is down.
//
//	GET /health/ready
func (hc *HealthChecker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	checks := hc.runChecks(r.Context())
	overall := overallStatus(checks)
	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	httputil.JSON(w, status, map[string]interface{}{
		"ready":  status == http.StatusOK,
		"status": overall,
		"checks": checks,
	})
}

func (hc *HealthChecker) uptime() string {
	return hc.now().Sub(hc.started).Round(time.Second).String()
}

func (hc *HealthChecker) runChecks(ctx context.Context) map[string]ComponentCheck {
	probes := map[string]func(context.Context) ComponentCheck{
		"database":     hc.checkDatabase,
		"redis":        hc.checkRedis,
		"archive":      hc.checkArchive,
		"integrations": hc.checkIntegrations,
		"batch":        hc.checkBatch,
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]ComponentCheck, len(probes))
	)
	for name, probe := range probes {
		wg.Add(1)
		go func(name string, probe func(context.Context) ComponentCheck) {
			defer wg.Done()
			c := probe(ctx)
			mu.Lock()
			checks[name] = c
			mu.Unlock()
		}(name, probe)
	}
	wg.Wait()
	return checks
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: statusDown, Message: "not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	return timed(start, hc.db.PingContext(ctx), time.Second, "ping")
}

// Redis is optional: without it gates stay in-process and the batch lock
// falls back to Postgres.
func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redis == nil {
		return ComponentCheck{Status: statusNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	return timed(start, hc.redis.Ping(ctx).Err(), 500*time.Millisecond, "ping")
}

func (hc *HealthChecker) checkArchive(ctx context.Context) ComponentCheck {
	if hc.s3 == nil || hc.bucket == "" {
		return ComponentCheck{Status: statusNotConfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	start := time.Now()
	_, err := hc.s3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &hc.bucket})
	return timed(start, err, 2*time.Second, "HeadBucket")
}

// checkIntegrations is degraded while any integration is errored or waiting
// for re-authentication.
func (hc *HealthChecker) checkIntegrations(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: statusDown, Message: "database not available"}
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var errored, reauth int
	err := hc.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status = 'error'),
		       COUNT(*) FILTER (WHERE status = 'needs_reauth')
		FROM platform_integrations
	`).Scan(&errored, &reauth)
	switch {
	case err != nil:
		return ComponentCheck{Status: statusDegraded, Message: fmt.Sprintf("query failed: %v", err)}
	case errored+reauth > 0:
		return ComponentCheck{
			Status:  statusDegraded,
			Message: fmt.Sprintf("%d errored, %d need re-authentication", errored, reauth),
		}
	}
	return ComponentCheck{Status: statusUp}
}

// checkBatch is degraded when the last run is stale or had failed
// businesses. Before the first run in this process it is pending.
func (hc *HealthChecker) checkBatch(context.Context) ComponentCheck {
	if hc.batch == nil {
		return ComponentCheck{Status: statusNotConfigured}
	}
	stats, at := hc.batch.Last()
	if stats == nil {
		return ComponentCheck{Status: statusPending, Message: "no batch has completed yet"}
	}
	age := hc.now().Sub(at).Round(time.Second)
	switch {
	case age > hc.staleAfter:
		return ComponentCheck{Status: statusDegraded, Message: fmt.Sprintf("last batch %s ago", age)}
	case stats.BusinessesFailed > 0:
		return ComponentCheck{Status: statusDegraded, Message: fmt.Sprintf("%d businesses failed in last batch", stats.BusinessesFailed)}
	}
	return ComponentCheck{Status: statusUp, Message: fmt.Sprintf("last batch %s ago", age)}
}

func timed(start time.Time, err error, slow time.Duration, op string) ComponentCheck {
	latency := time.Since(start)
	switch {
	case err != nil:
		return ComponentCheck{Status: statusDown, Latency: latency.String(), Message: fmt.Sprintf("%s failed: %v", op, err)}
	case latency > slow:
		return ComponentCheck{Status: statusDegraded, Latency: latency.String(), Message: "slow response"}
	}
	return ComponentCheck{Status: statusUp, Latency: latency.String()}
}

// overallStatus is unhealthy when the database is down and degraded when
// any other check is down or degraded.
func overallStatus(checks map[string]ComponentCheck) string {
	if checks["database"].Status == statusDown {
		return "unhealthy"
	}
	for _, c := range checks {
		if c.Status == statusDown || c.Status == statusDegraded {
			return "degraded"
		}
	}
	return "healthy"
}
