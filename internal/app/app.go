// Package app wires configuration into the running engine: database and
// Redis clients, repositories, platform adapters, services, the ETL
// orchestrator and its scheduler. cmd/worker and cmd/adsync share it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adinsight/internal/alert"
	"github.com/ignite/adinsight/internal/archive"
	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/metrics"
	"github.com/ignite/adinsight/internal/pkg/distlock"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
	"github.com/ignite/adinsight/internal/pkg/logger"
	"github.com/ignite/adinsight/internal/platform"
	"github.com/ignite/adinsight/internal/repository/postgres"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/service/pattern"
	"github.com/ignite/adinsight/internal/worker"
)

// BatchLockKey names the lock every batch run holds.
const BatchLockKey = "etl-batch"

// App holds the wired components.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client // nil when not configured

	Integrations *postgres.IntegrationRepo
	Performance  *postgres.PerformanceRepo
	Experiments  *postgres.ExperimentRepo
	Results      *postgres.ResultRepo
	Insights     *postgres.InsightRepo
	Content      *postgres.ContentRepo

	Notifier     *alert.Notifier
	Metrics      metrics.Recorder
	Analyzer     *pattern.Analyzer
	Calculator   *experiment.Calculator
	Experiment   *experiment.Service
	Orchestrator *worker.ETLOrchestrator
	Scheduler    *worker.BatchScheduler
	Retention    *worker.DataRetentionWorker

	// Archive is set when raw archiving is enabled.
	Archive *archive.S3Archive
}

// Options control optional wiring.
type Options struct {
	// Registerer receives the Prometheus collectors. Nil disables metrics.
	Registerer prometheus.Registerer
}

// New connects to the configured stores and wires every component.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.Redact != nil {
		logger.SetRedact(*cfg.Log.Redact)
	}

	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetime) * time.Second)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	a := &App{
		Config:       cfg,
		DB:           db,
		Integrations: postgres.NewIntegrationRepo(db),
		Performance:  postgres.NewPerformanceRepo(db),
		Experiments:  postgres.NewExperimentRepo(db),
		Results:      postgres.NewResultRepo(db),
		Insights:     postgres.NewInsightRepo(db),
		Content:      postgres.NewContentRepo(db),
		Metrics:      metrics.Nop{},
	}

	if cfg.Redis.URL != "" {
		ropts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		a.Redis = redis.NewClient(ropts)
		if err := a.Redis.Ping(pctx).Err(); err != nil {
			// locks fall back to Postgres, gates stay local
			logger.Warn("redis unavailable, continuing without it", "error", err)
			a.Redis.Close()
			a.Redis = nil
		}
	}

	if opts.Registerer != nil {
		a.Metrics = metrics.NewPrometheus(opts.Registerer)
	}

	sinks := []alert.Sink{alert.LogSink{}}
	if cfg.Alerts.SES.Enabled {
		ses, err := alert.NewSESSink(ctx, cfg.Alerts.SES)
		if err != nil {
			logger.Warn("SES alerts disabled", "error", err)
		} else {
			sinks = append(sinks, ses)
		}
	}
	a.Notifier = alert.NewNotifier(sinks...)

	if cfg.Archive.Enabled && cfg.Archive.S3Bucket != "" {
		arc, err := archive.NewS3Archive(ctx, cfg.Archive.S3Bucket, cfg.Archive.S3Region, cfg.Archive.Prefix)
		if err != nil {
			logger.Warn("raw archive disabled", "error", err)
		} else {
			a.Archive = arc
		}
	}

	a.Analyzer = pattern.NewAnalyzer(a.Content, a.Performance, a.Insights, pattern.OptionsFromConfig(cfg.Analysis))
	a.Calculator = experiment.NewCalculator(a.Experiments, a.Performance, a.Results)
	a.Calculator.SetNotifier(a.Notifier)
	a.Experiment = experiment.NewService(a.Experiments, a.Results, a.Calculator)

	a.Orchestrator = worker.NewETLOrchestrator(worker.ETLDeps{
		Integrations: a.Integrations,
		Content:      a.Content,
		Performance:  a.Performance,
		Experiments:  a.Experiments,
		Tokens:       platform.NewCredentialProvider(a.Integrations, cfg.Platforms),
		Analyzer:     a.Analyzer,
		Results:      a.Calculator,
		Adapters:     platform.NewRegistry(cfg.Platforms),
	}, ETLOptions(cfg.Batch))
	a.Orchestrator.SetHTTPClient(&http.Client{Timeout: platformTimeout(cfg.Platforms)})
	a.Orchestrator.SetMetrics(a.Metrics)
	a.Orchestrator.SetNotifier(a.Notifier)
	if a.Archive != nil {
		a.Orchestrator.SetArchive(a.Archive)
	}
	if cfg.Batch.SharedGate && a.Redis != nil {
		a.Orchestrator.SetRedisClient(a.Redis)
	}

	a.Retention = worker.NewDataRetentionWorker(db, cfg.Batch.RetentionDays)
	a.Scheduler = worker.NewBatchScheduler(a.Orchestrator, func() distlock.DistLock {
		return distlock.NewLock(a.Redis, a.DB, BatchLockKey, cfg.Batch.LockTTL())
	})
	a.Scheduler.SetRetention(a.Retention)
	a.Scheduler.SetTimeout(cfg.Batch.Timeout())

	return a, nil
}

// ETLOptions maps batch configuration to orchestrator options.
func ETLOptions(c config.BatchConfig) worker.ETLOptions {
	policy := httpretry.DefaultPolicy()
	policy.MaxRetries = c.MaxRetries
	policy.BaseDelay = c.BaseDelay()
	policy.MaxJitter = c.MaxJitter()
	policy.MaxDelay = c.MaxDelay()
	return worker.ETLOptions{
		GlobalConcurrency:      c.GlobalConcurrency,
		PerBusinessConcurrency: c.PerBusinessConcurrency,
		BusinessWorkers:        c.BusinessWorkers,
		Policy:                 policy,
	}
}

func platformTimeout(c config.PlatformsConfig) time.Duration {
	d := c.Meta.Timeout()
	if g := c.GoogleAds.Timeout(); g > d {
		d = g
	}
	if d <= 0 {
		d = 60 * time.Second
	}
	return d
}

// ArchiveClient returns the S3 client used for health checks, or nil.
func (a *App) ArchiveClient() s3.HeadBucketAPIClient {
	if a.Archive == nil {
		return nil
	}
	return a.Archive.Client()
}

// Close releases database and Redis connections.
func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
