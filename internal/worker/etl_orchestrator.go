package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/metrics"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
	"github.com/ignite/adinsight/internal/pkg/logger"
	"github.com/ignite/adinsight/internal/platform"
)

// =============================================================================
// ETL ORCHESTRATOR
// =============================================================================
// One batch run ingests yesterday's ad insights for every business with a
// connected platform integration, then refreshes the derived data:
//
// - Per business: build the ad -> content/experiment tag map once, fetch
//   each connected platform concurrently, normalize, tag and upsert.
// - After a business's platforms finish: re-run pattern analysis for it.
// - After every business: recompute results of started active experiments
//   and complete the expired ones.
//
// Failures are isolated to the platform or business they happen in. The
// request gates live for exactly one batch.

// IntegrationRepository reads and updates platform integrations.
type IntegrationRepository interface {
	// ListBusinessIDs returns every business with at least one integration.
	ListBusinessIDs(ctx context.Context) ([]string, error)
	ListForBusiness(ctx context.Context, businessID string) ([]domain.Integration, error)
	// MarkSynced sets last_synced and clears any error.
	MarkSynced(ctx context.Context, businessID string, p domain.Platform, at time.Time) error
	MarkError(ctx context.Context, businessID string, p domain.Platform, message string) error
	MarkNeedsReauth(ctx context.Context, businessID string, p domain.Platform, message string) error
}

// ContentSource lists content records that reference an external ad id.
type ContentSource interface {
	ListPublished(ctx context.Context, businessID string) ([]domain.ContentRecord, error)
}

// PerformanceWriter persists normalized records.
type PerformanceWriter interface {
	// BulkUpsert inserts or overwrites records by their natural key and
	// returns the number written.
	BulkUpsert(ctx context.Context, records []domain.PerformanceRecord) (int, error)
}

// ExperimentStore lists and updates experiments.
type ExperimentStore interface {
	ListActive(ctx context.Context, businessID string) ([]domain.Experiment, error)
	ListExpiredPaused(ctx context.Context, businessID string, now time.Time) ([]domain.Experiment, error)
	// ListOverlapping returns experiments of any status whose window
	// overlaps the given day.
	ListOverlapping(ctx context.Context, businessID string, day time.Time) ([]domain.Experiment, error)
	UpdateStatus(ctx context.Context, id string, from, to domain.ExperimentStatus) error
}

// TokenProvider resolves platform access tokens. It returns an error
// wrapping platform.ErrNeedsReauth when the user has to reconnect.
type TokenProvider interface {
	Token(ctx context.Context, businessID string, p domain.Platform) (*oauth2.Token, error)
}

// PatternAnalyzer re-derives a business's pattern insights.
type PatternAnalyzer interface {
	Analyze(ctx context.Context, businessID string) ([]domain.PatternInsight, error)
}

// ResultsCalculator recomputes an experiment's result.
type ResultsCalculator interface {
	ComputeResults(ctx context.Context, experimentID string) (*domain.ExperimentResult, error)
}

// RawArchive stores raw platform items before normalization.
type RawArchive interface {
	Store(ctx context.Context, businessID, platform string, date time.Time, items []map[string]interface{}) error
}

// ETLDeps are the collaborators of the orchestrator.
type ETLDeps struct {
	Integrations IntegrationRepository
	Content      ContentSource
	Performance  PerformanceWriter
	Experiments  ExperimentStore
	Tokens       TokenProvider
	Analyzer     PatternAnalyzer
	Results      ResultsCalculator
	Adapters     platform.Registry
}

// ETLOptions size the batch.
type ETLOptions struct {
	GlobalConcurrency      int
	PerBusinessConcurrency int
	BusinessWorkers        int
	Policy                 httpretry.Policy
}

// DefaultETLOptions: 5 requests in flight overall, 3 per business, 4
// businesses at a time, the default retry policy.
func DefaultETLOptions() ETLOptions {
	return ETLOptions{
		GlobalConcurrency:      5,
		PerBusinessConcurrency: 3,
		BusinessWorkers:        4,
		Policy:                 httpretry.DefaultPolicy(),
	}
}

// BatchStats summarizes one RunBatch call.
type BatchStats struct {
	Businesses           int64 `json:"businesses"`
	BusinessesSkipped    int64 `json:"businesses_skipped"`
	BusinessesFailed     int64 `json:"businesses_failed"`
	PlatformsSynced      int64 `json:"platforms_synced"`
	PlatformsFailed      int64 `json:"platforms_failed"`
	PlatformsSkipped     int64 `json:"platforms_skipped"`
	RecordsUpserted      int64 `json:"records_upserted"`
	ItemsRejected        int64 `json:"items_rejected"`
	InsightsGenerated    int64 `json:"insights_generated"`
	ExperimentsComputed  int64 `json:"experiments_computed"`
	ExperimentsCompleted int64 `json:"experiments_completed"`
	ExperimentsFailed    int64 `json:"experiments_failed"`
}

// ETLOrchestrator drives ingestion batches.
type ETLOrchestrator struct {
	deps ETLDeps
	opts ETLOptions

	client      httpretry.HTTPDoer
	redisClient *redis.Client // optional; shares the global gate across instances
	metrics     metrics.Recorder
	alerts      platform.Notifier
	archive     RawArchive
	now         func() time.Time
}

// NewETLOrchestrator creates an orchestrator.
func NewETLOrchestrator(deps ETLDeps, opts ETLOptions) *ETLOrchestrator {
	def := DefaultETLOptions()
	if opts.GlobalConcurrency <= 0 {
		opts.GlobalConcurrency = def.GlobalConcurrency
	}
	if opts.PerBusinessConcurrency <= 0 {
		opts.PerBusinessConcurrency = def.PerBusinessConcurrency
	}
	if opts.BusinessWorkers <= 0 {
		opts.BusinessWorkers = def.BusinessWorkers
	}
	return &ETLOrchestrator{
		deps:    deps,
		opts:    opts,
		client:  &http.Client{Timeout: 60 * time.Second},
		metrics: metrics.Nop{},
		now:     time.Now,
	}
}

// SetHTTPClient sets the client used for platform requests.
func (o *ETLOrchestrator) SetHTTPClient(c httpretry.HTTPDoer) { o.client = c }

// SetRedisClient moves the global request gate into Redis so several
// orchestrator instances share one budget.
func (o *ETLOrchestrator) SetRedisClient(c *redis.Client) { o.redisClient = c }

// SetMetrics sets the metrics recorder.
func (o *ETLOrchestrator) SetMetrics(m metrics.Recorder) {
	if m != nil {
		o.metrics = m
	}
}

// SetNotifier sets the alert notifier.
func (o *ETLOrchestrator) SetNotifier(n platform.Notifier) { o.alerts = n }

// SetArchive enables raw item archiving.
func (o *ETLOrchestrator) SetArchive(a RawArchive) { o.archive = a }

// SetClock overrides the time source.
func (o *ETLOrchestrator) SetClock(now func() time.Time) { o.now = now }

// RunBatch ingests yesterday's insights for businessIDs, or for every
// business with an integration when businessIDs is empty. It only returns
// an error when the business list itself cannot be loaded.
func (o *ETLOrchestrator) RunBatch(ctx context.Context, businessIDs []string) (*BatchStats, error) {
	start := o.now()
	o.metrics.JobRun()

	all := len(businessIDs) == 0
	if all {
		ids, err := o.deps.Integrations.ListBusinessIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("list businesses: %w", err)
		}
		businessIDs = ids
	}

	stats := &BatchStats{}
	fetcher := o.newFetcher()
	date := yesterday(start)

	logger.Info("etl batch starting", "businesses", len(businessIDs), "date", date.Format("2006-01-02"))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.BusinessWorkers)
	for _, id := range businessIDs {
		id := id
		g.Go(func() error {
			o.processBusiness(gctx, fetcher, id, date, stats)
			return nil
		})
	}
	_ = g.Wait()

	if all {
		o.refreshExperiments(ctx, nil, stats)
	} else {
		o.refreshExperiments(ctx, businessIDs, stats)
	}

	logger.Info("etl batch complete",
		"duration_ms", o.now().Sub(start).Milliseconds(),
		"businesses", atomic.LoadInt64(&stats.Businesses),
		"platforms_synced", atomic.LoadInt64(&stats.PlatformsSynced),
		"platforms_failed", atomic.LoadInt64(&stats.PlatformsFailed),
		"records", atomic.LoadInt64(&stats.RecordsUpserted),
		"experiments", atomic.LoadInt64(&stats.ExperimentsComputed),
	)
	return stats, nil
}

func (o *ETLOrchestrator) newFetcher() *platform.Fetcher {
	var global platform.Gate = platform.NewLocalGate(o.opts.GlobalConcurrency)
	if o.redisClient != nil {
		global = platform.NewRedisGate(o.redisClient, "platform-requests", o.opts.GlobalConcurrency)
	}
	f := platform.NewFetcher(o.client, platform.NewGateSet(global, o.opts.PerBusinessConcurrency), o.opts.Policy)
	f.SetMetrics(o.metrics)
	f.SetIntegrations(o.deps.Integrations)
	if o.alerts != nil {
		f.SetNotifier(o.alerts)
	}
	return f
}

func (o *ETLOrchestrator) processBusiness(ctx context.Context, fetcher *platform.Fetcher, businessID string, date time.Time, stats *BatchStats) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&stats.BusinessesFailed, 1)
			logger.Error("panic processing business", "business_id", businessID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	integrations, err := o.deps.Integrations.ListForBusiness(ctx, businessID)
	if err != nil {
		atomic.AddInt64(&stats.BusinessesFailed, 1)
		logger.Error("failed to list integrations", "business_id", businessID, "error", err)
		return
	}
	var eligible []domain.Integration
	for _, integ := range integrations {
		if integ.Eligible() {
			eligible = append(eligible, integ)
		}
	}
	if len(eligible) == 0 {
		atomic.AddInt64(&stats.BusinessesSkipped, 1)
		logger.Debug("no connected integrations", "business_id", businessID)
		return
	}
	atomic.AddInt64(&stats.Businesses, 1)

	tags, err := o.loadAdTags(ctx, businessID)
	if err != nil {
		// Upserting untagged rows would erase existing experiment tags.
		atomic.AddInt64(&stats.BusinessesFailed, 1)
		logger.Error("failed to build ad tags", "business_id", businessID, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, integ := range eligible {
		wg.Add(1)
		go func(integ domain.Integration) {
			defer wg.Done()
			if err := o.syncPlatform(ctx, fetcher, integ, tags, date, stats); err != nil {
				atomic.AddInt64(&stats.PlatformsFailed, 1)
				o.metrics.PlatformFailure(string(integ.Platform))
				logger.Error("platform sync failed",
					"business_id", businessID,
					"platform", string(integ.Platform),
					"error", err,
				)
			}
		}(integ)
	}
	wg.Wait()

	if o.deps.Analyzer == nil {
		return
	}
	insights, err := o.deps.Analyzer.Analyze(ctx, businessID)
	if err != nil {
		logger.Error("pattern analysis failed", "business_id", businessID, "error", err)
		return
	}
	atomic.AddInt64(&stats.InsightsGenerated, int64(len(insights)))
}

func (o *ETLOrchestrator) loadAdTags(ctx context.Context, businessID string) (adTags, error) {
	contents, err := o.deps.Content.ListPublished(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	exps, err := o.deps.Experiments.ListActive(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	return buildAdTags(contents, exps), nil
}

func (o *ETLOrchestrator) loadReplayTags(ctx context.Context, businessID string, day time.Time) (adTags, error) {
	contents, err := o.deps.Content.ListPublished(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	exps, err := o.deps.Experiments.ListActive(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	past, err := o.deps.Experiments.ListOverlapping(ctx, businessID, day)
	if err != nil {
		return nil, fmt.Errorf("list experiments: %w", err)
	}
	seen := make(map[string]bool, len(exps))
	for _, e := range exps {
		seen[e.ID] = true
	}
	for _, e := range past {
		if !seen[e.ID] {
			exps = append(exps, e)
		}
	}
	return buildAdTags(contents, exps), nil
}

// syncPlatform fetches, normalizes and stores one day for one integration.
// The integration's sync state only changes on success; exhausted retries
// are recorded by the fetcher.
func (o *ETLOrchestrator) syncPlatform(ctx context.Context, fetcher *platform.Fetcher, integ domain.Integration, tags adTags, date time.Time, stats *BatchStats) error {
	adapter, ok := o.deps.Adapters[integ.Platform]
	if !ok {
		atomic.AddInt64(&stats.PlatformsSkipped, 1)
		logger.Warn("no adapter for platform", "business_id", integ.BusinessID, "platform", string(integ.Platform))
		return nil
	}

	token, err := o.deps.Tokens.Token(ctx, integ.BusinessID, integ.Platform)
	if errors.Is(err, platform.ErrNeedsReauth) {
		atomic.AddInt64(&stats.PlatformsSkipped, 1)
		logger.Info("integration needs re-authentication", "business_id", integ.BusinessID, "platform", string(integ.Platform))
		if merr := o.deps.Integrations.MarkNeedsReauth(ctx, integ.BusinessID, integ.Platform, err.Error()); merr != nil {
			logger.Warn("failed to flag integration", "business_id", integ.BusinessID, "error", merr)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}

	req, err := adapter.InsightsRequest(integ, token, date)
	if err != nil {
		return err
	}
	items, err := fetcher.FetchAllPages(ctx, integ.BusinessID, req, adapter)
	if err != nil {
		return err
	}

	if o.archive != nil {
		if err := o.archive.Store(ctx, integ.BusinessID, string(integ.Platform), date, items); err != nil {
			logger.Warn("raw archive failed", "business_id", integ.BusinessID, "platform", string(integ.Platform), "error", err)
		}
	}

	records, rejected := normalizeItems(adapter, integ.BusinessID, date, items, tags, o.now().UTC())
	if rejected > 0 {
		atomic.AddInt64(&stats.ItemsRejected, int64(rejected))
	}
	if len(records) > 0 {
		n, err := o.deps.Performance.BulkUpsert(ctx, records)
		if err != nil {
			return fmt.Errorf("upsert records: %w", err)
		}
		atomic.AddInt64(&stats.RecordsUpserted, int64(n))
	}

	if err := o.deps.Integrations.MarkSynced(ctx, integ.BusinessID, integ.Platform, o.now().UTC()); err != nil {
		return fmt.Errorf("mark synced: %w", err)
	}
	atomic.AddInt64(&stats.PlatformsSynced, 1)
	logger.Info("platform synced",
		"business_id", integ.BusinessID,
		"platform", string(integ.Platform),
		"items", len(items),
		"records", len(records),
		"rejected", rejected,
	)
	return nil
}

// normalizeItems maps raw items to tagged records, one per natural key.
// A key seen twice keeps the later item.
func normalizeItems(a platform.Adapter, businessID string, date time.Time, items []platform.RawItem, tags adTags, now time.Time) ([]domain.PerformanceRecord, int) {
	byKey := make(map[domain.RecordKey]int, len(items))
	records := make([]domain.PerformanceRecord, 0, len(items))
	rejected := 0
	for _, item := range items {
		rec, err := a.Normalize(businessID, date, item)
		if err != nil {
			rejected++
			logger.Warn("rejected platform item", "business_id", businessID, "platform", string(a.Platform()), "error", err)
			continue
		}
		tags.apply(&rec)
		rec.UpdatedAt = now

		if i, ok := byKey[rec.Key()]; ok {
			records[i] = rec
			continue
		}
		byKey[rec.Key()] = len(records)
		records = append(records, rec)
	}
	return records, rejected
}

// Replay normalizes previously archived raw items for one business,
// platform and day and upserts them. Ads are tagged with active experiments
// and with any experiment whose window covered the day, so replaying a
// finished experiment's days keeps its tags. It does not touch the platform
// or the integration's sync state.
func (o *ETLOrchestrator) Replay(ctx context.Context, businessID string, p domain.Platform, date time.Time, items []platform.RawItem) (int, error) {
	adapter, ok := o.deps.Adapters[p]
	if !ok {
		return 0, fmt.Errorf("no adapter for platform %s", p)
	}
	tags, err := o.loadReplayTags(ctx, businessID, date)
	if err != nil {
		return 0, err
	}
	records, rejected := normalizeItems(adapter, businessID, date, items, tags, o.now().UTC())
	if len(records) == 0 {
		return 0, nil
	}
	n, err := o.deps.Performance.BulkUpsert(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("upsert records: %w", err)
	}
	logger.Info("raw items replayed",
		"business_id", businessID,
		"platform", string(p),
		"date", date.Format("2006-01-02"),
		"records", n,
		"rejected", rejected,
	)
	return n, nil
}

// refreshExperiments recomputes started active experiments of the given
// businesses, or of every business when businessIDs is nil. Paused
// experiments past their end date are recomputed too, which completes them.
func (o *ETLOrchestrator) refreshExperiments(ctx context.Context, businessIDs []string, stats *BatchStats) {
	if o.deps.Results == nil {
		return
	}
	now := o.now()
	scopes := businessIDs
	if scopes == nil {
		scopes = []string{""}
	}

	var exps []domain.Experiment
	for _, id := range scopes {
		active, err := o.deps.Experiments.ListActive(ctx, id)
		if err != nil {
			logger.Error("failed to list experiments", "business_id", id, "error", err)
			continue
		}
		exps = append(exps, active...)

		paused, err := o.deps.Experiments.ListExpiredPaused(ctx, id, now)
		if err != nil {
			logger.Error("failed to list expired paused experiments", "business_id", id, "error", err)
			continue
		}
		exps = append(exps, paused...)
	}

	for i := range exps {
		exp := &exps[i]
		if !exp.Started(now) {
			continue
		}
		if _, err := o.deps.Results.ComputeResults(ctx, exp.ID); err != nil {
			atomic.AddInt64(&stats.ExperimentsFailed, 1)
			logger.Error("experiment results failed", "experiment_id", exp.ID, "error", err)
			if exp.Expired(now) {
				o.completeExpired(ctx, exp, stats)
			}
			continue
		}
		atomic.AddInt64(&stats.ExperimentsComputed, 1)
		if exp.Expired(now) {
			atomic.AddInt64(&stats.ExperimentsCompleted, 1)
		}
	}
}

// completeExpired ends an expired experiment whose results could not be
// computed. The next read recomputes them.
func (o *ETLOrchestrator) completeExpired(ctx context.Context, exp *domain.Experiment, stats *BatchStats) {
	err := o.deps.Experiments.UpdateStatus(ctx, exp.ID, exp.Status, domain.ExperimentCompleted)
	if err != nil {
		logger.Warn("failed to complete expired experiment", "experiment_id", exp.ID, "error", err)
		return
	}
	atomic.AddInt64(&stats.ExperimentsCompleted, 1)
}

func yesterday(now time.Time) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
