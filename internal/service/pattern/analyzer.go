package pattern

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/logger"
	"github.com/ignite/adinsight/internal/stats"
)

// Options are the analysis thresholds.
type Options struct {
	LookbackDays int
	MaxInsights  int
	MinAds       int
	MinUplift    float64
	Alpha        float64
}

// DefaultOptions: 30-day window, top 5, at least 3 ads, 15% uplift, p < 0.05.
func DefaultOptions() Options {
	return Options{
		LookbackDays: 30,
		MaxInsights:  5,
		MinAds:       3,
		MinUplift:    0.15,
		Alpha:        stats.Alpha,
	}
}

// OptionsFromConfig maps the analysis config section, keeping defaults for
// unset fields.
func OptionsFromConfig(c config.AnalysisConfig) Options {
	o := DefaultOptions()
	if c.LookbackDays > 0 {
		o.LookbackDays = c.LookbackDays
	}
	if c.MaxInsights > 0 {
		o.MaxInsights = c.MaxInsights
	}
	if c.MinAds > 0 {
		o.MinAds = c.MinAds
	}
	if c.MinUplift > 0 {
		o.MinUplift = c.MinUplift
	}
	if c.Alpha > 0 {
		o.Alpha = c.Alpha
	}
	return o
}

// Analyzer computes and stores pattern insights.
type Analyzer struct {
	content  ContentSource
	perf     PerformanceReader
	insights InsightRepository
	opts     Options
	now      func() time.Time
}

// NewAnalyzer creates an analyzer.
func NewAnalyzer(content ContentSource, perf PerformanceReader, insights InsightRepository, opts Options) *Analyzer {
	return &Analyzer{
		content:  content,
		perf:     perf,
		insights: insights,
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock overrides the time source.
func (a *Analyzer) SetClock(now func() time.Time) { a.now = now }

// Analyze recomputes the business's insights from content and recent
// performance, replaces the stored set, and returns the insights ordered
// by uplift descending.
func (a *Analyzer) Analyze(ctx context.Context, businessID string) ([]domain.PatternInsight, error) {
	if businessID == "" {
		return nil, ErrMissingBusiness
	}

	contents, err := a.content.ListPublished(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	now := a.now().UTC()
	since := now.AddDate(0, 0, -a.opts.LookbackDays)
	records, err := a.perf.ListSince(ctx, businessID, since)
	if err != nil {
		return nil, fmt.Errorf("list performance: %w", err)
	}

	ix := BuildElementIndex(contents)
	insights := Evaluate(ix, records, a.opts)

	set := domain.InsightSet{BusinessID: businessID, Insights: insights, AnalyzedAt: now}
	if err := a.insights.Replace(ctx, set); err != nil {
		return nil, fmt.Errorf("store insights: %w", err)
	}

	logger.Info("pattern analysis complete",
		"business_id", businessID,
		"elements", ix.Len(),
		"records", len(records),
		"insights", len(insights),
	)
	return insights, nil
}

// Insights returns the stored insight set for a business.
func (a *Analyzer) Insights(ctx context.Context, businessID string) (*domain.InsightSet, error) {
	return a.insights.Get(ctx, businessID)
}

type adTotals struct {
	impressions int64
	clicks      int64
}

// adKey separates same-id ads on different platforms. Content records carry
// no platform, so element membership is still decided by ad id alone.
type adKey struct {
	platform domain.Platform
	adID     string
}

// Evaluate runs the significance tests over an element index and a set of
// performance records. It has no side effects.
func Evaluate(ix *ElementIndex, records []domain.PerformanceRecord, opts Options) []domain.PatternInsight {
	perAd := make(map[adKey]*adTotals)
	for _, r := range records {
		k := adKey{platform: r.Platform, adID: r.AdID}
		t, ok := perAd[k]
		if !ok {
			t = &adTotals{}
			perAd[k] = t
		}
		t.impressions += r.Impressions
		t.clicks += r.Clicks
	}

	var out []domain.PatternInsight
	for _, key := range ix.Keys() {
		if len(ix.Ads(key)) < opts.MinAds {
			continue
		}

		var with, without domain.PartitionStats
		for k, t := range perAd {
			side := &without
			if ix.Has(key, k.adID) {
				side = &with
			}
			side.Impressions += t.impressions
			side.Clicks += t.clicks
			side.SampleSize++
		}
		with.CTR = domain.CTR(with.Clicks, with.Impressions)
		without.CTR = domain.CTR(without.Clicks, without.Impressions)

		uplift := 0.0
		if without.CTR != 0 {
			uplift = (with.CTR - without.CTR) / without.CTR
		}
		if uplift < opts.MinUplift {
			continue
		}

		_, p := stats.ChiSquareTest(stats.ContingencyTable(with.Clicks, with.Impressions, without.Clicks, without.Impressions))
		if p >= opts.Alpha {
			continue
		}

		lo, hi := stats.UpliftCI(uplift, with.Impressions, without.Impressions, stats.Z95)
		el, _ := ix.Element(key)
		out = append(out, domain.PatternInsight{
			Element:     el.Value,
			ElementType: el.Type,
			Performance: domain.InsightPerformance{
				WithElement:        with,
				WithoutElement:     without,
				Uplift:             uplift,
				Confidence:         1 - p,
				PValue:             p,
				ConfidenceInterval: &domain.Interval{Lower: lo, Upper: hi},
			},
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Performance.Uplift > out[j].Performance.Uplift
	})
	if opts.MaxInsights > 0 && len(out) > opts.MaxInsights {
		out = out[:opts.MaxInsights]
	}
	return out
}
