package experiment_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
)

var now = time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func tagged(expID string, v domain.Variant, day time.Time, impressions, leads int64) domain.PerformanceRecord {
	return domain.PerformanceRecord{
		BusinessID:   "biz-1",
		Platform:     domain.PlatformMeta,
		AdID:         "ad-" + string(v),
		Date:         day,
		Impressions:  impressions,
		Clicks:       impressions / 10,
		Leads:        leads,
		ExperimentID: strPtr(expID),
		Variant:      &v,
	}
}

type calcEnv struct {
	repo     *memRepo
	perf     *memPerf
	results  *memResults
	notifier *fakeNotifier
	calc     *experiment.Calculator
}

func newCalcEnv(exp domain.Experiment, records ...domain.PerformanceRecord) *calcEnv {
	env := &calcEnv{
		repo:     newMemRepo(),
		perf:     &memPerf{records: records},
		results:  &memResults{},
		notifier: &fakeNotifier{},
	}
	_ = env.repo.Create(context.Background(), &exp)
	env.calc = experiment.NewCalculator(env.repo, env.perf, env.results)
	env.calc.SetNotifier(env.notifier)
	env.calc.SetClock(func() time.Time { return now })
	return env
}

func liftExperiment(end time.Time) domain.Experiment {
	return domain.Experiment{
		ID:         "exp-1",
		BusinessID: "biz-1",
		Name:       "Headline test",
		Split:      domain.Split{Original: 50, Variant: 50},
		StartDate:  now.AddDate(0, 0, -14),
		EndDate:    end,
		Status:     domain.ExperimentActive,
	}
}

func liftRecords() []domain.PerformanceRecord {
	day := now.AddDate(0, 0, -3).Truncate(24 * time.Hour)
	return []domain.PerformanceRecord{
		tagged("exp-1", domain.VariantOriginal, day, 600, 60),
		tagged("exp-1", domain.VariantOriginal, day.AddDate(0, 0, 1), 400, 40),
		tagged("exp-1", domain.VariantVariant, day, 1000, 150),
	}
}

func TestComputeResults_LiftScenario(t *testing.T) {
	env := newCalcEnv(liftExperiment(now.AddDate(0, 0, 14)), liftRecords()...)

	r, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), r.Results.Original.Impressions)
	assert.Equal(t, int64(100), r.Results.Original.Conversions)
	assert.InDelta(t, 0.10, r.Results.Original.ConversionRate, 1e-12)
	assert.InDelta(t, 0.15, r.Results.Variant.ConversionRate, 1e-12)
	assert.InDelta(t, 50.0, r.Lift, 1e-9)

	require.NotNil(t, r.LiftInterval)
	assert.True(t, r.LiftInterval.Contains(50))
	assert.GreaterOrEqual(t, r.LiftInterval.Lower, 15.0)
	assert.LessOrEqual(t, r.LiftInterval.Lower, 35.0)
	assert.GreaterOrEqual(t, r.LiftInterval.Upper, 65.0)
	assert.LessOrEqual(t, r.LiftInterval.Upper, 85.0)

	assert.Less(t, r.PValue, 0.05)
	assert.True(t, r.IsSignificant)
	require.NotNil(t, r.Results.Variant.RateInterval)
	assert.True(t, r.Results.Variant.RateInterval.Contains(0.15))
	assert.Equal(t, now, r.LastUpdated)

	stored, err := env.results.Get(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, r.Lift, stored.Lift)

	e, _ := env.repo.Get(context.Background(), "exp-1")
	assert.Equal(t, domain.ExperimentActive, e.Status)
	assert.Empty(t, env.notifier.alerts)
}

func TestComputeResults_CompletesExpiredAndAlerts(t *testing.T) {
	env := newCalcEnv(liftExperiment(now.Add(-time.Hour)), liftRecords()...)

	r, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.True(t, r.IsSignificant)

	e, _ := env.repo.Get(context.Background(), "exp-1")
	assert.Equal(t, domain.ExperimentCompleted, e.Status)

	require.Len(t, env.notifier.alerts, 1)
	a := env.notifier.alerts[0]
	assert.Equal(t, domain.AlertInfo, a.Level)
	assert.Contains(t, a.Message, "50.0%")
	assert.Equal(t, "biz-1", a.BusinessID)
	assert.Equal(t, "variant", a.Details["winner"])

	// A second pass does not announce again.
	_, err = env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Len(t, env.notifier.alerts, 1)
}

func TestComputeResults_CompletesExpiredPaused(t *testing.T) {
	expired := liftExperiment(now.Add(-time.Hour))
	expired.Status = domain.ExperimentPaused
	env := newCalcEnv(expired, liftRecords()...)

	_, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	e, _ := env.repo.Get(context.Background(), "exp-1")
	assert.Equal(t, domain.ExperimentCompleted, e.Status)

	running := liftExperiment(now.Add(time.Hour))
	running.Status = domain.ExperimentPaused
	env = newCalcEnv(running, liftRecords()...)

	_, err = env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	e, _ = env.repo.Get(context.Background(), "exp-1")
	assert.Equal(t, domain.ExperimentPaused, e.Status)
}

func TestComputeResults_CompletesWithoutAlertWhenNotSignificant(t *testing.T) {
	day := now.AddDate(0, 0, -3)
	env := newCalcEnv(liftExperiment(now.Add(-time.Hour)),
		tagged("exp-1", domain.VariantOriginal, day, 100, 10),
		tagged("exp-1", domain.VariantVariant, day, 100, 11),
	)

	r, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.False(t, r.IsSignificant)

	e, _ := env.repo.Get(context.Background(), "exp-1")
	assert.Equal(t, domain.ExperimentCompleted, e.Status)
	assert.Empty(t, env.notifier.alerts)
}

func TestComputeResults_IgnoresRecordsOutsideWindow(t *testing.T) {
	exp := liftExperiment(now.AddDate(0, 0, 14))
	records := append(liftRecords(),
		tagged("exp-1", domain.VariantOriginal, exp.StartDate.AddDate(0, 0, -2), 5000, 5000),
		tagged("other", domain.VariantVariant, now.AddDate(0, 0, -1), 5000, 5000),
	)
	untagged := domain.PerformanceRecord{BusinessID: "biz-1", ExperimentID: strPtr("exp-1"), Date: now.AddDate(0, 0, -1), Impressions: 9999}
	records = append(records, untagged)

	env := newCalcEnv(exp, records...)
	r, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r.Results.Original.Impressions)
	assert.Equal(t, int64(1000), r.Results.Variant.Impressions)
}

func TestComputeResults_NoData(t *testing.T) {
	env := newCalcEnv(liftExperiment(now.AddDate(0, 0, 14)))

	r, err := env.calc.ComputeResults(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Zero(t, r.Lift)
	assert.Zero(t, r.Results.Original.ConversionRate)
	assert.Nil(t, r.LiftInterval)
	assert.Equal(t, 1.0, r.PValue)
	assert.False(t, r.IsSignificant)
}

func TestComputeResults_UnknownExperiment(t *testing.T) {
	env := newCalcEnv(liftExperiment(now))
	_, err := env.calc.ComputeResults(context.Background(), "missing")
	assert.ErrorIs(t, err, experiment.ErrNotFound)
}
