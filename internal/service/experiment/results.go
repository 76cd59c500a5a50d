package experiment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/logger"
	"github.com/ignite/adinsight/internal/stats"
)

// Calculator recomputes experiment results from tagged performance records
// and completes experiments whose end date has passed.
type Calculator struct {
	experiments Repository
	perf        PerformanceReader
	results     ResultRepository
	alerts      Notifier
	alpha       float64
	now         func() time.Time
}

// NewCalculator creates a results calculator.
func NewCalculator(experiments Repository, perf PerformanceReader, results ResultRepository) *Calculator {
	return &Calculator{
		experiments: experiments,
		perf:        perf,
		results:     results,
		alpha:       stats.Alpha,
		now:         time.Now,
	}
}

// SetNotifier sets where completion alerts go.
func (c *Calculator) SetNotifier(n Notifier) { c.alerts = n }

// SetClock overrides the time source.
func (c *Calculator) SetClock(now func() time.Time) { c.now = now }

// ComputeResults aggregates the experiment's tagged records, upserts its
// result, and completes the experiment if it is active or paused and past
// its end date.
func (c *Calculator) ComputeResults(ctx context.Context, experimentID string) (*domain.ExperimentResult, error) {
	exp, err := c.experiments.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	result, err := c.compute(ctx, exp)
	if err != nil {
		return nil, err
	}

	if exp.Status != domain.ExperimentCompleted && exp.Expired(c.now()) {
		if err := c.finish(ctx, exp, exp.Status, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Complete recomputes the result and moves an active or paused experiment
// to completed.
func (c *Calculator) Complete(ctx context.Context, experimentID string) (*domain.ExperimentResult, error) {
	exp, err := c.experiments.Get(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if exp.Status == domain.ExperimentCompleted {
		return nil, fmt.Errorf("%w: experiment already completed", ErrInvalidTransition)
	}
	result, err := c.compute(ctx, exp)
	if err != nil {
		return nil, err
	}
	if err := c.finish(ctx, exp, exp.Status, result); err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Calculator) compute(ctx context.Context, exp *domain.Experiment) (*domain.ExperimentResult, error) {
	records, err := c.perf.ListByExperiment(ctx, exp.ID, truncateDay(exp.StartDate), exp.EndDate)
	if err != nil {
		return nil, fmt.Errorf("list experiment records: %w", err)
	}

	result := Summarize(exp.ID, records, c.alpha)
	result.LastUpdated = c.now().UTC()
	if err := c.results.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("store result: %w", err)
	}
	return result, nil
}

// finish transitions exp to completed and, when the result is significant,
// announces the lift.
func (c *Calculator) finish(ctx context.Context, exp *domain.Experiment, from domain.ExperimentStatus, result *domain.ExperimentResult) error {
	err := c.experiments.UpdateStatus(ctx, exp.ID, from, domain.ExperimentCompleted)
	if errors.Is(err, ErrInvalidTransition) {
		// Someone else completed or paused it first.
		logger.Info("experiment status changed concurrently", "experiment_id", exp.ID, "error", err)
		return nil
	}
	if err != nil {
		return fmt.Errorf("complete experiment: %w", err)
	}
	exp.Status = domain.ExperimentCompleted

	logger.Info("experiment completed",
		"experiment_id", exp.ID,
		"business_id", exp.BusinessID,
		"lift", result.Lift,
		"p_value", result.PValue,
		"significant", result.IsSignificant,
	)
	if !result.IsSignificant || c.alerts == nil {
		return nil
	}

	winner := domain.VariantVariant
	if result.Lift < 0 {
		winner = domain.VariantOriginal
	}
	c.alerts.Notify(ctx, domain.Alert{
		Level:      domain.AlertInfo,
		Message:    fmt.Sprintf("Experiment %q completed: variant lift %.1f%% (p=%.4f)", exp.Name, result.Lift, result.PValue),
		Source:     "experiment",
		BusinessID: exp.BusinessID,
		Details: map[string]interface{}{
			"experiment_id": exp.ID,
			"lift":          result.Lift,
			"p_value":       result.PValue,
			"winner":        string(winner),
		},
		CreatedAt: c.now(),
	})
	return nil
}

// Summarize builds a result from tagged records. Records without a known
// variant are ignored. Leads count as conversions.
func Summarize(experimentID string, records []domain.PerformanceRecord, alpha float64) *domain.ExperimentResult {
	var res domain.ExperimentResults
	for _, r := range records {
		if r.Variant == nil {
			continue
		}
		var arm *domain.VariantStats
		switch *r.Variant {
		case domain.VariantOriginal:
			arm = &res.Original
		case domain.VariantVariant:
			arm = &res.Variant
		default:
			continue
		}
		arm.Impressions += r.Impressions
		arm.Clicks += r.Clicks
		arm.Conversions += r.Leads
	}
	finishArm(&res.Original)
	finishArm(&res.Variant)

	o, v := res.Original, res.Variant
	_, p := stats.ChiSquareTest(stats.ContingencyTable(o.Conversions, o.Impressions, v.Conversions, v.Impressions))

	result := &domain.ExperimentResult{
		ExperimentID:  experimentID,
		Results:       res,
		Lift:          stats.Lift(o.ConversionRate, v.ConversionRate),
		PValue:        p,
		IsSignificant: p < alpha,
	}
	if o.ConversionRate > 0 && v.Impressions > 0 {
		lo, hi := stats.LiftCI(o.Conversions, o.Impressions, v.Conversions, v.Impressions, stats.Z95)
		result.LiftInterval = &domain.Interval{Lower: lo, Upper: hi}
	}
	return result
}

func finishArm(s *domain.VariantStats) {
	s.ConversionRate = stats.Rate(s.Conversions, s.Impressions)
	if s.Impressions > 0 {
		lo, hi := stats.WilsonInterval(s.Conversions, s.Impressions, stats.Z95)
		s.RateInterval = &domain.Interval{Lower: lo, Upper: hi}
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
