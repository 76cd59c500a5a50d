package domain

import (
	"errors"
	"fmt"
	"time"
)

// Variant identifies one arm of a two-arm experiment.
type Variant string

const (
	VariantOriginal Variant = "original"
	VariantVariant  Variant = "variant"
)

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v == VariantOriginal || v == VariantVariant
}

// ExperimentStatus enumerates the lifecycle states of an experiment.
type ExperimentStatus string

const (
	ExperimentActive    ExperimentStatus = "active"
	ExperimentPaused    ExperimentStatus = "paused"
	ExperimentCompleted ExperimentStatus = "completed"
)

// Validation errors for experiments.
var (
	ErrInvalidSplit = errors.New("split must sum to 100")
	ErrInvalidDates = errors.New("end date must be after start date")
)

// Split is the percentage of traffic sent to each arm.
type Split struct {
	Original int `json:"original" db:"split_original"`
	Variant  int `json:"variant" db:"split_variant"`
}

// Validate rejects splits that do not sum to exactly 100.
func (s Split) Validate() error {
	if s.Original < 0 || s.Variant < 0 {
		return fmt.Errorf("%w: negative share (%d/%d)", ErrInvalidSplit, s.Original, s.Variant)
	}
	if s.Original+s.Variant != 100 {
		return fmt.Errorf("%w: got %d+%d", ErrInvalidSplit, s.Original, s.Variant)
	}
	return nil
}

// Experiment is an A/B test between two pieces of content.
type Experiment struct {
	ID                string           `json:"id" db:"id"`
	BusinessID        string           `json:"business_id" db:"business_id"`
	Name              string           `json:"name" db:"name"`
	ContentIDOriginal string           `json:"content_id_original" db:"content_id_original"`
	ContentIDVariant  string           `json:"content_id_variant" db:"content_id_variant"`
	Split             Split            `json:"split"`
	StartDate         time.Time        `json:"start_date" db:"start_date"`
	EndDate           time.Time        `json:"end_date" db:"end_date"`
	Status            ExperimentStatus `json:"status" db:"status"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Validate checks the split and date invariants.
func (e *Experiment) Validate() error {
	if err := e.Split.Validate(); err != nil {
		return err
	}
	if !e.EndDate.After(e.StartDate) {
		return ErrInvalidDates
	}
	return nil
}

// Started reports whether the experiment window has opened at now.
func (e *Experiment) Started(now time.Time) bool {
	return !e.StartDate.After(now)
}

// Expired reports whether the end date has passed at now.
func (e *Experiment) Expired(now time.Time) bool {
	return e.EndDate.Before(now)
}

// VariantFor returns the arm that contentID belongs to, if any.
func (e *Experiment) VariantFor(contentID string) (Variant, bool) {
	switch contentID {
	case e.ContentIDOriginal:
		return VariantOriginal, true
	case e.ContentIDVariant:
		return VariantVariant, true
	}
	return "", false
}

// VariantStats aggregates one arm's delivery and conversions.
type VariantStats struct {
	Impressions    int64     `json:"impressions"`
	Clicks         int64     `json:"clicks"`
	Conversions    int64     `json:"conversions"`
	ConversionRate float64   `json:"conversion_rate"`
	RateInterval   *Interval `json:"rate_interval,omitempty"`
}

// ExperimentResults holds per-arm totals.
type ExperimentResults struct {
	Original VariantStats `json:"original"`
	Variant  VariantStats `json:"variant"`
}

// ExperimentResult is the materialized outcome of an experiment. It can
// always be rebuilt from tagged performance records.
type ExperimentResult struct {
	ExperimentID  string            `json:"experiment_id" db:"experiment_id"`
	Results       ExperimentResults `json:"results" db:"results"`
	Lift          float64           `json:"lift" db:"lift"`
	LiftInterval  *Interval         `json:"lift_interval,omitempty" db:"lift_interval"`
	PValue        float64           `json:"p_value" db:"p_value"`
	IsSignificant bool              `json:"is_significant" db:"is_significant"`
	LastUpdated   time.Time         `json:"last_updated" db:"last_updated"`
}
