package domain

import "time"

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Contains reports whether v lies strictly inside the interval.
func (i Interval) Contains(v float64) bool {
	return i.Lower < v && v < i.Upper
}

// PartitionStats summarizes the ads on one side of an element split.
type PartitionStats struct {
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	CTR         float64 `json:"ctr"`
	SampleSize  int     `json:"sample_size"`
}

// InsightPerformance compares ads with and without an element.
type InsightPerformance struct {
	WithElement        PartitionStats `json:"with_element"`
	WithoutElement     PartitionStats `json:"without_element"`
	Uplift             float64        `json:"uplift"`
	Confidence         float64        `json:"confidence"`
	PValue             float64        `json:"p_value"`
	ConfidenceInterval *Interval      `json:"confidence_interval,omitempty"`
}

// PatternInsight is a content element statistically associated with a
// higher click-through rate.
type PatternInsight struct {
	Element     string             `json:"element"`
	ElementType string             `json:"element_type"`
	Performance InsightPerformance `json:"performance"`
}

// InsightSet is the stored document of insights for a business. Each
// analysis run replaces it wholesale.
type InsightSet struct {
	BusinessID string           `json:"business_id" db:"business_id"`
	Insights   []PatternInsight `json:"insights" db:"insights"`
	AnalyzedAt time.Time        `json:"analyzed_at" db:"analyzed_at"`
}
