package domain

import "time"

// Platform names an external ad platform.
type Platform string

const (
	PlatformMeta      Platform = "meta"
	PlatformGoogleAds Platform = "google_ads"
)

// PerformanceRecord is one day of delivery stats for a single ad.
// The natural key is (BusinessID, Platform, AdID, Date).
type PerformanceRecord struct {
	BusinessID  string    `json:"business_id" db:"business_id"`
	Platform    Platform  `json:"platform" db:"platform"`
	AdID        string    `json:"ad_id" db:"ad_id"`
	Date        time.Time `json:"date" db:"date"`
	Impressions int64     `json:"impressions" db:"impressions"`
	Clicks      int64     `json:"clicks" db:"clicks"`
	Spend       float64   `json:"spend" db:"spend"`
	Leads       int64     `json:"leads" db:"leads"`

	// Experiment tagging, set when the ad carries experiment content.
	ExperimentID *string  `json:"experiment_id,omitempty" db:"experiment_id"`
	Variant      *Variant `json:"variant,omitempty" db:"variant"`

	// Back-references to the content that produced the ad.
	GeneratedFromInsightID *string `json:"generated_from_insight_id,omitempty" db:"generated_from_insight_id"`
	ContentID              *string `json:"content_id,omitempty" db:"content_id"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RecordKey is the natural uniqueness key of a PerformanceRecord.
type RecordKey struct {
	BusinessID string
	Platform   Platform
	AdID       string
	Date       string // YYYY-MM-DD
}

// Key returns the record's natural key.
func (r PerformanceRecord) Key() RecordKey {
	return RecordKey{
		BusinessID: r.BusinessID,
		Platform:   r.Platform,
		AdID:       r.AdID,
		Date:       r.Date.UTC().Format("2006-01-02"),
	}
}

// CTR returns clicks / impressions, or 0 with no impressions.
func CTR(clicks, impressions int64) float64 {
	if impressions <= 0 {
		return 0
	}
	return float64(clicks) / float64(impressions)
}
