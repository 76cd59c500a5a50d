package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/ignite/adinsight/internal/domain"
)

const (
	upsertChunkSize = 1000
	dateLayout      = "2006-01-02"
)

// PerformanceRepo stores daily ad performance keyed by
// (business_id, platform, ad_id, date).
type PerformanceRepo struct{ db *sql.DB }

// NewPerformanceRepo creates a Postgres-backed performance repository.
func NewPerformanceRepo(db *sql.DB) *PerformanceRepo { return &PerformanceRepo{db: db} }

// BulkUpsert writes records in chunks. Replaying the same records only
// overwrites the same rows.
func (r *PerformanceRepo) BulkUpsert(ctx context.Context, records []domain.PerformanceRecord) (int, error) {
	written := 0
	for start := 0; start < len(records); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(records) {
			end = len(records)
		}
		n, err := r.upsertChunk(ctx, records[start:end])
		if err != nil {
			return written, err
		}
		written += n
	}
	return written, nil
}

func (r *PerformanceRepo) upsertChunk(ctx context.Context, records []domain.PerformanceRecord) (int, error) {
	n := len(records)
	businessIDs := make([]string, n)
	platforms := make([]string, n)
	adIDs := make([]string, n)
	dates := make([]string, n)
	impressions := make([]int64, n)
	clicks := make([]int64, n)
	spend := make([]float64, n)
	leads := make([]int64, n)
	experimentIDs := make([]string, n)
	variants := make([]string, n)
	insightIDs := make([]string, n)
	contentIDs := make([]string, n)

	for i, rec := range records {
		businessIDs[i] = rec.BusinessID
		platforms[i] = string(rec.Platform)
		adIDs[i] = rec.AdID
		dates[i] = rec.Date.UTC().Format(dateLayout)
		impressions[i] = rec.Impressions
		clicks[i] = rec.Clicks
		spend[i] = rec.Spend
		leads[i] = rec.Leads
		experimentIDs[i] = deref(rec.ExperimentID)
		if rec.Variant != nil {
			variants[i] = string(*rec.Variant)
		}
		insightIDs[i] = deref(rec.GeneratedFromInsightID)
		contentIDs[i] = deref(rec.ContentID)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO performance_records
			(business_id, platform, ad_id, date, impressions, clicks, spend, leads,
			 experiment_id, variant, generated_from_insight_id, content_id, updated_at)
		SELECT data.business_id, data.platform, data.ad_id, data.date,
		       data.impressions, data.clicks, data.spend, data.leads,
		       NULLIF(data.experiment_id, ''), NULLIF(data.variant, ''),
		       NULLIF(data.insight_id, ''), NULLIF(data.content_id, ''), NOW()
		FROM (
			SELECT UNNEST($1::text[]) AS business_id,
			       UNNEST($2::text[]) AS platform,
			       UNNEST($3::text[]) AS ad_id,
			       UNNEST($4::date[]) AS date,
			       UNNEST($5::bigint[]) AS impressions,
			       UNNEST($6::bigint[]) AS clicks,
			       UNNEST($7::numeric[]) AS spend,
			       UNNEST($8::bigint[]) AS leads,
			       UNNEST($9::text[]) AS experiment_id,
			       UNNEST($10::text[]) AS variant,
			       UNNEST($11::text[]) AS insight_id,
			       UNNEST($12::text[]) AS content_id
		) AS data
		ON CONFLICT (business_id, platform, ad_id, date) DO UPDATE SET
			impressions = EXCLUDED.impressions,
			clicks = EXCLUDED.clicks,
			spend = EXCLUDED.spend,
			leads = EXCLUDED.leads,
			experiment_id = EXCLUDED.experiment_id,
			variant = EXCLUDED.variant,
			generated_from_insight_id = EXCLUDED.generated_from_insight_id,
			content_id = EXCLUDED.content_id,
			updated_at = NOW()
	`, pq.Array(businessIDs), pq.Array(platforms), pq.Array(adIDs), pq.Array(dates),
		pq.Array(impressions), pq.Array(clicks), pq.Array(spend), pq.Array(leads),
		pq.Array(experimentIDs), pq.Array(variants), pq.Array(insightIDs), pq.Array(contentIDs))
	if err != nil {
		return 0, fmt.Errorf("upsert performance records: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return n, nil
	}
	return int(affected), nil
}

const performanceColumns = `business_id, platform, ad_id, date, impressions, clicks, spend, leads,
	experiment_id, variant, generated_from_insight_id, content_id, updated_at`

// ListSince returns a business's records dated on or after since.
func (r *PerformanceRepo) ListSince(ctx context.Context, businessID string, since time.Time) ([]domain.PerformanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+performanceColumns+`
		FROM performance_records
		WHERE business_id = $1 AND date >= $2::date
		ORDER BY date, platform, ad_id
	`, businessID, since.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list performance records: %w", err)
	}
	defer rows.Close()
	return scanPerformance(rows)
}

// ListByExperiment returns records tagged with experimentID dated within
// [from, to].
func (r *PerformanceRepo) ListByExperiment(ctx context.Context, experimentID string, from, to time.Time) ([]domain.PerformanceRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+performanceColumns+`
		FROM performance_records
		WHERE experiment_id = $1 AND date BETWEEN $2::date AND $3::date
		ORDER BY date, ad_id
	`, experimentID, from.UTC().Format(dateLayout), to.UTC().Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("list experiment records: %w", err)
	}
	defer rows.Close()
	return scanPerformance(rows)
}

func scanPerformance(rows *sql.Rows) ([]domain.PerformanceRecord, error) {
	var out []domain.PerformanceRecord
	for rows.Next() {
		var rec domain.PerformanceRecord
		var experimentID, variant, insightID, contentID sql.NullString
		if err := rows.Scan(
			&rec.BusinessID, &rec.Platform, &rec.AdID, &rec.Date,
			&rec.Impressions, &rec.Clicks, &rec.Spend, &rec.Leads,
			&experimentID, &variant, &insightID, &contentID, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan performance record: %w", err)
		}
		rec.ExperimentID = nullString(experimentID)
		rec.GeneratedFromInsightID = nullString(insightID)
		rec.ContentID = nullString(contentID)
		if variant.Valid {
			v := domain.Variant(variant.String)
			rec.Variant = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	s := ns.String
	return &s
}
