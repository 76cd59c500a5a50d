package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/adinsight/internal/domain"
)

// ContentRepo reads generated content that has been published as ads.
type ContentRepo struct{ db *sql.DB }

// NewContentRepo creates a Postgres-backed content repository.
func NewContentRepo(db *sql.DB) *ContentRepo { return &ContentRepo{db: db} }

// ListPublished returns the business's content carrying an ad id.
func (r *ContentRepo) ListPublished(ctx context.Context, businessID string) ([]domain.ContentRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, business_id, ad_id, COALESCE(headline, ''), elements, generated_from_insight_id
		FROM content_records
		WHERE business_id = $1 AND ad_id IS NOT NULL AND ad_id <> ''
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	defer rows.Close()

	var out []domain.ContentRecord
	for rows.Next() {
		var c domain.ContentRecord
		var elements []byte
		var insightID sql.NullString
		if err := rows.Scan(&c.ID, &c.BusinessID, &c.AdID, &c.Headline, &elements, &insightID); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		if len(elements) > 0 {
			if err := json.Unmarshal(elements, &c.Elements); err != nil {
				return nil, fmt.Errorf("decode elements for %s: %w", c.ID, err)
			}
		}
		c.GeneratedFromInsightID = nullString(insightID)
		out = append(out, c)
	}
	return out, rows.Err()
}
