package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/pattern"
)

// InsightRepo implements pattern.InsightRepository with one JSONB document
// per business.
type InsightRepo struct{ db *sql.DB }

// NewInsightRepo creates a Postgres-backed insight repository.
func NewInsightRepo(db *sql.DB) *InsightRepo { return &InsightRepo{db: db} }

func (r *InsightRepo) Replace(ctx context.Context, set domain.InsightSet) error {
	insights := set.Insights
	if insights == nil {
		insights = []domain.PatternInsight{}
	}
	doc, err := json.Marshal(insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pattern_insights (business_id, insights, analyzed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (business_id) DO UPDATE SET
			insights = EXCLUDED.insights,
			analyzed_at = EXCLUDED.analyzed_at
	`, set.BusinessID, doc, set.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("replace insights: %w", err)
	}
	return nil
}

func (r *InsightRepo) Get(ctx context.Context, businessID string) (*domain.InsightSet, error) {
	set := &domain.InsightSet{BusinessID: businessID}
	var doc []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT insights, analyzed_at FROM pattern_insights WHERE business_id = $1
	`, businessID).Scan(&doc, &set.AnalyzedAt)
	if err == sql.ErrNoRows {
		return nil, pattern.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get insights: %w", err)
	}
	if err := json.Unmarshal(doc, &set.Insights); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return set, nil
}
