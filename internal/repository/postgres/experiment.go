package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
)

// ExperimentRepo implements experiment.Repository against PostgreSQL.
type ExperimentRepo struct{ db *sql.DB }

// NewExperimentRepo creates a Postgres-backed experiment repository.
func NewExperimentRepo(db *sql.DB) *ExperimentRepo { return &ExperimentRepo{db: db} }

const experimentColumns = `id, business_id, name, content_id_original, content_id_variant,
	split_original, split_variant, start_date, end_date, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExperiment(s rowScanner) (*domain.Experiment, error) {
	e := &domain.Experiment{}
	err := s.Scan(
		&e.ID, &e.BusinessID, &e.Name, &e.ContentIDOriginal, &e.ContentIDVariant,
		&e.Split.Original, &e.Split.Variant, &e.StartDate, &e.EndDate, &e.Status,
		&e.CreatedAt, &e.UpdatedAt,
	)
	return e, err
}

func (r *ExperimentRepo) Get(ctx context.Context, id string) (*domain.Experiment, error) {
	e, err := scanExperiment(r.db.QueryRowContext(ctx, `
		SELECT `+experimentColumns+` FROM experiments WHERE id = $1
	`, id))
	if err == sql.ErrNoRows {
		return nil, experiment.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment: %w", err)
	}
	return e, nil
}

func (r *ExperimentRepo) Create(ctx context.Context, e *domain.Experiment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO experiments
			(id, business_id, name, content_id_original, content_id_variant,
			 split_original, split_variant, start_date, end_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, e.BusinessID, e.Name, e.ContentIDOriginal, e.ContentIDVariant,
		e.Split.Original, e.Split.Variant, e.StartDate, e.EndDate, e.Status, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create experiment: %w", err)
	}
	return nil
}

// UpdateStatus only applies when the stored status is still from.
func (r *ExperimentRepo) UpdateStatus(ctx context.Context, id string, from, to domain.ExperimentStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE experiments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("update experiment status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM experiments WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check experiment: %w", err)
	}
	if !exists {
		return experiment.ErrNotFound
	}
	return fmt.Errorf("%w: experiment is no longer %s", experiment.ErrInvalidTransition, from)
}

func (r *ExperimentRepo) ListActive(ctx context.Context, businessID string) ([]domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE status = 'active' AND ($1 = '' OR business_id = $1)
		ORDER BY created_at, id
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list active experiments: %w", err)
	}
	return collectExperiments(rows)
}

// ListExpiredPaused returns paused experiments whose end date is before now.
func (r *ExperimentRepo) ListExpiredPaused(ctx context.Context, businessID string, now time.Time) ([]domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE status = 'paused' AND end_date < $2 AND ($1 = '' OR business_id = $1)
		ORDER BY created_at, id
	`, businessID, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("list expired paused experiments: %w", err)
	}
	return collectExperiments(rows)
}

// ListOverlapping returns experiments of any status whose window overlaps
// the day starting at day.
func (r *ExperimentRepo) ListOverlapping(ctx context.Context, businessID string, day time.Time) ([]domain.Experiment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+experimentColumns+`
		FROM experiments
		WHERE start_date < $2 AND end_date >= $3 AND ($1 = '' OR business_id = $1)
		ORDER BY created_at, id
	`, businessID, day.UTC().AddDate(0, 0, 1), day.UTC())
	if err != nil {
		return nil, fmt.Errorf("list overlapping experiments: %w", err)
	}
	return collectExperiments(rows)
}

func collectExperiments(rows *sql.Rows) ([]domain.Experiment, error) {
	defer rows.Close()
	var out []domain.Experiment
	for rows.Next() {
		e, err := scanExperiment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan experiment: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ResultRepo implements experiment.ResultRepository. Per-arm totals are
// kept as a JSONB document next to the headline numbers.
type ResultRepo struct{ db *sql.DB }

// NewResultRepo creates a Postgres-backed result repository.
func NewResultRepo(db *sql.DB) *ResultRepo { return &ResultRepo{db: db} }

func (r *ResultRepo) Upsert(ctx context.Context, res *domain.ExperimentResult) error {
	doc, err := json.Marshal(res.Results)
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	var lower, upper sql.NullFloat64
	if res.LiftInterval != nil {
		lower = sql.NullFloat64{Float64: res.LiftInterval.Lower, Valid: true}
		upper = sql.NullFloat64{Float64: res.LiftInterval.Upper, Valid: true}
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO experiment_results
			(experiment_id, results, lift, lift_lower, lift_upper, p_value, is_significant, last_updated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (experiment_id) DO UPDATE SET
			results = EXCLUDED.results,
			lift = EXCLUDED.lift,
			lift_lower = EXCLUDED.lift_lower,
			lift_upper = EXCLUDED.lift_upper,
			p_value = EXCLUDED.p_value,
			is_significant = EXCLUDED.is_significant,
			last_updated = EXCLUDED.last_updated
	`, res.ExperimentID, doc, res.Lift, lower, upper, res.PValue, res.IsSignificant, res.LastUpdated)
	if err != nil {
		return fmt.Errorf("upsert experiment result: %w", err)
	}
	return nil
}

func (r *ResultRepo) Get(ctx context.Context, experimentID string) (*domain.ExperimentResult, error) {
	res := &domain.ExperimentResult{ExperimentID: experimentID}
	var doc []byte
	var lower, upper sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
		SELECT results, lift, lift_lower, lift_upper, p_value, is_significant, last_updated
		FROM experiment_results WHERE experiment_id = $1
	`, experimentID).Scan(&doc, &res.Lift, &lower, &upper, &res.PValue, &res.IsSignificant, &res.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, experiment.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get experiment result: %w", err)
	}
	if err := json.Unmarshal(doc, &res.Results); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	if lower.Valid && upper.Valid {
		res.LiftInterval = &domain.Interval{Lower: lower.Float64, Upper: upper.Float64}
	}
	return res, nil
}
