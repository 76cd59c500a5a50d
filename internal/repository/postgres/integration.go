package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/domain"
)

// ErrIntegrationNotFound is returned when no integration row matches.
var ErrIntegrationNotFound = errors.New("integration not found")

// IntegrationRepo stores platform integrations and their OAuth tokens.
type IntegrationRepo struct{ db *sql.DB }

// NewIntegrationRepo creates a Postgres-backed integration repository.
func NewIntegrationRepo(db *sql.DB) *IntegrationRepo { return &IntegrationRepo{db: db} }

func (r *IntegrationRepo) ListBusinessIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT business_id FROM platform_integrations ORDER BY business_id
	`)
	if err != nil {
		return nil, fmt.Errorf("list businesses: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *IntegrationRepo) ListForBusiness(ctx context.Context, businessID string) ([]domain.Integration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT business_id, platform, account_id, status, last_synced, COALESCE(error_message, '')
		FROM platform_integrations
		WHERE business_id = $1
		ORDER BY platform
	`, businessID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	defer rows.Close()

	var out []domain.Integration
	for rows.Next() {
		var integ domain.Integration
		var lastSynced sql.NullTime
		if err := rows.Scan(&integ.BusinessID, &integ.Platform, &integ.AccountID,
			&integ.Status, &lastSynced, &integ.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan integration: %w", err)
		}
		if lastSynced.Valid {
			t := lastSynced.Time
			integ.LastSynced = &t
		}
		out = append(out, integ)
	}
	return out, rows.Err()
}

// MarkSynced records a successful sync and clears a transient error.
func (r *IntegrationRepo) MarkSynced(ctx context.Context, businessID string, p domain.Platform, at time.Time) error {
	return r.exec(ctx, `
		UPDATE platform_integrations
		SET last_synced = $3, error_message = NULL,
		    status = CASE WHEN status = 'error' THEN 'connected' ELSE status END,
		    updated_at = NOW()
		WHERE business_id = $1 AND platform = $2
	`, businessID, p, at)
}

func (r *IntegrationRepo) MarkError(ctx context.Context, businessID string, p domain.Platform, message string) error {
	return r.setStatus(ctx, businessID, p, domain.IntegrationError, message)
}

func (r *IntegrationRepo) MarkNeedsReauth(ctx context.Context, businessID string, p domain.Platform, message string) error {
	return r.setStatus(ctx, businessID, p, domain.IntegrationNeedsReauth, message)
}

func (r *IntegrationRepo) setStatus(ctx context.Context, businessID string, p domain.Platform, status domain.IntegrationStatus, message string) error {
	return r.exec(ctx, `
		UPDATE platform_integrations
		SET status = $3, error_message = NULLIF($4, ''), updated_at = NOW()
		WHERE business_id = $1 AND platform = $2
	`, businessID, p, status, message)
}

func (r *IntegrationRepo) exec(ctx context.Context, query string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update integration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrIntegrationNotFound
	}
	return nil
}

// Token returns the stored token, or nil when the integration has none.
func (r *IntegrationRepo) Token(ctx context.Context, businessID string, p domain.Platform) (*oauth2.Token, error) {
	var access, refresh sql.NullString
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, token_expiry
		FROM platform_integrations WHERE business_id = $1 AND platform = $2
	`, businessID, p).Scan(&access, &refresh, &expiry)
	if err == sql.ErrNoRows {
		return nil, ErrIntegrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	if !access.Valid && !refresh.Valid {
		return nil, nil
	}
	tok := &oauth2.Token{AccessToken: access.String, RefreshToken: refresh.String, TokenType: "Bearer"}
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return tok, nil
}

// SaveToken writes back a refreshed token.
func (r *IntegrationRepo) SaveToken(ctx context.Context, businessID string, p domain.Platform, tok *oauth2.Token) error {
	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry, Valid: true}
	}
	return r.exec(ctx, `
		UPDATE platform_integrations
		SET access_token = $3, refresh_token = COALESCE(NULLIF($4, ''), refresh_token),
		    token_expiry = $5, updated_at = NOW()
		WHERE business_id = $1 AND platform = $2
	`, businessID, p, tok.AccessToken, tok.RefreshToken, expiry)
}
