package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/service/pattern"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func day(s string) time.Time {
	t, _ := time.Parse(dateLayout, s)
	return t
}

func TestPerformanceRepo_BulkUpsertChunks(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPerformanceRepo(db)

	records := make([]domain.PerformanceRecord, upsertChunkSize+5)
	for i := range records {
		records[i] = domain.PerformanceRecord{
			BusinessID: "biz-1", Platform: domain.PlatformMeta,
			AdID: fmt.Sprintf("ad-%d", i), Date: day("2026-10-01"),
			Impressions: 100, Clicks: 3,
		}
	}

	args := make([]driver.Value, 12)
	for i := range args {
		args[i] = sqlmock.AnyArg()
	}
	mock.ExpectExec("INSERT INTO performance_records").WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, upsertChunkSize))
	mock.ExpectExec("INSERT INTO performance_records").WithArgs(args...).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := repo.BulkUpsert(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, upsertChunkSize+5, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPerformanceRepo_BulkUpsertError(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPerformanceRepo(db)

	mock.ExpectExec("INSERT INTO performance_records").WillReturnError(errors.New("conn reset"))

	_, err := repo.BulkUpsert(context.Background(), []domain.PerformanceRecord{{BusinessID: "b", AdID: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert performance records")
}

func TestPerformanceRepo_ListByExperiment(t *testing.T) {
	db, mock := newMock(t)
	repo := NewPerformanceRepo(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"business_id", "platform", "ad_id", "date", "impressions", "clicks", "spend", "leads",
		"experiment_id", "variant", "generated_from_insight_id", "content_id", "updated_at",
	}).
		AddRow("biz-1", "meta", "ad-1", day("2026-10-02"), int64(1000), int64(40), 12.5, int64(4),
			"exp-1", "original", nil, "content-a", now).
		AddRow("biz-1", "meta", "ad-2", day("2026-10-02"), int64(900), int64(30), 10.0, int64(6),
			"exp-1", "variant", "ins-1", "content-b", now)

	mock.ExpectQuery("FROM performance_records").
		WithArgs("exp-1", "2026-10-01", "2026-10-10").
		WillReturnRows(rows)

	got, err := repo.ListByExperiment(context.Background(), "exp-1", day("2026-10-01"), day("2026-10-10"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.VariantOriginal, *got[0].Variant)
	assert.Nil(t, got[0].GeneratedFromInsightID)
	assert.Equal(t, "ins-1", *got[1].GeneratedFromInsightID)
	assert.Equal(t, int64(6), got[1].Leads)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightRepo_ReplaceAndGet(t *testing.T) {
	db, mock := newMock(t)
	repo := NewInsightRepo(db)
	at := time.Date(2026, 10, 18, 3, 0, 0, 0, time.UTC)

	mock.ExpectExec("INSERT INTO pattern_insights").
		WithArgs("biz-1", []byte("[]"), at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Replace(context.Background(), domain.InsightSet{BusinessID: "biz-1", AnalyzedAt: at}))

	doc, _ := json.Marshal([]domain.PatternInsight{{Element: "headline:free quote", ElementType: "headline"}})
	mock.ExpectQuery("FROM pattern_insights").WithArgs("biz-1").
		WillReturnRows(sqlmock.NewRows([]string{"insights", "analyzed_at"}).AddRow(doc, at))
	set, err := repo.Get(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, set.Insights, 1)
	assert.Equal(t, "headline:free quote", set.Insights[0].Element)

	mock.ExpectQuery("FROM pattern_insights").WithArgs("biz-2").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "biz-2")
	assert.ErrorIs(t, err, pattern.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExperimentRepo_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("applies when status matches", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE experiments SET status").
			WithArgs("exp-1", domain.ExperimentActive, domain.ExperimentCompleted).
			WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, NewExperimentRepo(db).UpdateStatus(ctx, "exp-1", domain.ExperimentActive, domain.ExperimentCompleted))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lost race is an invalid transition", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE experiments SET status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("exp-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		err := NewExperimentRepo(db).UpdateStatus(ctx, "exp-1", domain.ExperimentActive, domain.ExperimentCompleted)
		assert.ErrorIs(t, err, experiment.ErrInvalidTransition)
	})

	t.Run("missing experiment", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectExec("UPDATE experiments SET status").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		err := NewExperimentRepo(db).UpdateStatus(ctx, "nope", domain.ExperimentActive, domain.ExperimentPaused)
		assert.ErrorIs(t, err, experiment.ErrNotFound)
	})
}

func TestExperimentRepo_ListActive(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now().UTC()
	cols := []string{"id", "business_id", "name", "content_id_original", "content_id_variant",
		"split_original", "split_variant", "start_date", "end_date", "status", "created_at", "updated_at"}

	mock.ExpectQuery("FROM experiments").WithArgs("").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("exp-1", "biz-1", "Headline test", "c-1", "c-2", int64(50), int64(50),
				now.AddDate(0, 0, -7), now.AddDate(0, 0, 7), "active", now, now))

	got, err := NewExperimentRepo(db).ListActive(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Split{Original: 50, Variant: 50}, got[0].Split)
	assert.Equal(t, domain.ExperimentActive, got[0].Status)

	mock.ExpectQuery("FROM experiments").WithArgs("missing").WillReturnError(sql.ErrNoRows)
	_, err = NewExperimentRepo(db).Get(context.Background(), "missing")
	assert.ErrorIs(t, err, experiment.ErrNotFound)
}

func TestExperimentRepo_ListOverlapping(t *testing.T) {
	db, mock := newMock(t)
	day := time.Date(2026, 10, 3, 0, 0, 0, 0, time.UTC)
	cols := []string{"id", "business_id", "name", "content_id_original", "content_id_variant",
		"split_original", "split_variant", "start_date", "end_date", "status", "created_at", "updated_at"}

	mock.ExpectQuery("start_date < \\$2 AND end_date >= \\$3").WithArgs("biz-1", day.AddDate(0, 0, 1), day).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("exp-1", "biz-1", "Headline test", "c-1", "c-2", int64(50), int64(50),
				day.AddDate(0, 0, -7), day.AddDate(0, 0, 2), "completed", day, day))

	got, err := NewExperimentRepo(db).ListOverlapping(context.Background(), "biz-1", day)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.ExperimentCompleted, got[0].Status)
}

func TestResultRepo_RoundTripsInterval(t *testing.T) {
	db, mock := newMock(t)
	repo := NewResultRepo(db)
	at := time.Now().UTC()

	res := &domain.ExperimentResult{
		ExperimentID:  "exp-1",
		Lift:          0.5,
		LiftInterval:  &domain.Interval{Lower: 0.1, Upper: 0.9},
		PValue:        0.01,
		IsSignificant: true,
		LastUpdated:   at,
	}
	mock.ExpectExec("INSERT INTO experiment_results").
		WithArgs("exp-1", sqlmock.AnyArg(), 0.5, 0.1, 0.9, 0.01, true, at).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.Upsert(context.Background(), res))

	doc, _ := json.Marshal(res.Results)
	mock.ExpectQuery("FROM experiment_results").WithArgs("exp-1").
		WillReturnRows(sqlmock.NewRows([]string{"results", "lift", "lift_lower", "lift_upper", "p_value", "is_significant", "last_updated"}).
			AddRow(doc, 0.5, nil, nil, 0.4, false, at))
	got, err := repo.Get(context.Background(), "exp-1")
	require.NoError(t, err)
	assert.Nil(t, got.LiftInterval)
	assert.False(t, got.IsSignificant)

	mock.ExpectQuery("FROM experiment_results").WithArgs("exp-2").WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "exp-2")
	assert.ErrorIs(t, err, experiment.ErrResultNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepo_Tokens(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntegrationRepo(db)
	ctx := context.Background()
	expiry := time.Now().Add(time.Hour).UTC()

	mock.ExpectQuery("SELECT access_token, refresh_token, token_expiry").
		WithArgs("biz-1", domain.PlatformGoogleAds).
		WillReturnRows(sqlmock.NewRows([]string{"access_token", "refresh_token", "token_expiry"}).
			AddRow("at-1", "rt-1", expiry))
	tok, err := repo.Token(ctx, "biz-1", domain.PlatformGoogleAds)
	require.NoError(t, err)
	assert.Equal(t, "at-1", tok.AccessToken)
	assert.Equal(t, "rt-1", tok.RefreshToken)
	assert.True(t, tok.Expiry.Equal(expiry))

	mock.ExpectExec("SET access_token").
		WithArgs("biz-1", domain.PlatformGoogleAds, "at-2", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.SaveToken(ctx, "biz-1", domain.PlatformGoogleAds, &oauth2.Token{AccessToken: "at-2", Expiry: expiry}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIntegrationRepo_MarkStatus(t *testing.T) {
	db, mock := newMock(t)
	repo := NewIntegrationRepo(db)
	ctx := context.Background()

	mock.ExpectExec("UPDATE platform_integrations").
		WithArgs("biz-1", domain.PlatformMeta, domain.IntegrationError, "fetch failed").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.MarkError(ctx, "biz-1", domain.PlatformMeta, "fetch failed"))

	mock.ExpectExec("UPDATE platform_integrations").
		WithArgs("biz-9", domain.PlatformMeta, domain.IntegrationNeedsReauth, "revoked").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.MarkNeedsReauth(ctx, "biz-9", domain.PlatformMeta, "revoked")
	assert.ErrorIs(t, err, ErrIntegrationNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContentRepo_ListPublished(t *testing.T) {
	db, mock := newMock(t)

	elements, _ := json.Marshal([]domain.ContentElement{{Type: domain.ElementPhrase, Value: "same day"}})
	mock.ExpectQuery("FROM content_records").WithArgs("biz-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "ad_id", "headline", "elements", "generated_from_insight_id"}).
			AddRow("c-1", "biz-1", "ad-1", "Free quote", elements, nil).
			AddRow("c-2", "biz-1", "ad-2", "", nil, "ins-3"))

	got, err := NewContentRepo(db).ListPublished(context.Background(), "biz-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "same day", got[0].Elements[0].Value)
	assert.Empty(t, got[1].Elements)
	assert.Equal(t, "ins-3", *got[1].GeneratedFromInsightID)
}
