package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/distlock"
	"github.com/ignite/adinsight/internal/repository/memory"
	"github.com/ignite/adinsight/internal/service/experiment"
	"github.com/ignite/adinsight/internal/service/pattern"
	"github.com/ignite/adinsight/internal/worker"
)

type fakeTrigger struct {
	mu     sync.Mutex
	calls  [][]string
	locked bool
	last   *worker.BatchStats
}

func (f *fakeTrigger) Trigger(_ context.Context, ids []string) (*worker.BatchStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return nil, distlock.ErrLocked
	}
	f.calls = append(f.calls, ids)
	f.last = &worker.BatchStats{Businesses: int64(len(ids))}
	return f.last, nil
}

func (f *fakeTrigger) Last() (*worker.BatchStats, time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.last, time.Now()
}

type testEnv struct {
	handler  http.Handler
	trigger  *fakeTrigger
	exps     *memory.ExperimentRepo
	insights *memory.InsightRepo
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	exps := memory.NewExperimentRepo()
	results := memory.NewResultRepo()
	perf := memory.NewPerformanceRepo()
	insights := memory.NewInsightRepo()

	calc := experiment.NewCalculator(exps, perf, results)
	svc := experiment.NewService(exps, results, calc)
	analyzer := pattern.NewAnalyzer(memory.NewContentRepo(), perf, insights, pattern.DefaultOptions())

	trigger := &fakeTrigger{}
	h := NewHandlers(trigger, analyzer, svc)
	srv := NewServer(config.ServerConfig{Port: 8080}, h, nil, nil)
	return &testEnv{handler: srv.Handler(), trigger: trigger, exps: exps, insights: insights}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func TestRunBatch_Wait(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodPost, "/batch/run?wait=true&business=biz-1,biz-2", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var stats worker.BatchStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	assert.Equal(t, int64(2), stats.Businesses)
	assert.Equal(t, [][]string{{"biz-1", "biz-2"}}, env.trigger.calls)

	rr = env.do(t, http.MethodGet, "/batch/last", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRunBatch_LockedIsConflict(t *testing.T) {
	env := setupTestServer(t)
	env.trigger.locked = true

	rr := env.do(t, http.MethodPost, "/batch/run?wait=true", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestRunBatch_Async(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodPost, "/batch/run", runBatchRequest{BusinessIDs: []string{"biz-9"}})
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Eventually(t, func() bool {
		env.trigger.mu.Lock()
		defer env.trigger.mu.Unlock()
		return len(env.trigger.calls) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestLastBatch_NoneYet(t *testing.T) {
	env := setupTestServer(t)
	rr := env.do(t, http.MethodGet, "/batch/last", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestExperimentLifecycle(t *testing.T) {
	env := setupTestServer(t)
	start := time.Now().UTC().Add(-24 * time.Hour)

	rr := env.do(t, http.MethodPost, "/experiments", experiment.CreateInput{
		BusinessID:        "biz-1",
		Name:              "Headline test",
		ContentIDOriginal: "c-1",
		ContentIDVariant:  "c-2",
		Split:             domain.Split{Original: 50, Variant: 50},
		StartDate:         start,
		EndDate:           start.AddDate(0, 0, 14),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var e domain.Experiment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &e))

	rr = env.do(t, http.MethodGet, "/experiments/"+e.ID+"/assign/user-42", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var assigned map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &assigned))
	assert.Contains(t, []string{"original", "variant"}, assigned["variant"])

	rr = env.do(t, http.MethodPost, "/experiments/"+e.ID+"/pause", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(t, http.MethodPost, "/experiments/"+e.ID+"/pause", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	rr = env.do(t, http.MethodPost, "/experiments/"+e.ID+"/resume", nil)
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(t, http.MethodGet, "/businesses/biz-1/experiments", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var active []domain.Experiment
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &active))
	assert.Len(t, active, 1)

	rr = env.do(t, http.MethodGet, "/experiments/"+e.ID+"/results", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var res domain.ExperimentResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.False(t, res.IsSignificant)

	rr = env.do(t, http.MethodPost, "/experiments/"+e.ID+"/complete", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	got, err := env.exps.Get(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ExperimentCompleted, got.Status)
}

func TestCreateExperiment_BadSplit(t *testing.T) {
	env := setupTestServer(t)
	rr := env.do(t, http.MethodPost, "/experiments", experiment.CreateInput{
		BusinessID:        "biz-1",
		Name:              "bad",
		ContentIDOriginal: "c-1",
		ContentIDVariant:  "c-2",
		Split:             domain.Split{Original: 60, Variant: 50},
		EndDate:           time.Now().AddDate(0, 0, 7),
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "split must sum to 100")
}

func TestGetExperiment_NotFound(t *testing.T) {
	env := setupTestServer(t)
	rr := env.do(t, http.MethodGet, "/experiments/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInsights(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, http.MethodGet, "/businesses/biz-1/insights", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/businesses/biz-1/analyze", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.JSONEq(t, `{"business_id":"biz-1","insights":[]}`, rr.Body.String())

	rr = env.do(t, http.MethodGet, "/businesses/biz-1/insights", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHealth(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	mock.MatchExpectationsInOrder(false)
	mock.ExpectPing()
	mock.ExpectQuery("FROM platform_integrations").
		WillReturnRows(sqlmock.NewRows([]string{"errored", "reauth"}).AddRow(1, 0))

	hc := NewHealthChecker(db, nil, nil, "")
	rr := httptest.NewRecorder()
	hc.HandleReadiness(rr, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, "not_configured", checks["redis"].(map[string]interface{})["status"])
}

type staticBatch struct {
	stats *worker.BatchStats
	at    time.Time
}

func (s staticBatch) Last() (*worker.BatchStats, time.Time) { return s.stats, s.at }

func TestHealth_BatchFreshness(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	hc := NewHealthChecker(nil, nil, nil, "")
	hc.now = func() time.Time { return now }

	tests := []struct {
		name   string
		batch  staticBatch
		status string
	}{
		{"no run yet", staticBatch{}, statusPending},
		{"fresh", staticBatch{&worker.BatchStats{Businesses: 3}, now.Add(-2 * time.Hour)}, statusUp},
		{"stale", staticBatch{&worker.BatchStats{Businesses: 3}, now.Add(-30 * time.Hour)}, statusDegraded},
		{"failures", staticBatch{&worker.BatchStats{BusinessesFailed: 1}, now.Add(-time.Hour)}, statusDegraded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hc.SetBatchStatus(tt.batch, 0)
			assert.Equal(t, tt.status, hc.checkBatch(context.Background()).Status)
		})
	}
}

func TestOverallStatus(t *testing.T) {
	assert.Equal(t, "unhealthy", overallStatus(map[string]ComponentCheck{"database": {Status: "down"}}))
	assert.Equal(t, "healthy", overallStatus(map[string]ComponentCheck{
		"database": {Status: "up"}, "redis": {Status: "not_configured"},
	}))
}
