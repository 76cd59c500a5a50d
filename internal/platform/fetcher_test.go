package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
)

type fakeMarker struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeMarker) MarkError(_ context.Context, businessID string, p domain.Platform, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s/%s: %s", businessID, p, message))
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []domain.Alert
}

func (f *fakeNotifier) Notify(_ context.Context, a domain.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func noSleepPolicy() httpretry.Policy {
	p := httpretry.DefaultPolicy()
	p.Sleep = func(context.Context, time.Duration) error { return nil }
	return p
}

func newTestFetcher() *Fetcher {
	return NewFetcher(http.DefaultClient, NewGateSet(NewLocalGate(5), 3), noSleepPolicy())
}

func metaTestAdapter(baseURL string) *MetaAdapter {
	return NewMetaAdapter(config.MetaConfig{BaseURL: baseURL, APIVersion: "v19.0", PageSize: 2})
}

var testDay = time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)

func TestFetchAllPages_FollowsCursorToLastPage(t *testing.T) {
	var calls int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))

		page := map[string]interface{}{
			"data": []map[string]interface{}{
				{"ad_id": fmt.Sprintf("ad-%d-a", n), "impressions": "10"},
				{"ad_id": fmt.Sprintf("ad-%d-b", n), "impressions": "20"},
			},
		}
		if n < 3 {
			page["paging"] = map[string]interface{}{"next": fmt.Sprintf("%s/next?page=%d", server.URL, n+1)}
		}
		_ = json.NewEncoder(w).Encode(page)
	}))
	defer server.Close()

	a := metaTestAdapter(server.URL)
	first, err := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "123"}, &oauth2.Token{AccessToken: "tok"}, testDay)
	require.NoError(t, err)

	items, err := newTestFetcher().FetchAllPages(context.Background(), "b1", first, a)
	require.NoError(t, err)

	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	require.Len(t, items, 6)
	assert.Equal(t, "ad-1-a", items[0]["ad_id"])
	assert.Equal(t, "ad-3-b", items[5]["ad_id"])
}

func TestFetchAllPages_ExhaustsRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	marker := &fakeMarker{}
	notifier := &fakeNotifier{}
	f := newTestFetcher()
	f.SetIntegrations(marker)
	f.SetNotifier(notifier)

	a := metaTestAdapter(server.URL)
	first, err := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "123"}, nil, testDay)
	require.NoError(t, err)

	_, err = f.FetchAllPages(context.Background(), "b1", first, a)
	require.Error(t, err)

	var exhausted *httpretry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 6, exhausted.Attempts)
	assert.Equal(t, int32(6), atomic.LoadInt32(&calls))

	require.Len(t, marker.calls, 1)
	assert.Contains(t, marker.calls[0], "b1/meta")
	require.Len(t, notifier.alerts, 1)
	assert.Equal(t, domain.AlertError, notifier.alerts[0].Level)
	assert.Equal(t, "b1", notifier.alerts[0].BusinessID)
}

func TestFetchAllPages_RetriesPlatformRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"User request limit reached","code":17}}`))
			return
		}
		_, _ = w.Write([]byte(`{"data":[{"ad_id":"1"}]}`))
	}))
	defer server.Close()

	var retries int32
	f := newTestFetcher()
	a := metaTestAdapter(server.URL)
	first, _ := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "act_9"}, nil, testDay)

	f.policy.Retryable = func(err error) bool {
		atomic.AddInt32(&retries, 1)
		return httpretry.IsRetryable(err)
	}
	items, err := f.FetchAllPages(context.Background(), "b1", first, a)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&retries))
}

func TestFetchAllPages_ClientErrorIsNotRetried(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid parameter","code":100}}`))
	}))
	defer server.Close()

	marker := &fakeMarker{}
	f := newTestFetcher()
	f.SetIntegrations(marker)
	a := metaTestAdapter(server.URL)
	first, _ := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "1"}, nil, testDay)

	_, err := f.FetchAllPages(context.Background(), "b1", first, a)
	require.Error(t, err)

	var se *httpretry.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "100", se.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Empty(t, marker.calls)
}

func TestFetchAllPages_StopsAtMaxPages(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprintf(w, `{"data":[],"paging":{"next":"%s/again"}}`, server.URL)
	}))
	defer server.Close()

	f := newTestFetcher()
	f.SetMaxPages(4)
	a := metaTestAdapter(server.URL)
	first, _ := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "1"}, nil, testDay)

	_, err := f.FetchAllPages(context.Background(), "b1", first, a)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 4 pages")
}

func TestFetchAllPages_GoogleAdsRepostsPageToken(t *testing.T) {
	var tokens []string
	var mu sync.Mutex
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "dev-token", r.Header.Get("developer-token"))

		var body googleSearchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		tokens = append(tokens, body.PageToken)
		mu.Unlock()

		if body.PageToken == "" {
			_, _ = w.Write([]byte(`{"results":[{"adGroupAd":{"ad":{"id":"1"}}}],"nextPageToken":"p2"}`))
			return
		}
		_, _ = w.Write([]byte(`{"results":[{"adGroupAd":{"ad":{"id":"2"}}}]}`))
	}))
	defer server.Close()

	a := NewGoogleAdsAdapter(config.GoogleAdsConfig{BaseURL: server.URL, APIVersion: "v16", DeveloperToken: "dev-token"})
	first, err := a.InsightsRequest(domain.Integration{BusinessID: "b1", AccountID: "123-456-7890"}, nil, testDay)
	require.NoError(t, err)
	assert.Contains(t, first.URL, "/customers/1234567890/googleAds:search")

	items, err := newTestFetcher().FetchAllPages(context.Background(), "b1", first, a)
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, []string{"", "p2"}, tokens)
}
