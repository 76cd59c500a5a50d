package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/metrics"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
	"github.com/ignite/adinsight/internal/pkg/logger"
)

const (
	// defaultMaxPages guards against a platform that never stops returning
	// a next cursor.
	defaultMaxPages = 1000
	maxBodyBytes    = 32 << 20
)

// IntegrationMarker records a terminal fetch failure on the integration.
type IntegrationMarker interface {
	MarkError(ctx context.Context, businessID string, platform domain.Platform, message string) error
}

// Notifier delivers operator alerts.
type Notifier interface {
	Notify(ctx context.Context, a domain.Alert)
}

// Fetcher retrieves every page of a platform query under the batch's
// concurrency gates, retrying transient failures with backoff.
type Fetcher struct {
	client   httpretry.HTTPDoer
	gates    *GateSet
	policy   httpretry.Policy
	maxPages int

	metrics      metrics.Recorder
	integrations IntegrationMarker
	alerts       Notifier
	now          func() time.Time
}

// NewFetcher creates a fetcher. gates is normally created per batch.
func NewFetcher(client httpretry.HTTPDoer, gates *GateSet, policy httpretry.Policy) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Fetcher{
		client:   client,
		gates:    gates,
		policy:   policy,
		maxPages: defaultMaxPages,
		metrics:  metrics.Nop{},
		now:      time.Now,
	}
}

// SetMetrics sets the metrics recorder.
func (f *Fetcher) SetMetrics(m metrics.Recorder) {
	if m != nil {
		f.metrics = m
	}
}

// SetIntegrations sets where exhausted failures are persisted.
func (f *Fetcher) SetIntegrations(m IntegrationMarker) { f.integrations = m }

// SetNotifier sets the alert notifier.
func (f *Fetcher) SetNotifier(n Notifier) { f.alerts = n }

// SetMaxPages overrides the page safety limit.
func (f *Fetcher) SetMaxPages(n int) {
	if n > 0 {
		f.maxPages = n
	}
}

// FetchAllPages follows the adapter's cursors from first until the last
// page and returns the concatenated items in page order. Gates are held
// only while a request is in flight, never across a backoff sleep.
//
// When a page keeps failing with retryable errors until retries run out,
// the integration is marked errored, an error alert is sent, and the
// *httpretry.ExhaustedError is returned.
func (f *Fetcher) FetchAllPages(ctx context.Context, businessID string, first PageRequest, a Adapter) ([]RawItem, error) {
	platform := string(a.Platform())
	policy := f.policy
	policy.OnRetry = func(retry int, err error, delay time.Duration) {
		f.metrics.Retry(platform)
		logger.Warn("platform request failed, retrying",
			"platform", platform,
			"business_id", businessID,
			"retry", retry,
			"delay_ms", delay.Milliseconds(),
			"rate_limited", httpretry.IsRateLimited(err),
			"error", err,
		)
	}

	var items []RawItem
	req := first
	for pageNum := 1; ; pageNum++ {
		if pageNum > f.maxPages {
			return nil, fmt.Errorf("%s: exceeded %d pages", platform, f.maxPages)
		}

		var page Page
		err := policy.Do(ctx, func(ctx context.Context) error {
			var err error
			page, err = f.fetchPage(ctx, businessID, req, a)
			return err
		})
		if err != nil {
			var exhausted *httpretry.ExhaustedError
			if errors.As(err, &exhausted) {
				f.handleExhausted(ctx, businessID, a.Platform(), pageNum, exhausted)
			}
			return nil, fmt.Errorf("%s page %d: %w", platform, pageNum, err)
		}

		f.metrics.PageFetched(platform)
		items = append(items, page.Items...)
		if page.Next == "" {
			return items, nil
		}
		req = a.NextRequest(first, page.Next)
	}
}

func (f *Fetcher) fetchPage(ctx context.Context, businessID string, pr PageRequest, a Adapter) (Page, error) {
	release, err := f.gates.Acquire(ctx, businessID)
	if err != nil {
		return Page{}, err
	}
	defer release()

	method := pr.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if pr.Body != nil {
		body = bytes.NewReader(pr.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, pr.URL, body)
	if err != nil {
		return Page{}, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range pr.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if pr.Token != nil {
		pr.Token.SetAuthHeader(req)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return Page{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return Page{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Page{}, a.ClassifyError(resp.StatusCode, data)
	}
	return a.ParsePage(data)
}

func (f *Fetcher) handleExhausted(ctx context.Context, businessID string, p domain.Platform, pageNum int, exhausted *httpretry.ExhaustedError) {
	msg := fmt.Sprintf("fetch failed after %d attempts: %v", exhausted.Attempts, exhausted.Err)
	logger.Error("platform fetch exhausted retries",
		"platform", string(p),
		"business_id", businessID,
		"page", pageNum,
		"attempts", exhausted.Attempts,
		"error", exhausted.Err,
	)

	if f.integrations != nil {
		if err := f.integrations.MarkError(ctx, businessID, p, msg); err != nil {
			logger.Error("failed to mark integration error", "business_id", businessID, "platform", string(p), "error", err)
		}
	}
	if f.alerts != nil {
		f.alerts.Notify(ctx, domain.Alert{
			Level:      domain.AlertError,
			Message:    fmt.Sprintf("%s sync failed for business %s", p, businessID),
			Source:     "fetcher",
			BusinessID: businessID,
			Details: map[string]interface{}{
				"platform":     string(p),
				"page":         pageNum,
				"attempts":     exhausted.Attempts,
				"rate_limited": httpretry.IsRateLimited(exhausted.Err),
				"error":        exhausted.Err.Error(),
			},
			CreatedAt: f.now(),
		})
	}
}
