package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
)

const googleAdsQuery = `SELECT ad_group_ad.ad.id, metrics.impressions, metrics.clicks, metrics.cost_micros, metrics.conversions, segments.date ` +
	`FROM ad_group_ad WHERE segments.date = '%s'`

// GoogleAdsAdapter speaks the Google Ads REST search endpoint. Subsequent
// pages re-POST the query with the returned page token.
type GoogleAdsAdapter struct {
	cfg config.GoogleAdsConfig
}

// NewGoogleAdsAdapter creates the Google Ads adapter.
func NewGoogleAdsAdapter(cfg config.GoogleAdsConfig) *GoogleAdsAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 1000
	}
	return &GoogleAdsAdapter{cfg: cfg}
}

func (g *GoogleAdsAdapter) Platform() domain.Platform { return domain.PlatformGoogleAds }

type googleSearchRequest struct {
	Query     string `json:"query"`
	PageSize  int    `json:"pageSize,omitempty"`
	PageToken string `json:"pageToken,omitempty"`
}

func (g *GoogleAdsAdapter) InsightsRequest(integ domain.Integration, token *oauth2.Token, date time.Time) (PageRequest, error) {
	customerID := strings.ReplaceAll(integ.AccountID, "-", "")
	if customerID == "" {
		return PageRequest{}, fmt.Errorf("google ads: integration for business %s has no customer id", integ.BusinessID)
	}
	body, err := json.Marshal(googleSearchRequest{
		Query:    fmt.Sprintf(googleAdsQuery, date.UTC().Format(dateLayout)),
		PageSize: g.cfg.PageSize,
	})
	if err != nil {
		return PageRequest{}, err
	}

	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("developer-token", g.cfg.DeveloperToken)
	if g.cfg.LoginCustomerID != "" {
		h.Set("login-customer-id", strings.ReplaceAll(g.cfg.LoginCustomerID, "-", ""))
	}

	base := strings.TrimRight(g.cfg.BaseURL, "/")
	return PageRequest{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/%s/customers/%s/googleAds:search", base, g.cfg.APIVersion, customerID),
		Body:   body,
		Header: h,
		Token:  token,
	}, nil
}

func (g *GoogleAdsAdapter) NextRequest(first PageRequest, cursor string) PageRequest {
	var req googleSearchRequest
	_ = json.Unmarshal(first.Body, &req)
	req.PageToken = cursor
	body, _ := json.Marshal(req)

	next := first
	next.Body = body
	return next
}

type googleSearchResponse struct {
	Results       []RawItem `json:"results"`
	NextPageToken string    `json:"nextPageToken"`
}

func (g *GoogleAdsAdapter) ParsePage(body []byte) (Page, error) {
	var resp googleSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Page{}, fmt.Errorf("google ads: decode page: %w", err)
	}
	return Page{Items: resp.Results, Next: resp.NextPageToken}, nil
}

type googleErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (g *GoogleAdsAdapter) ClassifyError(status int, body []byte) *httpretry.StatusError {
	se := &httpretry.StatusError{StatusCode: status, Body: string(body)}
	var eb googleErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Status != "" {
		se.Code = eb.Error.Status
		se.Body = eb.Error.Message
	}
	if status == http.StatusTooManyRequests ||
		se.Code == "RESOURCE_EXHAUSTED" ||
		strings.Contains(string(body), "RESOURCE_TEMPORARILY_EXHAUSTED") {
		se.RateLimited = true
	}
	return se
}

func (g *GoogleAdsAdapter) Normalize(businessID string, date time.Time, item RawItem) (domain.PerformanceRecord, error) {
	rec := domain.PerformanceRecord{
		BusinessID: businessID,
		Platform:   domain.PlatformGoogleAds,
		AdID:       stringField(item, "adGroupAd", "ad", "id"),
	}
	if rec.AdID == "" {
		return rec, fmt.Errorf("google ads: item without ad id")
	}

	var err error
	if rec.Date, err = dateField(item, date, "segments", "date"); err != nil {
		return rec, fmt.Errorf("google ads ad %s: %w", rec.AdID, err)
	}
	if rec.Impressions, err = int64Field(item, "metrics", "impressions"); err != nil {
		return rec, fmt.Errorf("google ads ad %s: %w", rec.AdID, err)
	}
	if rec.Clicks, err = int64Field(item, "metrics", "clicks"); err != nil {
		return rec, fmt.Errorf("google ads ad %s: %w", rec.AdID, err)
	}
	micros, err := int64Field(item, "metrics", "costMicros")
	if err != nil {
		return rec, fmt.Errorf("google ads ad %s: %w", rec.AdID, err)
	}
	rec.Spend = float64(micros) / 1e6
	if rec.Leads, err = int64Field(item, "metrics", "conversions"); err != nil {
		return rec, fmt.Errorf("google ads ad %s: %w", rec.AdID, err)
	}
	return rec, nil
}

// NewRegistry builds adapters for every enabled platform.
func NewRegistry(cfg config.PlatformsConfig) Registry {
	r := Registry{}
	if cfg.Meta.Enabled {
		r.Register(NewMetaAdapter(cfg.Meta))
	}
	if cfg.GoogleAds.Enabled {
		r.Register(NewGoogleAdsAdapter(cfg.GoogleAds))
	}
	return r
}
