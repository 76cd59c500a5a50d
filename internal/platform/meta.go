package platform

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/config"
	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
)

// Meta error codes that mean the caller is being throttled.
var metaRateLimitCodes = map[int]bool{
	4:   true, // application request limit
	17:  true, // user request limit
	32:  true, // page request limit
	613: true, // calls within one hour exceeded
}

func isMetaRateLimitCode(code int) bool {
	// 80000-80014 are business use case rate limits.
	return metaRateLimitCodes[code] || (code >= 80000 && code <= 80014)
}

var metaInsightFields = []string{"ad_id", "ad_name", "impressions", "clicks", "spend", "actions", "date_start"}

// MetaAdapter speaks the Marketing API insights endpoint.
type MetaAdapter struct {
	cfg config.MetaConfig
}

// NewMetaAdapter creates the Meta adapter.
func NewMetaAdapter(cfg config.MetaConfig) *MetaAdapter {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	if cfg.LeadActionType == "" {
		cfg.LeadActionType = "lead"
	}
	return &MetaAdapter{cfg: cfg}
}

func (m *MetaAdapter) Platform() domain.Platform { return domain.PlatformMeta }

func (m *MetaAdapter) InsightsRequest(integ domain.Integration, token *oauth2.Token, date time.Time) (PageRequest, error) {
	if integ.AccountID == "" {
		return PageRequest{}, fmt.Errorf("meta: integration for business %s has no ad account", integ.BusinessID)
	}
	account := integ.AccountID
	if !strings.HasPrefix(account, "act_") {
		account = "act_" + account
	}
	day := date.UTC().Format(dateLayout)
	timeRange, _ := json.Marshal(map[string]string{"since": day, "until": day})

	q := url.Values{}
	q.Set("level", "ad")
	q.Set("fields", strings.Join(metaInsightFields, ","))
	q.Set("time_range", string(timeRange))
	q.Set("limit", strconv.Itoa(m.cfg.PageSize))

	base := strings.TrimRight(m.cfg.BaseURL, "/")
	return PageRequest{
		Method: http.MethodGet,
		URL:    fmt.Sprintf("%s/%s/%s/insights?%s", base, m.cfg.APIVersion, account, q.Encode()),
		Header: http.Header{"Accept": []string{"application/json"}},
		Token:  token,
	}, nil
}

// NextRequest follows paging.next, which Meta returns as a complete URL.
func (m *MetaAdapter) NextRequest(first PageRequest, cursor string) PageRequest {
	next := first
	next.URL = cursor
	return next
}

type metaPage struct {
	Data   []RawItem `json:"data"`
	Paging struct {
		Next string `json:"next"`
	} `json:"paging"`
}

func (m *MetaAdapter) ParsePage(body []byte) (Page, error) {
	var p metaPage
	if err := json.Unmarshal(body, &p); err != nil {
		return Page{}, fmt.Errorf("meta: decode page: %w", err)
	}
	return Page{Items: p.Data, Next: p.Paging.Next}, nil
}

type metaErrorBody struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
	} `json:"error"`
}

func (m *MetaAdapter) ClassifyError(status int, body []byte) *httpretry.StatusError {
	se := &httpretry.StatusError{StatusCode: status, Body: string(body)}
	var eb metaErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Error.Code != 0 {
		se.Code = strconv.Itoa(eb.Error.Code)
		se.Body = eb.Error.Message
		se.RateLimited = isMetaRateLimitCode(eb.Error.Code)
	}
	if status == http.StatusTooManyRequests {
		se.RateLimited = true
	}
	return se
}

func (m *MetaAdapter) Normalize(businessID string, date time.Time, item RawItem) (domain.PerformanceRecord, error) {
	rec := domain.PerformanceRecord{
		BusinessID: businessID,
		Platform:   domain.PlatformMeta,
		AdID:       stringField(item, "ad_id"),
	}
	if rec.AdID == "" {
		return rec, fmt.Errorf("meta: item without ad_id")
	}

	var err error
	if rec.Date, err = dateField(item, date, "date_start"); err != nil {
		return rec, fmt.Errorf("meta ad %s: %w", rec.AdID, err)
	}
	if rec.Impressions, err = int64Field(item, "impressions"); err != nil {
		return rec, fmt.Errorf("meta ad %s: %w", rec.AdID, err)
	}
	if rec.Clicks, err = int64Field(item, "clicks"); err != nil {
		return rec, fmt.Errorf("meta ad %s: %w", rec.AdID, err)
	}
	if rec.Spend, err = float64Field(item, "spend"); err != nil {
		return rec, fmt.Errorf("meta ad %s: %w", rec.AdID, err)
	}
	if rec.Leads, err = m.leads(item); err != nil {
		return rec, fmt.Errorf("meta ad %s: %w", rec.AdID, err)
	}
	return rec, nil
}

// leads sums the actions entries whose action_type matches the configured
// lead action.
func (m *MetaAdapter) leads(item RawItem) (int64, error) {
	v, ok := lookup(item, "actions")
	if !ok {
		return 0, nil
	}
	actions, ok := v.([]interface{})
	if !ok {
		return 0, nil
	}
	var total int64
	for _, a := range actions {
		action, ok := a.(map[string]interface{})
		if !ok || stringField(action, "action_type") != m.cfg.LeadActionType {
			continue
		}
		n, err := int64Field(action, "value")
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}
