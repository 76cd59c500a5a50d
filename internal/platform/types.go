// Package platform fetches ad-level insights from external ad platforms.
//
// The Fetcher owns the transport concerns shared by every platform:
// concurrency gates, retries with backoff, and cursor pagination. Adapters
// describe one platform's wire format: how to build the first request, how
// to find the next cursor, which error codes mean "slow down", and how a raw
// item maps onto a PerformanceRecord.
package platform

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/httpretry"
)

// RawItem is one decoded element of a platform's result collection.
type RawItem = map[string]interface{}

// PageRequest describes a single page fetch. It is a value so the fetcher
// can rebuild the http.Request on every retry.
type PageRequest struct {
	Method string
	URL    string
	Body   []byte
	Header http.Header
	Token  *oauth2.Token
}

// Page is a parsed response page.
type Page struct {
	Items []RawItem
	// Next is the cursor or URL of the following page; empty on the last page.
	Next string
}

// Adapter is the platform-specific half of an insights fetch.
type Adapter interface {
	Platform() domain.Platform

	// InsightsRequest builds the first page request for one day of ad-level
	// insights.
	InsightsRequest(integ domain.Integration, token *oauth2.Token, date time.Time) (PageRequest, error)

	// NextRequest builds the request for the page identified by cursor.
	NextRequest(first PageRequest, cursor string) PageRequest

	// ParsePage decodes a 2xx response body.
	ParsePage(body []byte) (Page, error)

	// ClassifyError converts a non-2xx response into a StatusError and flags
	// platform rate-limit codes.
	ClassifyError(status int, body []byte) *httpretry.StatusError

	// Normalize maps a raw item onto a PerformanceRecord for businessID.
	// The fallback date is used when the item carries none.
	Normalize(businessID string, date time.Time, item RawItem) (domain.PerformanceRecord, error)
}

// Registry maps platform names to adapters.
type Registry map[domain.Platform]Adapter

// Register adds an adapter under its platform name.
func (r Registry) Register(a Adapter) {
	r[a.Platform()] = a
}
