// Package httpretry provides retry logic with exponential backoff and
// jitter for resilient external API calls.
package httpretry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"time"
)

// HTTPDoer is the interface for executing HTTP requests.
// *http.Client satisfies this interface.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	StatusCode int
	// Code is the platform-specific error code, if the body carried one.
	Code string
	Body string
	// RateLimited is set when the platform signalled throttling, whatever
	// the HTTP status.
	RateLimited bool
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Body)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient.
func (e *StatusError) Retryable() bool {
	return e.RateLimited || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ExhaustedError is returned once every attempt has failed with a
// retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("httpretry: giving up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// IsRateLimited reports whether err (or anything it wraps) is a
// rate-limit response.
func IsRateLimited(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.RateLimited || se.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// IsRetryable is the default classifier: 429, 5xx, platform rate limits and
// transient network errors are retried; context cancellation and client
// errors are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var ne net.Error
	return errors.As(err, &ne)
}

// Policy describes how an operation is retried.
type Policy struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	MaxDelay   time.Duration

	// Retryable classifies errors; IsRetryable when nil.
	Retryable func(error) bool
	// OnRetry is called before each backoff sleep with the 1-based retry number.
	OnRetry func(retry int, err error, delay time.Duration)
	// Sleep waits for d or until ctx is done. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy retries 5 times with 1s base delay, up to 1s jitter and a
// 30s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 5,
		BaseDelay:  1 * time.Second,
		MaxJitter:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// Delay returns the backoff before retry number attempt (0-based):
// min(MaxDelay, BaseDelay * 2^attempt + random(0, MaxJitter)).
func (p Policy) Delay(attempt int) time.Duration {
	expDelay := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if p.MaxJitter > 0 {
		expDelay += float64(rand.Int63n(int64(p.MaxJitter)))
	}
	if p.MaxDelay > 0 && expDelay > float64(p.MaxDelay) {
		expDelay = float64(p.MaxDelay)
	}
	return time.Duration(expDelay)
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// retries run out. In the last case the final error is wrapped in an
// *ExhaustedError.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for attempt := 0; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return err
		}
		if attempt >= p.MaxRetries {
			return &ExhaustedError{Attempts: attempt + 1, Err: err}
		}

		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, err, delay)
		}
		if serr := sleep(ctx, delay); serr != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
