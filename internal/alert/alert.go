// Package alert delivers operational alerts. Sends are fire-and-forget:
// a failing sink is logged and never aborts the caller.
package alert

import (
	"context"
	"time"

	"github.com/ignite/adinsight/internal/domain"
	"github.com/ignite/adinsight/internal/pkg/logger"
)

// Sink receives alerts.
type Sink interface {
	Send(ctx context.Context, a domain.Alert) error
}

// Notifier fans an alert out to every sink and swallows their errors.
type Notifier struct {
	sinks []Sink
	now   func() time.Time
}

// NewNotifier creates a notifier over the given sinks. Nil sinks are skipped.
func NewNotifier(sinks ...Sink) *Notifier {
	n := &Notifier{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			n.sinks = append(n.sinks, s)
		}
	}
	return n
}

// Notify stamps and delivers the alert.
func (n *Notifier) Notify(ctx context.Context, a domain.Alert) {
	if n == nil {
		return
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = n.now()
	}
	for _, s := range n.sinks {
		if err := s.Send(ctx, a); err != nil {
			logger.Warn("alert delivery failed", "source", a.Source, "level", string(a.Level), "error", err)
		}
	}
}

// LogSink writes alerts to the structured log.
type LogSink struct{}

// Send logs the alert at a level matching its severity.
func (LogSink) Send(_ context.Context, a domain.Alert) error {
	fields := []interface{}{"source", a.Source, "business_id", a.BusinessID}
	for k, v := range a.Details {
		fields = append(fields, k, v)
	}
	switch a.Level {
	case domain.AlertError:
		logger.Error(a.Message, fields...)
	case domain.AlertWarning:
		logger.Warn(a.Message, fields...)
	default:
		logger.Info(a.Message, fields...)
	}
	return nil
}

func levelRank(l domain.AlertLevel) int {
	switch l {
	case domain.AlertError:
		return 2
	case domain.AlertWarning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether level is as severe as min.
func AtLeast(level, min domain.AlertLevel) bool {
	return levelRank(level) >= levelRank(min)
}
