// Package metrics exposes the batch job's Prometheus counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "adinsight"

// Recorder receives ingestion events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	JobRun()
	PlatformFailure(platform string)
	PageFetched(platform string)
	Retry(platform string)
}

// Prometheus records counters on a Prometheus registry.
type Prometheus struct {
	jobsRun  prometheus.Counter
	failures *prometheus.CounterVec
	pages    *prometheus.CounterVec
	retries  *prometheus.CounterVec
}

// NewPrometheus creates the counters and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		jobsRun: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_run_total",
			Help:      "Total ETL batch runs started",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "Platform ingestions that failed, by platform",
		}, []string{"platform"}),
		pages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Result pages fetched from ad platforms, by platform",
		}, []string{"platform"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Request retries against ad platforms, by platform",
		}, []string{"platform"}),
	}
	reg.MustRegister(p.jobsRun, p.failures, p.pages, p.retries)
	return p
}

func (p *Prometheus) JobRun()                         { p.jobsRun.Inc() }
func (p *Prometheus) PlatformFailure(platform string) { p.failures.WithLabelValues(platform).Inc() }
func (p *Prometheus) PageFetched(platform string)     { p.pages.WithLabelValues(platform).Inc() }
func (p *Prometheus) Retry(platform string)           { p.retries.WithLabelValues(platform).Inc() }

// Nop discards everything.
type Nop struct{}

func (Nop) JobRun()                {}
func (Nop) PlatformFailure(string) {}
func (Nop) PageFetched(string)     {}
func (Nop) Retry(string)           {}
