package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPrometheusCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.JobRun()
	p.PageFetched("meta")
	p.PageFetched("meta")
	p.PageFetched("google_ads")
	p.Retry("meta")
	p.PlatformFailure("google_ads")

	assert.Equal(t, 1.0, testutil.ToFloat64(p.jobsRun))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.pages.WithLabelValues("meta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.pages.WithLabelValues("google_ads")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.retries.WithLabelValues("meta")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.failures.WithLabelValues("google_ads")))

	n, err := testutil.GatherAndCount(reg)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
}
