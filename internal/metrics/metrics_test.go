package metrics_test

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlas-desktop/risk-sim/internal/metrics"
	"github.com/atlas-desktop/risk-sim/internal/montecarlo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ montecarlo.Recorder = (*metrics.Metrics)(nil)

func TestRecorderCounters(t *testing.T) {
	m := metrics.New()

	m.RunStarted()
	m.BatchAggregated(20000)
	m.BatchAggregated(500)
	m.RunFinished(montecarlo.OutcomeCompleted, 1500*time.Millisecond)
	m.ChartSampled(montecarlo.OutcomeFailed, time.Millisecond)
	m.RateLimited()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	assert.True(t, names["risksim_batches_total"])
	assert.True(t, names["go_goroutines"])

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "risksim_simulations_total 20500")
	assert.Contains(t, text, "risksim_batches_total 2")
	assert.Contains(t, text, `risksim_runs_finished_total{outcome="completed"} 1`)
	assert.Contains(t, text, `risksim_chart_samples_total{outcome="failed"} 1`)
	assert.Contains(t, text, "risksim_runs_in_flight 0")
	assert.Contains(t, text, "risksim_api_rate_limited_total 1")
}
