package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_SetGaugeAndExpose(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Register(Def{Name: "rate_limiter_tokens", Help: "tokens available", Kind: KindGauge, Labels: []string{"provider"}})
	r.SetGauge("rate_limiter_tokens", 5, map[string]string{"provider": "binance"})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	r.Handler().ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "rate_limiter_tokens")
	assert.Contains(t, rec.Body.String(), `provider="binance"`)
}

func TestRegistry_IncCounterAutoRegisters(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.IncCounter("ingestion_records_total", 1, map[string]string{"venue": "okx"})
	r.IncCounter("ingestion_records_total", 2, map[string]string{"venue": "okx"})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `ingestion_records_total{venue="okx"} 3`)
}

func TestRegistry_ObserveHistogram(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.ObserveHistogram("rest_latency_seconds", 0.25, map[string]string{"venue": "kraken"})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "rest_latency_seconds_bucket")
	assert.Contains(t, rec.Body.String(), "rest_latency_seconds_sum")
}

func TestRegistry_ExpositionLineCount(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Register(Def{
		Name: "requests_total", Help: "REST requests by outcome", Kind: KindCounter,
		Labels: []string{"venue", "op", "status"},
	})
	for i := 0; i < 3; i++ {
		r.IncCounter("requests_total", 1, map[string]string{"venue": "binance", "op": "rest", "status": "success"})
	}
	r.IncCounter("requests_total", 1, map[string]string{"venue": "binance", "op": "rest", "status": "error"})

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	var dataLines, helpLines, typeLines int
	for _, line := range strings.Split(rec.Body.String(), "\n") {
		switch {
		case strings.HasPrefix(line, "# HELP requests_total"):
			helpLines++
		case strings.HasPrefix(line, "# TYPE requests_total"):
			typeLines++
		case strings.HasPrefix(line, "requests_total{"):
			dataLines++
		}
	}
	assert.Equal(t, 2, dataLines)
	assert.Equal(t, 1, helpLines)
	assert.Equal(t, 1, typeLines)
	assert.Contains(t, rec.Body.String(), `status="success"`)
}

func TestRegistry_HistogramBucketsMonotonic(t *testing.T) {
	r := NewRegistry(time.Hour)
	r.Register(Def{
		Name: "rest_latency_seconds", Help: "REST latency", Kind: KindHistogram,
		Labels: []string{"venue"}, Buckets: []float64{0.1, 0.5, 1, 5},
	})
	for _, v := range []float64{0.05, 0.3, 0.3, 0.7, 2, 10} {
		r.ObserveHistogram("rest_latency_seconds", v, map[string]string{"venue": "binance"})
	}

	families, err := r.Gather()
	require.NoError(t, err)

	var found bool
	for _, fam := range families {
		if fam.GetName() != "rest_latency_seconds" {
			continue
		}
		found = true
		for _, m := range fam.GetMetric() {
			h := m.GetHistogram()
			var prev uint64
			for _, b := range h.GetBucket() {
				require.GreaterOrEqual(t, b.GetCumulativeCount(), prev)
				prev = b.GetCumulativeCount()
			}
			// +Inf count equals the sample count.
			require.Equal(t, uint64(6), h.GetSampleCount())
			require.LessOrEqual(t, prev, h.GetSampleCount())
		}
	}
	require.True(t, found)
}

func TestRegistry_HistoryPrunesOldEntries(t *testing.T) {
	r := NewRegistry(10 * time.Millisecond)
	r.RecordHistory("pnl", 100)
	require.Len(t, r.History("pnl"), 1)

	time.Sleep(20 * time.Millisecond)
	r.Prune()
	assert.Empty(t, r.History("pnl"))
}
