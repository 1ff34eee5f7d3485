// Package metrics implements the label-safe metric registry every producer
// in this substrate reports through: rate limiters, circuit breakers,
// adapters, and the ingestion orchestrator. Built on
// github.com/prometheus/client_golang, whose CounterVec/GaugeVec/
// HistogramVec already provide the label-tuple-establishes-a-series and
// cumulative-bucket semantics the contract calls for; this package adds the
// dynamic register-by-name surface and the pruned auxiliary history
// buffers the contract also requires.
package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Kind distinguishes the three metric shapes the registry exposes.
type Kind int

const (
	KindGauge Kind = iota
	KindCounter
	KindHistogram
)

// Def describes one metric at registration time.
type Def struct {
	Name    string
	Help    string
	Kind    Kind
	Labels  []string
	Buckets []float64 // histogram only; defaults to prometheus.DefBuckets
}

// Registry owns every registered metric family plus the pruned auxiliary
// history buffers (PnL, margin, latency, error records) consumed by
// dashboards that want raw samples rather than aggregated buckets.
type Registry struct {
	reg *prometheus.Registry

	mu         sync.RWMutex
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec

	historyMu        sync.Mutex
	history          map[string][]HistoryEntry
	historyRetention time.Duration
}

// HistoryEntry is one timestamped raw sample in an auxiliary buffer.
type HistoryEntry struct {
	At    time.Time
	Value float64
}

// NewRegistry creates an empty registry. historyRetention bounds how long
// auxiliary HistoryEntry samples are kept before Prune discards them.
func NewRegistry(historyRetention time.Duration) *Registry {
	return &Registry{
		reg:              prometheus.NewRegistry(),
		gauges:           make(map[string]*prometheus.GaugeVec),
		counters:         make(map[string]*prometheus.CounterVec),
		histograms:       make(map[string]*prometheus.HistogramVec),
		history:          make(map[string][]HistoryEntry),
		historyRetention: historyRetention,
	}
}

// Register creates the named metric family from def. Calling Register twice
// for the same name with the same Kind is a no-op; re-registering under a
// different Kind panics, since that indicates a programming error at the
// call site rather than a runtime condition to recover from.
func (r *Registry) Register(def Def) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch def.Kind {
	case KindGauge:
		if _, ok := r.gauges[def.Name]; ok {
			return
		}
		v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: def.Name, Help: def.Help}, def.Labels)
		r.reg.MustRegister(v)
		r.gauges[def.Name] = v
	case KindCounter:
		if _, ok := r.counters[def.Name]; ok {
			return
		}
		v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: def.Name, Help: def.Help}, def.Labels)
		r.reg.MustRegister(v)
		r.counters[def.Name] = v
	case KindHistogram:
		if _, ok := r.histograms[def.Name]; ok {
			return
		}
		buckets := def.Buckets
		if len(buckets) == 0 {
			buckets = prometheus.DefBuckets
		}
		v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: def.Name, Help: def.Help, Buckets: buckets}, def.Labels)
		r.reg.MustRegister(v)
		r.histograms[def.Name] = v
	}
}

// SetGauge sets name{labels} to value, auto-registering a gauge keyed by the
// given label names if name was never explicitly registered.
func (r *Registry) SetGauge(name string, value float64, labels map[string]string) {
	r.mu.RLock()
	v, ok := r.gauges[name]
	r.mu.RUnlock()
	if !ok {
		r.Register(Def{Name: name, Kind: KindGauge, Labels: sortedKeys(labels)})
		r.mu.RLock()
		v = r.gauges[name]
		r.mu.RUnlock()
	}
	v.With(labels).Set(value)
}

// IncCounter adds delta to name{labels}, auto-registering if necessary.
func (r *Registry) IncCounter(name string, delta float64, labels map[string]string) {
	r.mu.RLock()
	v, ok := r.counters[name]
	r.mu.RUnlock()
	if !ok {
		r.Register(Def{Name: name, Kind: KindCounter, Labels: sortedKeys(labels)})
		r.mu.RLock()
		v = r.counters[name]
		r.mu.RUnlock()
	}
	v.With(labels).Add(delta)
}

// ObserveHistogram records value into name{labels}'s histogram, auto-
// registering with default buckets if necessary.
func (r *Registry) ObserveHistogram(name string, value float64, labels map[string]string) {
	r.mu.RLock()
	v, ok := r.histograms[name]
	r.mu.RUnlock()
	if !ok {
		r.Register(Def{Name: name, Kind: KindHistogram, Labels: sortedKeys(labels)})
		r.mu.RLock()
		v = r.histograms[name]
		r.mu.RUnlock()
	}
	v.With(labels).Observe(value)
}

// Handler returns the http.Handler serving the Prometheus text exposition
// format for every registered metric.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gather returns the current metric families as protobuf DTOs, for callers
// that inspect series programmatically rather than scraping the text
// exposition.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// RecordHistory appends a timestamped raw sample to a named auxiliary
// buffer (PnL, margin, latency, error records) separate from the
// Prometheus series, for dashboards that plot raw history rather than
// aggregated buckets.
func (r *Registry) RecordHistory(bucket string, value float64) {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	r.history[bucket] = append(r.history[bucket], HistoryEntry{At: time.Now(), Value: value})
}

// History returns a copy of the named auxiliary buffer.
func (r *Registry) History(bucket string) []HistoryEntry {
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	out := make([]HistoryEntry, len(r.history[bucket]))
	copy(out, r.history[bucket])
	return out
}

// Prune discards every auxiliary history entry older than historyRetention,
// across all buckets. Prometheus series themselves are left to the
// registry's native cumulative semantics; only the raw auxiliary buffers
// are pruned.
func (r *Registry) Prune() {
	cutoff := time.Now().Add(-r.historyRetention)
	r.historyMu.Lock()
	defer r.historyMu.Unlock()
	for bucket, entries := range r.history {
		kept := entries[:0]
		for _, e := range entries {
			if e.At.After(cutoff) {
				kept = append(kept, e)
			}
		}
		r.history[bucket] = kept
	}
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
