// Package telemetry bridges the substrate's runtime state into the metric
// registry: rate limiter snapshots, event bus drop counts, adapter health,
// and ingestion progress all become Prometheus series here instead of each
// component knowing about the registry.
package telemetry

import (
	"context"
	"time"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/exchange"
	"github.com/cryptorun/core/internal/ingest"
	"github.com/cryptorun/core/internal/metrics"
	"github.com/cryptorun/core/internal/ratelimit"
)

// Exporter samples shared components on a fixed cadence and consumes
// ingestion progress events from the bus.
type Exporter struct {
	registry *metrics.Registry
	limiters *ratelimit.Manager
	bus      *eventbus.Bus
	adapters []exchange.Adapter
	interval time.Duration
}

// New wires an Exporter. adapters may be nil when only ingestion metrics
// are wanted.
func New(registry *metrics.Registry, limiters *ratelimit.Manager, bus *eventbus.Bus, adapters []exchange.Adapter, interval time.Duration) *Exporter {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	registry.Register(metrics.Def{
		Name: "ratelimit_tokens_available", Kind: metrics.KindGauge,
		Help: "Requests left in the current rate-limit window per venue", Labels: []string{"venue"},
	})
	registry.Register(metrics.Def{
		Name: "ratelimit_consecutive_throttles", Kind: metrics.KindGauge,
		Help: "Consecutive 429 responses per venue", Labels: []string{"venue"},
	})
	registry.Register(metrics.Def{
		Name: "eventbus_dropped_total", Kind: metrics.KindGauge,
		Help: "Events dropped due to full subscriber mailboxes", Labels: nil,
	})
	registry.Register(metrics.Def{
		Name: "adapter_healthy", Kind: metrics.KindGauge,
		Help: "1 when the adapter reports healthy", Labels: []string{"venue"},
	})
	registry.Register(metrics.Def{
		Name: "adapter_latency_ms", Kind: metrics.KindGauge,
		Help: "Rolling average REST latency per venue", Labels: []string{"venue"},
	})
	registry.Register(metrics.Def{
		Name: "ingest_records_total", Kind: metrics.KindCounter,
		Help: "Records persisted by the ingestion pipeline",
		Labels: []string{"venue", "symbol", "data_type"},
	})
	registry.Register(metrics.Def{
		Name: "ingest_task_errors_total", Kind: metrics.KindCounter,
		Help: "Ingestion tasks that ended in a failed checkpoint",
		Labels: []string{"venue", "data_type"},
	})

	return &Exporter{
		registry: registry,
		limiters: limiters,
		bus:      bus,
		adapters: adapters,
		interval: interval,
	}
}

// Run samples gauges on the tick and drains ingestion events until ctx is
// cancelled.
func (e *Exporter) Run(ctx context.Context) error {
	var progressCh <-chan eventbus.Event
	if e.bus != nil {
		sub := e.bus.Subscribe(0, ingest.TopicProgress, ingest.TopicError)
		defer sub.Unsubscribe()
		progressCh = sub.C
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var lastProgress = make(map[string]int64)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sample()
		case ev, ok := <-progressCh:
			if !ok {
				progressCh = nil
				continue
			}
			e.consume(ev, lastProgress)
		}
	}
}

func (e *Exporter) sample() {
	if e.limiters != nil {
		for _, snap := range e.limiters.Snapshots() {
			labels := map[string]string{"venue": snap.Provider}
			e.registry.SetGauge("ratelimit_tokens_available", snap.TokensAvailable, labels)
			e.registry.SetGauge("ratelimit_consecutive_throttles", float64(snap.ConsecutiveThrottles), labels)
		}
	}

	if e.bus != nil {
		e.registry.SetGauge("eventbus_dropped_total", float64(e.bus.DroppedCount()), nil)
	}

	for _, a := range e.adapters {
		h := a.Health()
		labels := map[string]string{"venue": h.Venue}
		healthy := 0.0
		if h.Healthy {
			healthy = 1.0
		}
		e.registry.SetGauge("adapter_healthy", healthy, labels)
		e.registry.SetGauge("adapter_latency_ms", h.LatencyMS, labels)
	}

	e.registry.Prune()
}

// consume turns cumulative per-task progress into counter increments.
func (e *Exporter) consume(ev eventbus.Event, lastProgress map[string]int64) {
	p, ok := ev.Payload.(ingest.Progress)
	if !ok {
		return
	}

	switch ev.Topic {
	case ingest.TopicProgress:
		key := p.Task.Venue + "|" + p.Task.Symbol + "|" + string(p.Task.DataType)
		delta := p.Downloaded - lastProgress[key]
		if delta > 0 {
			lastProgress[key] = p.Downloaded
			e.registry.IncCounter("ingest_records_total", float64(delta), map[string]string{
				"venue": p.Task.Venue, "symbol": p.Task.Symbol, "data_type": string(p.Task.DataType),
			})
		}
	case ingest.TopicError:
		e.registry.IncCounter("ingest_task_errors_total", 1, map[string]string{
			"venue": p.Task.Venue, "data_type": string(p.Task.DataType),
		})
	}
}
