package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/checkpoint"
	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
	"github.com/cryptorun/core/internal/store"
)

// fakeSource serves a synthetic 1-minute kline series covering any
// requested range, recording every requested page start for assertions.
type fakeSource struct {
	mu         sync.Mutex
	venue      string
	pageStarts []time.Time
	failKlines error
}

func (f *fakeSource) Venue() string { return f.venue }

func (f *fakeSource) recordStart(start time.Time) {
	f.mu.Lock()
	f.pageStarts = append(f.pageStarts, start)
	f.mu.Unlock()
}

func (f *fakeSource) starts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.pageStarts...)
}

func (f *fakeSource) FetchKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error) {
	f.recordStart(start)
	if f.failKlines != nil {
		return nil, f.failKlines
	}

	var out []schema.Kline
	// First slot at or after start on the minute grid.
	t := start.Truncate(time.Minute)
	if t.Before(start) {
		t = t.Add(time.Minute)
	}
	for ; t.Before(end) && len(out) < limit; t = t.Add(time.Minute) {
		out = append(out, schema.Kline{
			Venue: f.venue, Symbol: symbol, Interval: interval,
			OpenTime: t, CloseTime: t.Add(time.Minute),
			Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10,
		})
	}
	return out, nil
}

func (f *fakeSource) FetchMarkKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error) {
	return f.FetchKlinesRange(ctx, symbol, interval, start, end, limit)
}

func (f *fakeSource) FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]schema.FundingRate, error) {
	return nil, nil
}

func (f *fakeSource) FetchOpenInterestHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]schema.OpenInterest, error) {
	return nil, nil
}

func (f *fakeSource) FetchAggTrades(ctx context.Context, symbol string, start, end time.Time) ([]schema.Trade, error) {
	return nil, nil
}

func newTestOrchestrator(src *fakeSource, sink store.Store, ckpt checkpoint.Store, bus *eventbus.Bus) *Orchestrator {
	cfg := Config{Concurrency: 2, BatchSize: 100, RequestDelay: 0}
	return New(cfg, map[string]Source{src.venue: src}, sink, ckpt, bus)
}

func TestRunPaginatesAndCompletes(t *testing.T) {
	src := &fakeSource{venue: "binance"}
	sink := store.NewMemoryStore()
	ckpt := checkpoint.NewMemoryStore()

	start := time.UnixMilli(1700000000000).UTC()
	plan := Plan{
		Venues: []string{"binance"}, Symbols: []string{"BTCUSDT"},
		DataTypes: []DataType{DataTypeKline},
		StartTime: start, EndTime: start.Add(300 * time.Minute),
	}

	o := newTestOrchestrator(src, sink, ckpt, nil)
	require.NoError(t, o.Run(context.Background(), plan))

	require.Equal(t, 300, sink.KlineCount())

	cp, err := ckpt.Get(context.Background(), "binance", "BTCUSDT", "kline")
	require.NoError(t, err)
	require.NotNil(t, cp)
	require.Equal(t, checkpoint.StatusCompleted, cp.Status)
	require.Equal(t, int64(300), cp.DownloadedCount)
}

func TestRerunOfCompletedPlanWritesNothing(t *testing.T) {
	src := &fakeSource{venue: "binance"}
	sink := store.NewMemoryStore()
	ckpt := checkpoint.NewMemoryStore()
	bus := eventbus.New()

	start := time.UnixMilli(1700000000000).UTC()
	plan := Plan{
		Venues: []string{"binance"}, Symbols: []string{"BTCUSDT"},
		DataTypes: []DataType{DataTypeKline},
		StartTime: start, EndTime: start.Add(100 * time.Minute),
	}

	o := newTestOrchestrator(src, sink, ckpt, nil)
	require.NoError(t, o.Run(context.Background(), plan))
	writesAfterFirst := sink.WriteCount()

	sub := bus.Subscribe(8, TopicSkip)
	defer sub.Unsubscribe()

	o2 := newTestOrchestrator(src, sink, ckpt, bus)
	require.NoError(t, o2.Run(context.Background(), plan))

	require.Equal(t, writesAfterFirst, sink.WriteCount())
	select {
	case ev := <-sub.C:
		require.Equal(t, TopicSkip, ev.Topic)
	default:
		t.Fatal("expected a skip event for the completed task")
	}
}

func TestResumeStartsAtCheckpointPlusOne(t *testing.T) {
	src := &fakeSource{venue: "binance"}
	sink := store.NewMemoryStore()
	ckpt := checkpoint.NewMemoryStore()

	start := time.UnixMilli(1700000000000).UTC()
	end := time.UnixMilli(1700000000000 + 10000*60_000).UTC()

	// A previous run persisted 500 klines and recorded its cursor.
	cursor := int64(1700000000000 + 500*60_000)
	require.NoError(t, ckpt.Save(context.Background(), checkpoint.Checkpoint{
		Venue: "binance", Symbol: "BTCUSDT", DataType: "kline",
		LastTimestamp: cursor, UpdatedAt: time.Now().UnixMilli(),
		Status: checkpoint.StatusRunning, DownloadedCount: 500,
	}))

	plan := Plan{
		Venues: []string{"binance"}, Symbols: []string{"BTCUSDT"},
		DataTypes: []DataType{DataTypeKline},
		StartTime: start, EndTime: end,
	}

	o := newTestOrchestrator(src, sink, ckpt, nil)
	require.NoError(t, o.Run(context.Background(), plan))

	starts := src.starts()
	require.NotEmpty(t, starts)
	require.Equal(t, cursor+1, starts[0].UnixMilli())
}

func TestTaskErrorWritesFailedCheckpointAndContinues(t *testing.T) {
	src := &fakeSource{venue: "binance", failKlines: errors.New("venue exploded")}
	sink := store.NewMemoryStore()
	ckpt := checkpoint.NewMemoryStore()
	bus := eventbus.New()

	sub := bus.Subscribe(8, TopicError)
	defer sub.Unsubscribe()

	start := time.UnixMilli(1700000000000).UTC()
	plan := Plan{
		Venues: []string{"binance"}, Symbols: []string{"BTCUSDT", "ETHUSDT"},
		DataTypes: []DataType{DataTypeKline},
		StartTime: start, EndTime: start.Add(60 * time.Minute),
	}

	o := newTestOrchestrator(src, sink, ckpt, bus)
	require.NoError(t, o.Run(context.Background(), plan))

	for _, symbol := range []string{"BTCUSDT", "ETHUSDT"} {
		cp, err := ckpt.Get(context.Background(), "binance", symbol, "kline")
		require.NoError(t, err)
		require.NotNil(t, cp)
		require.Equal(t, checkpoint.StatusFailed, cp.Status)
		require.Equal(t, "venue exploded", cp.ErrorMessage)
	}

	select {
	case ev := <-sub.C:
		p, ok := ev.Payload.(Progress)
		require.True(t, ok)
		require.Error(t, p.Err)
	default:
		t.Fatal("expected an error event")
	}
}

func TestStopHaltsBeforeNextPage(t *testing.T) {
	src := &fakeSource{venue: "binance"}
	sink := store.NewMemoryStore()
	ckpt := checkpoint.NewMemoryStore()

	start := time.UnixMilli(1700000000000).UTC()
	plan := Plan{
		Venues: []string{"binance"}, Symbols: []string{"BTCUSDT"},
		DataTypes: []DataType{DataTypeKline},
		StartTime: start, EndTime: start.Add(1000 * time.Minute),
	}

	o := newTestOrchestrator(src, sink, ckpt, nil)
	o.Stop()
	require.NoError(t, o.Run(context.Background(), plan))

	// Stopped before any page was fetched; no completed checkpoint exists.
	cp, err := ckpt.Get(context.Background(), "binance", "BTCUSDT", "kline")
	require.NoError(t, err)
	if cp != nil {
		require.NotEqual(t, checkpoint.StatusCompleted, cp.Status)
	}
}
