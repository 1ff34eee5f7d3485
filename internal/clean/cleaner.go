// Package clean validates and deduplicates raw ingested records before
// they reach the checkpointed store: timestamp window checks, OHLC and
// volume predicates, in-batch dedup, and ascending sort.
package clean

import (
	"math"
	"sort"
	"time"

	"github.com/cryptorun/core/internal/schema"
)

// minTimestamp/maxTimestamp bound the accepted ingestion window, matching
// the fixed [2015-01-01, 2100-01-01) UTC range every record must fall in.
var (
	minTimestamp = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)
	maxTimestamp = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)
)

// Warning records why one record was dropped from a batch, surfaced to the
// ingestion orchestrator's progress log rather than failing the whole task.
type Warning struct {
	Index  int
	Reason string
}

// Cleaner validates, dedups, and sorts raw batches of one canonical type at
// a time. It holds no state between calls; every method is safe to call
// concurrently from multiple ingestion workers.
type Cleaner struct{}

func New() *Cleaner { return &Cleaner{} }

func validTimestamp(t time.Time) bool {
	return !t.Before(minTimestamp) && t.Before(maxTimestamp)
}

func validOHLC(k schema.Kline) bool {
	if k.Open <= 0 || k.High <= 0 || k.Low <= 0 || k.Close <= 0 {
		return false
	}
	if k.Low > k.Open || k.Close > k.High {
		return false
	}
	if k.Volume < 0 {
		return false
	}
	return true
}

// CleanKlines validates, dedups by OpenTime, and sorts ascending by
// timestamp. Records failing any OHLC/timestamp/volume predicate are
// dropped and reported as warnings rather than aborting the batch.
func (c *Cleaner) CleanKlines(raw []schema.Kline) ([]schema.Kline, []Warning) {
	var warnings []Warning
	seen := make(map[int64]schema.Kline, len(raw))
	order := make([]int64, 0, len(raw))

	for i, k := range raw {
		if !validTimestamp(k.OpenTime) {
			warnings = append(warnings, Warning{Index: i, Reason: "timestamp out of accepted range"})
			continue
		}
		if !validOHLC(k) {
			warnings = append(warnings, Warning{Index: i, Reason: "OHLC predicate violated"})
			continue
		}
		ts := k.OpenTime.UnixMilli()
		if _, dup := seen[ts]; !dup {
			order = append(order, ts)
		}
		seen[ts] = k
	}

	out := make([]schema.Kline, 0, len(order))
	for _, ts := range order {
		out = append(out, seen[ts])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenTime.Before(out[j].OpenTime) })
	return out, warnings
}

// CleanTrades validates price/quantity predicates and dedups by
// (TradeID, Timestamp), the key aggregate-trade records use instead of a
// bare timestamp.
func (c *Cleaner) CleanTrades(raw []schema.Trade) ([]schema.Trade, []Warning) {
	var warnings []Warning
	type tradeKey struct {
		id string
		ts int64
	}
	seen := make(map[tradeKey]schema.Trade, len(raw))
	order := make([]tradeKey, 0, len(raw))

	for i, t := range raw {
		if !validTimestamp(t.Timestamp) {
			warnings = append(warnings, Warning{Index: i, Reason: "timestamp out of accepted range"})
			continue
		}
		if t.Price <= 0 || t.Size < 0 {
			warnings = append(warnings, Warning{Index: i, Reason: "price/size predicate violated"})
			continue
		}
		key := tradeKey{id: t.TradeID, ts: t.Timestamp.UnixMilli()}
		if _, dup := seen[key]; !dup {
			order = append(order, key)
		}
		seen[key] = t
	}

	out := make([]schema.Trade, 0, len(order))
	for _, key := range order {
		out = append(out, seen[key])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, warnings
}

// CleanFundingRates validates and dedups funding rate records by
// timestamp, following the same predicate shape as klines minus OHLC.
func (c *Cleaner) CleanFundingRates(raw []schema.FundingRate) ([]schema.FundingRate, []Warning) {
	var warnings []Warning
	seen := make(map[int64]schema.FundingRate, len(raw))
	order := make([]int64, 0, len(raw))

	for i, f := range raw {
		if !validTimestamp(f.Timestamp) {
			warnings = append(warnings, Warning{Index: i, Reason: "timestamp out of accepted range"})
			continue
		}
		if f.MarkPrice < 0 {
			warnings = append(warnings, Warning{Index: i, Reason: "negative mark price"})
			continue
		}
		ts := f.Timestamp.UnixMilli()
		if _, dup := seen[ts]; !dup {
			order = append(order, ts)
		}
		seen[ts] = f
	}

	out := make([]schema.FundingRate, 0, len(order))
	for _, ts := range order {
		out = append(out, seen[ts])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, warnings
}

// CleanOpenInterest validates and dedups open interest samples by
// timestamp.
func (c *Cleaner) CleanOpenInterest(raw []schema.OpenInterest) ([]schema.OpenInterest, []Warning) {
	var warnings []Warning
	seen := make(map[int64]schema.OpenInterest, len(raw))
	order := make([]int64, 0, len(raw))

	for i, o := range raw {
		if !validTimestamp(o.Timestamp) {
			warnings = append(warnings, Warning{Index: i, Reason: "timestamp out of accepted range"})
			continue
		}
		if o.Contracts < 0 || o.Notional < 0 {
			warnings = append(warnings, Warning{Index: i, Reason: "negative open interest"})
			continue
		}
		ts := o.Timestamp.UnixMilli()
		if _, dup := seen[ts]; !dup {
			order = append(order, ts)
		}
		seen[ts] = o
	}

	out := make([]schema.OpenInterest, 0, len(order))
	for _, ts := range order {
		out = append(out, seen[ts])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, warnings
}

// DetectAnomalies flags the indices of klines whose close-to-close move
// relative to the prior close exceeds threshold (default use: 0.5 = 50%).
func (c *Cleaner) DetectAnomalies(klines []schema.Kline, threshold float64) []int {
	var flagged []int
	for i := 1; i < len(klines); i++ {
		prev := klines[i-1].Close
		if prev == 0 {
			continue
		}
		move := math.Abs(klines[i].Close-prev) / prev
		if move > threshold {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// FillMissing inserts flat-price, zero-volume klines at every interval slot
// missing between consecutive real klines, so downstream consumers see a
// contiguous series instead of gaps.
func (c *Cleaner) FillMissing(klines []schema.Kline, interval time.Duration) []schema.Kline {
	if len(klines) < 2 || interval <= 0 {
		return klines
	}

	out := make([]schema.Kline, 0, len(klines))
	out = append(out, klines[0])

	for i := 1; i < len(klines); i++ {
		prev := out[len(out)-1]
		cur := klines[i]

		for t := prev.OpenTime.Add(interval); t.Before(cur.OpenTime); t = t.Add(interval) {
			out = append(out, schema.Kline{
				Venue: prev.Venue, Symbol: prev.Symbol, Interval: prev.Interval,
				OpenTime: t, CloseTime: t.Add(interval),
				Open: prev.Close, High: prev.Close, Low: prev.Close, Close: prev.Close, Volume: 0,
			})
		}
		out = append(out, cur)
	}
	return out
}
