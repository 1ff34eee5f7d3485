// Package ingest drives resumable bulk downloads of historical market data
// series: it expands a plan into per-(venue, symbol, dataType) tasks, runs
// them with bounded concurrency, paginates each task's time range through a
// venue source, cleans every batch, writes it to the columnar store, and
// checkpoints progress after every persisted page so a stopped run resumes
// where it left off.
package ingest

import (
	"context"
	"time"

	"github.com/cryptorun/core/internal/schema"
)

// DataType names one historical series kind a task downloads.
type DataType string

const (
	DataTypeKline        DataType = "kline"
	DataTypeMarkPrice    DataType = "mark_price"
	DataTypeOpenInterest DataType = "open_interest"
	DataTypeFundingRate  DataType = "funding_rate"
	DataTypeAggTrade     DataType = "agg_trade"
)

// Source is the range-fetch capability a venue adapter contributes to the
// pipeline. Each call returns at most one page of records covering
// [start, end); pagination across pages is the orchestrator's job.
type Source interface {
	Venue() string
	FetchKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error)
	FetchMarkKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error)
	FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]schema.FundingRate, error)
	FetchOpenInterestHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]schema.OpenInterest, error)
	FetchAggTrades(ctx context.Context, symbol string, start, end time.Time) ([]schema.Trade, error)
}

// Plan is the configured download: the Cartesian product of Venues x
// Symbols x DataTypes over [StartTime, EndTime).
type Plan struct {
	Venues    []string
	Symbols   []string
	DataTypes []DataType
	StartTime time.Time
	EndTime   time.Time
	Interval  string // kline interval, default "1m"
}

// Task is one expanded unit of the plan.
type Task struct {
	Venue    string
	Symbol   string
	DataType DataType
	Start    time.Time
	End      time.Time
	Interval string
}

// Key returns the checkpoint key components for this task.
func (t Task) Key() (venue, symbol, dataType string) {
	return t.Venue, t.Symbol, string(t.DataType)
}

const (
	klineStep        = time.Minute
	openInterestStep = 5 * time.Minute
	aggTradeWindow   = time.Hour
)

// window returns how much of the time range one fetch covers for this
// task's data type, given the configured per-page record budget.
func (t Task) window(batchSize int) time.Duration {
	switch t.DataType {
	case DataTypeKline, DataTypeMarkPrice:
		return time.Duration(batchSize) * klineStep
	case DataTypeOpenInterest:
		return time.Duration(batchSize) * openInterestStep
	case DataTypeAggTrade:
		return aggTradeWindow
	case DataTypeFundingRate:
		return t.End.Sub(t.Start) // single pass
	default:
		return time.Duration(batchSize) * klineStep
	}
}

// step returns how far past the last persisted record the next page's
// cursor advances. Millisecond-resolution series advance by 1ms so a page
// boundary never skips a record.
func (t Task) step() time.Duration {
	switch t.DataType {
	case DataTypeKline, DataTypeMarkPrice:
		return klineStep
	case DataTypeOpenInterest:
		return openInterestStep
	default:
		return time.Millisecond
	}
}
