// Package store persists cleaned historical market data series into a
// columnar sink. The canonical backend is ClickHouse with one
// ReplacingMergeTree(version) table per data type, so a resumed ingestion
// run re-inserting an overlapping range converges to a single row per
// primary key at merge/read time instead of duplicating data. A memory
// backend with the same version-collapse semantics backs tests.
package store

import (
	"context"

	"github.com/cryptorun/core/internal/schema"
)

// Store is the sink the ingestion orchestrator writes cleaned batches to.
// Mark-price klines go to their own table since they share the Kline shape
// but not the series identity.
type Store interface {
	InsertKlines(ctx context.Context, klines []schema.Kline) error
	InsertMarkKlines(ctx context.Context, klines []schema.Kline) error
	InsertTrades(ctx context.Context, trades []schema.Trade) error
	InsertFundingRates(ctx context.Context, rates []schema.FundingRate) error
	InsertOpenInterest(ctx context.Context, samples []schema.OpenInterest) error
	Close() error
}
