package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/cryptorun/core/internal/schema"
)

// Table DDL is declarative: every table is created on first run if absent.
// Kline-shaped and low-volume series partition by month; the aggregate
// trade tape partitions by day and carries trade_id in its sort key so two
// trades sharing a millisecond stay distinct rows.
var tableDDLs = []string{
	`CREATE TABLE IF NOT EXISTS klines (
		exchange  LowCardinality(String),
		symbol    LowCardinality(String),
		open_time DateTime64(3, 'UTC'),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64,
		version   UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(open_time)
	ORDER BY (exchange, symbol, open_time)`,

	`CREATE TABLE IF NOT EXISTS mark_klines (
		exchange  LowCardinality(String),
		symbol    LowCardinality(String),
		open_time DateTime64(3, 'UTC'),
		open      Float64,
		high      Float64,
		low       Float64,
		close     Float64,
		volume    Float64,
		version   UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(open_time)
	ORDER BY (exchange, symbol, open_time)`,

	`CREATE TABLE IF NOT EXISTS funding_rates (
		exchange     LowCardinality(String),
		symbol       LowCardinality(String),
		funding_time DateTime64(3, 'UTC'),
		rate         Float64,
		mark_price   Float64,
		version      UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(funding_time)
	ORDER BY (exchange, symbol, funding_time)`,

	`CREATE TABLE IF NOT EXISTS open_interest (
		exchange  LowCardinality(String),
		symbol    LowCardinality(String),
		sample_time DateTime64(3, 'UTC'),
		contracts Float64,
		notional  Float64,
		version   UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMM(sample_time)
	ORDER BY (exchange, symbol, sample_time)`,

	`CREATE TABLE IF NOT EXISTS agg_trades (
		exchange   LowCardinality(String),
		symbol     LowCardinality(String),
		trade_time DateTime64(3, 'UTC'),
		trade_id   String,
		price      Float64,
		quantity   Float64,
		side       LowCardinality(String),
		version    UInt64
	)
	ENGINE = ReplacingMergeTree(version)
	PARTITION BY toYYYYMMDD(trade_time)
	ORDER BY (exchange, symbol, trade_time, trade_id)`,
}

// ClickHouseStore writes versioned rows into the per-dataType tables.
// version = wall-clock ms at write time, so a later re-ingestion of the
// same key supersedes the earlier row when the merge engine collapses.
type ClickHouseStore struct {
	conn driver.Conn
}

// Options configures the ClickHouse connection.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseStore dials the server and ensures every data table exists.
func NewClickHouseStore(ctx context.Context, opts Options) (*ClickHouseStore, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	for _, ddl := range tableDDLs {
		if err := conn.Exec(ctx, ddl); err != nil {
			return nil, fmt.Errorf("create data table: %w", err)
		}
	}
	return &ClickHouseStore{conn: conn}, nil
}

func (s *ClickHouseStore) insertKlines(ctx context.Context, table string, klines []schema.Kline) error {
	if len(klines) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+table)
	if err != nil {
		return fmt.Errorf("prepare %s batch: %w", table, err)
	}

	version := uint64(time.Now().UnixMilli())
	for _, k := range klines {
		if err := batch.Append(k.Venue, k.Symbol, k.OpenTime, k.Open, k.High, k.Low, k.Close, k.Volume, version); err != nil {
			return fmt.Errorf("append %s row: %w", table, err)
		}
	}
	return batch.Send()
}

// InsertKlines writes one cleaned kline batch under a single write version.
func (s *ClickHouseStore) InsertKlines(ctx context.Context, klines []schema.Kline) error {
	return s.insertKlines(ctx, "klines", klines)
}

// InsertMarkKlines writes mark-price klines to their dedicated table.
func (s *ClickHouseStore) InsertMarkKlines(ctx context.Context, klines []schema.Kline) error {
	return s.insertKlines(ctx, "mark_klines", klines)
}

// InsertTrades writes aggregate trades; trade_id participates in the sort
// key so millisecond collisions remain distinct rows.
func (s *ClickHouseStore) InsertTrades(ctx context.Context, trades []schema.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO agg_trades")
	if err != nil {
		return fmt.Errorf("prepare agg_trades batch: %w", err)
	}

	version := uint64(time.Now().UnixMilli())
	for _, t := range trades {
		if err := batch.Append(t.Venue, t.Symbol, t.Timestamp, t.TradeID, t.Price, t.Size, t.Side, version); err != nil {
			return fmt.Errorf("append agg_trades row: %w", err)
		}
	}
	return batch.Send()
}

// InsertFundingRates writes funding rate observations.
func (s *ClickHouseStore) InsertFundingRates(ctx context.Context, rates []schema.FundingRate) error {
	if len(rates) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO funding_rates")
	if err != nil {
		return fmt.Errorf("prepare funding_rates batch: %w", err)
	}

	version := uint64(time.Now().UnixMilli())
	for _, r := range rates {
		if err := batch.Append(r.Venue, r.Symbol, r.Timestamp, r.Rate, r.MarkPrice, version); err != nil {
			return fmt.Errorf("append funding_rates row: %w", err)
		}
	}
	return batch.Send()
}

// InsertOpenInterest writes open interest samples.
func (s *ClickHouseStore) InsertOpenInterest(ctx context.Context, samples []schema.OpenInterest) error {
	if len(samples) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO open_interest")
	if err != nil {
		return fmt.Errorf("prepare open_interest batch: %w", err)
	}

	version := uint64(time.Now().UnixMilli())
	for _, o := range samples {
		if err := batch.Append(o.Venue, o.Symbol, o.Timestamp, o.Contracts, o.Notional, version); err != nil {
			return fmt.Errorf("append open_interest row: %w", err)
		}
	}
	return batch.Send()
}

// Close releases the underlying connection pool.
func (s *ClickHouseStore) Close() error {
	return s.conn.Close()
}
