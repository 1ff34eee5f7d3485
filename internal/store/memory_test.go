package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/schema"
)

func kline(ts int64, close float64) schema.Kline {
	return schema.Kline{
		Venue: "binance", Symbol: "BTCUSDT", Interval: "1m",
		OpenTime: time.UnixMilli(ts), CloseTime: time.UnixMilli(ts + 60_000),
		Open: close, High: close, Low: close, Close: close, Volume: 1,
	}
}

func TestMemoryStoreCollapsesByKey(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.InsertKlines(ctx, []schema.Kline{kline(1000, 10), kline(2000, 11)}))
	require.Equal(t, 2, s.KlineCount())

	// Re-inserting the same keys behaves like a versioned merge: the row
	// count stays stable and the newer write wins.
	require.NoError(t, s.InsertKlines(ctx, []schema.Kline{kline(1000, 12)}))
	require.Equal(t, 2, s.KlineCount())
	require.Equal(t, 2, s.WriteCount())
}

func TestMemoryStoreTradesKeyIncludesID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ts := time.UnixMilli(5000)
	trades := []schema.Trade{
		{Venue: "binance", Symbol: "BTCUSDT", TradeID: "1", Price: 10, Size: 1, Side: "buy", Timestamp: ts},
		{Venue: "binance", Symbol: "BTCUSDT", TradeID: "2", Price: 10, Size: 1, Side: "sell", Timestamp: ts},
	}
	require.NoError(t, s.InsertTrades(ctx, trades))

	// Two trades in the same millisecond stay distinct rows.
	require.Equal(t, 2, s.TradeCount())
}
