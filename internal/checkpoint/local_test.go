package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStore_SaveGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	c := Checkpoint{Venue: "binance", Symbol: "BTC/USDT", DataType: "kline", LastTimestamp: 100, UpdatedAt: 1, Status: StatusRunning}
	require.NoError(t, store.Save(ctx, c))

	got, err := store.Get(ctx, "binance", "BTC/USDT", "kline")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(100), got.LastTimestamp)
}

func TestLocalStore_SaveRejectsOlderUpdatedAt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, Checkpoint{Venue: "binance", Symbol: "BTCUSDT", DataType: "kline", LastTimestamp: 200, UpdatedAt: 10}))
	require.NoError(t, store.Save(ctx, Checkpoint{Venue: "binance", Symbol: "BTCUSDT", DataType: "kline", LastTimestamp: 50, UpdatedAt: 5}))

	got, err := store.Get(ctx, "binance", "BTCUSDT", "kline")
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.LastTimestamp)
}

func TestLocalStore_ReloadsFromDiskOnRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store1, err := NewLocalStore(dir)
	require.NoError(t, err)
	require.NoError(t, store1.Save(ctx, Checkpoint{Venue: "kraken", Symbol: "BTC/USD", DataType: "agg_trade", LastTimestamp: 42, UpdatedAt: 1}))

	store2, err := NewLocalStore(dir)
	require.NoError(t, err)
	got, err := store2.Get(ctx, "kraken", "BTC/USD", "agg_trade")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(42), got.LastTimestamp)
}

func TestLocalStore_Delete(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, Checkpoint{Venue: "okx", Symbol: "BTCUSDT", DataType: "kline", UpdatedAt: 1}))
	require.NoError(t, store.Delete(ctx, "okx", "BTCUSDT", "kline"))

	got, err := store.Get(ctx, "okx", "BTCUSDT", "kline")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFilename_ReplacesSlashAndColon(t *testing.T) {
	assert.Equal(t, "binance_BTC_USDT_kline.json", filename("binance", "BTC/USDT", "kline"))
	assert.Equal(t, "okx_BTC_USDT_SWAP_funding_rate.json", filename("okx", "BTC:USDT:SWAP", "funding_rate"))
}
