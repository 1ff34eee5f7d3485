package clean

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/schema"
)

func kline(ts time.Time, open, high, low, close, volume float64) schema.Kline {
	return schema.Kline{Venue: "binance", Symbol: "BTCUSDT", Interval: "1m", OpenTime: ts, Open: open, High: high, Low: low, Close: close, Volume: volume}
}

func TestCleanKlines_DropsInvalidOHLC(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	raw := []schema.Kline{
		kline(base, 100, 110, 90, 105, 10),
		kline(base.Add(time.Minute), 100, 90, 110, 105, 10), // low > open, invalid
		kline(base.Add(2*time.Minute), -5, 10, -10, 5, 10),  // negative open
	}

	cleaned, warnings := c.CleanKlines(raw)
	require.Len(t, cleaned, 1)
	assert.Len(t, warnings, 2)
}

func TestCleanKlines_DedupsByTimestampAndSorts(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	raw := []schema.Kline{
		kline(base.Add(time.Minute), 100, 110, 90, 105, 10),
		kline(base, 99, 109, 89, 104, 9),
		kline(base, 100, 111, 90, 106, 11), // duplicate timestamp, should win (last write wins)
	}

	cleaned, _ := c.CleanKlines(raw)
	require.Len(t, cleaned, 2)
	assert.True(t, cleaned[0].OpenTime.Before(cleaned[1].OpenTime))
	assert.Equal(t, 106.0, cleaned[0].Close)
}

func TestCleanKlines_RejectsOutOfRangeTimestamp(t *testing.T) {
	c := New()
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	cleaned, warnings := c.CleanKlines([]schema.Kline{kline(old, 1, 2, 0.5, 1.5, 1)})
	assert.Empty(t, cleaned)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "timestamp")
}

func TestDetectAnomalies_FlagsLargeMoves(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := []schema.Kline{
		kline(base, 100, 100, 100, 100, 1),
		kline(base.Add(time.Minute), 100, 100, 100, 101, 1),
		kline(base.Add(2*time.Minute), 100, 300, 100, 200, 1), // +98% move
	}

	flagged := c.DetectAnomalies(klines, 0.5)
	assert.Equal(t, []int{2}, flagged)
}

func TestFillMissing_InsertsFlatCandles(t *testing.T) {
	c := New()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	klines := []schema.Kline{
		kline(base, 100, 100, 100, 100, 1),
		kline(base.Add(3*time.Minute), 110, 110, 110, 110, 1),
	}

	filled := c.FillMissing(klines, time.Minute)
	require.Len(t, filled, 4)
	assert.Equal(t, 100.0, filled[1].Close)
	assert.Equal(t, 0.0, filled[1].Volume)
	assert.Equal(t, 110.0, filled[3].Close)
}

func TestCleanTrades_DedupsByIDAndTimestamp(t *testing.T) {
	c := New()
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := []schema.Trade{
		{Venue: "binance", Symbol: "BTCUSDT", TradeID: "1", Price: 100, Size: 1, Side: "buy", Timestamp: ts},
		{Venue: "binance", Symbol: "BTCUSDT", TradeID: "1", Price: 100, Size: 1, Side: "buy", Timestamp: ts},
		{Venue: "binance", Symbol: "BTCUSDT", TradeID: "2", Price: -1, Size: 1, Side: "buy", Timestamp: ts},
	}

	cleaned, warnings := c.CleanTrades(raw)
	assert.Len(t, cleaned, 1)
	assert.Len(t, warnings, 1)
}
