package schema

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator_ValidateOrder(t *testing.T) {
	v := NewValidator()

	cases := []struct {
		name    string
		order   Order
		wantOK  bool
		wantErr string
	}{
		{
			name: "valid limit order",
			order: Order{
				Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
				Side: "buy", Type: "limit", Status: "open",
				Price: 50000, Quantity: 1, Timestamp: time.Now(),
			},
			wantOK: true,
		},
		{
			name: "invalid side",
			order: Order{
				Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
				Side: "sideways", Type: "limit", Status: "open",
				Quantity: 1, Timestamp: time.Now(),
			},
			wantOK:  false,
			wantErr: "side",
		},
		{
			name: "negative quantity",
			order: Order{
				Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
				Side: "buy", Type: "market", Status: "open",
				Quantity: -1, Timestamp: time.Now(),
			},
			wantOK:  false,
			wantErr: "quantity",
		},
		{
			name: "missing timestamp",
			order: Order{
				Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
				Side: "buy", Type: "market", Status: "open", Quantity: 1,
			},
			wantOK:  false,
			wantErr: "timestamp",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := v.ValidateOrder(tc.order)
			require.Equal(t, tc.wantOK, result.Valid)
			if !tc.wantOK {
				found := false
				for _, e := range result.Errors {
					if e.Field == tc.wantErr {
						found = true
					}
				}
				assert.True(t, found, "expected error on field %q, got %+v", tc.wantErr, result.Errors)
			}
		})
	}
}

func TestValidator_ValidateOrderFullEnums(t *testing.T) {
	v := NewValidator()

	for _, typ := range []string{"market", "limit", "stop", "stop_limit", "take_profit", "take_profit_limit", "trailing_stop"} {
		for _, status := range []string{"pending", "open", "partially_filled", "filled", "canceled", "rejected", "expired"} {
			o := Order{
				Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
				Side: "buy", Type: typ, Status: status,
				Quantity: 2, Filled: 2, Remaining: 0, Timestamp: time.Now(),
			}
			result := v.ValidateOrder(o)
			require.True(t, result.Valid, "type=%s status=%s: %+v", typ, status, result.Errors)
		}
	}
}

func TestValidator_ValidateOrderFilledMustHaveZeroRemaining(t *testing.T) {
	v := NewValidator()
	o := Order{
		Venue: "binance", Symbol: "BTCUSDT", OrderID: "1",
		Side: "buy", Type: "limit", Status: "filled",
		Quantity: 2, Filled: 1.5, Remaining: 0.5, Timestamp: time.Now(),
	}
	result := v.ValidateOrder(o)
	require.False(t, result.Valid)
	assert.Equal(t, "remaining", result.Errors[0].Field)
}

func TestValidator_ValidatePositionMarginMode(t *testing.T) {
	v := NewValidator()
	p := Position{
		Venue: "okx", Symbol: "BTCUSDT", Side: "long",
		Quantity: 1, Contracts: 1, EntryPrice: 50000, MarkPrice: 50100,
		MarginMode: "isolated", Leverage: 5, Notional: 50100, Timestamp: time.Now(),
	}
	require.True(t, v.ValidatePosition(p).Valid)

	p.MarginMode = "portfolio"
	require.False(t, v.ValidatePosition(p).Valid)
}

func TestValidator_ValidateMarketTickSizeConsistency(t *testing.T) {
	v := NewValidator()
	m := Market{
		Venue: "okx", Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT",
		PricePrec: 2, TickSize: 0.01, LotSize: 0.0001,
	}
	require.True(t, v.ValidateMarket(m).Valid)

	m.TickSize = 0.05 // not 10^-2
	result := v.ValidateMarket(m)
	require.False(t, result.Valid)
	assert.Equal(t, "tick_size", result.Errors[0].Field)
}

func TestValidator_ValidateMarketSymbolPattern(t *testing.T) {
	v := NewValidator()

	ok := v.ValidateMarket(Market{Venue: "binance", Symbol: "BTCUSDT", BaseAsset: "BTC", QuoteAsset: "USDT"})
	assert.True(t, ok.Valid)

	bad := v.ValidateMarket(Market{Venue: "binance", Symbol: "btc-usdt", BaseAsset: "BTC", QuoteAsset: "USDT"})
	assert.False(t, bad.Valid)
}

func TestValidator_UnknownSchema(t *testing.T) {
	v := NewValidator()
	result := v.Validate("nonexistent", map[string]interface{}{})
	assert.False(t, result.Valid)
}
