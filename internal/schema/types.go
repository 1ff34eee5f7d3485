// Package schema defines the unified canonical domain types every venue
// adapter normalizes into, plus a runtime validator enforcing each type's
// field constraints: field-predicate checks plus enum membership tests,
// registered once per canonical type.
package schema

import "time"

// Fee is the fee charged for an order or fill, in Currency units.
type Fee struct {
	Cost     float64
	Currency string
}

// Order is the canonical representation of a venue order, independent of
// venue-native field names or enum spellings.
type Order struct {
	Venue      string
	Symbol     string
	OrderID    string
	ClientID   string
	Side       string // "buy" | "sell"
	Type       string // "market" | "limit" | "stop" | "stop_limit" | "take_profit" | "take_profit_limit" | "trailing_stop"
	Status     string // "pending" | "open" | "partially_filled" | "filled" | "canceled" | "rejected" | "expired"
	Price      float64 // zero for market orders
	Average    float64 // volume-weighted fill price, zero until filled
	Quantity   float64
	Filled     float64
	Remaining  float64
	Cost       float64 // filled quantity in quote currency
	Fee        *Fee
	Timestamp  time.Time
	LastUpdate time.Time
}

// Position is the canonical derivatives position representation. Quantity
// and Contracts are absolute; direction lives in Side.
type Position struct {
	Venue            string
	Symbol           string
	Side             string // "long" | "short"
	Quantity         float64
	Contracts        float64
	EntryPrice       float64
	MarkPrice        float64
	LiquidationPrice float64 // zero when the venue reports none
	UnrealizedPnL    float64
	RealizedPnL      float64
	MarginMode       string // "cross" | "isolated"
	Leverage         float64
	Margin           float64
	Notional         float64
	Timestamp        time.Time
}

// Balance is the canonical account balance line for one asset.
type Balance struct {
	Venue     string
	Asset     string
	Free      float64
	Locked    float64
	Total     float64
	Timestamp time.Time
}

// Ticker is the canonical best-bid/ask + last-trade summary for a symbol.
type Ticker struct {
	Venue     string
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Volume24h float64
	Timestamp time.Time
}

// PriceLevel is one level of an order book side.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is the canonical L2 order book snapshot or delta.
type OrderBook struct {
	Venue     string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Trade is a single canonical executed trade (public tape, not a fill).
type Trade struct {
	Venue     string
	Symbol    string
	TradeID   string
	Price     float64
	Size      float64
	Side      string // "buy" | "sell"
	Timestamp time.Time
}

// Kline is a canonical OHLCV candle.
type Kline struct {
	Venue     string
	Symbol    string
	Interval  string
	OpenTime  time.Time
	CloseTime time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// FundingRate is a canonical perpetual funding rate observation.
type FundingRate struct {
	Venue       string
	Symbol      string
	Rate        float64
	NextFunding time.Time
	MarkPrice   float64
	Timestamp   time.Time
}

// OpenInterest is a canonical open-interest observation for a derivatives
// symbol, sampled at a fixed cadence by the ingestion pipeline.
type OpenInterest struct {
	Venue     string
	Symbol    string
	Contracts float64
	Notional  float64
	Timestamp time.Time
}

// Market describes one tradable instrument's static metadata. TickSize and
// LotSize are the venue's price/amount step sizes; TickSize must equal
// 10^-PricePrec.
type Market struct {
	Venue        string
	ID           string // venue-native instrument id
	Symbol       string
	BaseAsset    string
	QuoteAsset   string
	SettleAsset  string // derivatives only
	Spot         bool
	Swap         bool
	Future       bool
	Option       bool
	Active       bool
	PricePrec    int
	QuantityPrec int
	TickSize     float64
	LotSize      float64
	MinAmount    float64
	MinNotional  float64
	ContractSize float64 // derivatives only
	MakerFee     float64
	TakerFee     float64
}
