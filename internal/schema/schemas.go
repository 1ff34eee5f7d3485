package schema

import (
	"fmt"
	"math"
)

// builtinSchemas returns the field predicate set for every canonical type,
// registered automatically by NewValidator.
func builtinSchemas() []*Schema {
	return []*Schema{
		{
			Name: "order",
			Fields: map[string]FieldSchema{
				"venue":    {Type: FieldTypeString, Required: true},
				"symbol":   {Type: FieldTypeString, Required: true},
				"order_id": {Type: FieldTypeString, Required: true},
				"side":     {Type: FieldTypeString, Required: true, Enum: []string{"buy", "sell"}},
				"type": {Type: FieldTypeString, Required: true, Enum: []string{
					"market", "limit", "stop", "stop_limit", "take_profit", "take_profit_limit", "trailing_stop",
				}},
				"status": {Type: FieldTypeString, Required: true, Enum: []string{
					"pending", "open", "partially_filled", "filled", "canceled", "rejected", "expired",
				}},
				"price":     {Type: FieldTypeFloat, MinValue: ptr(0)},
				"average":   {Type: FieldTypeFloat, MinValue: ptr(0)},
				"quantity":  {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"filled":    {Type: FieldTypeFloat, MinValue: ptr(0)},
				"remaining": {Type: FieldTypeFloat, MinValue: ptr(0)},
				"cost":      {Type: FieldTypeFloat, MinValue: ptr(0)},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "position",
			Fields: map[string]FieldSchema{
				"venue":       {Type: FieldTypeString, Required: true},
				"symbol":      {Type: FieldTypeString, Required: true},
				"side":        {Type: FieldTypeString, Required: true, Enum: []string{"long", "short"}},
				"quantity":    {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"contracts":   {Type: FieldTypeFloat, MinValue: ptr(0)},
				"entry_price": {Type: FieldTypeFloat, MinValue: ptr(0)},
				"mark_price":  {Type: FieldTypeFloat, MinValue: ptr(0)},
				"margin_mode": {Type: FieldTypeString, Enum: []string{"cross", "isolated"}},
				"leverage":    {Type: FieldTypeFloat, MinValue: ptr(0)},
				"notional":    {Type: FieldTypeFloat, MinValue: ptr(0)},
				"timestamp":   {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "balance",
			Fields: map[string]FieldSchema{
				"venue":     {Type: FieldTypeString, Required: true},
				"asset":     {Type: FieldTypeString, Required: true},
				"free":      {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"locked":    {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"total":     {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "ticker",
			Fields: map[string]FieldSchema{
				"venue":     {Type: FieldTypeString, Required: true},
				"symbol":    {Type: FieldTypeString, Required: true},
				"bid":       {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"ask":       {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"last":      {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "trade",
			Fields: map[string]FieldSchema{
				"venue":     {Type: FieldTypeString, Required: true},
				"symbol":    {Type: FieldTypeString, Required: true},
				"trade_id":  {Type: FieldTypeString, Required: true},
				"price":     {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"size":      {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"side":      {Type: FieldTypeString, Required: true, Enum: []string{"buy", "sell"}},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "kline",
			Fields: map[string]FieldSchema{
				"venue":    {Type: FieldTypeString, Required: true},
				"symbol":   {Type: FieldTypeString, Required: true},
				"interval": {Type: FieldTypeString, Required: true},
				"open":     {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"high":     {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"low":      {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"close":    {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"volume":   {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
			},
		},
		{
			Name: "funding_rate",
			Fields: map[string]FieldSchema{
				"venue":     {Type: FieldTypeString, Required: true},
				"symbol":    {Type: FieldTypeString, Required: true},
				"rate":      {Type: FieldTypeFloat, Required: true, MinValue: ptr(-1), MaxValue: ptr(1)},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "open_interest",
			Fields: map[string]FieldSchema{
				"venue":     {Type: FieldTypeString, Required: true},
				"symbol":    {Type: FieldTypeString, Required: true},
				"contracts": {Type: FieldTypeFloat, Required: true, MinValue: ptr(0)},
				"notional":  {Type: FieldTypeFloat, MinValue: ptr(0)},
				"timestamp": {Type: FieldTypeTimestamp, Required: true},
			},
		},
		{
			Name: "market",
			Fields: map[string]FieldSchema{
				"venue":         {Type: FieldTypeString, Required: true},
				"symbol":        {Type: FieldTypeString, Required: true, Pattern: `^[A-Z0-9]+$`},
				"base_asset":    {Type: FieldTypeString, Required: true},
				"quote_asset":   {Type: FieldTypeString, Required: true},
				"tick_size":     {Type: FieldTypeFloat, MinValue: ptr(0)},
				"lot_size":      {Type: FieldTypeFloat, MinValue: ptr(0)},
				"min_amount":    {Type: FieldTypeFloat, MinValue: ptr(0)},
				"contract_size": {Type: FieldTypeFloat, MinValue: ptr(0)},
			},
		},
	}
}

// ValidateOrder validates o against the registered "order" schema plus the
// fill-accounting invariants no per-field predicate can express.
func (v *Validator) ValidateOrder(o Order) *ValidationResult {
	result := v.Validate("order", map[string]interface{}{
		"venue": o.Venue, "symbol": o.Symbol, "order_id": o.OrderID,
		"side": o.Side, "type": o.Type, "status": o.Status,
		"price": o.Price, "average": o.Average,
		"quantity": o.Quantity, "filled": o.Filled, "remaining": o.Remaining,
		"cost": o.Cost, "timestamp": o.Timestamp,
	})

	if o.Status == "filled" && o.Remaining != 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field: "remaining", Value: o.Remaining, Rule: "consistency",
			Message: "filled order must have zero remaining",
		})
	}
	if o.Fee != nil && o.Fee.Cost < 0 {
		result.Valid = false
		result.Errors = append(result.Errors, ValidationError{
			Field: "fee.cost", Value: o.Fee.Cost, Rule: "min",
			Message: "fee cost must not be negative",
		})
	}
	return result
}

// ValidatePosition validates p against the registered "position" schema.
func (v *Validator) ValidatePosition(p Position) *ValidationResult {
	fields := map[string]interface{}{
		"venue": p.Venue, "symbol": p.Symbol, "side": p.Side,
		"quantity": p.Quantity, "contracts": p.Contracts,
		"entry_price": p.EntryPrice, "mark_price": p.MarkPrice,
		"leverage": p.Leverage, "notional": p.Notional, "timestamp": p.Timestamp,
	}
	if p.MarginMode != "" {
		fields["margin_mode"] = p.MarginMode
	}
	return v.Validate("position", fields)
}

// ValidateBalance validates b against the registered "balance" schema.
func (v *Validator) ValidateBalance(b Balance) *ValidationResult {
	return v.Validate("balance", map[string]interface{}{
		"venue": b.Venue, "asset": b.Asset, "free": b.Free,
		"locked": b.Locked, "total": b.Total, "timestamp": b.Timestamp,
	})
}

// ValidateTicker validates t against the registered "ticker" schema.
func (v *Validator) ValidateTicker(t Ticker) *ValidationResult {
	return v.Validate("ticker", map[string]interface{}{
		"venue": t.Venue, "symbol": t.Symbol, "bid": t.Bid,
		"ask": t.Ask, "last": t.Last, "timestamp": t.Timestamp,
	})
}

// ValidateTrade validates t against the registered "trade" schema.
func (v *Validator) ValidateTrade(t Trade) *ValidationResult {
	return v.Validate("trade", map[string]interface{}{
		"venue": t.Venue, "symbol": t.Symbol, "trade_id": t.TradeID,
		"price": t.Price, "size": t.Size, "side": t.Side, "timestamp": t.Timestamp,
	})
}

// ValidateKline validates k against the registered "kline" schema.
func (v *Validator) ValidateKline(k Kline) *ValidationResult {
	return v.Validate("kline", map[string]interface{}{
		"venue": k.Venue, "symbol": k.Symbol, "interval": k.Interval,
		"open": k.Open, "high": k.High, "low": k.Low, "close": k.Close, "volume": k.Volume,
	})
}

// ValidateFundingRate validates f against the registered "funding_rate" schema.
func (v *Validator) ValidateFundingRate(f FundingRate) *ValidationResult {
	return v.Validate("funding_rate", map[string]interface{}{
		"venue": f.Venue, "symbol": f.Symbol, "rate": f.Rate, "timestamp": f.Timestamp,
	})
}

// ValidateOpenInterest validates o against the registered "open_interest" schema.
func (v *Validator) ValidateOpenInterest(o OpenInterest) *ValidationResult {
	return v.Validate("open_interest", map[string]interface{}{
		"venue": o.Venue, "symbol": o.Symbol, "contracts": o.Contracts,
		"notional": o.Notional, "timestamp": o.Timestamp,
	})
}

// ValidateMarket validates m against the registered "market" schema and
// checks the precision/step consistency invariant: a non-zero TickSize
// must equal 10^-PricePrec.
func (v *Validator) ValidateMarket(m Market) *ValidationResult {
	result := v.Validate("market", map[string]interface{}{
		"venue": m.Venue, "symbol": m.Symbol,
		"base_asset": m.BaseAsset, "quote_asset": m.QuoteAsset,
		"tick_size": m.TickSize, "lot_size": m.LotSize,
		"min_amount": m.MinAmount, "contract_size": m.ContractSize,
	})

	if m.TickSize > 0 {
		want := math.Pow(10, -float64(m.PricePrec))
		if math.Abs(m.TickSize-want)/want > 1e-9 {
			result.Valid = false
			result.Errors = append(result.Errors, ValidationError{
				Field: "tick_size", Value: m.TickSize, Rule: "consistency",
				Message: fmt.Sprintf("tick size %.12g does not match price precision %d (want %.12g)", m.TickSize, m.PricePrec, want),
			})
		}
	}
	return result
}
