package binance

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
)

// tickerFrame mirrors Binance's 24hrTicker WebSocket payload.
type tickerFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	BidPrice  string `json:"b"`
	AskPrice  string `json:"a"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
	EventTime int64  `json:"E"`
}

// parseStreamFrame parses one raw Binance WebSocket frame into a bus event.
// Only ticker frames are recognized today; unrecognized event types are
// reported as parse errors so the session can log and skip them.
func parseStreamFrame(raw []byte) (eventbus.Event, error) {
	var frame tickerFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return eventbus.Event{}, fmt.Errorf("unmarshal binance frame: %w", err)
	}
	if frame.EventType != "24hrTicker" {
		return eventbus.Event{}, fmt.Errorf("unsupported binance event type %q", frame.EventType)
	}

	ticker := schema.Ticker{
		Venue:     "binance",
		Symbol:    frame.Symbol,
		Bid:       parseFloat(frame.BidPrice),
		Ask:       parseFloat(frame.AskPrice),
		Last:      parseFloat(frame.LastPrice),
		Timestamp: time.UnixMilli(frame.EventTime),
	}
	return eventbus.Event{Topic: "ticker", Payload: ticker}, nil
}
