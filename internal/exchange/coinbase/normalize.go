package coinbase

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
)

// tickerMessage mirrors Coinbase's ticker channel push.
type tickerMessage struct {
	Type      string `json:"type"`
	ProductID string `json:"product_id"`
	Price     string `json:"price"`
	Volume24h string `json:"volume_24h"`
	BestBid   string `json:"best_bid"`
	BestAsk   string `json:"best_ask"`
	Time      string `json:"time"`
}

func parseStreamFrame(raw []byte) (eventbus.Event, error) {
	var msg tickerMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return eventbus.Event{}, fmt.Errorf("unmarshal coinbase frame: %w", err)
	}
	if msg.Type != "ticker" {
		return eventbus.Event{}, fmt.Errorf("unsupported coinbase frame type %q", msg.Type)
	}

	ts, err := time.Parse(time.RFC3339, msg.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	ticker := schema.Ticker{
		Venue:     "coinbase",
		Symbol:    NormalizeSymbol(msg.ProductID),
		Bid:       parseFloat(msg.BestBid),
		Ask:       parseFloat(msg.BestAsk),
		Last:      parseFloat(msg.Price),
		Volume24h: parseFloat(msg.Volume24h),
		Timestamp: ts,
	}
	return eventbus.Event{Topic: "ticker", Payload: ticker}, nil
}
