package kraken

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
)

// tickerData is the data element of Kraken's array-encoded ticker push
// [channelID, data, "ticker", pair]; the third element identifies the
// channel name.
type tickerData struct {
	Ask []string `json:"a"`
	Bid []string `json:"b"`
	C   []string `json:"c"`
	V   []string `json:"v"`
}

// parseStreamFrame parses one raw Kraken WebSocket frame into a bus event.
// Kraken sends both object frames (subscription acks, heartbeats) and array
// frames (actual channel data); only ticker array frames are recognized.
func parseStreamFrame(raw []byte) (eventbus.Event, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return eventbus.Event{}, fmt.Errorf("non-array kraken frame (likely control message): %w", err)
	}
	if len(arr) < 4 {
		return eventbus.Event{}, fmt.Errorf("malformed kraken frame: want 4 elements, got %d", len(arr))
	}

	var channelName string
	if err := json.Unmarshal(arr[2], &channelName); err != nil || channelName != "ticker" {
		return eventbus.Event{}, fmt.Errorf("unsupported kraken channel %q", channelName)
	}

	var pair string
	_ = json.Unmarshal(arr[3], &pair)

	var data tickerData
	if err := json.Unmarshal(arr[1], &data); err != nil {
		return eventbus.Event{}, fmt.Errorf("unmarshal kraken ticker data: %w", err)
	}

	ticker := schema.Ticker{
		Venue:     "kraken",
		Symbol:    NormalizePair(pair),
		Bid:       parseFloat(first(data.Bid)),
		Ask:       parseFloat(first(data.Ask)),
		Last:      parseFloat(first(data.C)),
		Volume24h: parseFloat(second(data.V)),
		Timestamp: time.Now(),
	}
	return eventbus.Event{Topic: "ticker", Payload: ticker}, nil
}
