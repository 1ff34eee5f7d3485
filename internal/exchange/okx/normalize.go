package okx

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/schema"
)

// tickerUpdate mirrors OKX's tickers channel push.
type tickerUpdate struct {
	Arg struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
		AskPx  string `json:"askPx"`
		BidPx  string `json:"bidPx"`
		Vol24h string `json:"vol24h"`
		Ts     string `json:"ts"`
	} `json:"data"`
}

func parseStreamFrame(raw []byte) (eventbus.Event, error) {
	var frame tickerUpdate
	if err := json.Unmarshal(raw, &frame); err != nil {
		return eventbus.Event{}, fmt.Errorf("unmarshal okx frame: %w", err)
	}
	if frame.Arg.Channel != "tickers" || len(frame.Data) == 0 {
		return eventbus.Event{}, fmt.Errorf("unsupported okx frame (channel=%q)", frame.Arg.Channel)
	}

	d := frame.Data[0]
	ts, _ := strconv.ParseInt(d.Ts, 10, 64)
	ticker := schema.Ticker{
		Venue:     "okx",
		Symbol:    NormalizeSymbol(d.InstID),
		Bid:       parseFloat(d.BidPx),
		Ask:       parseFloat(d.AskPx),
		Last:      parseFloat(d.Last),
		Volume24h: parseFloat(d.Vol24h),
		Timestamp: time.UnixMilli(ts),
	}
	return eventbus.Event{Topic: "ticker", Payload: ticker}, nil
}
