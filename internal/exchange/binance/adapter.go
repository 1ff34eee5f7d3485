// Package binance implements the exchange.Adapter for Binance spot
// trading plus the futures-API historical range fetches the ingestion
// pipeline consumes: guard-wrapped REST calls, HMAC request signing, and a
// streaming session wired through internal/stream.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cryptorun/core/internal/classify"
	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/exchange"
	"github.com/cryptorun/core/internal/reconnect"
	"github.com/cryptorun/core/internal/schema"
	"github.com/cryptorun/core/internal/stream"
)

var restBaseURL = "https://api.binance.com"

const wsBaseURL = "wss://stream.binance.com:9443/ws"

// Credentials holds the API key/secret pair used to sign private REST
// calls and authenticate the private WebSocket stream.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Adapter is the Binance exchange.Adapter implementation.
type Adapter struct {
	*exchange.Base
	creds   Credentials
	bus     *eventbus.Bus
	session *stream.Session
}

// New constructs a Binance adapter. creds may be zero-valued for
// market-data-only usage; order/account methods will fail classification
// with KindAuthentication if called without credentials.
func New(creds Credentials, bus *eventbus.Bus) *Adapter {
	return &Adapter{
		Base:  exchange.NewBase("binance", 20, time.Second, 10*time.Second),
		creds: creds,
		bus:   bus,
	}
}

func (a *Adapter) Name() string { return "binance" }
func (a *Adapter) Venue() string { return "binance" }
func (a *Adapter) SupportsDerivatives() bool { return false }

// NormalizeSymbol maps a generic BASEQUOTE pairing to Binance's symbol
// spelling (BTCUSD becomes BTCUSDT).
func (a *Adapter) NormalizeSymbol(symbol string) string {
	symbol = strings.ToUpper(symbol)
	if strings.HasSuffix(symbol, "USD") && !strings.HasSuffix(symbol, "USDT") {
		return symbol + "T"
	}
	return symbol
}

// NormalizeInterval maps a generic interval spelling ("1min", "1m", "1h")
// onto Binance's kline interval strings.
func (a *Adapter) NormalizeInterval(interval string) string {
	switch interval {
	case "1min", "1m":
		return "1m"
	case "5min", "5m":
		return "5m"
	case "15min", "15m":
		return "15m"
	case "1hour", "1h":
		return "1h"
	case "1day", "1d":
		return "1d"
	default:
		return interval
	}
}

func (a *Adapter) get(ctx context.Context, path string, query url.Values, out any) error {
	return a.getBase(ctx, restBaseURL, path, query, out)
}

func (a *Adapter) getBase(ctx context.Context, base, path string, query url.Values, out any) error {
	reqURL := base + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	_, err := a.Do(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, classify.New(classify.KindNetwork, "binance", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			a.Limiter.NotifyThrottled(0)
			return nil, classify.FromHTTPStatus("binance", resp.StatusCode, fmt.Errorf("rate limited"))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classify.FromHTTPStatus("binance", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, classify.New(classify.KindParse, "binance", err)
		}
		return out, nil
	})
	return err
}

// sign adds a millisecond timestamp to query and appends an HMAC-SHA256
// signature of the encoded query under the API secret, for private REST
// calls.
func (a *Adapter) sign(query url.Values) (url.Values, error) {
	if a.creds.APIKey == "" || a.creds.APISecret == "" {
		return nil, classify.New(classify.KindAuthentication, "binance", fmt.Errorf("missing API credentials"))
	}

	query.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
	mac := hmac.New(sha256.New, []byte(a.creds.APISecret))
	mac.Write([]byte(query.Encode()))
	query.Set("signature", hex.EncodeToString(mac.Sum(nil)))
	return query, nil
}

func (a *Adapter) signedDo(ctx context.Context, method, path string, query url.Values, out any) error {
	signed, err := a.sign(query)
	if err != nil {
		return err
	}

	reqURL := restBaseURL + path
	_, err = a.Do(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, reqURL+"?"+signed.Encode(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("X-MBX-APIKEY", a.creds.APIKey)

		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, classify.New(classify.KindNetwork, "binance", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, classify.FromHTTPStatus("binance", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		if out != nil {
			return out, json.NewDecoder(resp.Body).Decode(out)
		}
		return nil, nil
	})
	return err
}

// FetchMarkets retrieves exchange trading rules and symbol metadata.
func (a *Adapter) FetchMarkets(ctx context.Context) ([]schema.Market, error) {
	var raw struct {
		Symbols []struct {
			Symbol     string `json:"symbol"`
			BaseAsset  string `json:"baseAsset"`
			QuoteAsset string `json:"quoteAsset"`
			Status     string `json:"status"`
		} `json:"symbols"`
	}
	if err := a.get(ctx, "/api/v3/exchangeInfo", nil, &raw); err != nil {
		return nil, err
	}

	markets := make([]schema.Market, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		markets = append(markets, schema.Market{
			Venue: "binance", ID: s.Symbol, Symbol: s.Symbol, Spot: true,
			BaseAsset: s.BaseAsset, QuoteAsset: s.QuoteAsset, Active: s.Status == "TRADING",
		})
	}
	return markets, nil
}

// FetchTicker retrieves the current best bid/ask and last price for symbol.
func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (*schema.Ticker, error) {
	sym := a.NormalizeSymbol(symbol)
	var raw struct {
		Symbol   string `json:"symbol"`
		BidPrice string `json:"bidPrice"`
		AskPrice string `json:"askPrice"`
		LastPrice string `json:"lastPrice"`
		Volume   string `json:"volume"`
	}
	q := url.Values{"symbol": {sym}}
	if err := a.get(ctx, "/api/v3/ticker/24hr", q, &raw); err != nil {
		return nil, err
	}

	return &schema.Ticker{
		Venue: "binance", Symbol: sym,
		Bid: parseFloat(raw.BidPrice), Ask: parseFloat(raw.AskPrice),
		Last: parseFloat(raw.LastPrice), Volume24h: parseFloat(raw.Volume),
		Timestamp: time.Now(),
	}, nil
}

// FetchOrderBook retrieves an L2 snapshot of depth levels per side.
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*schema.OrderBook, error) {
	sym := a.NormalizeSymbol(symbol)
	if depth <= 0 {
		depth = 100
	}
	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	q := url.Values{"symbol": {sym}, "limit": {strconv.Itoa(depth)}}
	if err := a.get(ctx, "/api/v3/depth", q, &raw); err != nil {
		return nil, err
	}

	ob := &schema.OrderBook{Venue: "binance", Symbol: sym, Timestamp: time.Now()}
	for _, lvl := range raw.Bids {
		ob.Bids = append(ob.Bids, schema.PriceLevel{Price: parseFloat(lvl[0]), Size: parseFloat(lvl[1])})
	}
	for _, lvl := range raw.Asks {
		ob.Asks = append(ob.Asks, schema.PriceLevel{Price: parseFloat(lvl[0]), Size: parseFloat(lvl[1])})
	}
	return ob, nil
}

// FetchTrades retrieves the most recent public trades for symbol.
func (a *Adapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error) {
	sym := a.NormalizeSymbol(symbol)
	if limit <= 0 {
		limit = 100
	}
	var raw []struct {
		ID           int64  `json:"id"`
		Price        string `json:"price"`
		Qty          string `json:"qty"`
		Time         int64  `json:"time"`
		IsBuyerMaker bool   `json:"isBuyerMaker"`
	}
	q := url.Values{"symbol": {sym}, "limit": {strconv.Itoa(limit)}}
	if err := a.get(ctx, "/api/v3/trades", q, &raw); err != nil {
		return nil, err
	}

	trades := make([]schema.Trade, 0, len(raw))
	for _, t := range raw {
		side := "buy"
		if t.IsBuyerMaker {
			side = "sell"
		}
		trades = append(trades, schema.Trade{
			Venue: "binance", Symbol: sym, TradeID: strconv.FormatInt(t.ID, 10),
			Price: parseFloat(t.Price), Size: parseFloat(t.Qty), Side: side,
			Timestamp: time.UnixMilli(t.Time),
		})
	}
	return trades, nil
}

// FetchOHLCV retrieves candles for symbol at interval.
func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]schema.Kline, error) {
	sym := a.NormalizeSymbol(symbol)
	intv := a.NormalizeInterval(interval)
	if limit <= 0 {
		limit = 500
	}

	var raw [][]interface{}
	q := url.Values{"symbol": {sym}, "interval": {intv}, "limit": {strconv.Itoa(limit)}}
	if err := a.get(ctx, "/api/v3/klines", q, &raw); err != nil {
		return nil, err
	}

	klines := make([]schema.Kline, 0, len(raw))
	for _, row := range raw {
		k, err := parseKline(sym, intv, row)
		if err != nil {
			continue
		}
		klines = append(klines, k)
	}
	return klines, nil
}

func parseKline(symbol, interval string, row []interface{}) (schema.Kline, error) {
	if len(row) < 7 {
		return schema.Kline{}, fmt.Errorf("malformed kline row")
	}
	openTime, _ := row[0].(float64)
	closeTime, _ := row[6].(float64)
	return schema.Kline{
		Venue: "binance", Symbol: symbol, Interval: interval,
		OpenTime:  time.UnixMilli(int64(openTime)),
		CloseTime: time.UnixMilli(int64(closeTime)),
		Open:      parseFloat(asString(row[1])),
		High:      parseFloat(asString(row[2])),
		Low:       parseFloat(asString(row[3])),
		Close:     parseFloat(asString(row[4])),
		Volume:    parseFloat(asString(row[5])),
	}, nil
}

// FetchFundingRate is not applicable to Binance spot; derivatives are out
// of scope for this adapter (SupportsDerivatives returns false).
func (a *Adapter) FetchFundingRate(ctx context.Context, symbol string) (*schema.FundingRate, error) {
	return nil, classify.New(classify.KindUnknown, "binance", fmt.Errorf("funding rate not supported on spot"))
}

// CreateOrder places a new order via the signed order endpoint.
func (a *Adapter) CreateOrder(ctx context.Context, o schema.Order) (*schema.Order, error) {
	q := url.Values{
		"symbol":   {a.NormalizeSymbol(o.Symbol)},
		"side":     {strings.ToUpper(o.Side)},
		"type":     {strings.ToUpper(o.Type)},
		"quantity": {strconv.FormatFloat(o.Quantity, 'f', -1, 64)},
	}
	if o.Type == "limit" {
		q.Set("price", strconv.FormatFloat(o.Price, 'f', -1, 64))
		q.Set("timeInForce", "GTC")
	}

	var raw struct {
		OrderId       int64  `json:"orderId"`
		Status        string `json:"status"`
		ExecutedQty   string `json:"executedQty"`
	}
	if err := a.signedDo(ctx, http.MethodPost, "/api/v3/order", q, &raw); err != nil {
		return nil, err
	}

	result := o
	result.OrderID = strconv.FormatInt(raw.OrderId, 10)
	result.Status = orderStatus(raw.Status)
	result.Filled = parseFloat(raw.ExecutedQty)
	result.Remaining = result.Quantity - result.Filled
	result.Timestamp = time.Now()
	return &result, nil
}

// CancelOrder cancels a single open order.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}, "orderId": {orderID}}
	return a.signedDo(ctx, http.MethodDelete, "/api/v3/order", q, nil)
}

// CancelAllOrders cancels every open order for symbol.
func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}}
	return a.signedDo(ctx, http.MethodDelete, "/api/v3/openOrders", q, nil)
}

// FetchOrder retrieves one order's current state.
func (a *Adapter) FetchOrder(ctx context.Context, symbol, orderID string) (*schema.Order, error) {
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}, "orderId": {orderID}}
	var raw binanceOrder
	if err := a.signedDo(ctx, http.MethodGet, "/api/v3/order", q, &raw); err != nil {
		return nil, err
	}
	o := raw.toSchema(symbol)
	return &o, nil
}

// FetchOpenOrders retrieves all currently open orders for symbol.
func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}}
	var raw []binanceOrder
	if err := a.signedDo(ctx, http.MethodGet, "/api/v3/openOrders", q, &raw); err != nil {
		return nil, err
	}
	orders := make([]schema.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, o.toSchema(symbol))
	}
	return orders, nil
}

// FetchClosedOrders retrieves the most recent filled/canceled orders.
func (a *Adapter) FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]schema.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}, "limit": {strconv.Itoa(limit)}}
	var raw []binanceOrder
	if err := a.signedDo(ctx, http.MethodGet, "/api/v3/allOrders", q, &raw); err != nil {
		return nil, err
	}
	orders := make([]schema.Order, 0, len(raw))
	for _, o := range raw {
		if o.Status == "FILLED" || o.Status == "CANCELED" {
			orders = append(orders, o.toSchema(symbol))
		}
	}
	return orders, nil
}

// FetchMyTrades retrieves the caller's own executed trades for symbol.
func (a *Adapter) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	q := url.Values{"symbol": {a.NormalizeSymbol(symbol)}, "limit": {strconv.Itoa(limit)}}
	var raw []struct {
		ID       int64  `json:"id"`
		Price    string `json:"price"`
		Qty      string `json:"qty"`
		Time     int64  `json:"time"`
		IsBuyer  bool   `json:"isBuyer"`
	}
	if err := a.signedDo(ctx, http.MethodGet, "/api/v3/myTrades", q, &raw); err != nil {
		return nil, err
	}

	trades := make([]schema.Trade, 0, len(raw))
	for _, t := range raw {
		side := "sell"
		if t.IsBuyer {
			side = "buy"
		}
		trades = append(trades, schema.Trade{
			Venue: "binance", Symbol: a.NormalizeSymbol(symbol), TradeID: strconv.FormatInt(t.ID, 10),
			Price: parseFloat(t.Price), Size: parseFloat(t.Qty), Side: side, Timestamp: time.UnixMilli(t.Time),
		})
	}
	return trades, nil
}

// FetchBalance retrieves spot account balances.
func (a *Adapter) FetchBalance(ctx context.Context) ([]schema.Balance, error) {
	var raw struct {
		Balances []struct {
			Asset  string `json:"asset"`
			Free   string `json:"free"`
			Locked string `json:"locked"`
		} `json:"balances"`
	}
	if err := a.signedDo(ctx, http.MethodGet, "/api/v3/account", url.Values{}, &raw); err != nil {
		return nil, err
	}

	balances := make([]schema.Balance, 0, len(raw.Balances))
	for _, b := range raw.Balances {
		free, locked := parseFloat(b.Free), parseFloat(b.Locked)
		balances = append(balances, schema.Balance{
			Venue: "binance", Asset: b.Asset, Free: free, Locked: locked,
			Total: free + locked, Timestamp: time.Now(),
		})
	}
	return balances, nil
}

// FetchPositions is a no-op for the Binance spot adapter: spot accounts
// carry no leveraged positions.
func (a *Adapter) FetchPositions(ctx context.Context) ([]schema.Position, error) {
	return nil, nil
}

// SetLeverage is unsupported on the spot adapter.
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return classify.New(classify.KindUnknown, "binance", fmt.Errorf("leverage not applicable to spot"))
}

// SubscribePublic opens (or reuses) the streaming session and subscribes to
// a public market-data channel for symbol.
func (a *Adapter) SubscribePublic(ctx context.Context, channel, symbol string) error {
	if a.session == nil {
		a.session = stream.New("binance", wsBaseURL, a.bus, parseStreamFrame, reconnect.New(reconnect.DefaultConfig()))
		go a.session.Run(ctx)
	}
	streamName := fmt.Sprintf("%s@%s", strings.ToLower(a.NormalizeSymbol(symbol)), channel)
	payload, _ := json.Marshal(map[string]any{
		"method": "SUBSCRIBE", "params": []string{streamName}, "id": time.Now().UnixMilli(),
	})
	return a.session.Subscribe(stream.Subscription{Key: channel + "|" + streamName, Topic: channel, Payload: payload})
}

// SubscribePrivate is unsupported: Binance's private user-data stream uses
// a listenKey flow outside this adapter's current scope.
func (a *Adapter) SubscribePrivate(ctx context.Context, channel string) error {
	return classify.New(classify.KindUnknown, "binance", fmt.Errorf("private stream not implemented"))
}

// Unsubscribe is a best-effort no-op; the session does not currently track
// per-channel unsubscribe frames.
func (a *Adapter) Unsubscribe(ctx context.Context, channel, symbol string) error {
	return nil
}

func (a *Adapter) Start(ctx context.Context) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error {
	if a.session != nil {
		return a.session.Close()
	}
	return nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

type binanceOrder struct {
	OrderId            int64  `json:"orderId"`
	Side               string `json:"side"`
	Type               string `json:"type"`
	Status             string `json:"status"`
	Price              string `json:"price"`
	OrigQty            string `json:"origQty"`
	ExecutedQty        string `json:"executedQty"`
	CummulativeQuoteQty string `json:"cummulativeQuoteQty"`
	Time               int64  `json:"time"`
	UpdateTime         int64  `json:"updateTime"`
}

// orderStatus maps Binance's order states onto the unified enum. Unknown
// venue states default to open.
func orderStatus(s string) string {
	switch s {
	case "NEW":
		return "open"
	case "PARTIALLY_FILLED":
		return "partially_filled"
	case "FILLED":
		return "filled"
	case "CANCELED", "PENDING_CANCEL":
		return "canceled"
	case "REJECTED":
		return "rejected"
	case "EXPIRED", "EXPIRED_IN_MATCH":
		return "expired"
	default:
		return "open"
	}
}

// orderType maps Binance's order types onto the unified enum.
func orderType(s string) string {
	switch s {
	case "MARKET":
		return "market"
	case "LIMIT", "LIMIT_MAKER":
		return "limit"
	case "STOP_LOSS":
		return "stop"
	case "STOP_LOSS_LIMIT":
		return "stop_limit"
	case "TAKE_PROFIT":
		return "take_profit"
	case "TAKE_PROFIT_LIMIT":
		return "take_profit_limit"
	case "TRAILING_STOP_MARKET":
		return "trailing_stop"
	default:
		return strings.ToLower(s)
	}
}

func (o binanceOrder) toSchema(symbol string) schema.Order {
	qty := parseFloat(o.OrigQty)
	filled := parseFloat(o.ExecutedQty)
	cost := parseFloat(o.CummulativeQuoteQty)

	out := schema.Order{
		Venue: "binance", Symbol: strings.ToUpper(symbol), OrderID: strconv.FormatInt(o.OrderId, 10),
		Side: strings.ToLower(o.Side), Type: orderType(o.Type), Status: orderStatus(o.Status),
		Price: parseFloat(o.Price), Quantity: qty, Filled: filled,
		Remaining: qty - filled, Cost: cost,
		Timestamp: time.UnixMilli(o.Time),
	}
	if out.Status == "filled" {
		out.Remaining = 0
	}
	if filled > 0 {
		out.Average = cost / filled
	}
	if o.UpdateTime > 0 {
		out.LastUpdate = time.UnixMilli(o.UpdateTime)
	}
	return out
}
