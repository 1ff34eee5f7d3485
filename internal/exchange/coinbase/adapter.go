// Package coinbase implements the exchange.Adapter for Coinbase Exchange
// spot trading, sharing the adapter skeleton every venue uses.
package coinbase

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
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

const (
	restBaseURL = "https://api.exchange.coinbase.com"
	wsBaseURL   = "wss://ws-feed.exchange.coinbase.com"
)

// Credentials holds Coinbase Exchange's key/secret/passphrase triple.
type Credentials struct {
	APIKey     string
	APISecret  string // base64-encoded
	Passphrase string
}

// Adapter is the Coinbase exchange.Adapter implementation.
type Adapter struct {
	*exchange.Base
	creds   Credentials
	bus     *eventbus.Bus
	session *stream.Session
}

// New constructs a Coinbase adapter at Coinbase's public rate limit (~10 rps).
func New(creds Credentials, bus *eventbus.Bus) *Adapter {
	return &Adapter{
		Base:  exchange.NewBase("coinbase", 10, time.Second, 10*time.Second),
		creds: creds,
		bus:   bus,
	}
}

func (a *Adapter) Name() string              { return "coinbase" }
func (a *Adapter) Venue() string             { return "coinbase" }
func (a *Adapter) SupportsDerivatives() bool { return false }

// NormalizeSymbol converts Coinbase's hyphenated product ID (BTC-USD) to
// the canonical concatenated form (BTCUSD).
func NormalizeSymbol(productID string) string {
	return strings.Replace(productID, "-", "", 1)
}

// toProductID converts a canonical symbol back to Coinbase's hyphenated
// product ID, assuming a USD quote when no separator is present.
func toProductID(symbol string) string {
	if strings.Contains(symbol, "-") {
		return symbol
	}
	for _, quote := range []string{"USDT", "USDC", "USD", "EUR", "GBP"} {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			return symbol[:len(symbol)-len(quote)] + "-" + quote
		}
	}
	return symbol
}

func (a *Adapter) signedHeaders(method, path, body string) (http.Header, error) {
	if a.creds.APIKey == "" || a.creds.APISecret == "" || a.creds.Passphrase == "" {
		return nil, classify.New(classify.KindAuthentication, "coinbase", fmt.Errorf("missing API credentials"))
	}
	secret, err := base64.StdEncoding.DecodeString(a.creds.APISecret)
	if err != nil {
		return nil, classify.New(classify.KindAuthentication, "coinbase", fmt.Errorf("invalid secret encoding: %w", err))
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	prehash := ts + method + path + body

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(prehash))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	h := http.Header{}
	h.Set("CB-ACCESS-KEY", a.creds.APIKey)
	h.Set("CB-ACCESS-SIGN", sig)
	h.Set("CB-ACCESS-TIMESTAMP", ts)
	h.Set("CB-ACCESS-PASSPHRASE", a.creds.Passphrase)
	h.Set("Content-Type", "application/json")
	return h, nil
}

func (a *Adapter) request(ctx context.Context, method, path string, query url.Values, body any, signed bool, out any) error {
	reqPath := path
	if len(query) > 0 {
		reqPath += "?" + query.Encode()
	}

	var bodyStr string
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyStr = string(b)
	}

	_, err := a.Do(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, restBaseURL+reqPath, strings.NewReader(bodyStr))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		if signed {
			headers, err := a.signedHeaders(method, reqPath, bodyStr)
			if err != nil {
				return nil, err
			}
			for k, v := range headers {
				req.Header[k] = v
			}
		}

		resp, err := a.Client.Do(req)
		if err != nil {
			return nil, classify.New(classify.KindNetwork, "coinbase", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests {
			a.Limiter.NotifyThrottled(0)
			return nil, classify.FromHTTPStatus("coinbase", resp.StatusCode, fmt.Errorf("rate limited"))
		}
		if resp.StatusCode != http.StatusOK {
			return nil, classify.FromHTTPStatus("coinbase", resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode))
		}
		if out == nil {
			return nil, nil
		}
		return out, json.NewDecoder(resp.Body).Decode(out)
	})
	return err
}

type coinbaseProduct struct {
	ID             string `json:"id"`
	BaseCurrency   string `json:"base_currency"`
	QuoteCurrency  string `json:"quote_currency"`
	BaseIncrement  string `json:"base_increment"`
	QuoteIncrement string `json:"quote_increment"`
	MinMarketFunds string `json:"min_market_funds"`
	TradingDisabled bool  `json:"trading_disabled"`
}

// FetchMarkets retrieves tradable products.
func (a *Adapter) FetchMarkets(ctx context.Context) ([]schema.Market, error) {
	var raw []coinbaseProduct
	if err := a.request(ctx, http.MethodGet, "/products", nil, nil, false, &raw); err != nil {
		return nil, err
	}
	markets := make([]schema.Market, 0, len(raw))
	for _, p := range raw {
		markets = append(markets, schema.Market{
			Venue: "coinbase", Symbol: NormalizeSymbol(p.ID), BaseAsset: p.BaseCurrency, QuoteAsset: p.QuoteCurrency,
			PricePrec: precisionFromIncrement(p.QuoteIncrement), QuantityPrec: precisionFromIncrement(p.BaseIncrement),
			MinNotional: parseFloat(p.MinMarketFunds), Active: !p.TradingDisabled,
		})
	}
	return markets, nil
}

// FetchTicker retrieves the current ticker for symbol.
func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (*schema.Ticker, error) {
	var raw struct {
		Price  string `json:"price"`
		Bid    string `json:"bid"`
		Ask    string `json:"ask"`
		Volume string `json:"volume"`
		Time   string `json:"time"`
	}
	path := fmt.Sprintf("/products/%s/ticker", toProductID(symbol))
	if err := a.request(ctx, http.MethodGet, path, nil, nil, false, &raw); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339, raw.Time)
	if err != nil {
		ts = time.Now()
	}
	return &schema.Ticker{
		Venue: "coinbase", Symbol: symbol, Bid: parseFloat(raw.Bid), Ask: parseFloat(raw.Ask),
		Last: parseFloat(raw.Price), Volume24h: parseFloat(raw.Volume), Timestamp: ts,
	}, nil
}

// FetchOrderBook retrieves an L2 order book snapshot.
func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (*schema.OrderBook, error) {
	level := "2"
	if depth > 50 {
		level = "3"
	}
	var raw struct {
		Bids [][]interface{} `json:"bids"`
		Asks [][]interface{} `json:"asks"`
	}
	path := fmt.Sprintf("/products/%s/book", toProductID(symbol))
	q := url.Values{"level": {level}}
	if err := a.request(ctx, http.MethodGet, path, q, nil, false, &raw); err != nil {
		return nil, err
	}

	ob := &schema.OrderBook{Venue: "coinbase", Symbol: symbol, Timestamp: time.Now()}
	for _, lvl := range raw.Bids {
		ob.Bids = append(ob.Bids, toPriceLevel(lvl))
	}
	for _, lvl := range raw.Asks {
		ob.Asks = append(ob.Asks, toPriceLevel(lvl))
	}
	if depth > 0 {
		if len(ob.Bids) > depth {
			ob.Bids = ob.Bids[:depth]
		}
		if len(ob.Asks) > depth {
			ob.Asks = ob.Asks[:depth]
		}
	}
	return ob, nil
}

// FetchTrades retrieves recent public trades.
func (a *Adapter) FetchTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error) {
	var raw []struct {
		TradeID int64  `json:"trade_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		Time    string `json:"time"`
	}
	path := fmt.Sprintf("/products/%s/trades", toProductID(symbol))
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := a.request(ctx, http.MethodGet, path, q, nil, false, &raw); err != nil {
		return nil, err
	}
	trades := make([]schema.Trade, 0, len(raw))
	for _, t := range raw {
		ts, _ := time.Parse(time.RFC3339, t.Time)
		side := "buy"
		if t.Side == "sell" {
			side = "sell"
		}
		trades = append(trades, schema.Trade{
			Venue: "coinbase", Symbol: symbol, TradeID: strconv.FormatInt(t.TradeID, 10),
			Price: parseFloat(t.Price), Size: parseFloat(t.Size), Side: side, Timestamp: ts,
		})
	}
	return trades, nil
}

// FetchOHLCV retrieves candles for symbol.
func (a *Adapter) FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]schema.Kline, error) {
	var raw [][]float64
	path := fmt.Sprintf("/products/%s/candles", toProductID(symbol))
	q := url.Values{"granularity": {strconv.Itoa(coinbaseGranularity(interval))}}
	if err := a.request(ctx, http.MethodGet, path, q, nil, false, &raw); err != nil {
		return nil, err
	}
	klines := make([]schema.Kline, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		// [ time, low, high, open, close, volume ]
		klines = append(klines, schema.Kline{
			Venue: "coinbase", Symbol: symbol, Interval: interval, OpenTime: time.Unix(int64(row[0]), 0),
			Low: row[1], High: row[2], Open: row[3], Close: row[4], Volume: row[5],
		})
	}
	if limit > 0 && len(klines) > limit {
		klines = klines[:limit]
	}
	return klines, nil
}

// FetchFundingRate is unsupported: Coinbase Exchange spot carries no
// perpetual funding.
func (a *Adapter) FetchFundingRate(ctx context.Context, symbol string) (*schema.FundingRate, error) {
	return nil, classify.New(classify.KindUnknown, "coinbase", fmt.Errorf("funding rate not supported on spot"))
}

// CreateOrder places a new order.
func (a *Adapter) CreateOrder(ctx context.Context, o schema.Order) (*schema.Order, error) {
	body := map[string]any{
		"product_id": toProductID(o.Symbol), "side": o.Side, "type": o.Type,
		"size": strconv.FormatFloat(o.Quantity, 'f', -1, 64),
	}
	if o.Type == "limit" {
		body["price"] = strconv.FormatFloat(o.Price, 'f', -1, 64)
	}

	var raw struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := a.request(ctx, http.MethodPost, "/orders", nil, body, true, &raw); err != nil {
		return nil, err
	}

	result := o
	result.OrderID = raw.ID
	result.Status = raw.Status
	result.Timestamp = time.Now()
	return &result, nil
}

// CancelOrder cancels a single order.
func (a *Adapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return a.request(ctx, http.MethodDelete, "/orders/"+orderID, nil, nil, true, nil)
}

// CancelAllOrders cancels every open order, optionally filtered by symbol.
func (a *Adapter) CancelAllOrders(ctx context.Context, symbol string) error {
	q := url.Values{}
	if symbol != "" {
		q.Set("product_id", toProductID(symbol))
	}
	return a.request(ctx, http.MethodDelete, "/orders", q, nil, true, nil)
}

type coinbaseOrderInfo struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Side       string `json:"side"`
	Type       string `json:"type"`
	Status     string `json:"status"`
	Price      string `json:"price"`
	Size       string `json:"size"`
	FilledSize string `json:"filled_size"`
	CreatedAt  string `json:"created_at"`
}

// coinbaseStatus maps Coinbase's order states onto the unified enum.
// Unknown venue states default to open.
func coinbaseStatus(s string) string {
	switch s {
	case "pending":
		return "pending"
	case "open", "active":
		return "open"
	case "done":
		return "filled"
	case "rejected":
		return "rejected"
	default:
		return "open"
	}
}

func (o coinbaseOrderInfo) toSchema() schema.Order {
	ts, _ := time.Parse(time.RFC3339, o.CreatedAt)
	qty := parseFloat(o.Size)
	filled := parseFloat(o.FilledSize)

	out := schema.Order{
		Venue: "coinbase", Symbol: NormalizeSymbol(o.ProductID), OrderID: o.ID,
		Side: o.Side, Type: o.Type, Status: coinbaseStatus(o.Status),
		Price: parseFloat(o.Price), Quantity: qty, Filled: filled, Remaining: qty - filled,
		Timestamp: ts,
	}
	if out.Status == "filled" {
		out.Remaining = 0
	}
	return out
}

// FetchOrder retrieves one order's current state.
func (a *Adapter) FetchOrder(ctx context.Context, symbol, orderID string) (*schema.Order, error) {
	var raw coinbaseOrderInfo
	if err := a.request(ctx, http.MethodGet, "/orders/"+orderID, nil, nil, true, &raw); err != nil {
		return nil, err
	}
	if raw.ID == "" {
		return nil, classify.New(classify.KindOrderNotFound, "coinbase", fmt.Errorf("order %s not found", orderID))
	}
	o := raw.toSchema()
	return &o, nil
}

// FetchOpenOrders retrieves all open orders, optionally filtered by symbol.
func (a *Adapter) FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error) {
	var raw []coinbaseOrderInfo
	q := url.Values{"status": {"open"}}
	if symbol != "" {
		q.Set("product_id", toProductID(symbol))
	}
	if err := a.request(ctx, http.MethodGet, "/orders", q, nil, true, &raw); err != nil {
		return nil, err
	}
	orders := make([]schema.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, o.toSchema())
	}
	return orders, nil
}

// FetchClosedOrders retrieves recently filled/canceled orders.
func (a *Adapter) FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]schema.Order, error) {
	var raw []coinbaseOrderInfo
	q := url.Values{"status": {"done"}}
	if symbol != "" {
		q.Set("product_id", toProductID(symbol))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := a.request(ctx, http.MethodGet, "/orders", q, nil, true, &raw); err != nil {
		return nil, err
	}
	orders := make([]schema.Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, o.toSchema())
	}
	return orders, nil
}

// FetchMyTrades retrieves the caller's own fill history.
func (a *Adapter) FetchMyTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error) {
	var raw []struct {
		TradeID   int64  `json:"trade_id"`
		ProductID string `json:"product_id"`
		Price     string `json:"price"`
		Size      string `json:"size"`
		Side      string `json:"side"`
		CreatedAt string `json:"created_at"`
	}
	q := url.Values{}
	if symbol != "" {
		q.Set("product_id", toProductID(symbol))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if err := a.request(ctx, http.MethodGet, "/fills", q, nil, true, &raw); err != nil {
		return nil, err
	}
	trades := make([]schema.Trade, 0, len(raw))
	for _, t := range raw {
		ts, _ := time.Parse(time.RFC3339, t.CreatedAt)
		trades = append(trades, schema.Trade{
			Venue: "coinbase", Symbol: NormalizeSymbol(t.ProductID), TradeID: strconv.FormatInt(t.TradeID, 10),
			Price: parseFloat(t.Price), Size: parseFloat(t.Size), Side: t.Side, Timestamp: ts,
		})
	}
	return trades, nil
}

// FetchBalance retrieves account balances.
func (a *Adapter) FetchBalance(ctx context.Context) ([]schema.Balance, error) {
	var raw []struct {
		Currency  string `json:"currency"`
		Balance   string `json:"balance"`
		Available string `json:"available"`
		Hold      string `json:"hold"`
	}
	if err := a.request(ctx, http.MethodGet, "/accounts", nil, nil, true, &raw); err != nil {
		return nil, err
	}
	balances := make([]schema.Balance, 0, len(raw))
	for _, acc := range raw {
		balances = append(balances, schema.Balance{
			Venue: "coinbase", Asset: acc.Currency, Free: parseFloat(acc.Available),
			Locked: parseFloat(acc.Hold), Total: parseFloat(acc.Balance), Timestamp: time.Now(),
		})
	}
	return balances, nil
}

// FetchPositions is a no-op: Coinbase Exchange spot carries no leveraged
// positions.
func (a *Adapter) FetchPositions(ctx context.Context) ([]schema.Position, error) {
	return nil, nil
}

// SetLeverage is unsupported on the spot adapter.
func (a *Adapter) SetLeverage(ctx context.Context, symbol string, leverage float64) error {
	return classify.New(classify.KindUnknown, "coinbase", fmt.Errorf("leverage not applicable to spot"))
}

// SubscribePublic subscribes to a public channel for symbol.
func (a *Adapter) SubscribePublic(ctx context.Context, channel, symbol string) error {
	if a.session == nil {
		a.session = stream.New("coinbase", wsBaseURL, a.bus, parseStreamFrame, reconnect.New(reconnect.DefaultConfig()))
		go a.session.Run(ctx)
	}

	productID := toProductID(symbol)
	payload, _ := json.Marshal(map[string]any{
		"type":        "subscribe",
		"product_ids": []string{productID},
		"channels":    []string{channel},
	})
	return a.session.Subscribe(stream.Subscription{Key: channel + "|" + productID, Topic: channel, Payload: payload})
}

// SubscribePrivate is unsupported: Coinbase's authenticated channel requires
// a signed subscribe frame this adapter does not currently construct.
func (a *Adapter) SubscribePrivate(ctx context.Context, channel string) error {
	return classify.New(classify.KindUnknown, "coinbase", fmt.Errorf("private stream not implemented"))
}

// Unsubscribe is a best-effort no-op.
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

func coinbaseGranularity(interval string) int {
	switch interval {
	case "1m":
		return 60
	case "5m":
		return 300
	case "15m":
		return 900
	case "1h":
		return 3600
	case "1d":
		return 86400
	default:
		return 60
	}
}

func precisionFromIncrement(inc string) int {
	idx := strings.IndexByte(inc, '.')
	if idx < 0 {
		return 0
	}
	trimmed := strings.TrimRight(inc[idx+1:], "0")
	return len(trimmed)
}

func toPriceLevel(row []interface{}) schema.PriceLevel {
	if len(row) < 2 {
		return schema.PriceLevel{}
	}
	return schema.PriceLevel{Price: parseFloat(asString(row[0])), Size: parseFloat(asString(row[1]))}
}

func asString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
