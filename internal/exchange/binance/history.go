package binance

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/cryptorun/core/internal/schema"
)

// Historical range fetches feeding the ingestion pipeline. Spot serves
// klines and the aggregate trade tape; mark-price klines, funding history,
// and open interest come from the futures REST API.
var futuresBaseURL = "https://fapi.binance.com"

func msParam(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// FetchKlinesRange retrieves at most limit klines with open time in
// [start, end).
func (a *Adapter) FetchKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error) {
	sym := a.NormalizeSymbol(symbol)
	intv := a.NormalizeInterval(interval)
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var raw [][]interface{}
	q := url.Values{
		"symbol": {sym}, "interval": {intv},
		"startTime": {msParam(start)}, "endTime": {msParam(end.Add(-time.Millisecond))},
		"limit": {strconv.Itoa(limit)},
	}
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

// FetchMarkKlinesRange retrieves mark-price klines from the futures API
// over the same wire shape as spot klines.
func (a *Adapter) FetchMarkKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time, limit int) ([]schema.Kline, error) {
	sym := a.NormalizeSymbol(symbol)
	intv := a.NormalizeInterval(interval)
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}

	var raw [][]interface{}
	q := url.Values{
		"symbol": {sym}, "interval": {intv},
		"startTime": {msParam(start)}, "endTime": {msParam(end.Add(-time.Millisecond))},
		"limit": {strconv.Itoa(limit)},
	}
	if err := a.getBase(ctx, futuresBaseURL, "/fapi/v1/markPriceKlines", q, &raw); err != nil {
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

// FetchFundingRateHistory retrieves funding rate settlements in
// [start, end).
func (a *Adapter) FetchFundingRateHistory(ctx context.Context, symbol string, start, end time.Time) ([]schema.FundingRate, error) {
	sym := a.NormalizeSymbol(symbol)

	var raw []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
		FundingTime int64  `json:"fundingTime"`
		MarkPrice   string `json:"markPrice"`
	}
	q := url.Values{
		"symbol":    {sym},
		"startTime": {msParam(start)}, "endTime": {msParam(end.Add(-time.Millisecond))},
		"limit": {"1000"},
	}
	if err := a.getBase(ctx, futuresBaseURL, "/fapi/v1/fundingRate", q, &raw); err != nil {
		return nil, err
	}

	rates := make([]schema.FundingRate, 0, len(raw))
	for _, r := range raw {
		rates = append(rates, schema.FundingRate{
			Venue: "binance", Symbol: sym,
			Rate: parseFloat(r.FundingRate), MarkPrice: parseFloat(r.MarkPrice),
			Timestamp: time.UnixMilli(r.FundingTime),
		})
	}
	return rates, nil
}

// FetchOpenInterestHistory retrieves 5-minute open interest samples in
// [start, end).
func (a *Adapter) FetchOpenInterestHistory(ctx context.Context, symbol string, start, end time.Time, limit int) ([]schema.OpenInterest, error) {
	sym := a.NormalizeSymbol(symbol)
	if limit <= 0 || limit > 500 {
		limit = 500
	}

	var raw []struct {
		Symbol               string `json:"symbol"`
		SumOpenInterest      string `json:"sumOpenInterest"`
		SumOpenInterestValue string `json:"sumOpenInterestValue"`
		Timestamp            int64  `json:"timestamp"`
	}
	q := url.Values{
		"symbol": {sym}, "period": {"5m"},
		"startTime": {msParam(start)}, "endTime": {msParam(end.Add(-time.Millisecond))},
		"limit": {strconv.Itoa(limit)},
	}
	if err := a.getBase(ctx, futuresBaseURL, "/futures/data/openInterestHist", q, &raw); err != nil {
		return nil, err
	}

	samples := make([]schema.OpenInterest, 0, len(raw))
	for _, o := range raw {
		samples = append(samples, schema.OpenInterest{
			Venue: "binance", Symbol: sym,
			Contracts: parseFloat(o.SumOpenInterest), Notional: parseFloat(o.SumOpenInterestValue),
			Timestamp: time.UnixMilli(o.Timestamp),
		})
	}
	return samples, nil
}

// FetchAggTrades retrieves the aggregate trade tape in [start, end).
func (a *Adapter) FetchAggTrades(ctx context.Context, symbol string, start, end time.Time) ([]schema.Trade, error) {
	sym := a.NormalizeSymbol(symbol)

	var raw []struct {
		AggTradeID   int64  `json:"a"`
		Price        string `json:"p"`
		Quantity     string `json:"q"`
		Timestamp    int64  `json:"T"`
		IsBuyerMaker bool   `json:"m"`
	}
	q := url.Values{
		"symbol":    {sym},
		"startTime": {msParam(start)}, "endTime": {msParam(end.Add(-time.Millisecond))},
		"limit": {"1000"},
	}
	if err := a.get(ctx, "/api/v3/aggTrades", q, &raw); err != nil {
		return nil, err
	}

	trades := make([]schema.Trade, 0, len(raw))
	for _, t := range raw {
		side := "buy"
		if t.IsBuyerMaker {
			side = "sell"
		}
		trades = append(trades, schema.Trade{
			Venue: "binance", Symbol: sym, TradeID: strconv.FormatInt(t.AggTradeID, 10),
			Price: parseFloat(t.Price), Size: parseFloat(t.Quantity), Side: side,
			Timestamp: time.UnixMilli(t.Timestamp),
		})
	}
	return trades, nil
}
