// Package exchange defines the venue adapter interface every concrete
// exchange client (binance, kraken, okx, coinbase) implements, plus the
// shared base wiring (rate limiting, circuit breaking, health tracking)
// common to all of them.
package exchange

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cryptorun/core/internal/breaker"
	"github.com/cryptorun/core/internal/classify"
	"github.com/cryptorun/core/internal/ratelimit"
	"github.com/cryptorun/core/internal/schema"
)

// Adapter is the venue-agnostic surface every exchange client implements.
// Methods return canonical schema types; venue-native payloads never
// escape the adapter.
type Adapter interface {
	Name() string
	Venue() string
	SupportsDerivatives() bool

	// Market data
	FetchMarkets(ctx context.Context) ([]schema.Market, error)
	FetchTicker(ctx context.Context, symbol string) (*schema.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (*schema.OrderBook, error)
	FetchTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error)
	FetchOHLCV(ctx context.Context, symbol, interval string, limit int) ([]schema.Kline, error)

	// Derivatives data
	FetchFundingRate(ctx context.Context, symbol string) (*schema.FundingRate, error)

	// Order management (requires authenticated credentials)
	CreateOrder(ctx context.Context, o schema.Order) (*schema.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	FetchOrder(ctx context.Context, symbol, orderID string) (*schema.Order, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]schema.Order, error)
	FetchClosedOrders(ctx context.Context, symbol string, limit int) ([]schema.Order, error)
	FetchMyTrades(ctx context.Context, symbol string, limit int) ([]schema.Trade, error)

	// Account
	FetchBalance(ctx context.Context) ([]schema.Balance, error)
	FetchPositions(ctx context.Context) ([]schema.Position, error)
	SetLeverage(ctx context.Context, symbol string, leverage float64) error

	// Streaming
	SubscribePublic(ctx context.Context, channel, symbol string) error
	SubscribePrivate(ctx context.Context, channel string) error
	Unsubscribe(ctx context.Context, channel, symbol string) error

	// Health and lifecycle
	Health() Health
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Health reports one adapter's operational status, consumed by the health
// scheduler and exported as gauges.
type Health struct {
	Venue        string
	Healthy      bool
	CircuitState string
	LastError    string
	LastCheck    time.Time
	LatencyMS    float64
}

// Stats tracks running request/error/latency counters shared by every
// venue adapter.
type Stats struct {
	mu            sync.Mutex
	requestCount  int64
	errorCount    int64
	lastErrorTime time.Time
	lastErr       error
	avgLatency    time.Duration
}

// Record updates the running stats after one REST call completed in
// latency with the given error (nil on success).
func (s *Stats) Record(latency time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requestCount++
	if err != nil {
		s.errorCount++
		s.lastErrorTime = time.Now()
		s.lastErr = err
	}

	if s.avgLatency == 0 {
		s.avgLatency = latency
	} else {
		s.avgLatency = (s.avgLatency*9 + latency) / 10
	}
}

// Snapshot returns a point-in-time copy of the stats under lock.
func (s *Stats) Snapshot() (requestCount, errorCount int64, lastErr error, lastErrorTime time.Time, avgLatency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestCount, s.errorCount, s.lastErr, s.lastErrorTime, s.avgLatency
}

// Base bundles the rate limiter, circuit breaker, HTTP client, and health
// stats shared by every REST-based adapter, so concrete adapters only need
// to implement venue-specific request construction and response parsing.
type Base struct {
	VenueName string
	Client    *http.Client
	Limiter   *ratelimit.Limiter
	Breaker   *breaker.Breaker
	Stats     Stats
}

// NewBase constructs a Base wired with a rate limiter admitting
// maxRequests per window and a circuit breaker with standard thresholds.
func NewBase(venue string, maxRequests int, window, timeout time.Duration) *Base {
	return &Base{
		VenueName: venue,
		Client:    &http.Client{Timeout: timeout},
		Limiter:   ratelimit.New(venue, maxRequests, window),
		Breaker:   breaker.New(venue),
	}
}

// Do runs fn (a single REST call) behind the circuit breaker and rate
// limiter, recording latency/error stats. Breaker and limiter rejections
// come back as classified errors; an error from fn is returned as fn
// produced it. fn should perform exactly one HTTP round trip. An open breaker
// fails the call before the limiter is consulted: a request that never
// reaches the wire must not consume an admission slot.
func (b *Base) Do(ctx context.Context, fn func() (any, error)) (any, error) {
	if b.Breaker.Open() {
		return nil, classify.New(classify.KindExchange, b.VenueName, errors.New("circuit breaker open"))
	}

	if err := b.Limiter.Wait(ctx); err != nil {
		if errors.Is(err, ratelimit.ErrBackoffExhausted) {
			return nil, classify.New(classify.KindRateLimit, b.VenueName, err)
		}
		return nil, classify.New(classify.KindNetwork, b.VenueName, err)
	}

	start := time.Now()
	result, err := b.Breaker.Execute(fn)
	latency := time.Since(start)
	b.Stats.Record(latency, err)

	if err == nil {
		b.Limiter.NotifySucceeded()
	}

	return result, err
}

// Health computes a graded health status from the stats' error rate and
// how recently errors were observed.
func (b *Base) Health() Health {
	requestCount, errorCount, lastErr, lastErrorTime, avgLatency := b.Stats.Snapshot()

	healthy := true
	if requestCount > 0 {
		errorRate := float64(errorCount) / float64(requestCount)
		staleness := time.Since(lastErrorTime)
		if errorRate > 0.5 || (lastErr != nil && staleness < 15*time.Minute && errorRate > 0.1) {
			healthy = false
		}
	}

	lastErrStr := ""
	if lastErr != nil {
		lastErrStr = lastErr.Error()
	}

	return Health{
		Venue:        b.VenueName,
		Healthy:      healthy,
		CircuitState: b.Breaker.State(),
		LastError:    lastErrStr,
		LastCheck:    time.Now(),
		LatencyMS:    float64(avgLatency.Microseconds()) / 1000.0,
	}
}
