// Package breaker wraps venue REST calls in a github.com/sony/gobreaker
// circuit breaker, independent from the per-venue rate limiter: the
// limiter paces well-behaved traffic, the breaker stops calling a venue
// that is structurally down.
package breaker

import (
	"sync"
	"time"

	cb "github.com/sony/gobreaker"

	"github.com/cryptorun/core/internal/classify"
)

// Breaker trips on three consecutive failures, or on a failure ratio above
// 5% once at least 20 requests have been observed in the rolling interval.
type Breaker struct {
	name string
	cb   *cb.CircuitBreaker
}

// New constructs a Breaker for the named venue with the standard thresholds.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{name: name, cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn through the breaker. When the breaker is open it returns
// a ClassifiedError immediately, without fn ever reaching the wire and
// without consuming a rate-limiter token.
func (b *Breaker) Execute(fn func() (any, error)) (any, error) {
	result, err := b.cb.Execute(fn)
	if err == cb.ErrOpenState || err == cb.ErrTooManyRequests {
		return nil, classify.New(classify.KindExchange, b.name, err)
	}
	return result, err
}

// Open reports whether the breaker currently rejects calls outright.
func (b *Breaker) Open() bool {
	return b.cb.State() == cb.StateOpen
}

// State returns the breaker's current state as the lowercase string used
// by health reporting ("closed", "open", "half-open").
func (b *Breaker) State() string {
	switch b.cb.State() {
	case cb.StateOpen:
		return "open"
	case cb.StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Registry owns one Breaker per venue so adapters sharing a process share
// the same trip state.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
}

// NewRegistry creates an empty venue-keyed breaker registry.
func NewRegistry() *Registry {
	return &Registry{breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for venue, creating one with default thresholds
// on first use.
func (r *Registry) Get(venue string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[venue]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[venue]; ok {
		return b
	}
	b = New(venue)
	r.breakers[venue] = b
	return b
}

// States returns the current state of every registered breaker, keyed by
// venue, for the health scheduler's aggregation pass.
func (r *Registry) States() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.breakers))
	for venue, b := range r.breakers {
		out[venue] = b.State()
	}
	return out
}
