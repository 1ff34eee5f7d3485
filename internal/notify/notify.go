// Package notify fans a fired alert out to every configured delivery
// channel whose minimum severity admits it. Channels are independent: one
// channel failing never blocks the others, and the notifier itself never
// retries — retry policy belongs to the caller.
package notify

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/cryptorun/core/internal/alert"
)

// Channel is one delivery transport (console, webhook, telegram, email,
// group bot). Send must be safe to call concurrently.
type Channel interface {
	Name() string
	MinLevel() alert.Level
	Send(ctx context.Context, a *alert.Alert) error
}

// Notifier dispatches alerts to its channels in parallel and collects
// per-channel outcomes.
type Notifier struct {
	mu       sync.RWMutex
	channels []Channel
}

// New creates a Notifier over the given channels.
func New(channels ...Channel) *Notifier {
	return &Notifier{channels: channels}
}

// AddChannel registers an additional channel at runtime.
func (n *Notifier) AddChannel(c Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, c)
}

// Send attempts delivery on every channel whose MinLevel <= a.Level and
// returns the per-channel outcome (nil = delivered). Channels below the
// severity gate are absent from the result.
func (n *Notifier) Send(ctx context.Context, a *alert.Alert) map[string]error {
	n.mu.RLock()
	channels := append([]Channel(nil), n.channels...)
	n.mu.RUnlock()

	results := make(map[string]error, len(channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, c := range channels {
		if a.Level < c.MinLevel() {
			continue
		}

		wg.Add(1)
		go func(c Channel) {
			defer wg.Done()
			err := c.Send(ctx, a)
			if err != nil {
				log.Warn().Str("channel", c.Name()).Str("alert_id", a.ID).Err(err).Msg("alert delivery failed")
			}
			mu.Lock()
			results[c.Name()] = err
			mu.Unlock()
		}(c)
	}

	wg.Wait()
	return results
}
