// Package stream implements a venue-agnostic WebSocket duplex session:
// dial, authenticate, subscribe, read loop with liveness pings, and
// reconnect-with-replay on disconnect. Venue adapters plug in their own
// message parser and subscription payloads.
package stream

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cryptorun/core/internal/classify"
	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/reconnect"
)

const (
	// PingInterval paces outbound liveness pings.
	PingInterval = 30 * time.Second
	// IdleTimeout kills a connection that has not produced a frame (data or
	// pong) within this window.
	IdleTimeout = 60 * time.Second
	handshakeTimeout = 30 * time.Second
)

// Lifecycle bus topics the session publishes connection transitions under.
const (
	TopicConnected    = "connected"
	TopicDisconnected = "disconnected"
	TopicReconnecting = "reconnecting"
	TopicReconnected  = "reconnected"
)

// Lifecycle is the payload published under every connection-transition
// topic. Attempt is the reconnect attempt number (zero on a first
// connect).
type Lifecycle struct {
	Venue   string
	URL     string
	Attempt int
	Err     error
}

// Subscription describes one channel this session should (re-)subscribe to
// after every successful dial, so a reconnect transparently replays the
// caller's full subscription set. Key is the subscription's uniqueness key
// (channel, symbol, and any parameters); when empty it is derived from
// Topic plus the payload bytes.
type Subscription struct {
	Key     string
	Topic   string // bus topic parsed messages for this subscription publish under
	Payload []byte // venue-native subscribe frame, already marshaled by the adapter
}

func (s Subscription) key() string {
	if s.Key != "" {
		return s.Key
	}
	return s.Topic + "|" + string(s.Payload)
}

// Parser turns one raw venue WebSocket frame into a bus Event. Adapters
// supply this; the session knows nothing about venue wire formats.
type Parser func(raw []byte) (eventbus.Event, error)

// AuthFunc builds the venue's login frame at (re)connect time, so each
// attempt signs a fresh expiry. Only private sessions set one.
type AuthFunc func() ([]byte, error)

// Session owns one WebSocket connection to a venue's public or private
// stream endpoint, including reconnect and subscription replay.
type Session struct {
	venue  string
	url    string
	bus    *eventbus.Bus
	parser Parser
	ctrl   *reconnect.Controller
	auth   AuthFunc

	mu    sync.RWMutex
	conn  *websocket.Conn
	subs  []Subscription
	alive bool
}

// New creates a Session for venue dialing url. Parsed messages are
// published to bus; reconnects are paced by the given reconnect.Controller
// (reconnect.DefaultConfig() is a reasonable default).
func New(venue, url string, bus *eventbus.Bus, parser Parser, ctrl *reconnect.Controller) *Session {
	return &Session{
		venue:  venue,
		url:    url,
		bus:    bus,
		parser: parser,
		ctrl:   ctrl,
	}
}

// WithAuth makes this a private session: the frame auth builds is sent
// after every successful dial, before any subscription is replayed.
func (s *Session) WithAuth(auth AuthFunc) *Session {
	s.auth = auth
	return s
}

// Subscribe registers a subscription to be sent immediately if the session
// is connected, and replayed on every future reconnect. Subscriptions are
// recorded by uniqueness key: re-subscribing an already-registered key
// updates the stored payload without growing the replay set or re-sending
// the frame.
func (s *Session) Subscribe(sub Subscription) error {
	s.mu.Lock()
	for i, existing := range s.subs {
		if existing.key() == sub.key() {
			s.subs[i] = sub
			s.mu.Unlock()
			return nil
		}
	}
	s.subs = append(s.subs, sub)
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		return conn.WriteMessage(websocket.TextMessage, sub.Payload)
	}
	return nil
}

// Run dials the session and blocks, maintaining the connection (including
// reconnects) until ctx is cancelled. Connection transitions are published
// to the bus: connected/disconnected on every establish/loss, plus
// reconnecting(k) before each backoff sleep and reconnected once a redial
// succeeds.
func (s *Session) Run(ctx context.Context) error {
	for {
		if err := s.connectAndServe(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Str("venue", s.venue).Err(err).Msg("stream session disconnected, scheduling reconnect")
			s.publishLifecycle(TopicDisconnected, s.ctrl.Attempts(), err)
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.publishLifecycle(TopicReconnecting, s.ctrl.Attempts()+1, nil)
		if err := s.ctrl.Sleep(ctx); err != nil {
			return err
		}
	}
}

func (s *Session) publishLifecycle(topic string, attempt int, err error) {
	s.bus.Publish(eventbus.Event{Topic: topic, Payload: Lifecycle{
		Venue:   s.venue,
		URL:     s.url,
		Attempt: attempt,
		Err:     err,
	}})
}

func (s *Session) connectAndServe(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		return classify.New(classify.KindWebsocket, s.venue, fmt.Errorf("dial: %w", err))
	}

	s.mu.Lock()
	s.conn = conn
	s.alive = true
	subs := append([]Subscription(nil), s.subs...)
	s.mu.Unlock()

	attempt := s.ctrl.Attempts()
	s.ctrl.ResetAttempts()
	log.Info().Str("venue", s.venue).Str("url", s.url).Msg("stream session connected")

	if s.auth != nil {
		frame, err := s.auth()
		if err != nil {
			conn.Close()
			return classify.New(classify.KindAuthentication, s.venue, fmt.Errorf("build auth frame: %w", err))
		}
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			conn.Close()
			return classify.New(classify.KindWebsocket, s.venue, fmt.Errorf("authenticate: %w", err))
		}
	}

	for _, sub := range subs {
		if err := conn.WriteMessage(websocket.TextMessage, sub.Payload); err != nil {
			conn.Close()
			return classify.New(classify.KindWebsocket, s.venue, fmt.Errorf("resubscribe %s: %w", sub.Topic, err))
		}
	}

	// The session counts as (re)connected only once auth and replay are
	// through; a failure during either takes the reconnect path instead.
	s.publishLifecycle(TopicConnected, attempt, nil)
	if attempt > 0 {
		s.publishLifecycle(TopicReconnected, attempt, nil)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go s.pingLoop(sessionCtx, conn, errCh)
	go s.readLoop(conn, errCh)

	select {
	case <-sessionCtx.Done():
		conn.Close()
		return sessionCtx.Err()
	case err := <-errCh:
		s.mu.Lock()
		s.alive = false
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
		return err
	}
}

func (s *Session) readLoop(conn *websocket.Conn, errCh chan<- error) {
	conn.SetReadDeadline(time.Now().Add(IdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(IdleTimeout))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				errCh <- classify.New(classify.KindWebsocket, s.venue, fmt.Errorf("connection closed: %w", err))
				return
			}
			errCh <- classify.New(classify.KindWebsocket, s.venue, err)
			return
		}

		conn.SetReadDeadline(time.Now().Add(IdleTimeout))

		ev, err := s.parser(raw)
		if err != nil {
			log.Debug().Str("venue", s.venue).Err(err).Msg("failed to parse stream frame")
			continue
		}
		s.bus.Publish(ev)
	}
}

func (s *Session) pingLoop(ctx context.Context, conn *websocket.Conn, errCh chan<- error) {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				errCh <- classify.New(classify.KindWebsocket, s.venue, fmt.Errorf("ping: %w", err))
				return
			}
		}
	}
}

// Alive reports whether the session currently holds a live connection.
func (s *Session) Alive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alive
}

// Close shuts down the active connection, if any; Run will then exit once
// its context is cancelled by the caller.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		err := s.conn.Close()
		s.conn = nil
		s.alive = false
		return err
	}
	return nil
}
