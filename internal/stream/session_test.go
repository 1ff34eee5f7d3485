package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/eventbus"
	"github.com/cryptorun/core/internal/reconnect"
)

func echoParser(raw []byte) (eventbus.Event, error) {
	return eventbus.Event{Topic: "echo", Payload: string(raw)}, nil
}

func TestSession_SubscribeReplayAndParse(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan string, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err == nil {
			received <- string(msg)
		}
		conn.WriteMessage(websocket.TextMessage, []byte("hello"))

		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	bus := eventbus.New()
	sub := bus.Subscribe(4, "echo")
	defer sub.Unsubscribe()

	cfg := reconnect.DefaultConfig()
	cfg.BaseDelay = 10 * time.Millisecond
	ctrl := reconnect.New(cfg)

	sess := New("test", wsURL, bus, echoParser, ctrl)
	require.NoError(t, sess.Subscribe(Subscription{Topic: "echo", Payload: []byte("subscribe-me")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sess.Run(ctx)

	select {
	case got := <-received:
		require.Equal(t, "subscribe-me", got)
	case <-time.After(time.Second):
		t.Fatal("server never received subscription replay")
	}

	select {
	case ev := <-sub.C:
		require.Equal(t, "echo", ev.Topic)
		require.Equal(t, "hello", ev.Payload)
	case <-time.After(time.Second):
		t.Fatal("bus never received parsed event")
	}
}

func TestSession_SubscribeDedupsByKey(t *testing.T) {
	bus := eventbus.New()
	sess := New("test", "ws://unused", bus, echoParser, reconnect.New(reconnect.DefaultConfig()))

	require.NoError(t, sess.Subscribe(Subscription{Key: "ticker|BTCUSDT", Topic: "ticker", Payload: []byte("sub-btc")}))
	require.NoError(t, sess.Subscribe(Subscription{Key: "ticker|BTCUSDT", Topic: "ticker", Payload: []byte("sub-btc")}))
	require.NoError(t, sess.Subscribe(Subscription{Key: "kline.1m|ETHUSDT", Topic: "kline", Payload: []byte("sub-eth")}))

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	require.Len(t, sess.subs, 2)
}

func TestSession_SubscribeDerivesKeyFromTopicAndPayload(t *testing.T) {
	bus := eventbus.New()
	sess := New("test", "ws://unused", bus, echoParser, reconnect.New(reconnect.DefaultConfig()))

	require.NoError(t, sess.Subscribe(Subscription{Topic: "ticker", Payload: []byte("sub-btc")}))
	require.NoError(t, sess.Subscribe(Subscription{Topic: "ticker", Payload: []byte("sub-btc")}))
	require.NoError(t, sess.Subscribe(Subscription{Topic: "ticker", Payload: []byte("sub-eth")}))

	sess.mu.RLock()
	defer sess.mu.RUnlock()
	require.Len(t, sess.subs, 2)
}

func TestSession_ReconnectReplaysSubscriptionsAndEmitsLifecycle(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribeFrames := make(chan string, 8)

	// The server drops every connection right after the subscribe frame,
	// forcing the client through its reconnect path.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		_, msg, err := conn.ReadMessage()
		if err == nil {
			subscribeFrames <- string(msg)
		}
		conn.Close()
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	bus := eventbus.New()
	lifecycle := bus.Subscribe(32, TopicConnected, TopicDisconnected, TopicReconnecting, TopicReconnected)
	defer lifecycle.Unsubscribe()

	cfg := reconnect.DefaultConfig()
	cfg.BaseDelay = 10 * time.Millisecond
	sess := New("test", wsURL, bus, echoParser, reconnect.New(cfg))
	require.NoError(t, sess.Subscribe(Subscription{Key: "ticker|BTCUSDT", Topic: "ticker", Payload: []byte("sub-btc")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sess.Run(ctx)

	// Two connections, one subscribe replay each.
	for i := 0; i < 2; i++ {
		select {
		case got := <-subscribeFrames:
			require.Equal(t, "sub-btc", got)
		case <-time.After(time.Second):
			t.Fatalf("connection %d never received the subscription", i)
		}
	}

	seen := map[string]int{}
	deadline := time.After(time.Second)
	for len(seen) < 4 {
		select {
		case ev := <-lifecycle.C:
			seen[ev.Topic]++
			if lc, ok := ev.Payload.(Lifecycle); ok && ev.Topic == TopicReconnected {
				require.Positive(t, lc.Attempt)
			}
		case <-deadline:
			t.Fatalf("missing lifecycle topics, saw %v", seen)
		}
	}
}

func TestSession_AuthFrameSentBeforeSubscriptions(t *testing.T) {
	upgrader := websocket.Upgrader{}
	frames := make(chan string, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		for i := 0; i < 2; i++ {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			frames <- string(msg)
		}
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	sess := New("test", wsURL, eventbus.New(), echoParser, reconnect.New(reconnect.DefaultConfig())).
		WithAuth(func() ([]byte, error) { return []byte("login-frame"), nil })
	require.NoError(t, sess.Subscribe(Subscription{Topic: "orders", Payload: []byte("subscribe-orders")}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go sess.Run(ctx)

	for i, want := range []string{"login-frame", "subscribe-orders"} {
		select {
		case got := <-frames:
			require.Equal(t, want, got, "frame %d", i)
		case <-time.After(time.Second):
			t.Fatalf("frame %d never arrived", i)
		}
	}
}

func TestSession_CloseIsIdempotentWhenNeverConnected(t *testing.T) {
	bus := eventbus.New()
	sess := New("test", "ws://unused", bus, echoParser, reconnect.New(reconnect.DefaultConfig()))
	require.NoError(t, sess.Close())
	require.False(t, sess.Alive())
}
