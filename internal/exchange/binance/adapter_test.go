package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/classify"
	"github.com/cryptorun/core/internal/eventbus"
)

func TestAdapter_NormalizeSymbol(t *testing.T) {
	a := New(Credentials{}, eventbus.New())
	assert.Equal(t, "BTCUSDT", a.NormalizeSymbol("BTCUSD"))
	assert.Equal(t, "BTCUSDT", a.NormalizeSymbol("btcusdt"))
}

func TestAdapter_NormalizeInterval(t *testing.T) {
	a := New(Credentials{}, eventbus.New())
	assert.Equal(t, "1m", a.NormalizeInterval("1min"))
	assert.Equal(t, "1h", a.NormalizeInterval("1h"))
	assert.Equal(t, "unknown", a.NormalizeInterval("unknown"))
}

func TestAdapter_SignRequiresCredentials(t *testing.T) {
	a := New(Credentials{}, eventbus.New())
	_, err := a.sign(nil)
	require.Error(t, err)
	assert.False(t, classify.IsRetryable(err))

	a2 := New(Credentials{APIKey: "k", APISecret: "s"}, eventbus.New())
	q, err := a2.sign(map[string][]string{})
	require.NoError(t, err)
	assert.NotEmpty(t, q.Get("signature"))
	assert.NotEmpty(t, q.Get("timestamp"))
}

func TestAdapter_FetchTickerAgainstFakeServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/24hr", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"symbol": "BTCUSDT", "bidPrice": "50000.1", "askPrice": "50000.5",
			"lastPrice": "50000.3", "volume": "123.45",
		})
	}))
	defer server.Close()

	original := restBaseURL
	restBaseURL = server.URL
	t.Cleanup(func() { restBaseURL = original })

	a := New(Credentials{}, eventbus.New())
	ticker, err := a.FetchTicker(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 50000.1, ticker.Bid)
	assert.Equal(t, 50000.5, ticker.Ask)
}

func TestParseStreamFrame_RejectsNonTickerEvents(t *testing.T) {
	_, err := parseStreamFrame([]byte(`{"e":"depthUpdate","s":"BTCUSDT"}`))
	assert.Error(t, err)
}

func TestParseStreamFrame_ParsesTicker(t *testing.T) {
	ev, err := parseStreamFrame([]byte(`{"e":"24hrTicker","s":"BTCUSDT","b":"1","a":"2","c":"1.5","v":"10","E":1000}`))
	require.NoError(t, err)
	assert.Equal(t, "ticker", ev.Topic)
}
