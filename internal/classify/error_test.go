package classify

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status   int
		wantKind Kind
		retry    bool
	}{
		{401, KindAuthentication, false},
		{403, KindAuthentication, false},
		{404, KindOrderNotFound, false},
		{429, KindRateLimit, true},
		{500, KindExchange, true},
		{503, KindExchange, true},
		{400, KindInvalidOrder, false},
		{422, KindInvalidOrder, false},
		{418, KindUnknown, false},
	}

	for _, tc := range cases {
		err := FromHTTPStatus("binance", tc.status, errors.New("boom"))
		var ce *ClassifiedError
		assert.True(t, errors.As(err, &ce))
		assert.Equal(t, tc.wantKind, ce.Kind)
		assert.Equal(t, tc.retry, ce.Retryable)
	}
}

func TestIsRetryableAndRetryAfter(t *testing.T) {
	base := errors.New("rate limited")
	wrapped := New(KindRateLimit, "binance", base).WithRetry(2 * time.Second)

	assert.True(t, IsRetryable(wrapped))
	assert.Equal(t, 2*time.Second, RetryAfter(wrapped))

	plain := errors.New("plain")
	assert.False(t, IsRetryable(plain))
	assert.Equal(t, time.Duration(0), RetryAfter(plain))
}

func TestWithSymbolAndOrderID(t *testing.T) {
	err := New(KindInvalidOrder, "kraken", errors.New("bad qty")).WithSymbol("BTCUSD").WithOrderID("abc123")

	var ce *ClassifiedError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "BTCUSD", ce.Symbol)
	assert.Equal(t, "abc123", ce.OrderID)
	assert.ErrorIs(t, err, ce.Err)
}

func TestErrorMessageIncludesVenueAndKind(t *testing.T) {
	err := New(KindNetwork, "okx", errors.New("timeout"))
	assert.Contains(t, err.Error(), "okx")
	assert.Contains(t, err.Error(), string(KindNetwork))
}
