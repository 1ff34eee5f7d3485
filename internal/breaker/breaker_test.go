package breaker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/classify"
)

func TestBreaker_TripsOnConsecutiveFailures(t *testing.T) {
	b := New("binance")
	failing := func() (any, error) { return nil, errors.New("boom") }

	for i := 0; i < 3; i++ {
		_, err := b.Execute(failing)
		assert.Error(t, err)
	}

	assert.Equal(t, "open", b.State())

	_, err := b.Execute(func() (any, error) { return "ok", nil })
	require.Error(t, err)
	var ce *classify.ClassifiedError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, classify.KindExchange, ce.Kind)
}

func TestBreaker_StaysClosedOnSuccess(t *testing.T) {
	b := New("kraken")
	for i := 0; i < 5; i++ {
		_, err := b.Execute(func() (any, error) { return "ok", nil })
		require.NoError(t, err)
	}
	assert.Equal(t, "closed", b.State())
}

func TestRegistry_GetIsIdempotentPerVenue(t *testing.T) {
	r := NewRegistry()
	b1 := r.Get("okx")
	b2 := r.Get("okx")
	assert.Same(t, b1, b2)

	states := r.States()
	assert.Contains(t, states, "okx")
	assert.Equal(t, "closed", states["okx"])
}
