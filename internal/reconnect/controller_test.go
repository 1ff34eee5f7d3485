package reconnect

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_NextDelayGrowsAndCaps(t *testing.T) {
	c := New(Config{BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond, JitterFrac: 0})

	d0 := c.NextDelay()
	d1 := c.NextDelay()
	d2 := c.NextDelay()
	d3 := c.NextDelay()

	assert.Equal(t, 10*time.Millisecond, d0)
	assert.Equal(t, 20*time.Millisecond, d1)
	assert.Equal(t, 40*time.Millisecond, d2)
	assert.Equal(t, 80*time.Millisecond, d3)

	// further attempts must cap at MaxDelay
	for i := 0; i < 5; i++ {
		d := c.NextDelay()
		assert.LessOrEqual(t, d, 100*time.Millisecond)
	}
}

func TestController_ResetAttempts(t *testing.T) {
	c := New(Config{BaseDelay: 10 * time.Millisecond, MaxDelay: time.Second, JitterFrac: 0})
	c.NextDelay()
	c.NextDelay()
	c.ResetAttempts()

	d := c.NextDelay()
	assert.Equal(t, 10*time.Millisecond, d)
}

func TestController_TriggerCoalesces(t *testing.T) {
	c := New(DefaultConfig())
	c.Trigger()
	c.Trigger()
	c.Trigger()

	select {
	case <-c.Triggered():
	default:
		t.Fatal("expected a pending trigger")
	}

	select {
	case <-c.Triggered():
		t.Fatal("expected only one coalesced trigger")
	default:
	}
}

func TestController_SleepRespectsContext(t *testing.T) {
	c := New(Config{BaseDelay: time.Minute, MaxDelay: time.Minute, JitterFrac: 0})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := c.Sleep(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
