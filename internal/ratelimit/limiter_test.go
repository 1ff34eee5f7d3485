package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowRespectsWindowBudget(t *testing.T) {
	l := New("binance", 1, time.Second)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}

func TestLimiter_WindowRollsLazily(t *testing.T) {
	l := New("binance", 2, 40*time.Millisecond)
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(50 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestLimiter_ThirdAcquireWaitsForWindowRoll(t *testing.T) {
	const window = 100 * time.Millisecond
	start := time.Now()
	l := New("binance", 2, window)
	var wg sync.WaitGroup
	durations := make([]time.Duration, 3)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, l.Wait(context.Background()))
			durations[i] = time.Since(start)
		}(i)
	}
	wg.Wait()

	var immediate, delayed int
	for _, d := range durations {
		if d < window/2 {
			immediate++
		}
		if d >= window {
			delayed++
		}
	}
	// Exactly the window budget completes inside the window; the third
	// suspends until the roll.
	assert.Equal(t, 2, immediate)
	assert.Equal(t, 1, delayed)
}

func TestLimiter_SuspendedCallersAdmittedFIFO(t *testing.T) {
	l := New("binance", 1, 50*time.Millisecond)
	require.NoError(t, l.Wait(context.Background())) // exhaust the window

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, l.Wait(context.Background()))
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}(i)
		time.Sleep(10 * time.Millisecond) // fix arrival order
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestLimiter_NotifyThrottledBlocksAllow(t *testing.T) {
	l := New("binance", 100, time.Second)
	l.NotifyThrottled(50 * time.Millisecond)

	assert.False(t, l.Allow())

	snap := l.Snapshot()
	assert.Equal(t, 1, snap.ConsecutiveThrottles)
	assert.True(t, snap.BackoffUntil.After(time.Now()))
}

func TestLimiter_NotifySucceededResetsThrottleCount(t *testing.T) {
	l := New("binance", 100, time.Second)
	l.NotifyThrottled(0)
	require.Equal(t, 1, l.Snapshot().ConsecutiveThrottles)

	l.NotifySucceeded()
	assert.Equal(t, 0, l.Snapshot().ConsecutiveThrottles)
}

func TestLimiter_WaitHonorsBackoffWindow(t *testing.T) {
	l := New("binance", 100, time.Second)
	l.NotifyThrottled(30 * time.Millisecond)

	start := time.Now()
	err := l.Wait(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
}

func TestLimiter_WaitRespectsContextCancellation(t *testing.T) {
	l := New("binance", 100, time.Second)
	l.NotifyThrottled(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLimiter_WaitFailsFastAfterMaxConsecutiveThrottles(t *testing.T) {
	l := New("binance", 100, time.Second)
	for i := 0; i < 5; i++ {
		l.NotifyThrottled(time.Millisecond)
	}
	time.Sleep(5 * time.Millisecond)

	err := l.Wait(context.Background())
	assert.ErrorIs(t, err, ErrBackoffExhausted)

	// A success resets the budget and Wait admits again.
	l.NotifySucceeded()
	assert.NoError(t, l.Wait(context.Background()))
}

func TestManager_GetRegistersDefaultLimiter(t *testing.T) {
	m := NewManager()
	l := m.Get("kraken")
	require.NotNil(t, l)
	assert.Same(t, l, m.Get("kraken"))
}

func TestManager_Snapshots(t *testing.T) {
	m := NewManager()
	m.Register("binance", 10, time.Second)
	m.Register("okx", 5, time.Second)

	snaps := m.Snapshots()
	assert.Len(t, snaps, 2)
}
