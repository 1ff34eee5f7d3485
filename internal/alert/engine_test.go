package alert

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFireDeduplicatesWithinWindow(t *testing.T) {
	e := New(time.Minute, 100)

	first := e.Fire("conn_lost", LevelWarning, "stream disconnected", "binance public stream dropped", "stream", nil)
	second := e.Fire("conn_lost", LevelWarning, "stream disconnected", "binance public stream dropped", "stream", nil)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, e.List(), 1)
}

func TestFireDifferentFingerprintsAreIndependent(t *testing.T) {
	e := New(time.Minute, 100)

	a := e.Fire("conn_lost", LevelWarning, "stream disconnected", "", "stream", nil)
	b := e.Fire("conn_lost", LevelCritical, "stream disconnected", "", "stream", nil)

	require.NotEqual(t, a.ID, b.ID)
	require.Len(t, e.List(), 2)
}

func TestGradedFireEscalatesOnly(t *testing.T) {
	e := New(time.Millisecond, 100) // window small enough to never dedup here
	thresholds := []float64{0.40, 0.35, 0.30}

	fire := func(v float64) *Alert {
		a := e.GradedFire("margin:acct1", thresholds, v, "margin_ratio", "margin ratio low", "margin dropped", "monitor")
		time.Sleep(2 * time.Millisecond)
		return a
	}

	require.Nil(t, fire(0.50))    // above every threshold
	a1 := fire(0.39)              // below one threshold
	require.NotNil(t, a1)
	require.Equal(t, LevelWarning, a1.Level)

	a2 := fire(0.34) // below two
	require.NotNil(t, a2)
	require.Equal(t, LevelCritical, a2.Level)

	a3 := fire(0.29) // below all three
	require.NotNil(t, a3)
	require.Equal(t, LevelEmergency, a3.Level)

	require.Nil(t, fire(0.25)) // still level 3, no escalation
	require.Nil(t, fire(0.34)) // partial recovery is not an escalation

	require.Nil(t, fire(0.41)) // full recovery clears the tracker

	a4 := fire(0.39) // fresh breach fires level 1 again
	require.NotNil(t, a4)
	require.Equal(t, LevelWarning, a4.Level)
}

func TestLifecycleTransitions(t *testing.T) {
	e := New(time.Minute, 100)
	a := e.Fire("disk_full", LevelCritical, "disk nearly full", "", "host", nil)

	require.NoError(t, e.Ack(a.ID))
	got, ok := e.Get(a.ID)
	require.True(t, ok)
	require.Equal(t, StatusAcknowledged, got.Status)
	require.NotNil(t, got.AcknowledgedAt)

	require.NoError(t, e.Resolve(a.ID))
	got, _ = e.Get(a.ID)
	require.Equal(t, StatusResolved, got.Status)
	require.NotNil(t, got.ResolvedAt)

	require.Error(t, e.Ack("no-such-id"))
}

func TestSilenceExpiryRevivesAlert(t *testing.T) {
	e := New(time.Minute, 100)
	a := e.Fire("flaky_feed", LevelWarning, "feed flapping", "", "stream", nil)

	require.NoError(t, e.Silence(a.ID, time.Millisecond))
	got, _ := e.Get(a.ID)
	require.Equal(t, StatusSilenced, got.Status)

	time.Sleep(5 * time.Millisecond)
	revived := e.SweepSilenced()
	require.Len(t, revived, 1)

	got, _ = e.Get(a.ID)
	require.Equal(t, StatusActive, got.Status)
	require.Nil(t, got.SilencedUntil)
}

func TestEvictionDropsOldestResolvedOnly(t *testing.T) {
	e := New(time.Nanosecond, 3)

	a1 := e.Fire("t1", LevelInfo, "one", "", "s", nil)
	time.Sleep(time.Millisecond)
	require.NoError(t, e.Resolve(a1.ID))

	e.Fire("t2", LevelInfo, "two", "", "s", nil)
	time.Sleep(time.Millisecond)
	e.Fire("t3", LevelInfo, "three", "", "s", nil)
	time.Sleep(time.Millisecond)
	e.Fire("t4", LevelInfo, "four", "", "s", nil)

	// Store exceeded the cap; the only resolved alert was evicted, active
	// ones survive.
	_, ok := e.Get(a1.ID)
	require.False(t, ok)
	require.Len(t, e.List(), 3)
}
