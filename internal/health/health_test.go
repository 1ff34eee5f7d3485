package health

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cryptorun/core/internal/alert"
)

func staticChecker(name string, status Status) Checker {
	return CheckerFunc{
		CheckerName: name,
		Fn: func(ctx context.Context) Result {
			return Result{Status: status}
		},
	}
}

func TestAggregate(t *testing.T) {
	cases := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"one degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unknown counts as degraded", []Status{StatusHealthy, StatusUnknown}, StatusDegraded},
		{"unhealthy dominates", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy},
		{"empty", nil, StatusHealthy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results := make([]Result, len(tc.statuses))
			for i, st := range tc.statuses {
				results[i] = Result{Status: st}
			}
			require.Equal(t, tc.want, Aggregate(results))
		})
	}
}

func TestTickFiresOnlyOnTransition(t *testing.T) {
	engine := alert.New(time.Hour, 100)
	s := NewScheduler(time.Second, engine)

	flaky := &togglingChecker{status: StatusHealthy}
	s.RegisterChecker(flaky)

	require.Equal(t, StatusHealthy, s.Tick(context.Background()))
	require.Empty(t, engine.List())

	flaky.set(StatusUnhealthy)
	require.Equal(t, StatusUnhealthy, s.Tick(context.Background()))
	require.Len(t, engine.List(), 1)

	// Repeated unhealthy samples do not fire again.
	require.Equal(t, StatusUnhealthy, s.Tick(context.Background()))
	require.Len(t, engine.List(), 1)

	// Recovery then a fresh breach fires a new transition... but within the
	// dedup window the fingerprint collapses, so the count stays at 1.
	flaky.set(StatusHealthy)
	s.Tick(context.Background())
	flaky.set(StatusUnhealthy)
	s.Tick(context.Background())
	require.Len(t, engine.List(), 1)
}

func TestDegradedFromHealthyFiresWarning(t *testing.T) {
	engine := alert.New(time.Hour, 100)
	s := NewScheduler(time.Second, engine)

	flaky := &togglingChecker{status: StatusHealthy}
	s.RegisterChecker(flaky)
	s.Tick(context.Background())

	flaky.set(StatusDegraded)
	s.Tick(context.Background())

	alerts := engine.List()
	require.Len(t, alerts, 1)
	require.Equal(t, "health_degraded", alerts[0].Type)
	require.Equal(t, alert.LevelWarning, alerts[0].Level)
}

func TestPanickingCheckerIsIsolated(t *testing.T) {
	s := NewScheduler(time.Second, nil)
	s.RegisterChecker(CheckerFunc{
		CheckerName: "boom",
		Fn: func(ctx context.Context) Result {
			panic("checker bug")
		},
	})
	s.RegisterChecker(staticChecker("ok", StatusHealthy))

	status := s.Tick(context.Background())
	require.Equal(t, StatusDegraded, status) // panicked checker reads as unknown

	results := s.LastResults()
	require.Len(t, results, 2)
	for _, r := range results {
		if r.Name == "boom" {
			require.Equal(t, StatusUnknown, r.Status)
			require.Error(t, r.Err)
		}
	}
}

func TestBuiltinCheckersReportHealthyUnderNoLoad(t *testing.T) {
	mem := &MemoryChecker{WarnBytes: 1 << 40, CriticalBytes: 1 << 41}
	require.Equal(t, StatusHealthy, mem.Check(context.Background()).Status)

	delay := &SchedulerDelayChecker{WarnDelay: 5 * time.Second, CriticalDelay: 10 * time.Second}
	require.Equal(t, StatusHealthy, delay.Check(context.Background()).Status)
}

type togglingChecker struct {
	status Status
}

func (c *togglingChecker) Name() string { return "toggling" }
func (c *togglingChecker) set(s Status) { c.status = s }
func (c *togglingChecker) Check(ctx context.Context) Result {
	return Result{Status: c.status}
}
