package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charognard/internal/store"
)

// 2025-06-02 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, 6, day, hour, minute, 0, 0, time.UTC)
}

func weekly(dow time.Weekday, hour, minute int) store.AutomationSettings {
	a := store.DefaultAutomation()
	a.Enabled = true
	a.Frequency = store.Weekly
	a.DayOfWeek = dow
	a.Hour, a.Minute = hour, minute
	return a
}

func daily(hour, minute int) store.AutomationSettings {
	a := store.DefaultAutomation()
	a.Enabled = true
	a.Hour, a.Minute = hour, minute
	return a
}

func TestNextRunWeekly(t *testing.T) {
	a := weekly(time.Monday, 10, 0)
	assert.Equal(t, at(2, 10, 0), NextRun(at(2, 9, 0), a), "same day before the time")
	assert.Equal(t, at(9, 10, 0), NextRun(at(2, 11, 0), a), "same day after the time")
	assert.Equal(t, at(9, 10, 0), NextRun(at(2, 10, 0), a), "exactly at the time rolls a week")
	assert.Equal(t, at(9, 10, 0), NextRun(at(4, 8, 0), a), "later in the week")

	fri := weekly(time.Friday, 18, 30)
	assert.Equal(t, at(6, 18, 30), NextRun(at(2, 9, 0), fri))
	sun := weekly(time.Sunday, 7, 0)
	assert.Equal(t, at(8, 7, 0), NextRun(at(7, 23, 0), sun))
}

func TestNextRunDaily(t *testing.T) {
	a := daily(10, 0)
	assert.Equal(t, at(2, 10, 0), NextRun(at(2, 9, 59), a))
	assert.Equal(t, at(3, 10, 0), NextRun(at(2, 10, 0), a))
	assert.Equal(t, at(3, 10, 0), NextRun(at(2, 22, 0), a))
}

func TestNextRunUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC).In(loc) // 11:00 local
	got := NextRun(now, daily(10, 0))
	assert.Equal(t, time.Date(2025, 6, 3, 10, 0, 0, 0, loc), got)
}

type fakeSettings struct {
	a   store.AutomationSettings
	err error
}

func (f *fakeSettings) Automation(context.Context) (store.AutomationSettings, error) {
	return f.a, f.err
}

type fakeTimer struct {
	delay   time.Duration
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool { t.stopped = true; return true }

type harness struct {
	now    time.Time
	timers []*fakeTimer
	runs   int
	runErr error
	set    *fakeSettings
	s      *Scheduler
}

func newHarness(a store.AutomationSettings, now time.Time) *harness {
	h := &harness{now: now, set: &fakeSettings{a: a}}
	h.s = New(h.set, RunnerFunc(func(context.Context) error { h.runs++; return h.runErr }),
		WithClock(func() time.Time { return h.now }),
		WithLocation(time.UTC),
		WithAfterFunc(func(d time.Duration, f func()) Timer {
			t := &fakeTimer{delay: d, f: f}
			h.timers = append(h.timers, t)
			return t
		}))
	return h
}

func (h *harness) last() *fakeTimer { return h.timers[len(h.timers)-1] }

func TestDisabledStaysIdle(t *testing.T) {
	a := daily(10, 0)
	a.Enabled = false
	h := newHarness(a, at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	assert.Equal(t, Idle, h.s.State())
	assert.Empty(t, h.timers)
	assert.True(t, h.s.Next().IsZero())
}

func TestDailyArmsAndRecurs(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	assert.Equal(t, Armed, h.s.State())
	assert.Equal(t, time.Hour, h.last().delay)
	assert.Equal(t, at(2, 10, 0), h.s.Next())

	h.now = at(2, 10, 0)
	h.last().f()
	assert.Equal(t, 1, h.runs)
	assert.Equal(t, Armed, h.s.State())
	require.Len(t, h.timers, 2)
	assert.Equal(t, DailyPeriod, h.last().delay)
	assert.Equal(t, at(3, 10, 0), h.s.Next())
}

func TestWeeklyRearmsAfterRunEvenOnFailure(t *testing.T) {
	h := newHarness(weekly(time.Monday, 10, 0), at(2, 9, 0))
	h.runErr = errors.New("no session")
	require.NoError(t, h.s.Start(context.Background()))
	assert.Equal(t, time.Hour, h.last().delay)

	h.now = at(2, 10, 0).Add(3 * time.Minute)
	h.last().f()
	assert.Equal(t, 1, h.runs)
	assert.Equal(t, Armed, h.s.State())
	require.Len(t, h.timers, 2)
	assert.Equal(t, at(9, 10, 0), h.s.Next())
	assert.Equal(t, at(9, 10, 0).Sub(h.now), h.last().delay)
}

func TestDelayClampedToOneMinute(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 10, 0).Add(-20*time.Second))
	require.NoError(t, h.s.Start(context.Background()))
	assert.Equal(t, MinDelay, h.last().delay)
}

func TestReconfigureClearsPendingTrigger(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	first := h.last()

	h.set.a = weekly(time.Wednesday, 8, 0)
	require.NoError(t, h.s.Reconfigure(context.Background()))
	assert.True(t, first.stopped)
	assert.Equal(t, at(4, 8, 0), h.s.Next())

	// A stale timer that fires anyway is ignored.
	first.f()
	assert.Zero(t, h.runs)

	h.set.a.Enabled = false
	require.NoError(t, h.s.Reconfigure(context.Background()))
	assert.Equal(t, Idle, h.s.State())
	assert.True(t, h.timers[1].stopped)
}

func TestReconfigureSettingsError(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 9, 0))
	h.set.err = errors.New("backend down")
	assert.Error(t, h.s.Reconfigure(context.Background()))
	assert.Equal(t, Idle, h.s.State())
}

func TestStop(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	h.s.Stop()
	assert.Equal(t, Idle, h.s.State())
	assert.True(t, h.last().stopped)
}

func TestStopDuringWeeklyRunStaysIdle(t *testing.T) {
	h := newHarness(weekly(time.Monday, 10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	h.s.runner = RunnerFunc(func(context.Context) error {
		h.runs++
		h.s.Stop()
		return nil
	})

	h.now = at(2, 10, 0)
	h.last().f()
	h.s.Wait()
	assert.Equal(t, 1, h.runs)
	assert.Equal(t, Idle, h.s.State())
	assert.Len(t, h.timers, 1)
	assert.True(t, h.s.Next().IsZero())
}

func TestReconfigureDuringWeeklyRunIsKept(t *testing.T) {
	h := newHarness(weekly(time.Monday, 10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	h.s.runner = RunnerFunc(func(ctx context.Context) error {
		h.runs++
		h.set.a = weekly(time.Wednesday, 8, 0)
		return h.s.Reconfigure(ctx)
	})

	h.now = at(2, 10, 0)
	h.last().f()
	assert.Equal(t, Armed, h.s.State())
	require.Len(t, h.timers, 2)
	assert.Equal(t, at(4, 8, 0), h.s.Next())
}

func TestWaitBlocksForInFlightRun(t *testing.T) {
	h := newHarness(daily(10, 0), at(2, 9, 0))
	require.NoError(t, h.s.Start(context.Background()))
	started, release := make(chan struct{}), make(chan struct{})
	h.s.runner = RunnerFunc(func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	fire := h.last().f
	go fire()
	<-started
	h.s.Stop()

	waited := make(chan struct{})
	go func() { h.s.Wait(); close(waited) }()
	select {
	case <-waited:
		t.Fatal("Wait returned while a run was in flight")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after the run finished")
	}
}
