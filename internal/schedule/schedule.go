// Package schedule arms a single timer for the next unattended automation run.
package schedule

import (
	"context"
	"sync"
	"time"

	"charognard/internal/logging"
	"charognard/internal/store"
)

// MinDelay is the shortest delay a trigger is ever armed with.
const MinDelay = time.Minute

// DailyPeriod is the recurrence of a daily trigger.
const DailyPeriod = 24 * time.Hour

// NextRun returns the next time a run is due after now, in now's location.
// Daily: today at hour:minute unless already passed, else tomorrow.
// Weekly: the next configured weekday at hour:minute; today counts only if the
// time has not passed yet.
func NextRun(now time.Time, a store.AutomationSettings) time.Time {
	target := time.Date(now.Year(), now.Month(), now.Day(), a.Hour, a.Minute, 0, 0, now.Location())
	if a.Frequency == store.Weekly {
		days := int(a.DayOfWeek) - int(now.Weekday())
		if days < 0 || (days == 0 && !target.After(now)) {
			days += 7
		}
		return target.AddDate(0, 0, days)
	}
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target
}

// Runner executes one automation run.
type Runner interface {
	RunAutomation(ctx context.Context) error
}

type RunnerFunc func(ctx context.Context) error

func (f RunnerFunc) RunAutomation(ctx context.Context) error { return f(ctx) }

// SettingsSource provides the current automation settings.
type SettingsSource interface {
	Automation(ctx context.Context) (store.AutomationSettings, error)
}

type State int

const (
	Idle State = iota
	Armed
)

func (s State) String() string {
	if s == Armed {
		return "armed"
	}
	return "idle"
}

// Timer is the handle of a pending trigger.
type Timer interface{ Stop() bool }

// AfterFunc arms f to run once after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Scheduler is Idle with no pending trigger or Armed with exactly one.
type Scheduler struct {
	settings  SettingsSource
	runner    Runner
	now       func() time.Time
	loc       *time.Location
	afterFunc AfterFunc

	mu      sync.Mutex
	running sync.WaitGroup
	ctx     context.Context
	timer  Timer
	gen    uint64
	next   time.Time
	weekly bool
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option { return func(s *Scheduler) { s.now = now } }

// WithLocation sets the zone the configured hour and minute are read in.
func WithLocation(loc *time.Location) Option { return func(s *Scheduler) { s.loc = loc } }

func WithAfterFunc(f AfterFunc) Option { return func(s *Scheduler) { s.afterFunc = f } }

func New(settings SettingsSource, runner Runner, opts ...Option) *Scheduler {
	s := &Scheduler{
		settings:  settings,
		runner:    runner,
		now:       time.Now,
		loc:       time.Local,
		afterFunc: realAfterFunc,
		ctx:       context.Background(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start binds runs to ctx and arms the first trigger.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	return s.Reconfigure(ctx)
}

// Stop clears any pending trigger. A run already in flight finishes but does
// not re-arm; use Wait to block until it is done.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

// Wait blocks until no scheduled run is in flight.
func (s *Scheduler) Wait() { s.running.Wait() }

func (s *Scheduler) clearLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
	s.next = time.Time{}
}

// Reconfigure clears the pending trigger and re-arms from the current settings.
func (s *Scheduler) Reconfigure(ctx context.Context) error {
	return s.reconfigure(ctx, func() bool { return true })
}

// reconfigure re-arms only if current, checked under the lock, still holds.
func (s *Scheduler) reconfigure(ctx context.Context, current func() bool) error {
	a, err := s.settings.Automation(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !current() {
		return nil
	}
	s.clearLocked()
	if !a.Enabled {
		logging.Info("schedule_idle", nil)
		return nil
	}
	now := s.now()
	next := NextRun(now.In(s.loc), a)
	delay := max(MinDelay, next.Sub(now))
	s.weekly = a.Frequency == store.Weekly
	s.armLocked(delay, s.gen)
	logging.Info("schedule_armed", map[string]any{
		"frequency": string(a.Frequency),
		"next_run":  s.next.Format(time.RFC3339),
	})
	return nil
}

func (s *Scheduler) armLocked(delay time.Duration, gen uint64) {
	s.next = s.now().Add(delay)
	s.timer = s.afterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.running.Add(1)
	defer s.running.Done()
	weekly := s.weekly
	if weekly {
		s.timer = nil
		s.next = time.Time{}
	} else {
		s.armLocked(DailyPeriod, gen)
	}
	ctx := s.ctx
	s.mu.Unlock()

	if err := s.runner.RunAutomation(ctx); err != nil {
		logging.Error("scheduled_run_error", map[string]any{"error": err})
	}
	if weekly {
		// Stop or Reconfigure during the run bumps gen; neither may be undone here.
		if err := s.reconfigure(ctx, func() bool { return s.gen == gen }); err != nil {
			logging.Error("schedule_rearm_error", map[string]any{"error": err})
		}
	}
}

// State reports whether a trigger is pending.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return Idle
	}
	return Armed
}

// Next returns the pending trigger time, zero when Idle.
func (s *Scheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}
