// Package relay routes UI messages: alarm updates go to the scheduler and
// everything else to the platform context, when one is reachable.
package relay

import (
	"context"
	"errors"
	"sync"

	"charognard/internal/logging"
	"charognard/internal/message"
)

// ErrNoTarget is returned when no platform context can take a message.
var ErrNoTarget = errors.New("no Instagram tab found")

// noTargetMessage is the response text shown to the user for ErrNoTarget.
const noTargetMessage = "No Instagram tab found. Please open Instagram first."

// Target is a platform context able to execute messages.
type Target interface {
	Handle(ctx context.Context, m message.Message) (message.Response, error)
}

// Tabs locates platform contexts. Active is preferred; Any is the fallback.
type Tabs interface {
	Active(ctx context.Context) (Target, bool)
	Any(ctx context.Context) (Target, bool)
}

// Alarm re-arms the automation trigger from the stored settings.
type Alarm interface {
	Reconfigure(ctx context.Context) error
}

type Relay struct {
	tabs  Tabs
	alarm Alarm
}

func New(tabs Tabs, alarm Alarm) *Relay {
	return &Relay{tabs: tabs, alarm: alarm}
}

// Handle answers m. Failures are reported in the response, never returned.
func (r *Relay) Handle(ctx context.Context, m message.Message) message.Response {
	if _, ok := m.(message.UpdateAlarm); ok {
		if err := r.alarm.Reconfigure(ctx); err != nil {
			return message.Fail(err)
		}
		return message.OK(nil)
	}
	t, ok := r.tabs.Active(ctx)
	if !ok {
		if t, ok = r.tabs.Any(ctx); !ok {
			return message.Response{Error: noTargetMessage}
		}
	}
	resp, err := t.Handle(ctx, m)
	if err != nil {
		logging.Error("relay_forward_error", map[string]any{"type": string(m.Type()), "error": err})
		return message.Failf("Failed to communicate with Instagram tab: %v", err)
	}
	return resp
}

// RunAutomation sends RUN_AUTOMATION to any platform context. It is the
// scheduler's runner.
func (r *Relay) RunAutomation(ctx context.Context) error {
	t, ok := r.tabs.Any(ctx)
	if !ok {
		return ErrNoTarget
	}
	resp, err := t.Handle(ctx, message.RunAutomation{})
	if err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// Session is a Tabs with at most one platform context, present while a
// session is attached.
type Session struct {
	mu     sync.RWMutex
	target Target
}

func NewSession(t Target) *Session { return &Session{target: t} }

func (s *Session) Attach(t Target) {
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()
}

func (s *Session) Detach() { s.Attach(nil) }

func (s *Session) Active(context.Context) (Target, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target, s.target != nil
}

func (s *Session) Any(ctx context.Context) (Target, bool) { return s.Active(ctx) }
