// Package pacing produces the randomized waits inserted between platform calls.
package pacing

import (
	"context"
	"math/rand/v2"
	"time"

	"charognard/internal/config"
)

type Kind int

const (
	// Action separates mutating calls (follow, unfollow).
	Action Kind = iota
	// Check separates read-only follow-back probes.
	Check
	// Skip follows a candidate skipped during a bulk follow.
	Skip
)

func (k Kind) String() string {
	switch k {
	case Action:
		return "action"
	case Check:
		return "check"
	case Skip:
		return "skip"
	}
	return "unknown"
}

// Window is a base wait plus up to Jitter extra, drawn uniformly.
type Window struct {
	Base   time.Duration
	Jitter time.Duration
}

// Strategy returns the wait to apply for kind.
type Strategy func(Kind) time.Duration

// Random draws from the configured windows.
func Random(cfg config.PacingConfig) Strategy {
	windows := map[Kind]Window{
		Action: {ms(cfg.ActionBaseMs), ms(cfg.ActionJitterMs)},
		Check:  {ms(cfg.CheckBaseMs), ms(cfg.CheckJitterMs)},
		Skip:   {ms(cfg.SkipBaseMs), ms(cfg.SkipJitterMs)},
	}
	return func(k Kind) time.Duration {
		w := windows[k]
		if w.Jitter <= 0 {
			return w.Base
		}
		return w.Base + rand.N(w.Jitter)
	}
}

// Zero never waits.
func Zero(Kind) time.Duration { return 0 }

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

// Pacer applies a Strategy. Sleep is replaceable for tests.
type Pacer struct {
	Strategy Strategy
	Sleep    func(ctx context.Context, d time.Duration) error
}

func New(s Strategy) *Pacer {
	if s == nil {
		s = Zero
	}
	return &Pacer{Strategy: s, Sleep: Sleep}
}

// Wait blocks for one window of kind or until ctx is done.
func (p *Pacer) Wait(ctx context.Context, k Kind) error {
	d := p.Strategy(k)
	if d <= 0 {
		return ctx.Err()
	}
	return p.Sleep(ctx, d)
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Gap spaces a sequence of calls: the wait chosen after one call is only
// served before the next, so nothing is waited after the last call.
type Gap struct {
	p       *Pacer
	pending bool
	kind    Kind
}

func (p *Pacer) Sequence() *Gap { return &Gap{p: p} }

// Before serves the wait left by the previous call, if any.
func (g *Gap) Before(ctx context.Context) error {
	if !g.pending {
		return ctx.Err()
	}
	g.pending = false
	return g.p.Wait(ctx, g.kind)
}

// After schedules a wait of kind before the next call.
func (g *Gap) After(k Kind) {
	g.pending = true
	g.kind = k
}
