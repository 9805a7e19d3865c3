// Package quota enforces the per-account daily follow and unfollow caps.
//
// Counts are evaluated, not reserved: two callers may both see remaining
// allowance and both proceed.
package quota

import (
	"context"
	"errors"
	"time"

	"charognard/internal/logging"
	"charognard/internal/metrics"
	"charognard/internal/model"
	"charognard/internal/store"
)

// ErrExhausted is returned by callers that treat an exhausted quota as a failure.
var ErrExhausted = errors.New("daily limit reached")

// ActionLog receives every committed action.
type ActionLog interface {
	PutAction(ctx context.Context, rec model.ActionRecord) error
}

type Governor struct {
	store *store.Store
	now   func() time.Time
	loc   *time.Location
	log   ActionLog
}

type Option func(*Governor)

func WithClock(now func() time.Time) Option { return func(g *Governor) { g.now = now } }

// WithLocation sets the zone whose calendar date delimits a quota day.
func WithLocation(loc *time.Location) Option { return func(g *Governor) { g.loc = loc } }

func WithActionLog(l ActionLog) Option { return func(g *Governor) { g.log = l } }

func New(s *store.Store, opts ...Option) *Governor {
	g := &Governor{store: s, now: time.Now, loc: time.Local}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Today is the current quota date, YYYY-MM-DD.
func (g *Governor) Today() string {
	return g.now().In(g.loc).Format(time.DateOnly)
}

func (g *Governor) Count(ctx context.Context, accountID string, action model.ActionType) (int, error) {
	return g.store.DailyCount(ctx, accountID, action, g.Today())
}

func (g *Governor) Limit(ctx context.Context, action model.ActionType) (int, error) {
	s, err := g.store.Settings(ctx)
	if err != nil {
		return 0, err
	}
	return s.Limit(action), nil
}

// Remaining is limit minus today's count, floored at zero.
func (g *Governor) Remaining(ctx context.Context, accountID string, action model.ActionType) (int, error) {
	n, err := g.Count(ctx, accountID, action)
	if err != nil {
		return 0, err
	}
	limit, err := g.Limit(ctx, action)
	if err != nil {
		return 0, err
	}
	rem := max(0, limit-n)
	metrics.SetQuotaRemaining(string(action), rem)
	return rem, nil
}

func (g *Governor) CanPerform(ctx context.Context, accountID string, action model.ActionType) (bool, error) {
	rem, err := g.Remaining(ctx, accountID, action)
	return rem > 0, err
}

// RecordAction counts one committed action against today's quota.
func (g *Governor) RecordAction(ctx context.Context, accountID string, action model.ActionType) error {
	now := g.now()
	if _, err := g.store.RecordAction(ctx, accountID, action, now.In(g.loc).Format(time.DateOnly)); err != nil {
		return err
	}
	if g.log != nil {
		rec := model.ActionRecord{At: now, AccountID: accountID, Action: action}
		if err := g.log.PutAction(ctx, rec); err != nil {
			logging.Warn("action_log_error", map[string]any{"action": string(action), "error": err})
		}
	}
	return nil
}
