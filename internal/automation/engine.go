// Package automation runs one unattended pass: unfollow stale non-followers,
// then follow fresh suggestions, within the daily quotas.
package automation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"charognard/internal/igclient"
	"charognard/internal/logging"
	"charognard/internal/metrics"
	"charognard/internal/model"
	"charognard/internal/pacing"
	"charognard/internal/quota"
	"charognard/internal/store"
)

// StatusTTL is how long a follow-back probe stays fresh.
const StatusTTL = 24 * time.Hour

// Platform is the subset of the platform client a run needs.
type Platform interface {
	FetchSuggestions(ctx context.Context, cursor string) (model.SuggestionsPage, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	FriendshipStatus(ctx context.Context, userID string) (model.FriendshipStatus, error)
}

// Summary reports exactly what a run did.
type Summary struct {
	RunID           string   `json:"runId,omitempty"`
	FollowedCount   int      `json:"followedCount"`
	UnfollowedCount int      `json:"unfollowedCount"`
	Errors          []string `json:"errors"`
}

func (s *Summary) fail(format string, args ...any) {
	s.Errors = append(s.Errors, fmt.Sprintf(format, args...))
}

type Engine struct {
	store    *store.Store
	quota    *quota.Governor
	platform Platform
	pacer    *pacing.Pacer
	now      func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(s *store.Store, q *quota.Governor, p Platform, pacer *pacing.Pacer, opts ...Option) *Engine {
	if pacer == nil {
		pacer = pacing.New(pacing.Zero)
	}
	e := &Engine{store: s, quota: q, platform: p, pacer: pacer, now: time.Now}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Run performs one automation pass for accountID. A disabled automation
// returns a zero summary without touching quotas. The summary is valid even
// when an error is returned; an auth failure of the suggestion fetch is
// returned after the run completes.
func (e *Engine) Run(ctx context.Context, accountID string) (Summary, error) {
	sum := Summary{Errors: []string{}}
	a, err := e.store.Automation(ctx)
	if err != nil {
		return sum, err
	}
	if !a.Enabled {
		return sum, nil
	}
	if accountID == "" {
		return sum, store.ErrNotLoggedIn
	}
	start := time.Now()
	sum.RunID = uuid.NewString()
	metrics.AutomationRuns.Inc()
	defer metrics.ObserveAutomationDuration(start)

	if a.AutoUnfollowEnabled {
		if err := e.unfollowPhase(ctx, accountID, a, &sum); err != nil {
			return e.finish(sum, err)
		}
	}
	var authErr error
	if a.AutoFollowEnabled {
		if err := e.followPhase(ctx, accountID, a, &sum); err != nil {
			if !igclient.IsAuthError(err) {
				return e.finish(sum, err)
			}
			authErr = err
		}
	}
	if err := e.store.MarkAutomationRun(ctx, e.now()); err != nil {
		return e.finish(sum, err)
	}
	return e.finish(sum, authErr)
}

func (e *Engine) finish(sum Summary, err error) (Summary, error) {
	metrics.AutomationErrors.Add(float64(len(sum.Errors)))
	fields := map[string]any{
		"run_id":     sum.RunID,
		"followed":   sum.FollowedCount,
		"unfollowed": sum.UnfollowedCount,
		"errors":     len(sum.Errors),
	}
	if err != nil {
		fields["error"] = err
		logging.Error("automation_run_error", fields)
	} else {
		logging.Info("automation_run_ok", fields)
	}
	return sum, err
}

func (e *Engine) needsCheck(p store.FollowedProfile) bool {
	if p.FollowedBack == model.FollowBackUnknown || p.LastCheckedAt == nil {
		return true
	}
	return e.now().Sub(p.LastCheckedAt.Time()) > StatusTTL
}

// unfollowPhase returns only errors that abort the run (context cancellation).
func (e *Engine) unfollowPhase(ctx context.Context, acct string, a store.AutomationSettings, sum *Summary) error {
	cutoff := e.now().Add(-time.Duration(a.AutoUnfollowDaysThreshold) * 24 * time.Hour)
	profiles, err := e.store.ProfilesOlderThan(ctx, acct, cutoff)
	if err != nil {
		sum.fail("Failed to get profiles: %v", err)
		return nil
	}
	gap := e.pacer.Sequence()
	for _, p := range profiles {
		ok, err := e.quota.CanPerform(ctx, acct, model.ActionUnfollow)
		if err != nil {
			sum.fail("Failed to read unfollow quota: %v", err)
			return nil
		}
		if !ok {
			logging.Info("automation_unfollow_quota_exhausted", map[string]any{"run_id": sum.RunID})
			return nil
		}
		handle := p.User.Handle()

		if a.AutoUnfollowOnlyNonFollowers {
			status := p.FollowedBack
			if e.needsCheck(p) {
				if err := gap.Before(ctx); err != nil {
					return err
				}
				fs, err := e.platform.FriendshipStatus(ctx, p.User.ID)
				gap.After(pacing.Check)
				if err != nil {
					metrics.StatusChecks.WithLabelValues("error").Inc()
					// Still unknown: never unfollow on a failed probe.
					sum.fail("Failed to check %s: %v", handle, err)
					continue
				}
				metrics.StatusChecks.WithLabelValues("ok").Inc()
				status = model.FollowBackOf(fs.FollowedBy)
				if _, err := e.store.UpdateFollowedBack(ctx, acct, p.User.ID, fs.FollowedBy, e.now()); err != nil {
					sum.fail("Failed to save status of %s: %v", handle, err)
				}
			}
			if status != model.FollowBackNo {
				continue
			}
		}

		if err := gap.Before(ctx); err != nil {
			return err
		}
		err = e.platform.Unfollow(ctx, p.User.ID)
		gap.After(pacing.Action)
		if err != nil {
			metrics.IncAction("unfollow", "automation", "error")
			sum.fail("Failed to unfollow %s: %v", handle, err)
			continue
		}
		metrics.IncAction("unfollow", "automation", "ok")
		sum.UnfollowedCount++
		if err := e.quota.RecordAction(ctx, acct, model.ActionUnfollow); err != nil {
			sum.fail("Failed to record unfollow of %s: %v", handle, err)
		}
		if _, err := e.store.RemoveFollowedProfile(ctx, acct, p.User.ID); err != nil {
			sum.fail("Failed to untrack %s: %v", handle, err)
		}
	}
	return nil
}

// followPhase returns the auth error of the suggestion fetch, if any, or an
// error that aborts the run.
func (e *Engine) followPhase(ctx context.Context, acct string, a store.AutomationSettings, sum *Summary) error {
	page, err := e.platform.FetchSuggestions(ctx, "")
	if err != nil {
		sum.fail("Failed to fetch suggestions: %v", err)
		if igclient.IsAuthError(err) {
			return err
		}
		return nil
	}
	gap := e.pacer.Sequence()
	for _, s := range page.Suggestions {
		if s.User.IsPrivate {
			continue
		}
		if sum.FollowedCount >= a.AutoFollowCount {
			break
		}
		ok, err := e.quota.CanPerform(ctx, acct, model.ActionFollow)
		if err != nil {
			sum.fail("Failed to read follow quota: %v", err)
			break
		}
		if !ok {
			logging.Info("automation_follow_quota_exhausted", map[string]any{"run_id": sum.RunID})
			break
		}
		handle := s.User.Handle()
		if err := gap.Before(ctx); err != nil {
			return err
		}
		err = e.platform.Follow(ctx, s.User.ID)
		gap.After(pacing.Action)
		if err != nil {
			metrics.IncAction("follow", "automation", "error")
			sum.fail("Failed to follow %s: %v", handle, err)
			continue
		}
		metrics.IncAction("follow", "automation", "ok")
		sum.FollowedCount++
		if err := e.quota.RecordAction(ctx, acct, model.ActionFollow); err != nil {
			sum.fail("Failed to record follow of %s: %v", handle, err)
		}
		if err := e.store.AddFollowedProfile(ctx, acct, s.User, e.now()); err != nil {
			sum.fail("Failed to track %s: %v", handle, err)
		}
	}
	return nil
}
