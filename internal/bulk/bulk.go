// Package bulk implements the manual actions: single and mass follow or
// unfollow, follow-back checks and tracking maintenance. Mass flows run
// sequentially with the same pacing and quota discipline as automation.
package bulk

import (
	"context"
	"fmt"
	"time"

	"charognard/internal/logging"
	"charognard/internal/metrics"
	"charognard/internal/model"
	"charognard/internal/pacing"
	"charognard/internal/quota"
	"charognard/internal/store"
)

type Platform interface {
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	FriendshipStatus(ctx context.Context, userID string) (model.FriendshipStatus, error)
}

// Result counts the outcome of a mass action.
type Result struct {
	Succeeded      int      `json:"succeeded"`
	Skipped        int      `json:"skipped"`
	Failed         int      `json:"failed"`
	QuotaExhausted bool     `json:"quotaExhausted"`
	Errors         []string `json:"errors"`
}

func (r *Result) fail(format string, args ...any) {
	r.Failed++
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

type Service struct {
	store    *store.Store
	quota    *quota.Governor
	platform Platform
	pacer    *pacing.Pacer
	now      func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st *store.Store, q *quota.Governor, p Platform, pacer *pacing.Pacer, opts ...Option) *Service {
	if pacer == nil {
		pacer = pacing.New(pacing.Zero)
	}
	s := &Service{store: st, quota: q, platform: p, pacer: pacer, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) checkQuota(ctx context.Context, acct string, action model.ActionType) error {
	ok, err := s.quota.CanPerform(ctx, acct, action)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", action, quota.ErrExhausted)
	}
	return nil
}

// Follow follows user once and starts tracking it.
func (s *Service) Follow(ctx context.Context, acct string, user model.User) error {
	if err := s.checkQuota(ctx, acct, model.ActionFollow); err != nil {
		return err
	}
	return s.follow(ctx, acct, user)
}

// FollowID follows by identifier only; the tracked snapshot carries just the id.
func (s *Service) FollowID(ctx context.Context, acct, userID string) error {
	return s.Follow(ctx, acct, model.User{ID: userID})
}

func (s *Service) follow(ctx context.Context, acct string, user model.User) error {
	if err := s.platform.Follow(ctx, user.ID); err != nil {
		metrics.IncAction("follow", "manual", "error")
		return err
	}
	metrics.IncAction("follow", "manual", "ok")
	if err := s.quota.RecordAction(ctx, acct, model.ActionFollow); err != nil {
		return err
	}
	return s.store.AddFollowedProfile(ctx, acct, user, s.now())
}

// Unfollow unfollows userID once and stops tracking it.
func (s *Service) Unfollow(ctx context.Context, acct, userID string) error {
	if err := s.checkQuota(ctx, acct, model.ActionUnfollow); err != nil {
		return err
	}
	return s.unfollow(ctx, acct, userID)
}

func (s *Service) unfollow(ctx context.Context, acct, userID string) error {
	if err := s.platform.Unfollow(ctx, userID); err != nil {
		metrics.IncAction("unfollow", "manual", "error")
		return err
	}
	metrics.IncAction("unfollow", "manual", "ok")
	if err := s.quota.RecordAction(ctx, acct, model.ActionUnfollow); err != nil {
		return err
	}
	_, err := s.store.RemoveFollowedProfile(ctx, acct, userID)
	return err
}

// MassFollow follows users in order until the follow quota runs out. When
// skipFollowers is set, users who already follow back are skipped; a failed
// probe does not prevent the follow. Private accounts are followed if selected.
func (s *Service) MassFollow(ctx context.Context, acct string, users []model.User) (Result, error) {
	res := Result{Errors: []string{}}
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return res, err
	}
	gap := s.pacer.Sequence()
	for _, u := range users {
		ok, err := s.quota.CanPerform(ctx, acct, model.ActionFollow)
		if err != nil {
			return res, err
		}
		if !ok {
			res.QuotaExhausted = true
			break
		}
		if err := gap.Before(ctx); err != nil {
			return res, err
		}
		if settings.SkipFollowers {
			fs, err := s.platform.FriendshipStatus(ctx, u.ID)
			switch {
			case err != nil:
				logging.Warn("mass_follow_check_error", map[string]any{"user": u.Handle(), "error": err})
			case fs.FollowedBy:
				res.Skipped++
				gap.After(pacing.Skip)
				continue
			}
		}
		err = s.follow(ctx, acct, u)
		gap.After(pacing.Action)
		if err != nil {
			res.fail("Failed to follow %s: %v", u.Handle(), err)
			continue
		}
		res.Succeeded++
	}
	logging.Info("mass_follow_done", map[string]any{
		"followed": res.Succeeded, "skipped": res.Skipped, "failed": res.Failed,
	})
	return res, nil
}

// MassUnfollow unfollows userIDs in order until the unfollow quota runs out.
func (s *Service) MassUnfollow(ctx context.Context, acct string, userIDs []string) (Result, error) {
	res := Result{Errors: []string{}}
	data, err := s.store.Read(ctx, acct)
	if err != nil {
		return res, err
	}
	gap := s.pacer.Sequence()
	for _, id := range userIDs {
		ok, err := s.quota.CanPerform(ctx, acct, model.ActionUnfollow)
		if err != nil {
			return res, err
		}
		if !ok {
			res.QuotaExhausted = true
			break
		}
		if err := gap.Before(ctx); err != nil {
			return res, err
		}
		handle := "@" + id
		if p, ok := data.FollowedProfiles[id]; ok {
			handle = p.User.Handle()
		}
		err = s.unfollow(ctx, acct, id)
		gap.After(pacing.Action)
		if err != nil {
			res.fail("Failed to unfollow %s: %v", handle, err)
			continue
		}
		res.Succeeded++
	}
	logging.Info("mass_unfollow_done", map[string]any{"unfollowed": res.Succeeded, "failed": res.Failed})
	return res, nil
}

// CheckResult counts a follow-back refresh over all tracked profiles.
type CheckResult struct {
	Checked       int      `json:"checked"`
	FollowingBack int      `json:"followingBack"`
	Failed        int      `json:"failed"`
	Errors        []string `json:"errors"`
}

// CheckAll probes the follow-back status of every tracked profile.
func (s *Service) CheckAll(ctx context.Context, acct string) (CheckResult, error) {
	res := CheckResult{Errors: []string{}}
	profiles, err := s.store.FollowedProfiles(ctx, acct)
	if err != nil {
		return res, err
	}
	gap := s.pacer.Sequence()
	for _, p := range profiles {
		if err := gap.Before(ctx); err != nil {
			return res, err
		}
		fs, err := s.platform.FriendshipStatus(ctx, p.User.ID)
		gap.After(pacing.Check)
		if err == nil {
			_, err = s.store.UpdateFollowedBack(ctx, acct, p.User.ID, fs.FollowedBy, s.now())
		}
		if err != nil {
			metrics.StatusChecks.WithLabelValues("error").Inc()
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("Failed to check %s: %v", p.User.Handle(), err))
			continue
		}
		metrics.StatusChecks.WithLabelValues("ok").Inc()
		res.Checked++
		if fs.FollowedBy {
			res.FollowingBack++
		}
	}
	return res, nil
}

// RemoveFromTracking forgets userID without unfollowing it.
func (s *Service) RemoveFromTracking(ctx context.Context, acct, userID string) (bool, error) {
	return s.store.RemoveFollowedProfile(ctx, acct, userID)
}

// ClearTracking forgets every tracked profile without unfollowing any.
func (s *Service) ClearTracking(ctx context.Context, acct string) (int, error) {
	return s.store.ClearFollowedProfiles(ctx, acct)
}
