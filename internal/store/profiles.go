package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"charognard/internal/model"
)

// AddFollowedProfile starts tracking user, replacing any previous record.
func (s *Store) AddFollowedProfile(ctx context.Context, accountID string, user model.User, at time.Time) error {
	if user.ID == "" {
		return fmt.Errorf("add followed profile: empty user id")
	}
	return s.Update(ctx, accountID, func(a *AccountData) error {
		a.FollowedProfiles[user.ID] = FollowedProfile{
			User:         user,
			FollowedAt:   model.MillisOf(at),
			FollowedBack: model.FollowBackUnknown,
		}
		return nil
	})
}

// RemoveFollowedProfile stops tracking userID. It reports whether a record existed.
func (s *Store) RemoveFollowedProfile(ctx context.Context, accountID, userID string) (bool, error) {
	var found bool
	err := s.Update(ctx, accountID, func(a *AccountData) error {
		_, found = a.FollowedProfiles[userID]
		delete(a.FollowedProfiles, userID)
		return nil
	})
	return found, err
}

// FollowedProfiles lists tracked profiles, most recently followed first.
func (s *Store) FollowedProfiles(ctx context.Context, accountID string) ([]FollowedProfile, error) {
	a, err := s.Read(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := profileSlice(a)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FollowedAt != out[j].FollowedAt {
			return out[i].FollowedAt > out[j].FollowedAt
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out, nil
}

func (s *Store) FollowedProfile(ctx context.Context, accountID, userID string) (FollowedProfile, bool, error) {
	a, err := s.Read(ctx, accountID)
	if err != nil {
		return FollowedProfile{}, false, err
	}
	p, ok := a.FollowedProfiles[userID]
	return p, ok, nil
}

// UpdateFollowedBack records a follow-back probe result. Untracked ids are ignored.
func (s *Store) UpdateFollowedBack(ctx context.Context, accountID, userID string, followedBy bool, at time.Time) (bool, error) {
	var found bool
	err := s.Update(ctx, accountID, func(a *AccountData) error {
		p, ok := a.FollowedProfiles[userID]
		if !ok {
			return nil
		}
		found = true
		m := model.MillisOf(at)
		p.FollowedBack = model.FollowBackOf(followedBy)
		p.LastCheckedAt = &m
		a.FollowedProfiles[userID] = p
		return nil
	})
	return found, err
}

// ProfilesOlderThan lists profiles followed strictly before cutoff, oldest first.
func (s *Store) ProfilesOlderThan(ctx context.Context, accountID string, cutoff time.Time) ([]FollowedProfile, error) {
	a, err := s.Read(ctx, accountID)
	if err != nil {
		return nil, err
	}
	limit := model.MillisOf(cutoff)
	var out []FollowedProfile
	for _, p := range profileSlice(a) {
		if p.FollowedAt < limit {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FollowedAt != out[j].FollowedAt {
			return out[i].FollowedAt < out[j].FollowedAt
		}
		return out[i].User.ID < out[j].User.ID
	})
	return out, nil
}

// ClearFollowedProfiles drops all tracking for the account and returns how many were dropped.
func (s *Store) ClearFollowedProfiles(ctx context.Context, accountID string) (int, error) {
	var n int
	err := s.Update(ctx, accountID, func(a *AccountData) error {
		n = len(a.FollowedProfiles)
		a.FollowedProfiles = map[string]FollowedProfile{}
		return nil
	})
	return n, err
}

// DailyCount returns the account's counter for action on date; stale dates read as 0.
func (s *Store) DailyCount(ctx context.Context, accountID string, action model.ActionType, date string) (int, error) {
	a, err := s.Read(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return a.DailyActions.Count(action, date), nil
}

// RecordAction increments the counter for action on date. A counter dated any
// other day is replaced by a fresh one seeded at 1 for action.
func (s *Store) RecordAction(ctx context.Context, accountID string, action model.ActionType, date string) (DailyActions, error) {
	if action != model.ActionFollow && action != model.ActionUnfollow {
		return DailyActions{}, fmt.Errorf("record action: unknown action %q", action)
	}
	var out DailyActions
	err := s.Update(ctx, accountID, func(a *AccountData) error {
		if a.DailyActions == nil || a.DailyActions.Date != date {
			a.DailyActions = &DailyActions{Date: date}
		}
		if action == model.ActionFollow {
			a.DailyActions.FollowCount++
		} else {
			a.DailyActions.UnfollowCount++
		}
		out = *a.DailyActions
		return nil
	})
	return out, err
}

func profileSlice(a AccountData) []FollowedProfile {
	out := make([]FollowedProfile, 0, len(a.FollowedProfiles))
	for _, p := range a.FollowedProfiles {
		out = append(out, p)
	}
	return out
}
