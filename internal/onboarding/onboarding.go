// Package onboarding runs the first-use welcome: follow the developer account
// and like its latest post. The developer is never tracked, so mass unfollow
// and automation leave it alone.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charognard/internal/logging"
	"charognard/internal/model"
	"charognard/internal/store"
)

type Platform interface {
	FetchProfile(ctx context.Context, userID string) (model.User, error)
	Follow(ctx context.Context, userID string) error
	Unfollow(ctx context.Context, userID string) error
	FetchLatestMedia(ctx context.Context, userID string) (*model.Media, error)
	Like(ctx context.Context, mediaID string) error
	Unlike(ctx context.Context, mediaID string) error
}

var ErrNoDeveloper = errors.New("onboarding: no developer account configured")

// Progress is the outcome of Start.
type Progress struct {
	AlreadyCompleted bool        `json:"alreadyCompleted"`
	Developer        *model.User `json:"developer,omitempty"`
	Followed         bool        `json:"followed"`
	LikedMediaID     string      `json:"likedMediaId,omitempty"`
	Errors           []string    `json:"errors"`
}

type Flow struct {
	store       *store.Store
	platform    Platform
	developerID string
	now         func() time.Time
}

func New(s *store.Store, p Platform, developerID string) *Flow {
	return &Flow{store: s, platform: p, developerID: developerID, now: time.Now}
}

// Start does nothing once onboarding is completed. Otherwise it loads the
// developer profile, follows it and likes its latest post; the last two are
// best effort and reported in Progress.Errors.
func (f *Flow) Start(ctx context.Context, accountID string) (Progress, error) {
	pr := Progress{Errors: []string{}}
	if accountID == "" {
		return pr, store.ErrNotLoggedIn
	}
	ob, err := f.store.Onboarding(ctx)
	if err != nil {
		return pr, err
	}
	if ob.Completed {
		pr.AlreadyCompleted = true
		return pr, nil
	}
	if f.developerID == "" {
		return pr, ErrNoDeveloper
	}
	dev, err := f.platform.FetchProfile(ctx, f.developerID)
	if err != nil {
		return pr, fmt.Errorf("fetch developer info: %w", err)
	}
	pr.Developer = &dev

	if err := f.platform.Follow(ctx, f.developerID); err != nil {
		pr.Errors = append(pr.Errors, fmt.Sprintf("Failed to follow developer: %v", err))
	} else {
		pr.Followed = true
	}

	media, err := f.platform.FetchLatestMedia(ctx, f.developerID)
	switch {
	case err != nil:
		pr.Errors = append(pr.Errors, fmt.Sprintf("Failed to like latest post: %v", err))
	case media != nil:
		if err := f.platform.Like(ctx, media.PK); err != nil {
			pr.Errors = append(pr.Errors, fmt.Sprintf("Failed to like latest post: %v", err))
		} else {
			pr.LikedMediaID = media.PK
		}
	}
	logging.Info("onboarding_started", map[string]any{
		"followed": pr.Followed, "liked": pr.LikedMediaID != "", "errors": len(pr.Errors),
	})
	return pr, nil
}

// Complete records that onboarding was finished.
func (f *Flow) Complete(ctx context.Context, developerFollowed bool) error {
	return f.store.SetOnboardingCompleted(ctx, developerFollowed, f.now())
}

func (f *Flow) UndoFollow(ctx context.Context) error {
	if f.developerID == "" {
		return ErrNoDeveloper
	}
	return f.platform.Unfollow(ctx, f.developerID)
}

func (f *Flow) UndoLike(ctx context.Context, mediaID string) error {
	if mediaID == "" {
		return errors.New("onboarding: no liked post to undo")
	}
	return f.platform.Unlike(ctx, mediaID)
}
