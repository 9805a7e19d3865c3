package bulk

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charognard/internal/igclient"
	"charognard/internal/model"
	"charognard/internal/pacing"
	"charognard/internal/quota"
	"charognard/internal/store"
	"charognard/internal/store/sqlitekv"
)

var now = time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)

type fakePlatform struct {
	followedBy map[string]bool
	statusErr  map[string]error
	failFollow map[string]bool
	calls      []string
}

func (f *fakePlatform) Follow(_ context.Context, id string) error {
	f.calls = append(f.calls, "follow:"+id)
	if f.failFollow[id] {
		return &igclient.RequestFailedError{Op: "follow user", Status: 400}
	}
	return nil
}

func (f *fakePlatform) Unfollow(_ context.Context, id string) error {
	f.calls = append(f.calls, "unfollow:"+id)
	return nil
}

func (f *fakePlatform) FriendshipStatus(_ context.Context, id string) (model.FriendshipStatus, error) {
	f.calls = append(f.calls, "status:"+id)
	if err := f.statusErr[id]; err != nil {
		return model.FriendshipStatus{}, err
	}
	return model.FriendshipStatus{FollowedBy: f.followedBy[id]}, nil
}

type fixture struct {
	svc   *Service
	store *store.Store
	quota *quota.Governor
	plat  *fakePlatform
	waits []pacing.Kind
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlitekv.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := store.New(db)
	clock := func() time.Time { return now }
	q := quota.New(st, quota.WithClock(clock), quota.WithLocation(time.UTC))
	f := &fixture{store: st, quota: q, plat: &fakePlatform{followedBy: map[string]bool{}, statusErr: map[string]error{}, failFollow: map[string]bool{}}}
	var last pacing.Kind
	pacer := &pacing.Pacer{
		Strategy: func(k pacing.Kind) time.Duration { last = k; return time.Millisecond },
		Sleep: func(context.Context, time.Duration) error {
			f.waits = append(f.waits, last)
			return nil
		},
	}
	f.svc = New(st, q, f.plat, pacer, WithClock(clock))
	return f
}

func u(id string) model.User { return model.User{ID: id, Username: "u" + id} }

func (f *fixture) setSettings(t *testing.T, p store.SettingsPatch) {
	t.Helper()
	_, err := f.store.UpdateSettings(context.Background(), p)
	require.NoError(t, err)
}

func TestSingleFollowAndUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Follow(ctx, "A", u("1")))
	p, ok, err := f.store.FollowedProfile(ctx, "A", "1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "u1", p.User.Username)

	require.NoError(t, f.svc.Unfollow(ctx, "A", "1"))
	_, ok, err = f.store.FollowedProfile(ctx, "A", "1")
	require.NoError(t, err)
	assert.False(t, ok)

	for _, a := range []model.ActionType{model.ActionFollow, model.ActionUnfollow} {
		n, err := f.quota.Count(ctx, "A", a)
		require.NoError(t, err)
		assert.Equal(t, 1, n, a)
	}
}

func TestSingleFollowRespectsQuota(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	one := 1
	f.setSettings(t, store.SettingsPatch{FollowLimit: &one})
	require.NoError(t, f.svc.FollowID(ctx, "A", "1"))
	err := f.svc.FollowID(ctx, "A", "2")
	assert.ErrorIs(t, err, quota.ErrExhausted)
	assert.Equal(t, []string{"follow:1"}, f.plat.calls)
}

func TestFailedFollowIsNotCounted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.plat.failFollow["1"] = true
	err := f.svc.Follow(ctx, "A", u("1"))
	var rf *igclient.RequestFailedError
	require.True(t, errors.As(err, &rf))
	n, err := f.quota.Count(ctx, "A", model.ActionFollow)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMassFollowSkipsFollowers(t *testing.T) {
	f := newFixture(t)
	f.plat.followedBy["2"] = true
	f.plat.statusErr["3"] = errors.New("timeout")

	res, err := f.svc.MassFollow(context.Background(), "A", []model.User{u("1"), u("2"), u("3"), u("4")})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Skipped)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{
		"status:1", "follow:1",
		"status:2",
		"status:3", "follow:3",
		"status:4", "follow:4",
	}, f.plat.calls)
	assert.Equal(t, []pacing.Kind{pacing.Action, pacing.Skip, pacing.Action}, f.waits)
}

func TestMassFollowWithoutSkipFollowers(t *testing.T) {
	f := newFixture(t)
	off := false
	f.setSettings(t, store.SettingsPatch{SkipFollowers: &off})
	f.plat.failFollow["2"] = true
	private := u("3")
	private.IsPrivate = true

	res, err := f.svc.MassFollow(context.Background(), "A", []model.User{u("1"), u("2"), private})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "@u2")
	assert.Equal(t, []string{"follow:1", "follow:2", "follow:3"}, f.plat.calls)
}

func TestMassFollowStopsAtQuota(t *testing.T) {
	f := newFixture(t)
	two := 2
	off := false
	f.setSettings(t, store.SettingsPatch{FollowLimit: &two, SkipFollowers: &off})
	res, err := f.svc.MassFollow(context.Background(), "A", []model.User{u("1"), u("2"), u("3")})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Succeeded)
	assert.True(t, res.QuotaExhausted)
	assert.Len(t, f.waits, 1)
}

func TestMassUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddFollowedProfile(ctx, "A", u("1"), now))
	require.NoError(t, f.store.AddFollowedProfile(ctx, "A", u("2"), now))

	res, err := f.svc.MassUnfollow(ctx, "A", []string{"1", "2", "untracked"})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	left, err := f.store.FollowedProfiles(ctx, "A")
	require.NoError(t, err)
	assert.Empty(t, left)
	assert.Equal(t, []pacing.Kind{pacing.Action, pacing.Action}, f.waits)
}

func TestCheckAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, f.store.AddFollowedProfile(ctx, "A", u(id), now))
	}
	f.plat.followedBy["1"] = true
	f.plat.statusErr["3"] = errors.New("boom")

	res, err := f.svc.CheckAll(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Checked)
	assert.Equal(t, 1, res.FollowingBack)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, []pacing.Kind{pacing.Check, pacing.Check}, f.waits)

	p1, _, err := f.store.FollowedProfile(ctx, "A", "1")
	require.NoError(t, err)
	assert.Equal(t, model.FollowBackYes, p1.FollowedBack)
	p2, _, err := f.store.FollowedProfile(ctx, "A", "2")
	require.NoError(t, err)
	assert.Equal(t, model.FollowBackNo, p2.FollowedBack)
	p3, _, err := f.store.FollowedProfile(ctx, "A", "3")
	require.NoError(t, err)
	assert.Equal(t, model.FollowBackUnknown, p3.FollowedBack)
}

func TestRemoveFromTrackingDoesNotUnfollow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.AddFollowedProfile(ctx, "A", u("1"), now))
	require.NoError(t, f.store.AddFollowedProfile(ctx, "A", u("2"), now))

	removed, err := f.svc.RemoveFromTracking(ctx, "A", "1")
	require.NoError(t, err)
	assert.True(t, removed)
	n, err := f.svc.ClearTracking(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, f.plat.calls)
}

func TestRequiresAccount(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MassFollow(context.Background(), "", []model.User{u("1")})
	assert.ErrorIs(t, err, store.ErrNotLoggedIn)
	_, err = f.svc.MassUnfollow(context.Background(), "", []string{"1"})
	assert.ErrorIs(t, err, store.ErrNotLoggedIn)
}
