package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charognard/internal/model"
	"charognard/internal/store"
)

func TestHourlyActions(t *testing.T) {
	base := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	records := []model.ActionRecord{
		{At: base.Add(5 * time.Minute), Action: model.ActionFollow},
		{At: base.Add(59 * time.Minute), Action: model.ActionFollow},
		{At: base.Add(61 * time.Minute), Action: model.ActionUnfollow},
		{At: base.Add(-time.Minute), Action: model.ActionFollow},
	}
	b := HourlyActions(records, time.UTC)
	keys := SortedBucketKeys(b)
	require.Len(t, keys, 3)
	assert.Equal(t, base.Add(-time.Hour), keys[0])
	assert.Equal(t, 2, b[base][model.ActionFollow])
	assert.Equal(t, 1, b[base.Add(time.Hour)][model.ActionUnfollow])
	assert.Zero(t, b[base][model.ActionUnfollow])
}

func TestHourlyActionsUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5:30", 5*3600+1800)
	at := time.Date(2025, 6, 2, 9, 10, 0, 0, time.UTC)
	keys := SortedBucketKeys(HourlyActions([]model.ActionRecord{{At: at, Action: model.ActionFollow}}, loc))
	require.Len(t, keys, 1)
	assert.Equal(t, 14, keys[0].Hour())
	assert.Equal(t, 0, keys[0].Minute())
}

func TestFollowBackStats(t *testing.T) {
	s := FollowBack([]store.FollowedProfile{
		{FollowedBack: model.FollowBackYes},
		{FollowedBack: model.FollowBackYes},
		{FollowedBack: model.FollowBackNo},
		{},
	})
	assert.Equal(t, FollowBackStats{Total: 4, Yes: 2, No: 1, Unknown: 1}, s)
	assert.InDelta(t, 2.0/3.0, s.Ratio(), 1e-9)
	assert.Zero(t, FollowBack(nil).Ratio())
}

func TestLastChecked(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *model.Millis {
		m := model.MillisOf(now.Add(-d))
		return &m
	}
	cases := map[string]*model.Millis{
		"Never checked":      nil,
		"Checked just now":   at(30 * time.Second),
		"Checked 5m ago":     at(5 * time.Minute),
		"Checked 3h ago":     at(3*time.Hour + 20*time.Minute),
		"Checked 1 day ago":  at(30 * time.Hour),
		"Checked 4 days ago": at(4*24*time.Hour + time.Hour),
	}
	for want, ts := range cases {
		assert.Equal(t, want, LastChecked(ts, now))
	}
}

func TestFollowedAgo(t *testing.T) {
	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "Today", FollowedAgo(model.MillisOf(now.Add(-time.Hour)), now))
	assert.Equal(t, "1 day ago", FollowedAgo(model.MillisOf(now.Add(-25*time.Hour)), now))
	assert.Equal(t, "8 days ago", FollowedAgo(model.MillisOf(now.Add(-8*24*time.Hour)), now))
}
