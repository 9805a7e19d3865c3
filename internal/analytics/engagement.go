// Package analytics summarises committed actions and follow-back results.
package analytics

import (
	"fmt"
	"sort"
	"time"

	"charognard/internal/model"
	"charognard/internal/store"
)

// HourlyActions aggregates records into per-hour buckets in loc.
func HourlyActions(records []model.ActionRecord, loc *time.Location) map[time.Time]map[model.ActionType]int {
	buckets := make(map[time.Time]map[model.ActionType]int)
	for _, r := range records {
		t := r.At.In(loc)
		key := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
		if _, ok := buckets[key]; !ok {
			buckets[key] = make(map[model.ActionType]int)
		}
		buckets[key][r.Action]++
	}
	return buckets
}

// SortedBucketKeys returns sorted hour keys.
func SortedBucketKeys(m map[time.Time]map[model.ActionType]int) []time.Time {
	keys := make([]time.Time, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })
	return keys
}

// FollowBackStats counts tracked profiles by follow-back status.
type FollowBackStats struct {
	Total   int `json:"total"`
	Yes     int `json:"yes"`
	No      int `json:"no"`
	Unknown int `json:"unknown"`
}

func FollowBack(profiles []store.FollowedProfile) FollowBackStats {
	var s FollowBackStats
	for _, p := range profiles {
		s.Total++
		switch p.FollowedBack {
		case model.FollowBackYes:
			s.Yes++
		case model.FollowBackNo:
			s.No++
		default:
			s.Unknown++
		}
	}
	return s
}

// Ratio is the share of checked profiles that follow back, 0 when none were checked.
func (s FollowBackStats) Ratio() float64 {
	if s.Yes+s.No == 0 {
		return 0
	}
	return float64(s.Yes) / float64(s.Yes+s.No)
}

// LastChecked renders the age of a follow-back probe.
func LastChecked(at *model.Millis, now time.Time) string {
	if at == nil || *at == 0 {
		return "Never checked"
	}
	d := now.Sub(at.Time())
	switch minutes := int(d / time.Minute); {
	case minutes < 1:
		return "Checked just now"
	case minutes < 60:
		return fmt.Sprintf("Checked %dm ago", minutes)
	case d < 24*time.Hour:
		return fmt.Sprintf("Checked %dh ago", int(d/time.Hour))
	}
	return "Checked " + days(d)
}

// FollowedAgo renders the age of a follow in whole days.
func FollowedAgo(at model.Millis, now time.Time) string {
	d := now.Sub(at.Time())
	if d < 24*time.Hour {
		return "Today"
	}
	return days(d)
}

func days(d time.Duration) string {
	n := int(d / (24 * time.Hour))
	if n == 1 {
		return "1 day ago"
	}
	return fmt.Sprintf("%d days ago", n)
}
