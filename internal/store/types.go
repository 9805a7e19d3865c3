package store

import (
	"time"

	"charognard/internal/model"
)

// Key is the name the whole persisted state lives under in a Backend.
const Key = "ig_extension_data"

const (
	DefaultFollowLimit   = 150
	DefaultUnfollowLimit = 150
	DefaultSkipFollowers = true
)

// FollowedProfile is one account followed through this tool.
type FollowedProfile struct {
	User          model.User       `json:"user"`
	FollowedAt    model.Millis     `json:"followedAt"`
	FollowedBack  model.FollowBack `json:"followedBack"`
	LastCheckedAt *model.Millis    `json:"lastCheckedAt,omitempty"`
}

// DailyActions is the per-day action counter of one account. Date is YYYY-MM-DD.
type DailyActions struct {
	Date          string `json:"date"`
	FollowCount   int    `json:"followCount"`
	UnfollowCount int    `json:"unfollowCount"`
}

// Count returns the counter for action, or 0 if the record is not dated date.
func (d *DailyActions) Count(action model.ActionType, date string) int {
	if d == nil || d.Date != date {
		return 0
	}
	if action == model.ActionFollow {
		return d.FollowCount
	}
	return d.UnfollowCount
}

// AccountData is the partition of the state owned by one authenticated account.
type AccountData struct {
	FollowedProfiles map[string]FollowedProfile `json:"followedProfiles"`
	DailyActions     *DailyActions              `json:"dailyActions,omitempty"`
}

type UserSettings struct {
	FollowLimit   int  `json:"followLimit" validate:"min=1,max=500"`
	UnfollowLimit int  `json:"unfollowLimit" validate:"min=1,max=500"`
	SkipFollowers bool `json:"skipFollowers"`
}

// Limit returns the daily cap configured for action.
func (s UserSettings) Limit(action model.ActionType) int {
	if action == model.ActionFollow {
		return s.FollowLimit
	}
	return s.UnfollowLimit
}

type Frequency string

const (
	Daily  Frequency = "Daily"
	Weekly Frequency = "Weekly"
)

type AutomationSettings struct {
	Enabled   bool         `json:"enabled"`
	Frequency Frequency    `json:"frequency" validate:"oneof=Daily Weekly"`
	DayOfWeek time.Weekday `json:"dayOfWeek" validate:"min=0,max=6"`
	Hour      int          `json:"hour" validate:"min=0,max=23"`
	Minute    int          `json:"minute" validate:"min=0,max=59"`

	AutoFollowEnabled bool `json:"autoFollowEnabled"`
	AutoFollowCount   int  `json:"autoFollowCount" validate:"min=1,max=150"`

	AutoUnfollowEnabled          bool `json:"autoUnfollowEnabled"`
	AutoUnfollowDaysThreshold    int  `json:"autoUnfollowDaysThreshold" validate:"min=1,max=30"`
	AutoUnfollowOnlyNonFollowers bool `json:"autoUnfollowOnlyNonFollowers"`

	LastRunAt *model.Millis `json:"lastRunAt,omitempty"`
}

type OnboardingData struct {
	Completed         bool          `json:"completed"`
	CompletedAt       *model.Millis `json:"completedAt,omitempty"`
	DeveloperFollowed bool          `json:"developerFollowed"`
}

// State is the full persisted blob.
type State struct {
	Accounts   map[string]AccountData `json:"accounts"`
	Settings   UserSettings           `json:"settings"`
	Automation AutomationSettings     `json:"automation"`
	Onboarding *OnboardingData        `json:"onboarding,omitempty"`
}

// SettingsPatch carries a partial update; nil fields are left untouched.
type SettingsPatch struct {
	FollowLimit   *int  `json:"followLimit,omitempty"`
	UnfollowLimit *int  `json:"unfollowLimit,omitempty"`
	SkipFollowers *bool `json:"skipFollowers,omitempty"`
}

// AutomationPatch carries a partial update; nil fields are left untouched.
// lastRunAt is owned by the engine and cannot be patched.
type AutomationPatch struct {
	Enabled                      *bool         `json:"enabled,omitempty"`
	Frequency                    *Frequency    `json:"frequency,omitempty"`
	DayOfWeek                    *time.Weekday `json:"dayOfWeek,omitempty"`
	Hour                         *int          `json:"hour,omitempty"`
	Minute                       *int          `json:"minute,omitempty"`
	AutoFollowEnabled            *bool         `json:"autoFollowEnabled,omitempty"`
	AutoFollowCount              *int          `json:"autoFollowCount,omitempty"`
	AutoUnfollowEnabled          *bool         `json:"autoUnfollowEnabled,omitempty"`
	AutoUnfollowDaysThreshold    *int          `json:"autoUnfollowDaysThreshold,omitempty"`
	AutoUnfollowOnlyNonFollowers *bool         `json:"autoUnfollowOnlyNonFollowers,omitempty"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		FollowLimit:   DefaultFollowLimit,
		UnfollowLimit: DefaultUnfollowLimit,
		SkipFollowers: DefaultSkipFollowers,
	}
}

func DefaultAutomation() AutomationSettings {
	return AutomationSettings{
		Enabled:                      false,
		Frequency:                    Daily,
		DayOfWeek:                    time.Monday,
		Hour:                         10,
		Minute:                       0,
		AutoFollowEnabled:            true,
		AutoFollowCount:              50,
		AutoUnfollowEnabled:          true,
		AutoUnfollowDaysThreshold:    7,
		AutoUnfollowOnlyNonFollowers: true,
	}
}

func DefaultState() State {
	return State{
		Accounts:   map[string]AccountData{},
		Settings:   DefaultSettings(),
		Automation: DefaultAutomation(),
	}
}

func defaultAccountData() AccountData {
	return AccountData{FollowedProfiles: map[string]FollowedProfile{}}
}

// Apply merges the non-nil fields of p into s.
func (p SettingsPatch) Apply(s UserSettings) UserSettings {
	if p.FollowLimit != nil {
		s.FollowLimit = *p.FollowLimit
	}
	if p.UnfollowLimit != nil {
		s.UnfollowLimit = *p.UnfollowLimit
	}
	if p.SkipFollowers != nil {
		s.SkipFollowers = *p.SkipFollowers
	}
	return s
}

// Apply merges the non-nil fields of p into a.
func (p AutomationPatch) Apply(a AutomationSettings) AutomationSettings {
	if p.Enabled != nil {
		a.Enabled = *p.Enabled
	}
	if p.Frequency != nil {
		a.Frequency = *p.Frequency
	}
	if p.DayOfWeek != nil {
		a.DayOfWeek = *p.DayOfWeek
	}
	if p.Hour != nil {
		a.Hour = *p.Hour
	}
	if p.Minute != nil {
		a.Minute = *p.Minute
	}
	if p.AutoFollowEnabled != nil {
		a.AutoFollowEnabled = *p.AutoFollowEnabled
	}
	if p.AutoFollowCount != nil {
		a.AutoFollowCount = *p.AutoFollowCount
	}
	if p.AutoUnfollowEnabled != nil {
		a.AutoUnfollowEnabled = *p.AutoUnfollowEnabled
	}
	if p.AutoUnfollowDaysThreshold != nil {
		a.AutoUnfollowDaysThreshold = *p.AutoUnfollowDaysThreshold
	}
	if p.AutoUnfollowOnlyNonFollowers != nil {
		a.AutoUnfollowOnlyNonFollowers = *p.AutoUnfollowOnlyNonFollowers
	}
	return a
}
