package store

import (
	"encoding/json"
	"fmt"
)

var (
	settingsKeys   = []string{"followLimit", "unfollowLimit", "skipFollowers"}
	automationKeys = []string{
		"enabled", "frequency", "dayOfWeek", "hour", "minute",
		"autoFollowEnabled", "autoFollowCount",
		"autoUnfollowEnabled", "autoUnfollowDaysThreshold", "autoUnfollowOnlyNonFollowers",
	}
)

// legacyState is the flat shape written before accounts were partitioned.
type legacyState struct {
	FollowedProfiles map[string]FollowedProfile `json:"followedProfiles"`
	DailyActions     *struct {
		Date  string `json:"date"`
		Count int    `json:"count"`
	} `json:"dailyActions"`
}

// decoded is the outcome of reading a raw blob.
type decoded struct {
	state State
	// dirty is set when the blob was migrated or backfilled and must be written back.
	dirty bool
	// legacy is set when the blob is still in the flat shape because no account was
	// available to migrate it into.
	legacy bool
}

func isLegacy(top map[string]json.RawMessage) bool {
	_, flat := top["followedProfiles"]
	_, partitioned := top["accounts"]
	return flat && !partitioned
}

// decode parses raw, migrating the legacy shape into accountID's partition and
// backfilling settings and automation keys that are missing.
func decode(raw []byte, accountID string) (decoded, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return decoded{}, fmt.Errorf("decode state: %w", err)
	}
	if isLegacy(top) {
		if accountID == "" {
			return decoded{state: DefaultState(), legacy: true}, nil
		}
		st, err := migrateLegacy(raw, accountID)
		if err != nil {
			return decoded{}, err
		}
		return decoded{state: st, dirty: true}, nil
	}

	st := DefaultState()
	var dirty bool
	if v, ok := top["accounts"]; ok {
		if err := json.Unmarshal(v, &st.Accounts); err != nil {
			return decoded{}, fmt.Errorf("decode accounts: %w", err)
		}
	}
	if st.Accounts == nil {
		st.Accounts = map[string]AccountData{}
	}
	for id, acct := range st.Accounts {
		if acct.FollowedProfiles == nil {
			acct.FollowedProfiles = map[string]FollowedProfile{}
			st.Accounts[id] = acct
		}
	}
	d, err := backfill(top, "settings", &st.Settings, settingsKeys)
	if err != nil {
		return decoded{}, err
	}
	dirty = dirty || d
	d, err = backfill(top, "automation", &st.Automation, automationKeys)
	if err != nil {
		return decoded{}, err
	}
	dirty = dirty || d
	if v, ok := top["onboarding"]; ok && string(v) != "null" {
		st.Onboarding = &OnboardingData{}
		if err := json.Unmarshal(v, st.Onboarding); err != nil {
			return decoded{}, fmt.Errorf("decode onboarding: %w", err)
		}
	}
	return decoded{state: st, dirty: dirty}, nil
}

// backfill decodes top[name] over dst, which already holds defaults, and reports
// whether any of keys was absent.
func backfill(top map[string]json.RawMessage, name string, dst any, keys []string) (bool, error) {
	v, ok := top[name]
	if !ok || string(v) == "null" {
		return true, nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	var present map[string]json.RawMessage
	if err := json.Unmarshal(v, &present); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	for _, k := range keys {
		if _, ok := present[k]; !ok {
			return true, nil
		}
	}
	return false, nil
}

// migrateLegacy moves the flat shape into accountID's partition. The combined
// daily counter is split with the odd action going to unfollow. Settings and
// automation start from defaults.
func migrateLegacy(raw []byte, accountID string) (State, error) {
	var old legacyState
	if err := json.Unmarshal(raw, &old); err != nil {
		return State{}, fmt.Errorf("decode legacy state: %w", err)
	}
	st := DefaultState()
	acct := defaultAccountData()
	for id, p := range old.FollowedProfiles {
		acct.FollowedProfiles[id] = p
	}
	if old.DailyActions != nil {
		n := old.DailyActions.Count
		acct.DailyActions = &DailyActions{
			Date:          old.DailyActions.Date,
			FollowCount:   n / 2,
			UnfollowCount: n - n/2,
		}
	}
	st.Accounts[accountID] = acct
	return st, nil
}
