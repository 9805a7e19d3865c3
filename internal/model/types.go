package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// User is the identity snapshot of an Instagram account as returned by the web API.
type User struct {
	ID            string `json:"pk"`
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	ProfilePicURL string `json:"profile_pic_url"`
	IsVerified    bool   `json:"is_verified"`
	IsPrivate     bool   `json:"is_private"`
}

// UnmarshalJSON accepts pk both as a JSON string and as a JSON number.
func (u *User) UnmarshalJSON(b []byte) error {
	type plain User
	var aux struct {
		plain
		PK json.RawMessage `json:"pk"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*u = User(aux.plain)
	id, err := pkString(aux.PK)
	if err != nil {
		return err
	}
	u.ID = id
	return nil
}

// pkString normalizes a pk that may arrive quoted or as a bare number.
func pkString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", fmt.Errorf("invalid pk %s: %w", raw, err)
	}
	return n.String(), nil
}

// Handle renders the user as @username, falling back to the pk.
func (u User) Handle() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return "@" + u.ID
}

// Suggestion is one entry of the "accounts you may like" page.
type Suggestion struct {
	User          User   `json:"user"`
	SocialContext string `json:"social_context"`
	Caption       string `json:"caption"`
}

// SuggestionsPage is one page of suggestions plus its continuation cursor.
type SuggestionsPage struct {
	Suggestions []Suggestion `json:"suggestions"`
	NextCursor  string       `json:"nextCursor"`
	HasMore     bool         `json:"hasMore"`
}

// FriendshipStatus describes the relationship between the session account and a target.
type FriendshipStatus struct {
	Following       bool `json:"following"`
	FollowedBy      bool `json:"followed_by"`
	Blocking        bool `json:"blocking"`
	Muting          bool `json:"muting"`
	IsPrivate       bool `json:"is_private"`
	IncomingRequest bool `json:"incoming_request"`
	OutgoingRequest bool `json:"outgoing_request"`
}

// Media is the subset of a feed item needed to like or unlike it.
type Media struct {
	PK      string `json:"pk"`
	ID      string `json:"id"`
	Code    string `json:"code"`
	TakenAt int64  `json:"taken_at"`
}

// UnmarshalJSON accepts pk both as a JSON string and as a JSON number.
func (m *Media) UnmarshalJSON(b []byte) error {
	type plain Media
	var aux struct {
		plain
		PK json.RawMessage `json:"pk"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*m = Media(aux.plain)
	pk, err := pkString(aux.PK)
	if err != nil {
		return err
	}
	m.PK = pk
	return nil
}

// FollowBack records whether a followed account follows the operator back.
// The zero value is FollowBackUnknown: never checked.
type FollowBack int8

const (
	FollowBackUnknown FollowBack = iota
	FollowBackYes
	FollowBackNo
)

// FollowBackOf converts a confirmed followed_by flag.
func FollowBackOf(followedBy bool) FollowBack {
	if followedBy {
		return FollowBackYes
	}
	return FollowBackNo
}

func (f FollowBack) String() string {
	switch f {
	case FollowBackYes:
		return "yes"
	case FollowBackNo:
		return "no"
	default:
		return "unknown"
	}
}

// MarshalJSON persists the status as true, false or null.
func (f FollowBack) MarshalJSON() ([]byte, error) {
	switch f {
	case FollowBackYes:
		return []byte("true"), nil
	case FollowBackNo:
		return []byte("false"), nil
	default:
		return []byte("null"), nil
	}
}

func (f *FollowBack) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case "true":
		*f = FollowBackYes
	case "false":
		*f = FollowBackNo
	case "null":
		*f = FollowBackUnknown
	default:
		return fmt.Errorf("invalid followedBack value %s", b)
	}
	return nil
}

// Millis is a Unix timestamp in milliseconds, the unit of the persisted state.
type Millis int64

func MillisOf(t time.Time) Millis { return Millis(t.UnixMilli()) }

func (m Millis) Time() time.Time { return time.UnixMilli(int64(m)) }

// ActionType is a quota-governed mutating action.
type ActionType string

const (
	ActionFollow   ActionType = "follow"
	ActionUnfollow ActionType = "unfollow"
)

// ActionRecord is one committed action, kept for history and stats.
type ActionRecord struct {
	At        time.Time
	AccountID string
	Action    ActionType
}
