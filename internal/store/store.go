// Package store persists the engine state as one JSON blob, partitioned by the
// authenticated account, over a pluggable key-value Backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"charognard/internal/model"
)

var (
	// ErrNotLoggedIn is returned by account-scoped operations called without an account.
	ErrNotLoggedIn = errors.New("not logged in to Instagram")
	// ErrInvalidSettings wraps validation failures of settings and automation edits.
	ErrInvalidSettings = errors.New("invalid settings")
)

// Backend is a minimal byte-oriented key-value store.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// Store serializes read-modify-write cycles of the blob within the process.
// Writers in other processes sharing the backend remain last-write-wins.
type Store struct {
	backend Backend
	mu      sync.Mutex
}

var validate = validator.New()

func New(backend Backend) *Store {
	return &Store{backend: backend}
}

func (s *Store) Close() error { return s.backend.Close() }

// load reads and decodes the blob. Migrated or backfilled state is written back.
func (s *Store) load(ctx context.Context, accountID string) (decoded, error) {
	raw, ok, err := s.backend.Get(ctx, Key)
	if err != nil {
		return decoded{}, fmt.Errorf("read state: %w", err)
	}
	if !ok {
		return decoded{state: DefaultState()}, nil
	}
	d, err := decode(raw, accountID)
	if err != nil {
		return decoded{}, err
	}
	if d.dirty {
		if err := s.save(ctx, d.state); err != nil {
			return decoded{}, err
		}
		d.dirty = false
	}
	return d, nil
}

func (s *Store) save(ctx context.Context, st State) error {
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.backend.Put(ctx, Key, b); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// mutate runs fn over the current state and persists the result.
func (s *Store) mutate(ctx context.Context, accountID string, fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(ctx, accountID)
	if err != nil {
		return err
	}
	if d.legacy {
		return fmt.Errorf("legacy state needs an account to migrate into: %w", ErrNotLoggedIn)
	}
	if err := fn(&d.state); err != nil {
		return err
	}
	return s.save(ctx, d.state)
}

// State returns the full state without migrating legacy data.
func (s *Store) State(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(ctx, "")
	return d.state, err
}

// Read returns accountID's partition, or empty defaults when none exists.
func (s *Store) Read(ctx context.Context, accountID string) (AccountData, error) {
	if accountID == "" {
		return AccountData{}, ErrNotLoggedIn
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, err := s.load(ctx, accountID)
	if err != nil {
		return AccountData{}, err
	}
	acct, ok := d.state.Accounts[accountID]
	if !ok {
		return defaultAccountData(), nil
	}
	return acct, nil
}

// Write replaces accountID's partition.
func (s *Store) Write(ctx context.Context, accountID string, data AccountData) error {
	return s.Update(ctx, accountID, func(a *AccountData) error {
		*a = data
		return nil
	})
}

// Update applies fn to accountID's partition and persists it unless fn fails.
func (s *Store) Update(ctx context.Context, accountID string, fn func(*AccountData) error) error {
	if accountID == "" {
		return ErrNotLoggedIn
	}
	return s.mutate(ctx, accountID, func(st *State) error {
		acct, ok := st.Accounts[accountID]
		if !ok {
			acct = defaultAccountData()
		}
		if err := fn(&acct); err != nil {
			return err
		}
		if acct.FollowedProfiles == nil {
			acct.FollowedProfiles = map[string]FollowedProfile{}
		}
		st.Accounts[accountID] = acct
		return nil
	})
}

func (s *Store) Settings(ctx context.Context) (UserSettings, error) {
	st, err := s.State(ctx)
	return st.Settings, err
}

// UpdateSettings merges p into the global settings. The merged result must
// validate; invalid edits are rejected and nothing is written.
func (s *Store) UpdateSettings(ctx context.Context, p SettingsPatch) (UserSettings, error) {
	var out UserSettings
	err := s.mutate(ctx, "", func(st *State) error {
		next := p.Apply(st.Settings)
		if err := validate.Struct(next); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		st.Settings = next
		out = next
		return nil
	})
	return out, err
}

// ResetSettings restores the default limits.
func (s *Store) ResetSettings(ctx context.Context) (UserSettings, error) {
	def := DefaultSettings()
	err := s.mutate(ctx, "", func(st *State) error {
		st.Settings = def
		return nil
	})
	return def, err
}

func (s *Store) Automation(ctx context.Context) (AutomationSettings, error) {
	st, err := s.State(ctx)
	return st.Automation, err
}

func (s *Store) UpdateAutomation(ctx context.Context, p AutomationPatch) (AutomationSettings, error) {
	var out AutomationSettings
	err := s.mutate(ctx, "", func(st *State) error {
		next := p.Apply(st.Automation)
		if err := validate.Struct(next); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
		st.Automation = next
		out = next
		return nil
	})
	return out, err
}

// MarkAutomationRun sets lastRunAt and nothing else.
func (s *Store) MarkAutomationRun(ctx context.Context, at time.Time) error {
	return s.mutate(ctx, "", func(st *State) error {
		m := model.MillisOf(at)
		st.Automation.LastRunAt = &m
		return nil
	})
}

func (s *Store) Onboarding(ctx context.Context) (OnboardingData, error) {
	st, err := s.State(ctx)
	if err != nil || st.Onboarding == nil {
		return OnboardingData{}, err
	}
	return *st.Onboarding, nil
}

func (s *Store) SetOnboardingCompleted(ctx context.Context, developerFollowed bool, at time.Time) error {
	return s.mutate(ctx, "", func(st *State) error {
		m := model.MillisOf(at)
		st.Onboarding = &OnboardingData{Completed: true, CompletedAt: &m, DeveloperFollowed: developerFollowed}
		return nil
	})
}
