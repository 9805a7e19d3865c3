package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadKeepsDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "charognard.yaml")
	cfg := Default()
	cfg.Session.DSUserID = "42"
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "42", got.Session.DSUserID)
	assert.Equal(t, 2000, got.Pacing.ActionBaseMs)

	partial := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("storage:\n  driver: badger\n"), 0o600))
	got, err = Load(partial)
	require.NoError(t, err)
	assert.Equal(t, "badger", got.Storage.Driver)
	assert.Equal(t, "936619743392459", got.Platform.AppID)
}

func TestResolveEnvFillsSession(t *testing.T) {
	t.Setenv("IG_SESSIONID", "sess")
	t.Setenv("IG_CSRFTOKEN", "tok")
	t.Setenv("IG_DS_USER_ID", "7")
	cfg := Default()
	cfg.ResolveEnv()
	assert.Equal(t, "sess", cfg.Session.SessionID)
	assert.Equal(t, "tok", cfg.Session.CSRFToken)
	assert.Equal(t, "7", cfg.Session.DSUserID)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Storage.Driver = "postgres"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timezone = "Mars/Olympus"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timezone = "Europe/Paris"
	require.NoError(t, cfg.Validate())
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Paris", loc.String())
}
