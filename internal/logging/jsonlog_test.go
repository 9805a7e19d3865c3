package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONLinesWithFields(t *testing.T) {
	var buf bytes.Buffer
	Use(New(&buf, "info", "json"))
	defer Configure("info", "json")

	Info("automation_run_ok", map[string]any{"followed": 3, "error": errors.New("boom")})
	Debug("hidden", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "automation_run_ok", entry["message"])
	assert.EqualValues(t, 3, entry["followed"])
	assert.Equal(t, "boom", entry["error"])
	assert.NotEmpty(t, entry["time"])
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Use(New(&buf, "warn", "text"))
	defer Configure("info", "json")

	Info("skipped", nil)
	Warn("kept", nil)
	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), "kept")
}
