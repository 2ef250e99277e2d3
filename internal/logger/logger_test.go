package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info().Msg("dropped")
	log.Warn().Str("run_id", "r1").Msg("kept")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["message"])
	assert.Equal(t, "r1", entry["run_id"])
	assert.Equal(t, "warn", entry["level"])
}

func TestNew_DefaultsToInfo(t *testing.T) {
	for _, level := range []string{"", "verbose"} {
		log := New(Config{Level: level, Output: &bytes.Buffer{}})
		assert.Equal(t, zerolog.InfoLevel, log.GetLevel(), "level %q", level)
	}
	assert.Equal(t, zerolog.DebugLevel, New(Config{Level: "DEBUG", Output: &bytes.Buffer{}}).GetLevel())
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Pretty: true, Output: &buf})
	log.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), `"message"`)
}
