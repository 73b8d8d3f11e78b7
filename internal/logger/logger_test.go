package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_WritesComponentField(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "debug"}, &buf)
	require.NoError(t, err)

	log.WithComponent("lifecycle").Info().Str("pair", "a|b").Msg("Connection active")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "lifecycle", line["component"])
	assert.Equal(t, "a|b", line["pair"])
	assert.Equal(t, "info", line["level"])
}

func TestNewWithWriter_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log, err := NewWithWriter(Config{Level: "warn"}, &buf)
	require.NoError(t, err)

	log.Info().Msg("hidden")
	assert.Zero(t, buf.Len())

	log.SetDebug(true)
	log.Debug().Msg("shown")
	assert.NotZero(t, buf.Len())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(Config{Level: "loud"})
	assert.Error(t, err)

	_, err = New(Config{Output: "carrier-pigeon"})
	assert.Error(t, err)
}

func TestNewTestLogger(t *testing.T) {
	log := NewTestLogger()
	log.Error().Msg("discarded")
	log.SetLevel(zerolog.DebugLevel)
	assert.NotNil(t, log.WithComponent("x"))
}
