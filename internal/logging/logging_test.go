package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel(" WARN "))
	assert.Equal(t, zerolog.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestBuildWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "spectrum-tray", "spectrum-tray.log")

	logger := build(&console, path, zerolog.InfoLevel)
	logger.Debug().Msg("hidden")
	logger.Info().Str("device", "speakers").Msg("Capture started")

	assert.Contains(t, console.String(), "Capture started")
	assert.NotContains(t, console.String(), "hidden")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"device":"speakers"`)
}

func TestBuildFallsBackToConsole(t *testing.T) {
	var console bytes.Buffer
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	logger := build(&console, filepath.Join(blocker, "sub", "x.log"), zerolog.InfoLevel)
	logger.Info().Msg("still here")

	assert.Contains(t, console.String(), "Logging to console only")
	assert.Contains(t, console.String(), "still here")
}
