package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/audio/audiotest"
	"github.com/petems/spectrum-tray/internal/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	c := newCLI(&out)
	c.newLogger = func(string) zerolog.Logger { return zerolog.Nop() }
	c.openSystem = func(*config.Config, zerolog.Logger) (audio.System, error) {
		return audiotest.NewDefaultSystem(audiotest.Sine(44100, 1000, 0.5)), nil
	}

	root := c.root()
	root.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "config.json")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestDevicesMarksDefault(t *testing.T) {
	out, err := run(t, "devices")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "NAME")
	assert.True(t, strings.HasPrefix(lines[1], "*"), lines[1])
	assert.Contains(t, lines[1], "speakers")
	assert.Contains(t, lines[2], "headphones")
}

func TestDefaultDevice(t *testing.T) {
	out, err := run(t, "default-device")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "speakers"), out)
}

func TestSnapshotPrintsJSON(t *testing.T) {
	out, err := run(t, "snapshot", "--bands", "8", "--wait", "200ms")
	require.NoError(t, err)

	var values []float64
	require.NoError(t, json.Unmarshal([]byte(out), &values))
	require.Len(t, values, 8)
	var sum float64
	for _, v := range values {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
		sum += v
	}
	assert.Greater(t, sum, 0.0)
}

func TestWatchStopsAfterDuration(t *testing.T) {
	out, err := run(t, "watch", "--bands", "16", "--interval", "20ms", "--duration", "200ms")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.GreaterOrEqual(t, len(lines), 2)
	for _, line := range lines {
		assert.Equal(t, 16, utf8.RuneCountInString(line))
	}
}

func TestInvalidBackendFlag(t *testing.T) {
	_, err := run(t, "--backend", "jack", "devices")
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestBarsLineScalesRawValues(t *testing.T) {
	assert.Equal(t, "▁█", barsLine([]float64{0, 3}, 2))
	assert.Equal(t, "▁▇", barsLine([]float64{0, 0.99}, 2))
}
