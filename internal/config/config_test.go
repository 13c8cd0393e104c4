package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2048, cfg.Audio.ChunkSize)
	assert.Equal(t, 64, cfg.Spectrum.Bands)
	assert.Equal(t, "smoothed", cfg.Spectrum.Mode)
	assert.Equal(t, 100*time.Millisecond, cfg.RefreshInterval())
	assert.Equal(t, "float32/32 44100Hz 2ch", cfg.Format().String())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Audio, cfg.Audio)
	assert.Equal(t, def.Spectrum, cfg.Spectrum)
	assert.Equal(t, path, cfg.Path())
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "backend": "portaudio",
  "audio": {"device_id": "abc", "chunk_size": 4096},
  "spectrum": {"mode": "raw", "bands": 32}
}`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "portaudio", cfg.Backend)
	assert.Equal(t, "abc", cfg.Audio.DeviceID)
	assert.Equal(t, 4096, cfg.Audio.ChunkSize)
	assert.Equal(t, 44100, cfg.Audio.SampleRate, "unset keys keep defaults")
	assert.Equal(t, spectrum.Raw, cfg.SpectrumOptions().Mode)
	assert.Equal(t, 32, cfg.SpectrumOptions().Bands)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SPECTRUM_AUDIO_CHUNK_SIZE", "1024")
	t.Setenv("SPECTRUM_LOG_LEVEL", "debug")

	cfg, err := Load(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	assert.Equal(t, 1024, cfg.Audio.ChunkSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"audio": `), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Audio.DeviceID = "speakers"
	cfg.Spectrum.Decay = 4.5
	require.NoError(t, cfg.Save())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "speakers", loaded.Audio.DeviceID)
	assert.Equal(t, 4.5, loaded.Spectrum.Decay)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Audio.ChunkSize = 10
	cfg.Spectrum.FFTSize = 1000
	cfg.Spectrum.Mode = "wobbly"

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "audio.chunk_size must be at least 64")
	assert.Contains(t, err.Error(), "spectrum.fft_size must be a power of two")
	assert.Contains(t, err.Error(), "spectrum.mode must be one of: smoothed raw")
}

func TestValidateWAVBackendNeedsPath(t *testing.T) {
	cfg := Default()
	cfg.Backend = "wav"
	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "audio.wav_path is required when backend is wav")

	cfg.Audio.WAVPath = "/tmp/tone.wav"
	assert.NoError(t, cfg.Validate())
}

func TestValidateUnknownBackend(t *testing.T) {
	cfg := Default()
	cfg.Backend = "jack"
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
