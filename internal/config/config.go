package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/spf13/viper"
)

const envPrefix = "SPECTRUM"

type Config struct {
	LogLevel string         `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Backend  string         `json:"backend" mapstructure:"backend" validate:"oneof=wasapi malgo portaudio wav"`
	Audio    AudioConfig    `json:"audio" mapstructure:"audio"`
	Spectrum SpectrumConfig `json:"spectrum" mapstructure:"spectrum"`
	Tray     TrayConfig     `json:"tray" mapstructure:"tray"`

	path string
}

type AudioConfig struct {
	DeviceID   string `json:"device_id" mapstructure:"device_id"`
	ChunkSize  int    `json:"chunk_size" mapstructure:"chunk_size" validate:"gte=64,lte=16384"`
	SampleRate int    `json:"sample_rate" mapstructure:"sample_rate" validate:"gte=8000,lte=384000"`
	Channels   int    `json:"channels" mapstructure:"channels" validate:"gte=1,lte=8"`
	WAVPath    string `json:"wav_path" mapstructure:"wav_path"`
}

type SpectrumConfig struct {
	Bands   int     `json:"bands" mapstructure:"bands" validate:"gte=1,lte=1024"`
	Decay   float64 `json:"decay" mapstructure:"decay" validate:"gt=0,lte=1000"`
	FFTSize int     `json:"fft_size" mapstructure:"fft_size" validate:"gte=16,lte=65536,pow2"`
	Mode    string  `json:"mode" mapstructure:"mode" validate:"oneof=smoothed raw"`
}

type TrayConfig struct {
	RefreshMS int `json:"refresh_ms" mapstructure:"refresh_ms" validate:"gte=16,lte=5000"`
}

func defaultBackend() string {
	if runtime.GOOS == "windows" {
		return "wasapi"
	}
	return "malgo"
}

// Default returns the built-in configuration.
func Default() *Config {
	opts := spectrum.DefaultOptions()
	f := audio.DefaultFormat()
	return &Config{
		LogLevel: "info",
		Backend:  defaultBackend(),
		Audio: AudioConfig{
			ChunkSize:  2048,
			SampleRate: f.SampleRate,
			Channels:   f.Channels,
		},
		Spectrum: SpectrumConfig{
			Bands:   opts.Bands,
			Decay:   opts.Decay,
			FFTSize: opts.FFTSize,
			Mode:    opts.Mode.String(),
		},
		Tray: TrayConfig{
			RefreshMS: 100,
		},
		path: DefaultPath(),
	}
}

// Load reads the config at path (DefaultPath when empty), applies
// SPECTRUM_* environment overrides and falls back to defaults for anything
// unset. A missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath()
	}
	def := Default()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, def)

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.path = path
	return cfg, nil
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, def *Config) {
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("backend", def.Backend)
	v.SetDefault("audio.device_id", def.Audio.DeviceID)
	v.SetDefault("audio.chunk_size", def.Audio.ChunkSize)
	v.SetDefault("audio.sample_rate", def.Audio.SampleRate)
	v.SetDefault("audio.channels", def.Audio.Channels)
	v.SetDefault("audio.wav_path", def.Audio.WAVPath)
	v.SetDefault("spectrum.bands", def.Spectrum.Bands)
	v.SetDefault("spectrum.decay", def.Spectrum.Decay)
	v.SetDefault("spectrum.fft_size", def.Spectrum.FFTSize)
	v.SetDefault("spectrum.mode", def.Spectrum.Mode)
	v.SetDefault("tray.refresh_ms", def.Tray.RefreshMS)
}

// Path is the file Save writes to.
func (c *Config) Path() string {
	if c.path == "" {
		return DefaultPath()
	}
	return c.path
}

// Save writes the config to disk
func (c *Config) Save() error {
	path := c.Path()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Format is the capture format requested from the backend.
func (c *Config) Format() audio.Format {
	f := audio.DefaultFormat()
	f.SampleRate = c.Audio.SampleRate
	f.Channels = c.Audio.Channels
	return f
}

// SpectrumOptions converts the spectrum section. An unparsable mode falls
// back to smoothed; Validate reports it.
func (c *Config) SpectrumOptions() spectrum.Options {
	mode, err := spectrum.ParseMode(c.Spectrum.Mode)
	if err != nil {
		mode = spectrum.Smoothed
	}
	return spectrum.Options{
		Bands:   c.Spectrum.Bands,
		Decay:   c.Spectrum.Decay,
		FFTSize: c.Spectrum.FFTSize,
		Mode:    mode,
	}
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Tray.RefreshMS) * time.Millisecond
}

// DefaultPath returns the platform-specific config file path
func DefaultPath() string {
	var base string

	switch runtime.GOOS {
	case "darwin":
		base = os.Getenv("HOME") + "/Library/Application Support"
	case "windows":
		base = os.Getenv("APPDATA")
	default: // linux
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			base = xdg
		} else {
			base = os.Getenv("HOME") + "/.config"
		}
	}

	return filepath.Join(base, "spectrum-tray", "config.json")
}
