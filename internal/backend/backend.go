// Package backend opens the audio.System named in configuration.
package backend

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/backend/miniaudio"
	"github.com/petems/spectrum-tray/internal/backend/portaudio"
	"github.com/petems/spectrum-tray/internal/backend/wasapi"
	"github.com/petems/spectrum-tray/internal/backend/wavfile"
	"github.com/rs/zerolog"
)

const (
	WASAPI    = "wasapi"
	Malgo     = "malgo"
	PortAudio = "portaudio"
	WAV       = "wav"
)

var (
	ErrUnknownBackend = errors.New("unknown audio backend")
	ErrMissingWAVPath = errors.New("wav backend requires audio.wav_path")
)

// Names lists the selectable backends.
func Names() []string {
	return []string{WASAPI, Malgo, PortAudio, WAV}
}

// DefaultName is the backend used when none is configured.
func DefaultName() string {
	if runtime.GOOS == "windows" {
		return WASAPI
	}
	return Malgo
}

type Options struct {
	Name    string
	WAVPath string
	Logger  zerolog.Logger
}

// Open initializes the named backend. The caller owns the returned system
// and must Close it.
func Open(opts Options) (audio.System, error) {
	name := opts.Name
	if name == "" {
		name = DefaultName()
	}
	opts.Logger.Debug().Str("backend", name).Msg("Opening audio backend")

	switch name {
	case WASAPI:
		sys, err := wasapi.New(opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		return sys, nil
	case Malgo:
		sys, err := miniaudio.New(opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		return sys, nil
	case PortAudio:
		sys, err := portaudio.New(opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		return sys, nil
	case WAV:
		if opts.WAVPath == "" {
			return nil, ErrMissingWAVPath
		}
		sys, err := wavfile.New(opts.WAVPath, opts.Logger)
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		return sys, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}
