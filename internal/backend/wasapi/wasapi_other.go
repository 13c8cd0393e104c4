//go:build !windows

package wasapi

import (
	"errors"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

// ErrUnsupported is returned on platforms without WASAPI.
var ErrUnsupported = errors.New("wasapi: only available on Windows")

func New(zerolog.Logger) (audio.System, error) {
	return nil, ErrUnsupported
}
