package backend

import (
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Name: "alsa-direct", Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestOpenWAVRequiresPath(t *testing.T) {
	_, err := Open(Options{Name: WAV, Logger: zerolog.Nop()})
	assert.ErrorIs(t, err, ErrMissingWAVPath)
}

func TestDefaultName(t *testing.T) {
	if runtime.GOOS == "windows" {
		assert.Equal(t, WASAPI, DefaultName())
	} else {
		assert.Equal(t, Malgo, DefaultName())
	}
	assert.Contains(t, Names(), DefaultName())
}
