package tray

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusTitle(t *testing.T) {
	assert.Equal(t, "🎵 ⏸", statusTitle(false, nil, nil))
	assert.Equal(t, "🎵 ⚠️", statusTitle(true, errors.New("device gone"), []float64{1}))
	assert.Equal(t, "🎵 ▁▁▁▁▁▁▁▁", statusTitle(true, nil, nil))

	levels := make([]float64, 64)
	for i := 0; i < 8; i++ {
		levels[i] = 0.99
	}
	assert.Equal(t, "🎵 ▇▁▁▁▁▁▁▁", statusTitle(true, nil, levels))
}

func TestSpectrumJSON(t *testing.T) {
	text, err := spectrumJSON([]float64{0, 0.5, 0.25})
	require.NoError(t, err)
	assert.Equal(t, "[0,0.5,0.25]", text)

	text, err = spectrumJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", text)
}

func TestOpenCommand(t *testing.T) {
	name, args := openCommand("darwin", "/tmp/x.log")
	assert.Equal(t, "open", name)
	assert.Equal(t, []string{"/tmp/x.log"}, args)

	name, _ = openCommand("linux", "/tmp/x.log")
	assert.Equal(t, "xdg-open", name)

	name, args = openCommand("windows", `C:\x.log`)
	assert.Equal(t, "cmd", name)
	assert.Equal(t, `C:\x.log`, args[len(args)-1])
}
