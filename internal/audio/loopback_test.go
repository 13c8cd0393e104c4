package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLooksLikeLoopback(t *testing.T) {
	for _, name := range []string{
		"Monitor of Built-in Audio Analog Stereo",
		"alsa_output.pci-0000_00_1f.3.analog-stereo.monitor",
		"Stereo Mix (Realtek High Definition Audio)",
		"BlackHole 2ch",
	} {
		assert.True(t, LooksLikeLoopback(name), name)
	}
	assert.False(t, LooksLikeLoopback("USB Microphone"))
}

func TestMonitorOf(t *testing.T) {
	assert.True(t, MonitorOf("Monitor of Speakers", "Speakers"))
	assert.False(t, MonitorOf("Monitor of Speakers", "Headphones"))
	assert.False(t, MonitorOf("Monitor of Speakers", ""))
}
