package audio

import "strings"

var loopbackMarkers = []string{"monitor of", ".monitor", "loopback", "stereo mix", "what u hear", "blackhole", "soundflower"}

// LooksLikeLoopback reports whether an input device name suggests it carries
// the mix of an output device (PulseAudio monitors, Stereo Mix, virtual
// loopback drivers).
func LooksLikeLoopback(name string) bool {
	lower := strings.ToLower(name)
	for _, m := range loopbackMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// MonitorOf reports whether an input device name is the monitor of the
// named output device.
func MonitorOf(inputName, outputName string) bool {
	if outputName == "" {
		return false
	}
	lower := strings.ToLower(inputName)
	return strings.Contains(lower, "monitor of "+strings.ToLower(outputName))
}
