package spectrum

import "strings"

var glyphs = []rune("▁▂▃▄▅▆▇█")

// Bars renders values as a row of block glyphs, scaling so that full equals
// the tallest glyph. Values are grouped to fit width columns.
func Bars(values []float64, width int, full float64) string {
	if width <= 0 || len(values) == 0 {
		return ""
	}
	if full <= 0 {
		full = 1
	}
	width = min(width, len(values))
	group := len(values) / width

	var b strings.Builder
	for c := 0; c < width; c++ {
		var sum float64
		for _, v := range values[c*group : (c+1)*group] {
			sum += v
		}
		level := sum / float64(group) / full
		idx := int(level * float64(len(glyphs)-1))
		idx = max(0, min(idx, len(glyphs)-1))
		b.WriteRune(glyphs[idx])
	}
	return b.String()
}
