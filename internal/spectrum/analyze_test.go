package spectrum

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/44100))
	}
	return out
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 2: 2, 3: 4, 1000: 1024, 1024: 1024, 1025: 2048}
	for in, want := range cases {
		assert.Equal(t, want, NextPowerOfTwo(in), "NextPowerOfTwo(%d)", in)
	}
}

func TestAnalyzeLengthMatchesBands(t *testing.T) {
	samples := sine(2048, 440, 0.5)
	for bands := 1; bands <= 512; bands++ {
		got := Analyze(samples, bands, 1024)
		require.Len(t, got, bands)
		for _, v := range got {
			require.GreaterOrEqual(t, v, 0.0)
		}
	}
}

func TestAnalyzePeaksAtToneBand(t *testing.T) {
	got := Analyze(sine(2048, 1000, 1.0), 64, 2048)

	// 1 kHz sits at bin ~46.4 of 1024; 16 bins per band.
	idx, _ := Peak(got)
	assert.Equal(t, 2, idx)
}

func TestAnalyzeShortChunkIsZeroPadded(t *testing.T) {
	got := Analyze(sine(300, 5000, 1.0), 32, 1024)
	require.Len(t, got, 32)

	// 5 kHz at 1024 points is bin ~116, 16 bins per band.
	idx, _ := Peak(got)
	assert.Equal(t, 7, idx)
}

func TestAnalyzeRoundsFFTSizeUp(t *testing.T) {
	a := Analyze(sine(2048, 3000, 0.8), 16, 1000)
	b := Analyze(sine(2048, 3000, 0.8), 16, 1024)
	assert.InDeltaSlice(t, b, a, 1e-12)
}

func TestAnalyzeMoreBandsThanBins(t *testing.T) {
	got := Analyze(sine(16, 2000, 1.0), 20, 16)
	require.Len(t, got, 20)
	for _, v := range got[8:] {
		assert.Zero(t, v)
	}
}

func TestAnalyzeEmptyInput(t *testing.T) {
	assert.Equal(t, make([]float64, 8), Analyze(nil, 8, 1024))
	assert.Empty(t, Analyze(sine(64, 100, 1), 0, 64))
}

func TestAnalyzeIsDeterministic(t *testing.T) {
	s := sine(1024, 777, 0.3)
	assert.Equal(t, Analyze(s, 48, 1024), Analyze(s, 48, 1024))
}

func TestHannWindowShape(t *testing.T) {
	// A constant signal concentrates the windowed energy in bin 0:
	// sum(hann) = (N-1)/2 for a symmetric window.
	n := 1024
	flat := make([]float32, n)
	for i := range flat {
		flat[i] = 1
	}
	mags := Magnitudes(flat, n)
	assert.InDelta(t, float64(n-1)/2, mags[0], 1e-9)
	assert.Less(t, mags[5], mags[0]*0.01)
}

func TestVisualizeWeightsLowBands(t *testing.T) {
	got := Visualize([]float64{1, 1, 1, 1}, 4, 1.0)
	require.Len(t, got, 4)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i], got[i-1])
	}
	assert.InDelta(t, 1-math.Exp(-1), got[0], 1e-12)
	assert.InDelta(t, 1-math.Exp(-0.25), got[3], 1e-12)
}

func TestVisualizeBoundedBelowOne(t *testing.T) {
	got := Visualize([]float64{50, 400, 1e6}, 3, 12)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestExponentialDecayMonotonic(t *testing.T) {
	prev := ExponentialDecay(0, 12, 1)
	assert.Zero(t, prev)
	for x := 0.001; x < 2; x += 0.001 {
		v := ExponentialDecay(x, 12, 1)
		assert.GreaterOrEqual(t, v, prev)
		assert.Less(t, v, 1.0)
		prev = v
	}
	for x := 0.001; x < 1; x += 0.01 {
		assert.Greater(t, ExponentialDecay(x+0.01, 3, 1), ExponentialDecay(x, 3, 1))
	}
	assert.Less(t, ExponentialDecay(1e9, 12, 1), 1.0)
	assert.Less(t, ExponentialDecay(1e9, 1, 2.5), 2.5)
}

func TestPeak(t *testing.T) {
	idx, v := Peak([]float64{0.1, 0.7, 0.3})
	assert.Equal(t, 1, idx)
	assert.Equal(t, 0.7, v)

	idx, _ = Peak(make([]float64, 4))
	assert.Equal(t, -1, idx)
}

func TestBars(t *testing.T) {
	assert.Equal(t, "▁█", Bars([]float64{0, 0, 1, 1}, 2, 1))
	assert.Equal(t, "", Bars(nil, 8, 1))
	assert.Len(t, []rune(Bars(make([]float64, 64), 8, 1)), 8)
}
