// Package spectrum turns mono sample chunks into banded magnitude arrays for
// visualisation.
package spectrum

import (
	"math"
	"math/bits"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

// NextPowerOfTwo returns the smallest power of two >= n, and 1 for n <= 1.
func NextPowerOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// Magnitudes windows up to fftSize samples with a Hann window, zero-pads to
// the next power of two and returns the magnitudes of the lower half of the
// spectrum.
func Magnitudes(samples []float32, fftSize int) []float64 {
	if fftSize <= 0 {
		fftSize = len(samples)
	}
	size := NextPowerOfTwo(fftSize)
	n := min(size, len(samples))

	x := make([]float64, size)
	if n > 0 {
		hann := window.Hann(n)
		for i := 0; i < n; i++ {
			x[i] = float64(samples[i]) * hann[i]
		}
	}

	out := fft.FFTReal(x)
	mags := make([]float64, size/2)
	for k := range mags {
		mags[k] = cmplx.Abs(out[k])
	}
	return mags
}

// Analyze computes numBands log-compressed band magnitudes from samples.
// Bands are contiguous and equal-width over the lower half of the spectrum;
// bins past numBands*binsPerBand are not assigned to any band.
func Analyze(samples []float32, numBands, fftSize int) []float64 {
	if numBands <= 0 {
		return []float64{}
	}
	bands := make([]float64, numBands)
	if len(samples) == 0 {
		return bands
	}

	mags := Magnitudes(samples, fftSize)
	perBand := len(mags) / numBands

	for i := range bands {
		var avg float64
		if perBand == 0 {
			// More bands than bins: one bin per band, the rest stay empty.
			if i < len(mags) {
				avg = mags[i]
			}
		} else {
			var sum float64
			for _, m := range mags[i*perBand : (i+1)*perBand] {
				sum += m
			}
			avg = sum / float64(perBand)
		}
		bands[i] = math.Log10(1 + avg)
	}
	return bands
}

// Visualize re-aggregates banded data into numBands values weighted towards
// low frequencies and squashes each through ExponentialDecay with max 1.
func Visualize(banded []float64, numBands int, decay float64) []float64 {
	if numBands <= 0 {
		return []float64{}
	}
	out := make([]float64, numBands)
	width := len(banded) / numBands
	if width == 0 {
		return out
	}

	for i := range out {
		weight := float64(numBands-i) / float64(numBands)
		var sum float64
		for _, v := range banded[i*width : (i+1)*width] {
			sum += math.Abs(v) * weight
		}
		out[i] = ExponentialDecay(sum/float64(width), decay, 1.0)
	}
	return out
}

// ExponentialDecay maps x >= 0 onto [0, max) as max*(1-e^(-k*x)). Results
// that would round to max are clamped just below it.
func ExponentialDecay(x, k, max float64) float64 {
	v := -max * math.Expm1(-k*x)
	if v >= max {
		return math.Nextafter(max, 0)
	}
	if v < 0 {
		return 0
	}
	return v
}

// Peak returns the index and value of the largest element, or -1 for an
// empty or all-zero spectrum.
func Peak(values []float64) (int, float64) {
	idx, peak := -1, 0.0
	for i, v := range values {
		if v > peak {
			idx, peak = i, v
		}
	}
	return idx, peak
}
