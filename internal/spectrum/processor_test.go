package spectrum

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorZerosBeforePublish(t *testing.T) {
	p := NewProcessor()
	for _, n := range []int{1, 7, 64, 512} {
		opts := DefaultOptions()
		opts.Bands = n
		got := p.Spectrum(opts)
		require.Len(t, got, n)
		for _, v := range got {
			assert.Zero(t, v)
		}
	}
	assert.Nil(t, p.Latest())
}

func TestProcessorSmoothedRange(t *testing.T) {
	p := NewProcessor()
	p.Publish(sine(2048, 1000, 1.0))

	got := p.Spectrum(DefaultOptions())
	require.Len(t, got, 64)
	for _, v := range got {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.Less(t, v, 1.0)
	}
}

func TestProcessorSinePeakSmoothed(t *testing.T) {
	p := NewProcessor()
	p.Publish(sine(2048, 1000, 0.01))

	opts := Options{Bands: 64, Decay: 1, FFTSize: 2048, Mode: Smoothed}
	idx, _ := Peak(p.Spectrum(opts))
	assert.Equal(t, 2, idx)
}

func TestProcessorRawMode(t *testing.T) {
	p := NewProcessor()
	chunk := sine(1024, 2500, 0.5)
	p.Publish(chunk)

	opts := Options{Bands: 32, FFTSize: 1024, Mode: Raw}
	assert.Equal(t, Analyze(chunk, 32, 1024), p.Spectrum(opts))
}

func TestProcessorLatestIsCopy(t *testing.T) {
	p := NewProcessor()
	p.Publish([]float32{1, 2, 3})

	got := p.Latest()
	got[0] = 99
	assert.Equal(t, []float32{1, 2, 3}, p.Latest())
	assert.EqualValues(t, 1, p.Published())

	p.Reset()
	assert.Nil(t, p.Latest())
	assert.Zero(t, p.Published())
}

func TestProcessorConcurrentPublishAndRead(t *testing.T) {
	p := NewProcessor()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			chunk := make([]float32, 256)
			for j := range chunk {
				chunk[j] = float32(i)
			}
			p.Publish(chunk)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if latest := p.Latest(); latest != nil {
					// A reader never sees a partially written chunk.
					for _, v := range latest {
						if v != latest[0] {
							t.Errorf("torn chunk: %v != %v", v, latest[0])
							return
						}
					}
				}
				assert.Len(t, p.Spectrum(Options{Bands: 16, FFTSize: 256, Decay: 12}), 16)
			}
		}()
	}
	wg.Wait()
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("RAW")
	require.NoError(t, err)
	assert.Equal(t, Raw, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Smoothed, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}
