package spectrum

import (
	"fmt"
	"strings"
	"sync"
)

// Mode selects how much post-processing Spectrum applies.
type Mode int

const (
	// Smoothed applies frequency weighting and exponential decay, giving values in [0, 1).
	Smoothed Mode = iota
	// Raw returns the log-compressed band averages.
	Raw
)

func (m Mode) String() string {
	switch m {
	case Smoothed:
		return "smoothed"
	case Raw:
		return "raw"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "smoothed" or "raw".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "", "smoothed":
		return Smoothed, nil
	case "raw":
		return Raw, nil
	}
	return Smoothed, fmt.Errorf("unknown spectrum mode %q", s)
}

// Options are the per-request analysis parameters.
type Options struct {
	Bands   int
	Decay   float64
	FFTSize int
	Mode    Mode
}

// DefaultOptions returns 64 smoothed bands over a 1024-point FFT with decay 12.
func DefaultOptions() Options {
	return Options{
		Bands:   64,
		Decay:   12.0,
		FFTSize: 1024,
		Mode:    Smoothed,
	}
}

// Processor holds the most recent sample chunk and computes spectra from it
// on demand. One goroutine publishes, any number may read.
type Processor struct {
	mu        sync.RWMutex
	latest    []float32
	published uint64
}

func NewProcessor() *Processor {
	return &Processor{}
}

// Publish replaces the latest chunk. The processor takes ownership of chunk;
// callers must not modify it afterwards.
func (p *Processor) Publish(chunk []float32) {
	p.mu.Lock()
	p.latest = chunk
	p.published++
	p.mu.Unlock()
}

// Latest returns a copy of the latest chunk, or nil if none was published.
func (p *Processor) Latest() []float32 {
	chunk := p.snapshot()
	if chunk == nil {
		return nil
	}
	return append([]float32(nil), chunk...)
}

// Published returns how many chunks have been published since the last Reset.
func (p *Processor) Published() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.published
}

// Reset forgets the latest chunk.
func (p *Processor) Reset() {
	p.mu.Lock()
	p.latest = nil
	p.published = 0
	p.mu.Unlock()
}

// Spectrum computes opts.Bands values from the latest chunk. Before any
// chunk arrives the result is all zeros.
func (p *Processor) Spectrum(opts Options) []float64 {
	if opts.Bands <= 0 {
		return []float64{}
	}
	chunk := p.snapshot()
	if len(chunk) == 0 {
		return make([]float64, opts.Bands)
	}

	banded := Analyze(chunk, opts.Bands, opts.FFTSize)
	if opts.Mode == Raw {
		return banded
	}
	return Visualize(banded, opts.Bands, opts.Decay)
}

// snapshot returns the published slice itself. Publish only ever swaps the
// slice, so the backing array is immutable once visible here.
func (p *Processor) snapshot() []float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}
