// Package monitor owns the capture and relay goroutines and exposes the
// start/stop/spectrum surface used by the hosts.
package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/petems/spectrum-tray/internal/capture"
	"github.com/petems/spectrum-tray/internal/spectrum"
	"github.com/rs/zerolog"
)

const (
	// ChannelCapacity bounds the chunk channel between capture and relay.
	ChannelCapacity = 10
	// RelayTimeout bounds each relay receive so it can observe a stop.
	RelayTimeout = 100 * time.Millisecond
)

// ErrInvalidChunkSize is returned by Start for a negative chunk size.
var ErrInvalidChunkSize = errors.New("chunk size must be positive")

type Options struct {
	System     audio.System
	ChunkSize  int
	Format     audio.Format
	PeriodHint time.Duration
	Spectrum   spectrum.Options
	Logger     zerolog.Logger
}

type Controller struct {
	sys    audio.System
	log    zerolog.Logger
	format audio.Format
	period time.Duration
	proc   *spectrum.Processor

	// control serialises Start, Stop and SetDevice.
	control sync.Mutex
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	deviceID  string
	chunkSize int
	specOpts  spectrum.Options
	loop      *capture.Loop
	lastErr   error

	runMu   sync.Mutex
	running bool
}

// New returns a stopped controller.
func New(opts Options) *Controller {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = capture.DefaultChunkSize
	}
	if !opts.Format.Valid() {
		opts.Format = audio.DefaultFormat()
	}
	if opts.Spectrum.Bands <= 0 {
		opts.Spectrum = spectrum.DefaultOptions()
	}
	return &Controller{
		sys:       opts.System,
		log:       opts.Logger.With().Str("component", "monitor").Logger(),
		format:    opts.Format,
		period:    opts.PeriodHint,
		proc:      spectrum.NewProcessor(),
		chunkSize: opts.ChunkSize,
		specOpts:  opts.Spectrum,
	}
}

// SetDevice selects the endpoint used by the next Start. An empty id means
// the default output device. A running controller is stopped first.
func (c *Controller) SetDevice(id string) {
	c.control.Lock()
	defer c.control.Unlock()

	if c.done != nil {
		c.log.Info().Str("device", id).Msg("Device changed, stopping monitor")
		c.stopLocked()
	}

	c.mu.Lock()
	c.deviceID = id
	c.mu.Unlock()
}

// Start stops any running session and launches the capture and relay
// goroutines. A chunkSize of 0 keeps the current size. Device resolution
// and session setup happen on the capture goroutine; their failures are
// logged and reported by Err, not returned here.
func (c *Controller) Start(chunkSize int) error {
	if chunkSize < 0 {
		return ErrInvalidChunkSize
	}

	c.control.Lock()
	defer c.control.Unlock()

	c.stopLocked()

	c.mu.Lock()
	if chunkSize > 0 {
		c.chunkSize = chunkSize
	}
	c.lastErr = nil
	loop := capture.NewLoop(capture.Config{
		System:     c.sys,
		DeviceID:   c.deviceID,
		ChunkSize:  c.chunkSize,
		Format:     c.format,
		PeriodHint: c.period,
		Logger:     c.log,
		OnResolved: c.setResolved,
	})
	c.loop = loop
	deviceID, size := c.deviceID, c.chunkSize
	c.mu.Unlock()

	c.proc.Reset()
	chunks := make(chan []float32, ChannelCapacity)
	done := make(chan struct{})
	c.done = done
	c.setRunning(true)

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		if err := loop.Run(c.Running, chunks, done); err != nil {
			c.mu.Lock()
			c.lastErr = err
			c.mu.Unlock()
		}
	}()
	go func() {
		defer c.wg.Done()
		c.relay(chunks, done)
	}()

	c.log.Info().Str("device", deviceID).Int("chunk_size", size).Msg("Monitor started")
	return nil
}

// Stop ends monitoring and waits for both goroutines to exit.
func (c *Controller) Stop() {
	c.control.Lock()
	defer c.control.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.done == nil {
		return
	}
	c.setRunning(false)
	close(c.done)
	c.wg.Wait()
	c.done = nil
	c.log.Info().Msg("Monitor stopped")
}

// Close stops the controller. It is safe to call more than once.
func (c *Controller) Close() error {
	c.Stop()
	return nil
}

// relay moves chunks from the capture goroutine into the processor, keeping
// only the most recent one.
func (c *Controller) relay(chunks <-chan []float32, done <-chan struct{}) {
	timer := time.NewTimer(RelayTimeout)
	defer timer.Stop()

	for c.Running() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(RelayTimeout)

		select {
		case chunk := <-chunks:
			c.proc.Publish(chunk)
		case <-timer.C:
		case <-done:
			c.log.Debug().Msg("Relay exiting")
			return
		}
	}
}

// Spectrum returns numBands values computed from the latest chunk with the
// configured decay, FFT size and mode.
func (c *Controller) Spectrum(numBands int) []float64 {
	opts := c.SpectrumOptions()
	opts.Bands = numBands
	return c.proc.Spectrum(opts)
}

// SpectrumWith computes a spectrum with explicit options.
func (c *Controller) SpectrumWith(opts spectrum.Options) []float64 {
	return c.proc.Spectrum(opts)
}

func (c *Controller) SpectrumOptions() spectrum.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.specOpts
}

// SetMode switches between smoothed and raw output for Spectrum.
func (c *Controller) SetMode(m spectrum.Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.specOpts.Mode = m
}

func (c *Controller) Running() bool {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	return c.running
}

func (c *Controller) setRunning(v bool) {
	c.runMu.Lock()
	c.running = v
	c.runMu.Unlock()
}

// CurrentDeviceID returns the selected device id, replaced by the resolved
// id once a session has opened. Empty means the default device.
func (c *Controller) CurrentDeviceID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceID
}

func (c *Controller) setResolved(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deviceID = id
}

func (c *Controller) ChunkSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkSize
}

// Err returns the error that ended the most recent capture session, if any.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// CaptureState reports the lifecycle phase of the current capture loop.
func (c *Controller) CaptureState() capture.State {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()
	if loop == nil {
		return capture.Idle
	}
	return loop.State()
}

// Stats returns counters of the current capture loop.
func (c *Controller) Stats() capture.Stats {
	c.mu.Lock()
	loop := c.loop
	c.mu.Unlock()
	if loop == nil {
		return capture.Stats{}
	}
	return loop.Stats()
}

// Latest returns a copy of the most recent chunk.
func (c *Controller) Latest() []float32 {
	return c.proc.Latest()
}

func (c *Controller) Devices() ([]audio.Device, error) {
	return c.sys.OutputDevices()
}

func (c *Controller) DefaultDevice() (*audio.Device, error) {
	return c.sys.DefaultOutputDevice()
}
