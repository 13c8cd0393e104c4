// Package capture runs the loopback capture loop: it drains an audio session
// into a byte queue, cuts fixed-size mono chunks and hands them to a consumer
// over a bounded channel.
package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

// DefaultWaitTimeout bounds each wait on the session signal so the loop can
// observe a stop request.
const DefaultWaitTimeout = 100 * time.Millisecond

// DefaultChunkSize is the number of mono samples per chunk.
const DefaultChunkSize = 2048

// State is the lifecycle phase of a Loop.
type State int32

const (
	Idle State = iota
	Starting
	Capturing
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Capturing:
		return "capturing"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type Config struct {
	System audio.System
	// DeviceID selects the endpoint. Empty or unknown ids use the default endpoint.
	DeviceID    string
	ChunkSize   int
	Format      audio.Format
	PeriodHint  time.Duration
	WaitTimeout time.Duration
	Logger      zerolog.Logger
	// OnResolved, if set, receives the id of the endpoint actually opened.
	OnResolved func(deviceID string)
}

// Stats are running counters for one loop.
type Stats struct {
	Chunks          uint64
	Discontinuities uint64
	SilentPackets   uint64
}

type Loop struct {
	cfg Config
	log zerolog.Logger

	state   atomic.Int32
	chunks  atomic.Uint64
	discont atomic.Uint64
	silent  atomic.Uint64
}

func NewLoop(cfg Config) *Loop {
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if !cfg.Format.Valid() {
		cfg.Format = audio.DefaultFormat()
	}
	return &Loop{
		cfg: cfg,
		log: cfg.Logger.With().Str("component", "capture").Logger(),
	}
}

func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) Stats() Stats {
	return Stats{
		Chunks:          l.chunks.Load(),
		Discontinuities: l.discont.Load(),
		SilentPackets:   l.silent.Load(),
	}
}

// Run captures until keepRunning reports false, done is closed, or the
// session fails. It pins itself to one OS thread because backends keep
// per-thread native state. Chunks are sent on out; a full channel blocks the
// loop until the consumer catches up or done is closed.
//
// A nil return means a requested shutdown. Any error means capture ended on
// its own and will not be retried.
func (l *Loop) Run(keepRunning func() bool, out chan<- []float32, done <-chan struct{}) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	l.state.Store(int32(Starting))
	defer l.state.Store(int32(Stopped))

	sess, err := l.open()
	if err != nil {
		l.log.Error().Err(err).Str("device", l.cfg.DeviceID).Msg("Failed to open capture session")
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			l.log.Warn().Err(err).Msg("Failed to release capture session")
		}
	}()

	if err := sess.Start(); err != nil {
		l.log.Error().Err(err).Msg("Failed to start capture stream")
		return fmt.Errorf("start stream: %w", err)
	}
	l.state.Store(int32(Capturing))

	format := sess.Format()
	chunkBytes := audio.ChunkBytes(format, l.cfg.ChunkSize)
	queue := audio.NewByteQueue(chunkBytes * 2)

	l.log.Info().
		Str("format", format.String()).
		Int("chunk_size", l.cfg.ChunkSize).
		Int("buffer_frames", sess.BufferFrames()).
		Msg("Capture started")

	err = l.capture(sess, queue, keepRunning, out, done)

	l.state.Store(int32(Draining))
	if stopErr := sess.Stop(); stopErr != nil {
		l.log.Warn().Err(stopErr).Msg("Failed to stop capture stream")
	}

	if err != nil {
		l.log.Error().Err(err).Msg("Capture loop terminated")
		return err
	}
	l.log.Info().Uint64("chunks", l.chunks.Load()).Msg("Capture stopped")
	return nil
}

func (l *Loop) capture(sess audio.Session, queue *audio.ByteQueue, keepRunning func() bool, out chan<- []float32, done <-chan struct{}) error {
	format := sess.Format()

	for keepRunning() {
		chunk, ok, err := audio.ExtractChunk(queue, format, l.cfg.ChunkSize, nil)
		if err != nil {
			return err
		}
		if ok {
			select {
			case out <- chunk:
				l.chunks.Add(1)
			case <-done:
				return nil
			}
		}

		flags, err := sess.DrainInto(queue)
		if err != nil {
			return fmt.Errorf("drain capture buffer: %w", err)
		}
		l.noteFlags(flags)

		if err := sess.WaitForData(l.cfg.WaitTimeout); err != nil && !errors.Is(err, audio.ErrTimeout) {
			l.log.Debug().Err(err).Msg("Wait failed, treating as spurious wake")
		}
	}
	return nil
}

func (l *Loop) open() (audio.Session, error) {
	sys := l.cfg.System
	if sys == nil {
		return nil, errors.New("capture: no audio system configured")
	}

	ep, substituted, err := audio.ResolveEndpoint(sys, l.cfg.DeviceID)
	if err != nil {
		return nil, err
	}
	if substituted {
		l.log.Warn().
			Str("requested", l.cfg.DeviceID).
			Str("resolved", ep.ID()).
			Msg("Requested device not found, using default output device")
	}
	if l.cfg.OnResolved != nil {
		l.cfg.OnResolved(ep.ID())
	}

	if mix, err := ep.MixFormat(); err == nil {
		l.log.Debug().Str("device", ep.ID()).Str("mix_format", mix.String()).Msg("Endpoint mix format")
	}

	format, err := audio.Negotiate(ep, l.cfg.Format, true)
	if err != nil {
		return nil, err
	}

	sess, err := sys.Open(ep, format, l.cfg.PeriodHint)
	if err != nil {
		return nil, err
	}
	l.log.Info().Str("device", ep.ID()).Str("name", ep.Name()).Str("backend", sys.Name()).Msg("Opened loopback endpoint")
	return sess, nil
}

func (l *Loop) noteFlags(flags audio.BufferFlags) {
	if flags.Discontinuity {
		l.discont.Add(1)
		l.log.Debug().Msg("Capture buffer discontinuity")
	}
	if flags.Silent {
		l.silent.Add(1)
	}
}
