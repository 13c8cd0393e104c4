// Package audio defines the capture backend abstraction used by the monitor:
// endpoints, format negotiation, capture sessions and the raw byte handling
// that turns interleaved PCM into mono float samples.
package audio

import "time"

// Device is an output endpoint as presented to users.
type Device struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SampleRate int    `json:"sample_rate"`
	State      string `json:"state,omitempty"`
	Default    bool   `json:"is_default"`
}

// Endpoint is a resolved output endpoint that can be opened for loopback capture.
type Endpoint interface {
	ID() string
	Name() string
	// MixFormat returns the endpoint's native shared-mode format.
	MixFormat() (Format, error)
	// IsSupported reports whether f is accepted in shared mode. A non-nil
	// closest means f is rejected but the returned format would be accepted.
	IsSupported(f Format) (closest *Format, err error)
}

// System is the audio context a capture backend exposes. It replaces
// process-wide default-device lookups so tests can supply synthetic endpoints.
type System interface {
	Name() string
	OutputDevices() ([]Device, error)
	DefaultOutputDevice() (*Device, error)
	// Endpoint resolves an id from OutputDevices. Unknown ids yield ErrDeviceNotFound.
	Endpoint(id string) (Endpoint, error)
	// Open initializes ep for loopback capture in shared, event-driven mode.
	// periodHint is advisory.
	Open(ep Endpoint, f Format, periodHint time.Duration) (Session, error)
	Close() error
}

// Session owns the native capture resources of one opened endpoint. A session
// must only be used from the goroutine that opened it.
type Session interface {
	Format() Format
	BufferFrames() int
	Start() error
	// Stop halts the stream. Calling it more than once is harmless.
	Stop() error
	// WaitForData blocks until the endpoint signals data, the timeout
	// elapses (ErrTimeout) or the wait fails.
	WaitForData(timeout time.Duration) error
	// DrainInto appends all currently buffered bytes to q.
	DrainInto(q *ByteQueue) (BufferFlags, error)
	Close() error
}
