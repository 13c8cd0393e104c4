package audio

import (
	"errors"
	"fmt"
)

var (
	// ErrFormatUnsupported means no acceptable shared-mode format exists for the endpoint.
	ErrFormatUnsupported = errors.New("audio format unsupported by endpoint")
	// ErrDeviceActivation means the endpoint could not be activated for capture.
	ErrDeviceActivation = errors.New("device activation failed")
	// ErrDeviceNotFound means no endpoint matches the requested id.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNoDefaultDevice means the system has no default output endpoint.
	ErrNoDefaultDevice = errors.New("no default output device")
	// ErrTimeout is returned by Session.WaitForData when no data arrived in time.
	ErrTimeout = errors.New("timed out waiting for audio data")
	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("capture session closed")
	// ErrFormatMismatch means the negotiated format cannot be decoded by the extractor.
	ErrFormatMismatch = errors.New("negotiated format does not match extractor")
)

// DeviceError records a failed operation on a specific endpoint.
type DeviceError struct {
	Op       string
	DeviceID string
	Err      error
}

func (e *DeviceError) Error() string {
	if e.DeviceID == "" {
		return fmt.Sprintf("%s default device: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s device %q: %v", e.Op, e.DeviceID, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
