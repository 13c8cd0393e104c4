//go:build windows

package wasapi

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"github.com/petems/spectrum-tray/internal/audio"
	"github.com/rs/zerolog"
)

const (
	waveFormatIEEEFloat  uint16 = 0x0003
	waveFormatExtensible uint16 = 0xFFFE

	streamFlagsEventCallback     = 0x00040000
	streamFlagsAutoConvertPCM    = 0x80000000
	streamFlagsSrcDefaultQuality = 0x08000000

	bufferFlagsDiscontinuity  = 0x1
	bufferFlagsTimestampError = 0x4

	roleConsole = 0
)

type System struct {
	log zerolog.Logger
}

func New(log zerolog.Logger) (audio.System, error) {
	return &System{log: log.With().Str("backend", "wasapi").Logger()}, nil
}

func (s *System) Name() string { return "wasapi" }

func deviceState(state uint32) string {
	switch state {
	case wca.DEVICE_STATE_ACTIVE:
		return "active"
	case 0x2:
		return "disabled"
	case 0x4:
		return "not present"
	case 0x8:
		return "unplugged"
	default:
		return "unknown"
	}
}

func friendlyName(d *wca.IMMDevice) string {
	var ps *wca.IPropertyStore
	if err := d.OpenPropertyStore(wca.STGM_READ, &ps); err != nil {
		return ""
	}
	defer ps.Release()

	var pv wca.PROPVARIANT
	if err := ps.GetValue(&wca.PKEY_Device_FriendlyName, &pv); err != nil {
		return ""
	}
	return pv.String()
}

func describe(d *wca.IMMDevice) (audio.Device, error) {
	var id string
	if err := d.GetId(&id); err != nil {
		return audio.Device{}, fmt.Errorf("device id: %w", err)
	}
	var state uint32
	_ = d.GetState(&state)

	dev := audio.Device{ID: id, Name: friendlyName(d), State: deviceState(state)}
	if f, err := mixFormat(d); err == nil {
		dev.SampleRate = f.SampleRate
	}
	return dev, nil
}

func defaultDevice(de *wca.IMMDeviceEnumerator) (*wca.IMMDevice, error) {
	var d *wca.IMMDevice
	if err := de.GetDefaultAudioEndpoint(uint32(wca.ERender), roleConsole, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrNoDefaultDevice, err)
	}
	return d, nil
}

func (s *System) OutputDevices() ([]audio.Device, error) {
	var result []audio.Device
	err := withCOM(func() error {
		de, err := newEnumerator()
		if err != nil {
			return err
		}
		defer de.Release()

		var defaultID string
		if d, err := defaultDevice(de); err == nil {
			_ = d.GetId(&defaultID)
			d.Release()
		}

		var dc *wca.IMMDeviceCollection
		if err := de.EnumAudioEndpoints(uint32(wca.ERender), wca.DEVICE_STATE_ACTIVE, &dc); err != nil {
			return fmt.Errorf("enumerate endpoints: %w", err)
		}
		defer dc.Release()

		var count uint32
		if err := dc.GetCount(&count); err != nil {
			return fmt.Errorf("endpoint count: %w", err)
		}
		for i := uint32(0); i < count; i++ {
			var d *wca.IMMDevice
			if err := dc.Item(i, &d); err != nil {
				s.log.Warn().Err(err).Uint32("index", i).Msg("Skipping endpoint")
				continue
			}
			dev, err := describe(d)
			d.Release()
			if err != nil {
				s.log.Warn().Err(err).Uint32("index", i).Msg("Skipping endpoint")
				continue
			}
			dev.Default = dev.ID == defaultID
			result = append(result, dev)
		}
		return nil
	})
	return result, err
}

func (s *System) DefaultOutputDevice() (*audio.Device, error) {
	var dev audio.Device
	err := withCOM(func() error {
		de, err := newEnumerator()
		if err != nil {
			return err
		}
		defer de.Release()

		d, err := defaultDevice(de)
		if err != nil {
			return err
		}
		defer d.Release()

		dev, err = describe(d)
		dev.Default = true
		return err
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *System) Endpoint(id string) (audio.Endpoint, error) {
	var ep *endpoint
	err := withCOM(func() error {
		d, err := lookup(id)
		if err != nil {
			return err
		}
		defer d.Release()
		ep = &endpoint{id: id, name: friendlyName(d)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ep, nil
}

// lookup resolves an endpoint id to an active render device. The caller
// releases the returned device inside the same apartment.
func lookup(id string) (*wca.IMMDevice, error) {
	de, err := newEnumerator()
	if err != nil {
		return nil, err
	}
	defer de.Release()

	var dc *wca.IMMDeviceCollection
	if err := de.EnumAudioEndpoints(uint32(wca.ERender), wca.DEVICE_STATE_ACTIVE, &dc); err != nil {
		return nil, fmt.Errorf("enumerate endpoints: %w", err)
	}
	defer dc.Release()

	var count uint32
	if err := dc.GetCount(&count); err != nil {
		return nil, fmt.Errorf("endpoint count: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var d *wca.IMMDevice
		if err := dc.Item(i, &d); err != nil {
			continue
		}
		var got string
		if err := d.GetId(&got); err == nil && got == id {
			return d, nil
		}
		d.Release()
	}
	return nil, fmt.Errorf("%w: %s", audio.ErrDeviceNotFound, id)
}

func activate(d *wca.IMMDevice) (*audioClient, error) {
	var ac *wca.IAudioClient
	if err := d.Activate(wca.IID_IAudioClient, wca.CLSCTX_ALL, nil, &ac); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrDeviceActivation, err)
	}
	return &audioClient{ac: ac}, nil
}

func fromWaveFormat(wfx *wca.WAVEFORMATEX) audio.Format {
	f := audio.Format{
		ContainerBits: int(wfx.WBitsPerSample),
		ValidBits:     int(wfx.WBitsPerSample),
		SampleRate:    int(wfx.NSamplesPerSec),
		Channels:      int(wfx.NChannels),
		Kind:          audio.Int,
	}
	switch wfx.WFormatTag {
	case waveFormatIEEEFloat:
		f.Kind = audio.Float
	case waveFormatExtensible:
		// Shared-mode mix formats are extensible float32 in practice.
		if wfx.WBitsPerSample == 32 {
			f.Kind = audio.Float
		}
	}
	return f
}

func toWaveFormat(f audio.Format) *wca.WAVEFORMATEX {
	tag := uint16(wca.WAVE_FORMAT_PCM)
	if f.Kind == audio.Float {
		tag = waveFormatIEEEFloat
	}
	block := uint16(f.FrameSize())
	return &wca.WAVEFORMATEX{
		WFormatTag:      tag,
		NChannels:       uint16(f.Channels),
		NSamplesPerSec:  uint32(f.SampleRate),
		NAvgBytesPerSec: uint32(f.SampleRate) * uint32(block),
		NBlockAlign:     block,
		WBitsPerSample:  uint16(f.ContainerBits),
	}
}

func mixFormat(d *wca.IMMDevice) (audio.Format, error) {
	c, err := activate(d)
	if err != nil {
		return audio.Format{}, err
	}
	defer c.release()

	var wfx *wca.WAVEFORMATEX
	if err := c.ac.GetMixFormat(&wfx); err != nil {
		return audio.Format{}, fmt.Errorf("GetMixFormat: %w", err)
	}
	if wfx == nil {
		return audio.Format{}, errors.New("GetMixFormat returned nil")
	}
	defer ole.CoTaskMemFree(uintptr(unsafe.Pointer(wfx)))
	return fromWaveFormat(wfx), nil
}

type endpoint struct {
	id   string
	name string
}

func (e *endpoint) ID() string   { return e.id }
func (e *endpoint) Name() string { return e.name }

func (e *endpoint) MixFormat() (audio.Format, error) {
	var f audio.Format
	err := withCOM(func() error {
		d, err := lookup(e.id)
		if err != nil {
			return err
		}
		defer d.Release()
		f, err = mixFormat(d)
		return err
	})
	if err != nil {
		return audio.Format{}, &audio.DeviceError{Op: "mix format", DeviceID: e.id, Err: err}
	}
	return f, nil
}

func (e *endpoint) IsSupported(f audio.Format) (*audio.Format, error) {
	var closest *audio.Format
	err := withCOM(func() error {
		d, err := lookup(e.id)
		if err != nil {
			return err
		}
		defer d.Release()

		c, err := activate(d)
		if err != nil {
			return err
		}
		defer c.release()

		var match *wca.WAVEFORMATEX
		err = c.ac.IsFormatSupported(wca.AUDCLNT_SHAREMODE_SHARED, toWaveFormat(f), &match)
		if match != nil {
			cf := fromWaveFormat(match)
			closest = &cf
			ole.CoTaskMemFree(uintptr(unsafe.Pointer(match)))
		}
		if err != nil && hresult(err) == hrSFalse {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, &audio.DeviceError{Op: "format check", DeviceID: e.id, Err: err}
	}
	return closest, nil
}

// Open initializes a loopback stream on the calling thread. The caller must
// keep the OS thread locked until Close; the session owns a COM apartment.
func (s *System) Open(ep audio.Endpoint, f audio.Format, periodHint time.Duration) (audio.Session, error) {
	sess := &session{id: ep.ID(), format: f, log: s.log}
	if err := sess.init(periodHint); err != nil {
		sess.Close()
		return nil, &audio.DeviceError{Op: "open", DeviceID: ep.ID(), Err: err}
	}
	return sess, nil
}

func (s *System) Close() error { return nil }

type session struct {
	id     string
	format audio.Format
	frames int
	log    zerolog.Logger

	apt     *apartment
	device  *mmDevice
	client  *audioClient
	capture *captureClient
	event   *eventHandle

	mu      sync.Mutex
	started bool
	closed  bool
}

func (s *session) init(periodHint time.Duration) error {
	var err error
	if s.apt, err = enterMTA(); err != nil {
		return err
	}

	d, err := lookup(s.id)
	if err != nil {
		return err
	}
	s.device = &mmDevice{d: d}

	if s.client, err = activate(d); err != nil {
		return err
	}

	flags := uint32(wca.AUDCLNT_STREAMFLAGS_LOOPBACK | streamFlagsEventCallback | streamFlagsAutoConvertPCM | streamFlagsSrcDefaultQuality)
	duration := wca.REFERENCE_TIME(periodHint.Nanoseconds() / 100)
	if err := s.client.ac.Initialize(wca.AUDCLNT_SHAREMODE_SHARED, flags, duration, 0, toWaveFormat(s.format), nil); err != nil {
		return fmt.Errorf("%w: initialize: %v", audio.ErrDeviceActivation, err)
	}

	var frames uint32
	if err := s.client.ac.GetBufferSize(&frames); err != nil {
		return fmt.Errorf("GetBufferSize: %w", err)
	}
	s.frames = int(frames)

	if s.event, err = newEventHandle(); err != nil {
		return err
	}
	if err := s.client.ac.SetEventHandle(uintptr(s.event.h)); err != nil {
		return fmt.Errorf("SetEventHandle: %w", err)
	}

	var acc *wca.IAudioCaptureClient
	if err := s.client.ac.GetService(wca.IID_IAudioCaptureClient, &acc); err != nil {
		return fmt.Errorf("%w: capture client: %v", audio.ErrDeviceActivation, err)
	}
	s.capture = &captureClient{acc: acc}

	s.log.Debug().Str("device_id", s.id).Int("buffer_frames", s.frames).Msg("Loopback stream initialized")
	return nil
}

func (s *session) Format() audio.Format { return s.format }
func (s *session) BufferFrames() int    { return s.frames }

func (s *session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return audio.ErrSessionClosed
	}
	if err := s.client.ac.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	s.started = true
	return nil
}

func (s *session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started || s.client == nil || s.client.ac == nil {
		return nil
	}
	s.started = false
	return s.client.ac.Stop()
}

func (s *session) WaitForData(timeout time.Duration) error {
	if s.closed {
		return audio.ErrSessionClosed
	}
	ok, err := s.event.wait(timeout)
	if err != nil {
		return err
	}
	if !ok {
		return audio.ErrTimeout
	}
	return nil
}

func (s *session) DrainInto(q *audio.ByteQueue) (audio.BufferFlags, error) {
	var flags audio.BufferFlags
	if s.closed {
		return flags, audio.ErrSessionClosed
	}
	block := s.format.FrameSize()

	for {
		var packet uint32
		if err := s.capture.acc.GetNextPacketSize(&packet); err != nil {
			return flags, s.drainError(err)
		}
		if packet == 0 {
			return flags, nil
		}

		var (
			data           *byte
			frames, raw    uint32
			devPos, qpcPos uint64
		)
		if err := s.capture.acc.GetBuffer(&data, &frames, &raw, &devPos, &qpcPos); err != nil {
			return flags, s.drainError(err)
		}

		flags = flags.Merge(audio.BufferFlags{
			Discontinuity:  raw&bufferFlagsDiscontinuity != 0,
			Silent:         raw&wca.AUDCLNT_BUFFERFLAGS_SILENT != 0,
			TimestampError: raw&bufferFlagsTimestampError != 0,
		})

		n := int(frames) * block
		if raw&wca.AUDCLNT_BUFFERFLAGS_SILENT != 0 || data == nil {
			q.WriteZeros(n)
		} else if n > 0 {
			if _, err := q.Write(unsafe.Slice(data, n)); err != nil {
				_ = s.capture.acc.ReleaseBuffer(frames)
				return flags, err
			}
		}

		if err := s.capture.acc.ReleaseBuffer(frames); err != nil {
			return flags, s.drainError(err)
		}
	}
}

func (s *session) drainError(err error) error {
	if hresult(err) == hrDeviceInvalid {
		err = fmt.Errorf("%w: endpoint invalidated", audio.ErrDeviceActivation)
	}
	return &audio.DeviceError{Op: "drain", DeviceID: s.id, Err: err}
}

func (s *session) Close() error {
	err := s.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return err
	}
	s.closed = true

	s.capture.release()
	s.client.release()
	s.event.release()
	s.device.release()
	s.apt.release()
	return err
}
