//go:build windows

package wasapi

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/go-ole/go-ole"
	"github.com/moutend/go-wca/pkg/wca"
	"golang.org/x/sys/windows"
)

const (
	hrSFalse          = 0x00000001
	hrRPCChangedMode  = 0x80010106
	hrDeviceInvalid   = 0x88890004
	infiniteWaitLimit = time.Duration(0xFFFFFFFE) * time.Millisecond
)

// apartment tracks one CoInitializeEx on the current thread.
type apartment struct {
	owned bool
}

// enterMTA joins the multithreaded apartment. The caller must hold the OS
// thread until release.
func enterMTA() (*apartment, error) {
	err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED)
	if err == nil {
		return &apartment{owned: true}, nil
	}
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		switch oleErr.Code() {
		case hrSFalse:
			return &apartment{owned: true}, nil
		case hrRPCChangedMode:
			return &apartment{}, nil
		}
	}
	return nil, fmt.Errorf("CoInitializeEx: %w", err)
}

func (a *apartment) release() {
	if a != nil && a.owned {
		ole.CoUninitialize()
		a.owned = false
	}
}

// withCOM runs fn on a locked thread inside the multithreaded apartment.
func withCOM(fn func() error) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	apt, err := enterMTA()
	if err != nil {
		return err
	}
	defer apt.release()
	return fn()
}

func newEnumerator() (*wca.IMMDeviceEnumerator, error) {
	var de *wca.IMMDeviceEnumerator
	if err := wca.CoCreateInstance(wca.CLSID_MMDeviceEnumerator, 0, wca.CLSCTX_ALL, wca.IID_IMMDeviceEnumerator, &de); err != nil {
		return nil, fmt.Errorf("create device enumerator: %w", err)
	}
	return de, nil
}

type audioClient struct {
	ac *wca.IAudioClient
}

func (c *audioClient) release() {
	if c != nil && c.ac != nil {
		c.ac.Release()
		c.ac = nil
	}
}

type captureClient struct {
	acc *wca.IAudioCaptureClient
}

func (c *captureClient) release() {
	if c != nil && c.acc != nil {
		c.acc.Release()
		c.acc = nil
	}
}

type mmDevice struct {
	d *wca.IMMDevice
}

func (m *mmDevice) release() {
	if m != nil && m.d != nil {
		m.d.Release()
		m.d = nil
	}
}

// eventHandle is the auto-reset event WASAPI signals per period.
type eventHandle struct {
	h windows.Handle
}

func newEventHandle() (*eventHandle, error) {
	h, err := windows.CreateEvent(nil, 0, 0, nil)
	if err != nil {
		return nil, fmt.Errorf("CreateEvent: %w", err)
	}
	return &eventHandle{h: h}, nil
}

// wait blocks until the event is signalled. It reports false on timeout.
func (e *eventHandle) wait(timeout time.Duration) (bool, error) {
	if timeout > infiniteWaitLimit {
		timeout = infiniteWaitLimit
	}
	ev, err := windows.WaitForSingleObject(e.h, uint32(timeout.Milliseconds()))
	switch {
	case err != nil:
		return false, err
	case ev == uint32(windows.WAIT_TIMEOUT):
		return false, nil
	case ev == windows.WAIT_OBJECT_0:
		return true, nil
	default:
		return false, fmt.Errorf("unexpected wait result %#x", ev)
	}
}

func (e *eventHandle) release() {
	if e != nil && e.h != 0 {
		_ = windows.CloseHandle(e.h)
		e.h = 0
	}
}

func hresult(err error) uintptr {
	var oleErr *ole.OleError
	if errors.As(err, &oleErr) {
		return oleErr.Code()
	}
	return 0
}
