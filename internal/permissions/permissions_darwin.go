//go:build darwin

package permissions

/*
#cgo LDFLAGS: -framework AVFoundation
#import <AVFoundation/AVFoundation.h>

int checkAudioCapturePermission() {
    AVAuthorizationStatus status = [AVCaptureDevice authorizationStatusForMediaType:AVMediaTypeAudio];
    return (int)status;
}

void requestAudioCapturePermission() {
    [AVCaptureDevice requestAccessForMediaType:AVMediaTypeAudio completionHandler:^(BOOL granted) {}];
}
*/
import "C"

import "github.com/rs/zerolog"

// CheckAudioCapture returns the current audio capture permission status
func CheckAudioCapture() Status {
	return Status(C.checkAudioCapturePermission())
}

// RequestAudioCapture triggers the system permission dialog
func RequestAudioCapture() {
	C.requestAudioCapturePermission()
}

// EnsurePermissions checks audio capture access and requests it when the
// user has not decided yet. Loopback sources such as BlackHole are input
// devices and need the same grant as a microphone.
func EnsurePermissions(log zerolog.Logger) error {
	status := CheckAudioCapture()
	if status == Authorized {
		return nil
	}

	log.Warn().Str("status", status.String()).Msg("Audio capture permission required")
	if status == NotDetermined {
		RequestAudioCapture()
	} else {
		log.Warn().Msg("Go to: System Settings → Privacy & Security → Microphone")
	}
	return ErrAudioCaptureDenied
}
