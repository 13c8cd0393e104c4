package audio

import (
	"errors"
	"fmt"
)

// Negotiate picks the format to request from ep. With autoConvert the
// endpoint resamples and converts in shared mode, so want is kept whenever
// the endpoint can be driven at all.
func Negotiate(ep Endpoint, want Format, autoConvert bool) (Format, error) {
	if !want.Valid() {
		return Format{}, fmt.Errorf("%w: invalid format %s", ErrFormatUnsupported, want)
	}

	closest, err := ep.IsSupported(want)
	switch {
	case err == nil && closest == nil:
		return want, nil
	case err == nil && closest != nil:
		if autoConvert {
			return want, nil
		}
		return *closest, nil
	}

	if !autoConvert {
		return Format{}, &DeviceError{Op: "negotiate", DeviceID: ep.ID(), Err: fmt.Errorf("%w: %v", ErrFormatUnsupported, err)}
	}

	mix, mixErr := ep.MixFormat()
	if mixErr != nil {
		return Format{}, &DeviceError{Op: "negotiate", DeviceID: ep.ID(), Err: fmt.Errorf("%w: %v", ErrFormatUnsupported, errors.Join(err, mixErr))}
	}
	if c, mixErr := ep.IsSupported(mix); mixErr != nil || c != nil {
		return Format{}, &DeviceError{Op: "negotiate", DeviceID: ep.ID(), Err: fmt.Errorf("%w: mix format %s rejected", ErrFormatUnsupported, mix)}
	}
	return want, nil
}

// ResolveEndpoint returns the endpoint for id, or the default endpoint when
// id is empty or unknown. substituted is true when a non-empty id was replaced.
func ResolveEndpoint(sys System, id string) (ep Endpoint, substituted bool, err error) {
	if id != "" {
		ep, err = sys.Endpoint(id)
		if err == nil {
			return ep, false, nil
		}
		if !errors.Is(err, ErrDeviceNotFound) {
			return nil, false, err
		}
		substituted = true
	}

	def, err := sys.DefaultOutputDevice()
	if err != nil {
		return nil, substituted, err
	}
	if def == nil {
		return nil, substituted, ErrNoDefaultDevice
	}
	ep, err = sys.Endpoint(def.ID)
	if err != nil {
		return nil, substituted, &DeviceError{Op: "resolve", DeviceID: def.ID, Err: err}
	}
	return ep, substituted, nil
}
