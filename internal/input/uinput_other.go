//go:build !linux

package input

import "errors"

var errUnsupported = errors.New("uinput is only available on linux")

// UinputDevice is unavailable on this platform.
type UinputDevice struct{}

func OpenKeyboard(string) (*UinputDevice, error) { return nil, errUnsupported }

func OpenMouse(string) (*UinputDevice, error) { return nil, errUnsupported }

func (*UinputDevice) Emit([]RawEvent) error { return errUnsupported }

func (*UinputDevice) Close() error { return nil }
