//go:build linux

package input

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiDevSetup   = 0x405c5503
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	busVirtual = 0x06

	KeyboardName = "rdesktopd Virtual Keyboard"
	MouseName    = "rdesktopd Virtual Mouse"
)

// struct uinput_setup
type uinputSetup struct {
	BusType      uint16
	Vendor       uint16
	Product      uint16
	Version      uint16
	Name         [80]byte
	FFEffectsMax uint32
}

// UinputDevice is a virtual input device created through /dev/uinput.
type UinputDevice struct {
	mu   sync.Mutex
	fd   int
	name string
}

// OpenKeyboard creates the virtual keyboard.
func OpenKeyboard(path string) (*UinputDevice, error) {
	return openUinput(path, KeyboardName, KeyboardKeys(), nil)
}

// OpenMouse creates the virtual mouse.
func OpenMouse(path string) (*UinputDevice, error) {
	return openUinput(path, MouseName, MouseButtons(), MouseAxes())
}

func openUinput(path, name string, keys, axes []uint16) (*UinputDevice, error) {
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	dev := &UinputDevice{fd: fd, name: name}
	if err := dev.configure(keys, axes); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	return dev, nil
}

func (d *UinputDevice) configure(keys, axes []uint16) error {
	if err := unix.IoctlSetInt(d.fd, uiSetEvBit, evKey); err != nil {
		return fmt.Errorf("enable EV_KEY: %w", err)
	}
	for _, key := range keys {
		if err := unix.IoctlSetInt(d.fd, uiSetKeyBit, int(key)); err != nil {
			return fmt.Errorf("enable key %d: %w", key, err)
		}
	}
	if len(axes) > 0 {
		if err := unix.IoctlSetInt(d.fd, uiSetEvBit, evRel); err != nil {
			return fmt.Errorf("enable EV_REL: %w", err)
		}
		for _, axis := range axes {
			if err := unix.IoctlSetInt(d.fd, uiSetRelBit, int(axis)); err != nil {
				return fmt.Errorf("enable axis %d: %w", axis, err)
			}
		}
	}

	setup := uinputSetup{BusType: busVirtual, Vendor: 0x1, Product: 0x1, Version: 1}
	copy(setup.Name[:len(setup.Name)-1], d.name)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uiDevSetup, uintptr(unsafe.Pointer(&setup))); errno != 0 {
		return fmt.Errorf("UI_DEV_SETUP: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uiDevCreate, 0); errno != 0 {
		return fmt.Errorf("UI_DEV_CREATE: %w", errno)
	}
	return nil
}

// Emit writes events as one report.
func (d *UinputDevice) Emit(events []RawEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return fmt.Errorf("%s is closed", d.name)
	}
	buf := marshalEvents(events)
	for len(buf) > 0 {
		n, err := unix.Write(d.fd, buf)
		if err != nil {
			return fmt.Errorf("write %s: %w", d.name, err)
		}
		buf = buf[n:]
	}
	return nil
}

// Close destroys the device.
func (d *UinputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fd < 0 {
		return nil
	}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(d.fd), uiDevDestroy, 0)
	closeErr := unix.Close(d.fd)
	d.fd = -1
	if errno != 0 {
		return fmt.Errorf("UI_DEV_DESTROY: %w", errno)
	}
	return closeErr
}
