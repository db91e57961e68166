package input

import (
	"errors"
	"fmt"
)

// Linux input event types and codes from linux/input-event-codes.h.
const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02

	synReport = 0

	relX     = 0x00
	relY     = 0x01
	relWheel = 0x08

	BtnLeft   = 0x110
	BtnRight  = 0x111
	BtnMiddle = 0x112
)

// ErrUnknownKey reports a key or button name with no mapping.
var ErrUnknownKey = errors.New("unknown key")

var keyCodes = map[string]uint16{
	"Escape":       1,
	"Digit1":       2,
	"Digit2":       3,
	"Digit3":       4,
	"Digit4":       5,
	"Digit5":       6,
	"Digit6":       7,
	"Digit7":       8,
	"Digit8":       9,
	"Digit9":       10,
	"Digit0":       11,
	"Minus":        12,
	"Equal":        13,
	"Backspace":    14,
	"Tab":          15,
	"KeyQ":         16,
	"KeyW":         17,
	"KeyE":         18,
	"KeyR":         19,
	"KeyT":         20,
	"KeyY":         21,
	"KeyU":         22,
	"KeyI":         23,
	"KeyO":         24,
	"KeyP":         25,
	"BracketLeft":  26,
	"BracketRight": 27,
	"Enter":        28,
	"ControlLeft":  29,
	"KeyA":         30,
	"KeyS":         31,
	"KeyD":         32,
	"KeyF":         33,
	"KeyG":         34,
	"KeyH":         35,
	"KeyJ":         36,
	"KeyK":         37,
	"KeyL":         38,
	"Backquote":    41,
	"ShiftLeft":    42,
	"Backslash":    43,
	"KeyZ":         44,
	"KeyX":         45,
	"KeyC":         46,
	"KeyV":         47,
	"KeyB":         48,
	"KeyN":         49,
	"KeyM":         50,
	"ShiftRight":   54,
	"AltLeft":      56,
	"Space":        57,
	"CapsLock":     58,
	"ControlRight": 97,
	"AltRight":     100,
}

var buttonCodes = map[string]uint16{
	"left":   BtnLeft,
	"right":  BtnRight,
	"middle": BtnMiddle,
}

// KeyCode maps a browser KeyboardEvent.code name to a Linux key code.
func KeyCode(name string) (uint16, error) {
	code, ok := keyCodes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	return code, nil
}

// ButtonCode maps "left", "right", or "middle" to a Linux button code.
func ButtonCode(name string) (uint16, error) {
	code, ok := buttonCodes[name]
	if !ok {
		return 0, fmt.Errorf("%w: button %q", ErrUnknownKey, name)
	}
	return code, nil
}

// KeyboardKeys lists every key code the virtual keyboard advertises.
func KeyboardKeys() []uint16 {
	keys := make([]uint16, 0, len(keyCodes))
	for _, code := range keyCodes {
		keys = append(keys, code)
	}
	return keys
}

// MouseButtons lists the buttons the virtual mouse advertises.
func MouseButtons() []uint16 {
	return []uint16{BtnLeft, BtnRight, BtnMiddle}
}

// MouseAxes lists the relative axes the virtual mouse advertises.
func MouseAxes() []uint16 {
	return []uint16{relX, relY, relWheel}
}
