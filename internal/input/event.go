package input

import (
	"encoding/binary"
	"fmt"
)

// Direction is a key or button transition.
type Direction int32

const (
	Up     Direction = 0
	Down   Direction = 1
	Repeat Direction = 2
)

func (d Direction) valid() bool {
	return d == Up || d == Down || d == Repeat
}

// Event is a batch accepted by the Manager: KeyboardBatch or MouseBatch.
type Event interface {
	rawEvents() []RawEvent
}

// KeyEvent is one resolved key transition.
type KeyEvent struct {
	Code      uint16
	Direction Direction
}

// NewKeyEvent resolves a browser key name.
func NewKeyEvent(name string, dir Direction) (KeyEvent, error) {
	if !dir.valid() {
		return KeyEvent{}, fmt.Errorf("invalid key direction %d", dir)
	}
	code, err := KeyCode(name)
	if err != nil {
		return KeyEvent{}, err
	}
	return KeyEvent{Code: code, Direction: dir}, nil
}

// MouseMove is a relative pointer motion. Zero components are not emitted.
type MouseMove struct {
	X     int32
	Y     int32
	Wheel int32
}

// MouseButton is one resolved button transition.
type MouseButton struct {
	Code      uint16
	Direction Direction
}

// KeyboardBatch is written to the virtual keyboard as one report.
type KeyboardBatch struct {
	Keys []KeyEvent
}

// MouseBatch is written to the virtual mouse as one report: moves first,
// then button transitions.
type MouseBatch struct {
	Moves   []MouseMove
	Buttons []MouseButton
}

// RawEvent is a kernel input_event without its timestamp.
type RawEvent struct {
	Type  uint16
	Code  uint16
	Value int32
}

func (b KeyboardBatch) rawEvents() []RawEvent {
	out := make([]RawEvent, 0, len(b.Keys)+1)
	for _, key := range b.Keys {
		out = append(out, RawEvent{Type: evKey, Code: key.Code, Value: int32(key.Direction)})
	}
	return append(out, RawEvent{Type: evSyn, Code: synReport})
}

func (b MouseBatch) rawEvents() []RawEvent {
	out := make([]RawEvent, 0, len(b.Moves)*3+len(b.Buttons)+1)
	for _, move := range b.Moves {
		if move.X != 0 {
			out = append(out, RawEvent{Type: evRel, Code: relX, Value: move.X})
		}
		if move.Y != 0 {
			out = append(out, RawEvent{Type: evRel, Code: relY, Value: move.Y})
		}
		if move.Wheel != 0 {
			out = append(out, RawEvent{Type: evRel, Code: relWheel, Value: move.Wheel})
		}
	}
	for _, button := range b.Buttons {
		out = append(out, RawEvent{Type: evKey, Code: button.Code, Value: int32(button.Direction)})
	}
	return append(out, RawEvent{Type: evSyn, Code: synReport})
}

// inputEventSize is sizeof(struct input_event) on 64-bit Linux.
const inputEventSize = 24

// marshalEvents lays events out as consecutive struct input_event records
// with zero timestamps; the kernel stamps them on write.
func marshalEvents(events []RawEvent) []byte {
	buf := make([]byte, len(events)*inputEventSize)
	for i, ev := range events {
		rec := buf[i*inputEventSize:]
		binary.NativeEndian.PutUint16(rec[16:], ev.Type)
		binary.NativeEndian.PutUint16(rec[18:], ev.Code)
		binary.NativeEndian.PutUint32(rec[20:], uint32(ev.Value))
	}
	return buf
}
