package input

import (
	"context"
	"encoding/binary"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type recordingDevice struct {
	mu      sync.Mutex
	batches [][]RawEvent
	failOn  int
	emits   int
	closed  bool
	notify  chan struct{}
}

func newRecordingDevice() *recordingDevice {
	return &recordingDevice{failOn: -1, notify: make(chan struct{}, 16)}
}

func (d *recordingDevice) Emit(events []RawEvent) error {
	d.mu.Lock()
	defer func() {
		d.mu.Unlock()
		d.notify <- struct{}{}
	}()
	idx := d.emits
	d.emits++
	if idx == d.failOn {
		return errors.New("write: no such device")
	}
	d.batches = append(d.batches, events)
	return nil
}

func (d *recordingDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *recordingDevice) wait(t *testing.T, n int) {
	t.Helper()
	for range n {
		select {
		case <-d.notify:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for emit")
		}
	}
}

func (d *recordingDevice) snapshot() [][]RawEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.batches)
}

func TestKeyCodes(t *testing.T) {
	cases := map[string]uint16{
		"KeyA":         30,
		"KeyZ":         44,
		"Digit1":       2,
		"Digit0":       11,
		"Escape":       1,
		"Enter":        28,
		"Space":        57,
		"ShiftRight":   54,
		"ControlRight": 97,
		"AltRight":     100,
	}
	for name, want := range cases {
		got, err := KeyCode(name)
		if err != nil {
			t.Fatalf("KeyCode(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("KeyCode(%q) = %d, want %d", name, got, want)
		}
	}
	if _, err := KeyCode("F13"); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
	if len(KeyboardKeys()) != len(keyCodes) {
		t.Fatal("keyboard advertises a different key set")
	}
}

func TestKeyboardBatchEndsWithSync(t *testing.T) {
	a, _ := NewKeyEvent("KeyA", Down)
	b, _ := NewKeyEvent("KeyA", Up)
	got := KeyboardBatch{Keys: []KeyEvent{a, b}}.rawEvents()
	want := []RawEvent{
		{Type: evKey, Code: 30, Value: 1},
		{Type: evKey, Code: 30, Value: 0},
		{Type: evSyn, Code: synReport},
	}
	if !slices.Equal(got, want) {
		t.Fatalf("raw events = %+v, want %+v", got, want)
	}
}

func TestMouseBatchSkipsZeroAxesAndUsesWheel(t *testing.T) {
	batch := MouseBatch{
		Moves:   []MouseMove{{X: 5}, {Y: -3, Wheel: 1}},
		Buttons: []MouseButton{{Code: BtnRight, Direction: Down}},
	}
	want := []RawEvent{
		{Type: evRel, Code: relX, Value: 5},
		{Type: evRel, Code: relY, Value: -3},
		{Type: evRel, Code: relWheel, Value: 1},
		{Type: evKey, Code: BtnRight, Value: 1},
		{Type: evSyn, Code: synReport},
	}
	if got := batch.rawEvents(); !slices.Equal(got, want) {
		t.Fatalf("raw events = %+v, want %+v", got, want)
	}
}

func TestMarshalEventsLayout(t *testing.T) {
	buf := marshalEvents([]RawEvent{{Type: evRel, Code: relY, Value: -2}, {Type: evSyn}})
	if len(buf) != 2*inputEventSize {
		t.Fatalf("len = %d, want %d", len(buf), 2*inputEventSize)
	}
	for _, b := range buf[:16] {
		if b != 0 {
			t.Fatal("timestamp should be zero")
		}
	}
	if got := binary.NativeEndian.Uint16(buf[16:]); got != evRel {
		t.Fatalf("type = %d", got)
	}
	if got := binary.NativeEndian.Uint16(buf[18:]); got != relY {
		t.Fatalf("code = %d", got)
	}
	if got := int32(binary.NativeEndian.Uint32(buf[20:])); got != -2 {
		t.Fatalf("value = %d", got)
	}
}

func TestDecodeMessage(t *testing.T) {
	ev, err := DecodeMessage([]byte(`{"type":"keyboard","keys":[{"code":"Digit5","direction":1},{"code":"Digit5","direction":0}]}`))
	if err != nil {
		t.Fatalf("decode keyboard: %v", err)
	}
	kb, ok := ev.(KeyboardBatch)
	if !ok || len(kb.Keys) != 2 || kb.Keys[0] != (KeyEvent{Code: 6, Direction: Down}) {
		t.Fatalf("unexpected keyboard batch: %#v", ev)
	}

	ev, err = DecodeMessage([]byte(`{"type":"mouse","moves":[{"x":4,"y":-2,"wheel":0}],"buttons":[{"button":"middle","direction":2}]}`))
	if err != nil {
		t.Fatalf("decode mouse: %v", err)
	}
	mb, ok := ev.(MouseBatch)
	if !ok || len(mb.Moves) != 1 || mb.Moves[0] != (MouseMove{X: 4, Y: -2}) {
		t.Fatalf("unexpected mouse batch: %#v", ev)
	}
	if mb.Buttons[0] != (MouseButton{Code: BtnMiddle, Direction: Repeat}) {
		t.Fatalf("unexpected button: %+v", mb.Buttons[0])
	}

	failures := []string{
		`{"type":"keyboard","keys":[{"code":"Hyper","direction":1}]}`,
		`{"type":"mouse","buttons":[{"button":"back","direction":1}]}`,
		`{"type":"keyboard","keys":[{"code":"KeyA","direction":7}]}`,
		`{"type":"gamepad"}`,
		`{}`,
		`not json`,
	}
	for _, payload := range failures {
		if _, err := DecodeMessage([]byte(payload)); err == nil {
			t.Fatalf("expected error for %s", payload)
		}
	}
	if _, err := DecodeMessage([]byte(failures[0])); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestManagerRoutesBatchesInOrder(t *testing.T) {
	kb := newRecordingDevice()
	mouse := newRecordingDevice()
	mgr := NewManager(kb, mouse, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Run(ctx) }()

	first, _ := NewKeyEvent("KeyQ", Down)
	second, _ := NewKeyEvent("KeyW", Down)
	if err := mgr.Send(ctx, KeyboardBatch{Keys: []KeyEvent{first}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := mgr.Send(ctx, MouseBatch{Moves: []MouseMove{{X: 1}}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := mgr.Send(ctx, KeyboardBatch{Keys: []KeyEvent{second}}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	kb.wait(t, 2)
	mouse.wait(t, 1)

	batches := kb.snapshot()
	if batches[0][0].Code != 16 || batches[1][0].Code != 17 {
		t.Fatalf("keyboard order not preserved: %+v", batches)
	}
	if got := mouse.snapshot(); len(got) != 1 || got[0][0].Code != relX {
		t.Fatalf("unexpected mouse batches: %+v", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancellation")
	}
}

func TestManagerContinuesAfterEmitFailure(t *testing.T) {
	kb := newRecordingDevice()
	kb.failOn = 0
	mgr := NewManager(kb, newRecordingDevice(), 0, nil)
	done := make(chan error, 1)
	go func() { done <- mgr.Run(context.Background()) }()

	key, _ := NewKeyEvent("KeyA", Down)
	for range 2 {
		if err := mgr.Send(context.Background(), KeyboardBatch{Keys: []KeyEvent{key}}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	kb.wait(t, 2)
	if got := kb.snapshot(); len(got) != 1 {
		t.Fatalf("expected 1 delivered batch after failure, got %d", len(got))
	}

	close(mgr.events)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop when channel closed")
	}
}

func TestSendRespectsContext(t *testing.T) {
	mgr := NewManager(newRecordingDevice(), newRecordingDevice(), 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	if err := mgr.Send(ctx, KeyboardBatch{}); err != nil {
		t.Fatalf("first Send: %v", err)
	}
	cancel()
	if err := mgr.Send(ctx, KeyboardBatch{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := mgr.Send(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil event")
	}
}

func TestManagerCloseClosesDevices(t *testing.T) {
	kb, mouse := newRecordingDevice(), newRecordingDevice()
	mgr := NewManager(kb, mouse, 1, nil)
	if err := mgr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !kb.closed || !mouse.closed {
		t.Fatal("devices not closed")
	}
}
