package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"testing"
)

func packetsEqual(a, b Packet) bool {
	if a.Tag() != b.Tag() {
		return false
	}
	if la, ok := a.(DesktopList); ok {
		return slices.Equal(la.Entries, b.(DesktopList).Entries)
	}
	return a == b
}

func frame(tag Tag, declared uint64, payload []byte) []byte {
	buf := binary.LittleEndian.AppendUint64(nil, uint64(tag))
	buf = binary.LittleEndian.AppendUint64(buf, declared)
	return append(buf, payload...)
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		packet Packet
	}{
		{"handshake accepted", Handshake{APIRevision: 1, Accepted: true}},
		{"handshake rejected max revision", Handshake{APIRevision: ^uint64(0), Accepted: false}},
		{"desktop list empty", DesktopList{}},
		{"desktop list one", DesktopList{Entries: []DesktopEntry{{ID: 7, Width: 1920, Height: 1080}}}},
		{"desktop list three", DesktopList{Entries: []DesktopEntry{
			{ID: 0, Width: 2560, Height: 1440},
			{ID: 1, Width: -1, Height: 0},
			{ID: ^uint64(0), Width: 1 << 30, Height: -(1 << 31)},
		}}},
		{"switch source", SwitchSource{NewSource: 42}},
		{"end", End{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded := Encode(tc.packet)
			decoded, err := Decode(encoded)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !packetsEqual(decoded, tc.packet) {
				t.Fatalf("round trip mismatch: got %#v want %#v", decoded, tc.packet)
			}

			streamed, err := ReadPacket(bytes.NewReader(encoded))
			if err != nil {
				t.Fatalf("ReadPacket: %v", err)
			}
			if !packetsEqual(streamed, tc.packet) {
				t.Fatalf("stream round trip mismatch: got %#v want %#v", streamed, tc.packet)
			}
		})
	}
}

func TestHandshakeEncodingBytes(t *testing.T) {
	got := Encode(Handshake{APIRevision: 1, Accepted: true})
	want := frame(TagHandshake, 9, []byte{0x01, 0, 0, 0, 0, 0, 0, 0, 0x01})
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected handshake bytes:\n got %x\nwant %x", got, want)
	}
}

func TestDesktopListEncodingBytes(t *testing.T) {
	got := Encode(DesktopList{Entries: []DesktopEntry{{ID: 7, Width: 1920, Height: 1080}}})
	payload := []byte{
		0x01, 0, 0, 0, 0, 0, 0, 0,
		0x07, 0, 0, 0, 0, 0, 0, 0,
		0x80, 0x07, 0, 0,
		0x38, 0x04, 0, 0,
	}
	want := frame(TagDesktopList, 24, payload)
	if !bytes.Equal(got, want) {
		t.Fatalf("unexpected desktop list bytes:\n got %x\nwant %x", got, want)
	}
}

func TestDesktopListRecordsAdvance(t *testing.T) {
	list := DesktopList{Entries: []DesktopEntry{{ID: 1, Width: 10, Height: 20}, {ID: 2, Width: 30, Height: 40}}}
	encoded := Encode(list)
	second := encoded[HeaderSize+8+16:]
	if binary.LittleEndian.Uint64(second[:8]) != 2 || int32(binary.LittleEndian.Uint32(second[8:12])) != 30 {
		t.Fatalf("second record not packed after the first: %x", encoded)
	}
}

func TestHandshakeLengthEnforced(t *testing.T) {
	for n := 0; n <= 20; n++ {
		if n == 9 {
			continue
		}
		payload := make([]byte, n)
		if _, err := Decode(frame(TagHandshake, uint64(n), payload)); !errors.Is(err, ErrInvalidPacketLength) {
			t.Fatalf("payload %d bytes: expected ErrInvalidPacketLength, got %v", n, err)
		}
		if _, err := ReadPacket(bytes.NewReader(frame(TagHandshake, uint64(n), payload))); !errors.Is(err, ErrInvalidPacketLength) {
			t.Fatalf("stream payload %d bytes: expected ErrInvalidPacketLength, got %v", n, err)
		}
	}
	// Declared length right, actual bytes short.
	if _, err := Decode(frame(TagHandshake, 9, make([]byte, 8))); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength for short payload, got %v", err)
	}
}

func TestFixedSizeDeclaredLengthEnforced(t *testing.T) {
	if _, err := Decode(frame(TagSwitchSource, 4, make([]byte, 8))); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength for switch source, got %v", err)
	}
	if _, err := Decode(frame(TagEnd, 1, []byte{0})); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength for end, got %v", err)
	}
}

func TestDesktopListLengthEnforced(t *testing.T) {
	valid := Encode(DesktopList{Entries: []DesktopEntry{{ID: 1, Width: 2, Height: 3}, {ID: 4, Width: 5, Height: 6}}})

	if _, err := Decode(valid[:len(valid)-1]); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("truncated record: expected ErrInvalidPacketLength, got %v", err)
	}
	if _, err := Decode(append(append([]byte{}, valid...), 0)); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("trailing byte: expected ErrInvalidPacketLength, got %v", err)
	}

	inflated := append([]byte{}, valid...)
	binary.LittleEndian.PutUint64(inflated[HeaderSize:], 3)
	if _, err := Decode(inflated); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("count larger than records: expected ErrInvalidPacketLength, got %v", err)
	}

	huge := append([]byte{}, valid...)
	binary.LittleEndian.PutUint64(huge[HeaderSize:], ^uint64(0))
	if _, err := Decode(huge); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("overflowing count: expected ErrInvalidPacketLength, got %v", err)
	}
	if _, err := ReadPacket(bytes.NewReader(huge)); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("stream overflowing count: expected ErrInvalidPacketLength, got %v", err)
	}

	if _, err := Decode(frame(TagDesktopList, 0, []byte{1, 2, 3})); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("missing count: expected ErrInvalidPacketLength, got %v", err)
	}
}

func TestDesktopListIgnoresDeclaredLength(t *testing.T) {
	encoded := Encode(DesktopList{Entries: []DesktopEntry{{ID: 9, Width: 800, Height: 600}}})
	binary.LittleEndian.PutUint64(encoded[8:16], 0)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := decoded.(DesktopList).Entries; len(got) != 1 || got[0].ID != 9 {
		t.Fatalf("unexpected entries: %#v", got)
	}
}

func TestInvalidFields(t *testing.T) {
	if _, err := Decode(frame(Tag(99), 0, nil)); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("unknown tag: expected ErrInvalidField, got %v", err)
	}
	if _, err := ReadPacket(bytes.NewReader(frame(Tag(4), 0, nil))); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("stream unknown tag: expected ErrInvalidField, got %v", err)
	}
	payload := []byte{1, 0, 0, 0, 0, 0, 0, 0, 2}
	if _, err := Decode(frame(TagHandshake, 9, payload)); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("bool byte 2: expected ErrInvalidField, got %v", err)
	}
}

func TestDecodeShortHeader(t *testing.T) {
	if _, err := Decode(make([]byte, HeaderSize-1)); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength, got %v", err)
	}
}

func TestReadPacketStreamBoundaries(t *testing.T) {
	var buf bytes.Buffer
	for _, p := range []Packet{Handshake{APIRevision: 3, Accepted: true}, SwitchSource{NewSource: 1}, End{}} {
		if err := WritePacket(&buf, p); err != nil {
			t.Fatalf("WritePacket: %v", err)
		}
	}
	want := []Tag{TagHandshake, TagSwitchSource, TagEnd}
	for _, tag := range want {
		p, err := ReadPacket(&buf)
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		if p.Tag() != tag {
			t.Fatalf("expected %s, got %s", tag, p.Tag())
		}
	}
	if _, err := ReadPacket(&buf); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF at clean end of stream, got %v", err)
	}

	partial := Encode(SwitchSource{NewSource: 5})[:HeaderSize+3]
	if _, err := ReadPacket(bytes.NewReader(partial)); !errors.Is(err, ErrInvalidPacketLength) {
		t.Fatalf("expected ErrInvalidPacketLength for truncated payload, got %v", err)
	}
}
