package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrInvalidPacketLength indicates a declared or actual payload size that
	// disagrees with the packet kind.
	ErrInvalidPacketLength = errors.New("invalid packet length")
	// ErrInvalidField indicates an unknown tag or an out-of-range field value.
	ErrInvalidField = errors.New("invalid packet field")
)

// Tag identifies a packet kind on the wire.
type Tag uint64

const (
	TagHandshake    Tag = 0
	TagDesktopList  Tag = 1
	TagSwitchSource Tag = 2
	TagEnd          Tag = 3
)

func (t Tag) String() string {
	switch t {
	case TagHandshake:
		return "handshake"
	case TagDesktopList:
		return "desktop_list"
	case TagSwitchSource:
		return "switch_source"
	case TagEnd:
		return "end"
	default:
		return fmt.Sprintf("tag(%d)", uint64(t))
	}
}

const (
	// HeaderSize is the size of the tag plus declared length.
	HeaderSize = 16

	handshakeSize    = 9
	switchSourceSize = 8
	endSize          = 0
	desktopCountSize = 8
	desktopEntrySize = 16
)

// Packet is one of Handshake, DesktopList, SwitchSource, or End.
type Packet interface {
	Tag() Tag
	// payloadLen is the number of payload bytes the packet encodes to.
	payloadLen() int
	appendPayload(dst []byte) []byte
}

// Handshake opens a conversation. The client sends its revision; the server
// answers with its own revision and whether the client was accepted.
type Handshake struct {
	APIRevision uint64
	Accepted    bool
}

func (Handshake) Tag() Tag { return TagHandshake }
func (Handshake) payloadLen() int { return handshakeSize }
func (h Handshake) appendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, h.APIRevision)
	if h.Accepted {
		return append(dst, 1)
	}
	return append(dst, 0)
}

func decodeHandshake(payload []byte) (Handshake, error) {
	if len(payload) != handshakeSize {
		return Handshake{}, fmt.Errorf("%w: handshake payload is %d bytes, want %d", ErrInvalidPacketLength, len(payload), handshakeSize)
	}
	accepted, err := decodeBool(payload[8])
	if err != nil {
		return Handshake{}, err
	}
	return Handshake{
		APIRevision: binary.LittleEndian.Uint64(payload[:8]),
		Accepted:    accepted,
	}, nil
}

// DesktopEntry describes one capturable desktop to a client.
type DesktopEntry struct {
	ID     uint64
	Width  int32
	Height int32
}

// DesktopList announces the desktops a client may switch between.
type DesktopList struct {
	Entries []DesktopEntry
}

func (DesktopList) Tag() Tag { return TagDesktopList }

func (d DesktopList) payloadLen() int {
	return desktopCountSize + len(d.Entries)*desktopEntrySize
}

func (d DesktopList) appendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, uint64(len(d.Entries)))
	for _, entry := range d.Entries {
		dst = binary.LittleEndian.AppendUint64(dst, entry.ID)
		dst = binary.LittleEndian.AppendUint32(dst, uint32(entry.Width))
		dst = binary.LittleEndian.AppendUint32(dst, uint32(entry.Height))
	}
	return dst
}

func decodeDesktopList(payload []byte) (DesktopList, error) {
	if len(payload) < desktopCountSize {
		return DesktopList{}, fmt.Errorf("%w: desktop list payload is %d bytes, need at least %d", ErrInvalidPacketLength, len(payload), desktopCountSize)
	}
	count := binary.LittleEndian.Uint64(payload[:desktopCountSize])
	records := payload[desktopCountSize:]
	// Compare by division so a huge count cannot overflow the expected size.
	if uint64(len(records))%desktopEntrySize != 0 || uint64(len(records))/desktopEntrySize != count {
		return DesktopList{}, fmt.Errorf("%w: desktop list declares %d entries but carries %d record bytes", ErrInvalidPacketLength, count, len(records))
	}
	if count == 0 {
		return DesktopList{}, nil
	}
	entries := make([]DesktopEntry, 0, count)
	for off := 0; off < len(records); off += desktopEntrySize {
		rec := records[off : off+desktopEntrySize]
		entries = append(entries, DesktopEntry{
			ID:     binary.LittleEndian.Uint64(rec[0:8]),
			Width:  int32(binary.LittleEndian.Uint32(rec[8:12])),
			Height: int32(binary.LittleEndian.Uint32(rec[12:16])),
		})
	}
	return DesktopList{Entries: entries}, nil
}

// SwitchSource asks the server to make another desktop active.
type SwitchSource struct {
	NewSource uint64
}

func (SwitchSource) Tag() Tag { return TagSwitchSource }
func (SwitchSource) payloadLen() int { return switchSourceSize }
func (s SwitchSource) appendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint64(dst, s.NewSource)
}

func decodeSwitchSource(payload []byte) (SwitchSource, error) {
	if len(payload) != switchSourceSize {
		return SwitchSource{}, fmt.Errorf("%w: switch source payload is %d bytes, want %d", ErrInvalidPacketLength, len(payload), switchSourceSize)
	}
	return SwitchSource{NewSource: binary.LittleEndian.Uint64(payload)}, nil
}

// End terminates the conversation.
type End struct{}

func (End) Tag() Tag { return TagEnd }
func (End) payloadLen() int { return endSize }
func (End) appendPayload(dst []byte) []byte { return dst }

func decodeEnd(payload []byte) (End, error) {
	if len(payload) != endSize {
		return End{}, fmt.Errorf("%w: end payload is %d bytes, want 0", ErrInvalidPacketLength, len(payload))
	}
	return End{}, nil
}

// fixedSize returns the canonical payload size for fixed-size tags. The
// second result is false for DesktopList and for unknown tags.
func fixedSize(tag Tag) (int, bool) {
	switch tag {
	case TagHandshake:
		return handshakeSize, true
	case TagSwitchSource:
		return switchSourceSize, true
	case TagEnd:
		return endSize, true
	default:
		return 0, false
	}
}

func decodeBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: boolean byte 0x%02x", ErrInvalidField, b)
	}
}
