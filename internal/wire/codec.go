package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxDesktops bounds the entry count ReadPacket accepts for a DesktopList.
const MaxDesktops = 4096

// Encode returns the framed bytes for p.
func Encode(p Packet) []byte {
	n := p.payloadLen()
	buf := make([]byte, 0, HeaderSize+n)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Tag()))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(n))
	return p.appendPayload(buf)
}

// Decode parses exactly one framed packet from buf. Trailing or missing bytes
// are reported as ErrInvalidPacketLength.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header", ErrInvalidPacketLength, len(buf), HeaderSize)
	}
	tag := Tag(binary.LittleEndian.Uint64(buf[0:8]))
	declared := binary.LittleEndian.Uint64(buf[8:16])
	payload := buf[HeaderSize:]

	if size, ok := fixedSize(tag); ok && declared != uint64(size) {
		return nil, fmt.Errorf("%w: %s declares %d bytes, want %d", ErrInvalidPacketLength, tag, declared, size)
	}
	return decodePayload(tag, payload)
}

func decodePayload(tag Tag, payload []byte) (Packet, error) {
	var (
		p   Packet
		err error
	)
	switch tag {
	case TagHandshake:
		p, err = decodeHandshake(payload)
	case TagDesktopList:
		p, err = decodeDesktopList(payload)
	case TagSwitchSource:
		p, err = decodeSwitchSource(payload)
	case TagEnd:
		p, err = decodeEnd(payload)
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrInvalidField, uint64(tag))
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// WritePacket writes the framed packet to w.
func WritePacket(w io.Writer, p Packet) error {
	if _, err := w.Write(Encode(p)); err != nil {
		return fmt.Errorf("write %s: %w", p.Tag(), err)
	}
	return nil
}

// ReadPacket reads one packet from an ordered byte stream.
//
// Fixed-size kinds are rejected on their declared length before any payload
// is read. A DesktopList is sized from its count field, which must not exceed
// MaxDesktops. A clean EOF before the first header byte is returned as io.EOF.
func ReadPacket(r io.Reader) (Packet, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: truncated header", ErrInvalidPacketLength)
		}
		return nil, err
	}
	tag := Tag(binary.LittleEndian.Uint64(header[0:8]))
	declared := binary.LittleEndian.Uint64(header[8:16])

	var payload []byte
	switch tag {
	case TagHandshake, TagSwitchSource, TagEnd:
		size, _ := fixedSize(tag)
		if declared != uint64(size) {
			return nil, fmt.Errorf("%w: %s declares %d bytes, want %d", ErrInvalidPacketLength, tag, declared, size)
		}
		payload = make([]byte, size)
		if err := readPayload(r, payload); err != nil {
			return nil, err
		}
	case TagDesktopList:
		var countBuf [desktopCountSize]byte
		if err := readPayload(r, countBuf[:]); err != nil {
			return nil, err
		}
		count := binary.LittleEndian.Uint64(countBuf[:])
		if count > MaxDesktops {
			return nil, fmt.Errorf("%w: desktop list count %d exceeds %d", ErrInvalidPacketLength, count, MaxDesktops)
		}
		payload = make([]byte, desktopCountSize+int(count)*desktopEntrySize)
		copy(payload, countBuf[:])
		if err := readPayload(r, payload[desktopCountSize:]); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unknown tag %d", ErrInvalidField, uint64(tag))
	}
	return decodePayload(tag, payload)
}

func readPayload(r io.Reader, dst []byte) error {
	if len(dst) == 0 {
		return nil
	}
	if _, err := io.ReadFull(r, dst); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: truncated payload", ErrInvalidPacketLength)
		}
		return err
	}
	return nil
}
