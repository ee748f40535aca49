// Package mavlink decodes MAVLink v2 frames from a serial byte stream into
// typed packets for the ground station dialect.
package mavlink

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// MagicV2 marks the start of a MAVLink v2 frame.
	MagicV2 = 0xFD

	// IncompatFlagSigned is set when a 13 byte signature follows the checksum.
	IncompatFlagSigned = 0x01

	headerLen    = 10 // start marker included
	checksumLen  = 2
	signatureLen = 13
)

var (
	// ErrNeedMoreData is returned by Decoder.DecodeNext when the buffer does not
	// yet hold a complete frame.
	ErrNeedMoreData = errors.New("mavlink: need more data")

	ErrChecksumMismatch = errors.New("mavlink: checksum mismatch")
	ErrUnknownMessage   = errors.New("mavlink: unknown message id")
	ErrUnsupportedFrame = errors.New("mavlink: unsupported frame")
)

// Header is the sender identity and framing metadata of a packet.
type Header struct {
	Seq           uint8
	SystemID      uint8
	ComponentID   uint8
	MessageID     uint32
	IncompatFlags uint8
	CompatFlags   uint8
}

// Packet is one validated frame: header plus typed payload.
type Packet struct {
	Header  Header
	Message Message
}

func parseHeader(b []byte) (Header, int) {
	return Header{
		IncompatFlags: b[2],
		CompatFlags:   b[3],
		Seq:           b[4],
		SystemID:      b[5],
		ComponentID:   b[6],
		MessageID:     uint32(b[7]) | uint32(b[8])<<8 | uint32(b[9])<<16,
	}, int(b[1])
}

// truncatePayload drops trailing zero bytes as MAVLink v2 senders do, always
// keeping the first byte.
func truncatePayload(p []byte) []byte {
	n := len(p)
	for n > 1 && p[n-1] == 0 {
		n--
	}
	return p[:n]
}

// Encode builds an unsigned v2 frame for m. The header's MessageID is taken
// from m.
func (d *Dialect) Encode(h Header, m Message) ([]byte, error) {
	def, ok := d.Lookup(m.MessageID())
	if !ok {
		return nil, fmt.Errorf("encode message %d: %w", m.MessageID(), ErrUnknownMessage)
	}
	payload := truncatePayload(m.MarshalPayload())

	frame := make([]byte, headerLen+len(payload)+checksumLen)
	frame[0] = MagicV2
	frame[1] = byte(len(payload))
	frame[2] = 0
	frame[3] = h.CompatFlags
	frame[4] = h.Seq
	frame[5] = h.SystemID
	frame[6] = h.ComponentID
	frame[7] = byte(def.ID)
	frame[8] = byte(def.ID >> 8)
	frame[9] = byte(def.ID >> 16)
	copy(frame[headerLen:], payload)

	crc := frameChecksum(frame[1:headerLen+len(payload)], def.CRCExtra)
	binary.LittleEndian.PutUint16(frame[headerLen+len(payload):], crc)
	return frame, nil
}

// Encoder produces consecutive frames from one sender, advancing the
// sequence number on every call.
type Encoder struct {
	SystemID    uint8
	ComponentID uint8
	Dialect     *Dialect

	seq uint8
}

// Encode frames m with the next sequence number.
func (e *Encoder) Encode(m Message) ([]byte, error) {
	dialect := e.Dialect
	if dialect == nil {
		dialect = DefaultDialect
	}
	frame, err := dialect.Encode(Header{
		Seq:         e.seq,
		SystemID:    e.SystemID,
		ComponentID: e.ComponentID,
	}, m)
	if err != nil {
		return nil, err
	}
	e.seq++
	return frame, nil
}
