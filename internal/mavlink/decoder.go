package mavlink

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/ground.control/internal/monitoring"
)

var logf = monitoring.Component("mavlink")

// Stats is a snapshot of decoder counters.
type Stats struct {
	FramesDecoded     uint64 `json:"frames_decoded"`
	ChecksumErrors    uint64 `json:"checksum_errors"`
	UnknownMessages   uint64 `json:"unknown_messages"`
	UnsupportedFrames uint64 `json:"unsupported_frames"`
	BytesDiscarded    uint64 `json:"bytes_discarded"`
}

// Decoder reassembles frames from bytes fed to it. The buffer survives
// across calls so a frame split over several poll cycles completes once its
// last byte arrives. A Decoder is owned by a single goroutine; only Stats may
// be called concurrently.
type Decoder struct {
	dialect *Dialect
	buf     []byte

	framesDecoded     monitoring.Counter
	checksumErrors    monitoring.Counter
	unknownMessages   monitoring.Counter
	unsupportedFrames monitoring.Counter
	bytesDiscarded    monitoring.Counter
}

// NewDecoder returns a decoder for dialect, or DefaultDialect when nil.
func NewDecoder(dialect *Dialect) *Decoder {
	if dialect == nil {
		dialect = DefaultDialect
	}
	return &Decoder{dialect: dialect}
}

// Feed appends received bytes to the tail of the reassembly buffer.
func (d *Decoder) Feed(p ...byte) {
	d.buf = append(d.buf, p...)
}

// Buffered returns the number of bytes waiting in the reassembly buffer.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Stats returns the current counters.
func (d *Decoder) Stats() Stats {
	return Stats{
		FramesDecoded:     d.framesDecoded.Load(),
		ChecksumErrors:    d.checksumErrors.Load(),
		UnknownMessages:   d.unknownMessages.Load(),
		UnsupportedFrames: d.unsupportedFrames.Load(),
		BytesDiscarded:    d.bytesDiscarded.Load(),
	}
}

// DecodeNext returns the next valid packet in the buffer, or ErrNeedMoreData
// when none is complete. Bytes that can not begin a frame, and the start
// marker of any frame that fails validation, are discarded so decoding
// resumes at the next candidate marker. A frame that is merely incomplete is
// left untouched.
func (d *Decoder) DecodeNext() (Packet, error) {
	for {
		start := bytes.IndexByte(d.buf, MagicV2)
		if start < 0 {
			d.discard(len(d.buf))
			return Packet{}, ErrNeedMoreData
		}
		d.discard(start)

		if len(d.buf) < headerLen {
			return Packet{}, ErrNeedMoreData
		}
		hdr, payloadLen := parseHeader(d.buf[:headerLen])

		if hdr.IncompatFlags&^IncompatFlagSigned != 0 {
			d.unsupportedFrames.Inc()
			d.reject(fmt.Errorf("incompat flags 0x%02x: %w", hdr.IncompatFlags, ErrUnsupportedFrame))
			continue
		}
		def, ok := d.dialect.Lookup(hdr.MessageID)
		if !ok {
			d.unknownMessages.Inc()
			d.reject(fmt.Errorf("message %d: %w", hdr.MessageID, ErrUnknownMessage))
			continue
		}
		if payloadLen > def.Length {
			d.unsupportedFrames.Inc()
			d.reject(fmt.Errorf("%s payload length %d exceeds %d: %w", def.Name, payloadLen, def.Length, ErrUnsupportedFrame))
			continue
		}

		frameLen := headerLen + payloadLen + checksumLen
		if hdr.IncompatFlags&IncompatFlagSigned != 0 {
			frameLen += signatureLen
		}
		if len(d.buf) < frameLen {
			return Packet{}, ErrNeedMoreData
		}

		body := d.buf[1 : headerLen+payloadLen]
		want := binary.LittleEndian.Uint16(d.buf[headerLen+payloadLen:])
		if got := frameChecksum(body, def.CRCExtra); got != want {
			d.checksumErrors.Inc()
			d.reject(fmt.Errorf("%s crc 0x%04x, frame says 0x%04x: %w", def.Name, got, want, ErrChecksumMismatch))
			continue
		}

		payload := make([]byte, def.Length)
		copy(payload, d.buf[headerLen:headerLen+payloadLen])
		msg := def.decode(payload)

		d.consume(frameLen)
		d.framesDecoded.Inc()
		return Packet{Header: hdr, Message: msg}, nil
	}
}

// reject drops the start marker of a frame that failed validation.
func (d *Decoder) reject(err error) {
	logf("dropping frame: %v", err)
	d.discard(1)
}

func (d *Decoder) discard(n int) {
	if n <= 0 {
		return
	}
	d.bytesDiscarded.Add(uint64(n))
	d.consume(n)
}

func (d *Decoder) consume(n int) {
	d.buf = append(d.buf[:0], d.buf[n:]...)
}
