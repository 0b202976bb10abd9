// Package envelope defines the datagram wire format carried across the
// one-way UDP boundary.
//
// Each datagram holds exactly one envelope with a fixed big-endian header
// followed by an opaque payload:
//
//	Seq(4) | Timestamp(8) | Checksum(4) | Payload(0..MaxPayload)
//
// Sequence numbers are assigned by a single sender, strictly increase per
// sender instance, and wrap at 2^32. The timestamp is the sender's capture
// time in Unix nanoseconds. The checksum is an IEEE CRC-32 of the payload;
// a mismatch marks the datagram malformed at the receiver.
package envelope

import (
	"encoding/binary"
	"hash/crc32"
	"time"

	"github.com/c360/diodeflow/errors"
)

const (
	// HeaderSize is the fixed header size: Seq(4) + Timestamp(8) + Checksum(4).
	HeaderSize = 16

	// MaxPayload caps the payload so the full datagram fits a 1500-byte MTU
	// (minus 28 bytes IP/UDP overhead and the header) without fragmentation.
	MaxPayload = 1500 - 28 - HeaderSize

	// SequenceModulus is the wrap point for sequence numbers.
	SequenceModulus = 1 << 32
)

// Envelope is the unit transmitted per datagram.
type Envelope struct {
	Seq       uint32 // Monotonic per sender instance, wraps at 2^32
	Timestamp uint64 // Sender clock, Unix nanoseconds
	Payload   []byte
}

// New builds an envelope stamped with the current time.
func New(seq uint32, payload []byte) Envelope {
	return Envelope{
		Seq:       seq,
		Timestamp: uint64(time.Now().UnixNano()),
		Payload:   payload,
	}
}

// SentAt returns the sender capture time.
func (e Envelope) SentAt() time.Time {
	return time.Unix(0, int64(e.Timestamp))
}

// Encode serializes the envelope into a freshly allocated byte slice.
// Returns an invalid-class error if the payload exceeds MaxPayload.
func Encode(e Envelope) ([]byte, error) {
	if len(e.Payload) > MaxPayload {
		return nil, errors.WrapInvalid(errors.ErrPayloadTooLong,
			"envelope", "Encode", "payload size validation")
	}

	buf := make([]byte, HeaderSize+len(e.Payload))
	binary.BigEndian.PutUint32(buf[0:4], e.Seq)
	binary.BigEndian.PutUint64(buf[4:12], e.Timestamp)
	binary.BigEndian.PutUint32(buf[12:16], crc32.ChecksumIEEE(e.Payload))
	copy(buf[HeaderSize:], e.Payload)
	return buf, nil
}

// Decode parses a datagram into an Envelope. The payload is copied so the
// caller may reuse the read buffer. Short datagrams and checksum mismatches
// return invalid-class errors; the listener counts both as malformed drops.
func Decode(data []byte) (Envelope, error) {
	if len(data) < HeaderSize {
		return Envelope{}, errors.WrapInvalid(errors.ErrInvalidData,
			"envelope", "Decode", "header length validation")
	}
	if len(data) > HeaderSize+MaxPayload {
		return Envelope{}, errors.WrapInvalid(errors.ErrPayloadTooLong,
			"envelope", "Decode", "payload size validation")
	}

	payload := make([]byte, len(data)-HeaderSize)
	copy(payload, data[HeaderSize:])

	e := Envelope{
		Seq:       binary.BigEndian.Uint32(data[0:4]),
		Timestamp: binary.BigEndian.Uint64(data[4:12]),
		Payload:   payload,
	}

	if binary.BigEndian.Uint32(data[12:16]) != crc32.ChecksumIEEE(payload) {
		return Envelope{}, errors.WrapInvalid(errors.ErrChecksumFailed,
			"envelope", "Decode", "payload checksum validation")
	}

	return e, nil
}

// Gap returns the number of sequence numbers lost between two consecutively
// observed envelopes, in modulo-2^32 arithmetic. A direct successor yields 0,
// as does an exact duplicate (the sender never re-sends, so a repeat is a
// forwarder artifact rather than a full wrap). Any other jump, including
// reordered arrivals, counts the intervening numbers as lost.
func Gap(last, seq uint32) uint64 {
	delta := seq - last // wraps naturally
	if delta == 0 {
		return 0
	}
	return uint64(delta - 1)
}
