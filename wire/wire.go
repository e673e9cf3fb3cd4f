// Package wire implements the framed byte protocol shared by two peers:
// barker-delimited frames, byte-stuffing, CRC-32 integrity, and the five
// packet types (reliable, unreliable, reliable-stream, unreliable-stream,
// ack).
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// PacketType identifies the header layout and delivery semantics of a frame.
type PacketType byte

const (
	Reliable PacketType = iota
	Unreliable
	ReliableStream
	UnreliableStream
	Ack
)

func (t PacketType) String() string {
	switch t {
	case Reliable:
		return "reliable"
	case Unreliable:
		return "unreliable"
	case ReliableStream:
		return "reliable-stream"
	case UnreliableStream:
		return "unreliable-stream"
	case Ack:
		return "ack"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

var (
	// Barker marks the start of every frame on the wire.
	Barker = []byte("BADFDADF")

	// beforeStuff is the 7-byte Barker prefix that must never appear
	// unescaped inside a stuffed payload.
	beforeStuff = []byte("BADFDAD")

	// afterStuff is what beforeStuff is replaced with during stuffing.
	afterStuff = []byte("BADFDADZ")
)

// BarkerLength is the length in bytes of Barker.
const BarkerLength = 8

// typeFieldLength is the single byte following the Barker that selects the
// header layout below.
const typeFieldLength = 1

// u32Len is the encoded width of every integer field on the wire.
const u32Len = 4

// ErrBadPacket is returned by Unwrap for any malformed, truncated, or
// corrupt candidate packet. It deliberately carries no more detail than a
// human-readable cause: callers only ever need to know parsing failed,
// not which of several ways it failed.
type ErrBadPacket struct {
	Reason string
}

func (e *ErrBadPacket) Error() string {
	return fmt.Sprintf("bad packet: %s", e.Reason)
}

func badPacket(format string, args ...interface{}) error {
	return &ErrBadPacket{Reason: fmt.Sprintf(format, args...)}
}

// stuff replaces every occurrence of the Barker's 7-byte prefix with its
// escaped form so the Barker can never appear unescaped inside a payload.
func stuff(data []byte) []byte {
	return bytes.Replace(data, beforeStuff, afterStuff, -1)
}

// unstuff is the inverse of stuff.
func unstuff(data []byte) []byte {
	return bytes.Replace(data, afterStuff, beforeStuff, -1)
}

func putU32(b []byte, v uint32) []byte {
	var tmp [u32Len]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func crc32Of(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// Packet is the parsed result of Unwrap. Fields that do not apply to the
// parsed packet type (e.g. StreamID on a non-streamed packet) are left
// nil.
type Packet struct {
	Type           PacketType
	Payload        []byte
	MessageID      *uint32
	StreamID       *uint32
	AckedMessageID *uint32

	// RedundantTail holds any bytes following the end of this packet that
	// were present in the buffer handed to Unwrap.
	RedundantTail []byte
}

// WrapReliable frames payload as a type-0 reliable packet.
func WrapReliable(payload []byte, messageID uint32) []byte {
	stuffed := stuff(payload)
	out := make([]byte, 0, BarkerLength+typeFieldLength+u32Len+u32Len+len(stuffed)+u32Len)
	out = append(out, Barker...)
	out = append(out, byte(Reliable))
	out = putU32(out, messageID)
	out = putU32(out, uint32(len(stuffed)))
	out = append(out, stuffed...)
	out = putU32(out, crc32Of(stuffed))
	return out
}

// WrapUnreliable frames payload as a type-1 unreliable packet.
func WrapUnreliable(payload []byte) []byte {
	stuffed := stuff(payload)
	out := make([]byte, 0, BarkerLength+typeFieldLength+u32Len+len(stuffed)+u32Len)
	out = append(out, Barker...)
	out = append(out, byte(Unreliable))
	out = putU32(out, uint32(len(stuffed)))
	out = append(out, stuffed...)
	out = putU32(out, crc32Of(stuffed))
	return out
}

// WrapReliableStream frames payload as a type-2 reliable-stream packet.
func WrapReliableStream(payload []byte, messageID, streamID uint32) []byte {
	stuffed := stuff(payload)
	out := make([]byte, 0, BarkerLength+typeFieldLength+u32Len+u32Len+u32Len+len(stuffed)+u32Len)
	out = append(out, Barker...)
	out = append(out, byte(ReliableStream))
	out = putU32(out, messageID)
	out = putU32(out, streamID)
	out = putU32(out, uint32(len(stuffed)))
	out = append(out, stuffed...)
	out = putU32(out, crc32Of(stuffed))
	return out
}

// WrapUnreliableStream frames payload as a type-3 unreliable-stream packet.
func WrapUnreliableStream(payload []byte, streamID uint32) []byte {
	stuffed := stuff(payload)
	out := make([]byte, 0, BarkerLength+typeFieldLength+u32Len+u32Len+len(stuffed)+u32Len)
	out = append(out, Barker...)
	out = append(out, byte(UnreliableStream))
	out = putU32(out, streamID)
	out = putU32(out, uint32(len(stuffed)))
	out = append(out, stuffed...)
	out = putU32(out, crc32Of(stuffed))
	return out
}

// WrapAck frames a standalone type-4 ACK packet. ACK frames carry no CRC.
func WrapAck(ackedMessageID uint32) []byte {
	out := make([]byte, 0, BarkerLength+typeFieldLength+u32Len)
	out = append(out, Barker...)
	out = append(out, byte(Ack))
	out = putU32(out, ackedMessageID)
	return out
}

// extractFramed reads the common size+stuffed-payload+crc tail that every
// non-ACK packet type ends with, starting at idx, and verifies the CRC.
func extractFramed(data []byte, idx int) (payload, redundant []byte, err error) {
	if len(data) < idx+u32Len {
		return nil, nil, badPacket("truncated size field")
	}
	size := binary.LittleEndian.Uint32(data[idx : idx+u32Len])
	idx += u32Len

	if uint64(idx)+uint64(size)+u32Len > uint64(len(data)) {
		return nil, nil, badPacket("truncated payload or crc")
	}
	stuffed := data[idx : idx+int(size)]
	idx += int(size)

	wantCRC := binary.LittleEndian.Uint32(data[idx : idx+u32Len])
	idx += u32Len

	if gotCRC := crc32Of(stuffed); gotCRC != wantCRC {
		return nil, nil, badPacket("crc mismatch: want %08x got %08x", wantCRC, gotCRC)
	}

	payload = unstuff(stuffed)
	if payload == nil {
		// An empty payload stays non-nil, distinct from an ACK's nil Payload.
		payload = []byte{}
	}
	return payload, data[idx:], nil
}

// IndexBarker returns the index of the first occurrence of Barker in data
// at or after from, or -1 if none is found.
func IndexBarker(data []byte, from int) int {
	if from >= len(data) {
		return -1
	}
	rel := bytes.Index(data[from:], Barker)
	if rel == -1 {
		return -1
	}
	return from + rel
}

// Unwrap parses exactly one packet starting at offset 0 of buf. On success
// it returns the parsed Packet; RedundantTail holds any bytes in buf past
// the end of the parsed packet. Unwrap never panics: any malformed,
// truncated, or corrupt input yields an *ErrBadPacket.
func Unwrap(buf []byte) (Packet, error) {
	if len(buf) < BarkerLength+typeFieldLength {
		return Packet{}, badPacket("too short for header")
	}
	if !bytes.Equal(buf[:BarkerLength], Barker) {
		return Packet{}, badPacket("missing barker")
	}

	typ := PacketType(buf[BarkerLength])
	idx := BarkerLength + typeFieldLength

	switch typ {
	case Reliable:
		if len(buf) < idx+u32Len {
			return Packet{}, badPacket("truncated message id")
		}
		msgID := binary.LittleEndian.Uint32(buf[idx : idx+u32Len])
		payload, redundant, err := extractFramed(buf, idx+u32Len)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Payload: payload, MessageID: &msgID, RedundantTail: redundant}, nil

	case Unreliable:
		payload, redundant, err := extractFramed(buf, idx)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Payload: payload, RedundantTail: redundant}, nil

	case ReliableStream:
		if len(buf) < idx+u32Len+u32Len {
			return Packet{}, badPacket("truncated message/stream id")
		}
		msgID := binary.LittleEndian.Uint32(buf[idx : idx+u32Len])
		streamID := binary.LittleEndian.Uint32(buf[idx+u32Len : idx+2*u32Len])
		payload, redundant, err := extractFramed(buf, idx+2*u32Len)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Payload: payload, MessageID: &msgID, StreamID: &streamID, RedundantTail: redundant}, nil

	case UnreliableStream:
		if len(buf) < idx+u32Len {
			return Packet{}, badPacket("truncated stream id")
		}
		streamID := binary.LittleEndian.Uint32(buf[idx : idx+u32Len])
		payload, redundant, err := extractFramed(buf, idx+u32Len)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Type: typ, Payload: payload, StreamID: &streamID, RedundantTail: redundant}, nil

	case Ack:
		if len(buf) < idx+u32Len {
			return Packet{}, badPacket("truncated acked message id")
		}
		acked := binary.LittleEndian.Uint32(buf[idx : idx+u32Len])
		return Packet{Type: typ, AckedMessageID: &acked, RedundantTail: buf[idx+u32Len:]}, nil

	default:
		return Packet{}, badPacket("unknown packet type %d", byte(typ))
	}
}
