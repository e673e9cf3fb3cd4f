package peer

import "fmt"

// BadPacketError wraps any malformed-byte-stream condition the listener
// recovered from: missing barker, unknown packet type, CRC mismatch, or a
// truncated header. It never surfaces past the listener; it exists so
// tests and logging can distinguish failure causes without the listener
// panicking or stopping.
type BadPacketError struct {
	Cause error
}

func (e *BadPacketError) Error() string {
	return fmt.Sprintf("bad packet: %v", e.Cause)
}

func (e *BadPacketError) Unwrap() error { return e.Cause }

// UnknownAckError is logged and dropped when an ACK references a message
// id this peer never sent. A repeated ACK for an id already acked is not
// unknown.
type UnknownAckError struct {
	MessageID uint32
}

func (e *UnknownAckError) Error() string {
	return fmt.Sprintf("ack for unknown message id %d", e.MessageID)
}

// NoSuchFileError is the synchronous failure SendFile returns when the
// path does not exist.
type NoSuchFileError struct {
	Path string
}

func (e *NoSuchFileError) Error() string {
	return fmt.Sprintf("no such file: %s", e.Path)
}

// NotAFileError is the synchronous failure SendFile returns when path
// exists but is not a regular file (e.g. a directory), reported up front
// rather than failing deep inside a subsequent os.Open.
type NotAFileError struct {
	Path string
}

func (e *NotAFileError) Error() string {
	return fmt.Sprintf("not a regular file: %s", e.Path)
}

// InvalidChunkFlagError is logged and the frame dropped when a file-
// transfer frame's is-last byte is neither '0' nor '1'. The transfer may
// stall waiting for an end marker that will never arrive.
type InvalidChunkFlagError struct {
	StreamID uint32
	Value    byte
}

func (e *InvalidChunkFlagError) Error() string {
	return fmt.Sprintf("invalid is-last flag %q for stream %d", e.Value, e.StreamID)
}
