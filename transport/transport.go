// Package transport defines the capability pair the peer engine needs from
// the byte channel underneath it, and provides a couple of concrete,
// illustrative implementations. The peer engine treats the channel as a
// half-reliable byte pipe: bytes that arrive are never reordered, but
// reads may be truncated at arbitrary boundaries, return fewer bytes than
// requested, or return zero bytes without that meaning end-of-stream.
package transport

// Transport is the embedder-supplied send/receive capability pair the
// peer engine is built against. Implementations are not required to be
// reliable, ordered across distinct writes, or loss-free beyond "bytes
// that do arrive are not reordered".
type Transport interface {
	// Send writes data to the channel. A Peer calls Send from several
	// goroutines at once (the listener's ACKs, the retransmit scheduler,
	// file senders and callers of its Send* methods).
	Send(data []byte) error

	// Receive reads up to maxLen bytes. Returning fewer bytes than
	// maxLen, or zero bytes with a nil error, are both valid and must not
	// be treated as end-of-stream by callers.
	Receive(maxLen int) ([]byte, error)
}
