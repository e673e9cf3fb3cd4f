package peer

import (
	"sync"
	"time"
)

// bufChannel is an in-memory, non-blocking byte queue standing in for one
// direction of a byte transport in tests. Receive on an empty queue
// returns zero bytes and a nil error, matching a Transport whose zero-
// length read is a spin hint rather than end-of-stream.
type bufChannel struct {
	mu       sync.Mutex
	data     []byte
	dropNext bool
}

func (c *bufChannel) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dropNext {
		c.dropNext = false
		return nil
	}
	c.data = append(c.data, b...)
	return nil
}

func (c *bufChannel) Receive(maxLen int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.data) == 0 {
		return nil, nil
	}
	n := maxLen
	if n > len(c.data) {
		n = len(c.data)
	}
	out := append([]byte(nil), c.data[:n]...)
	c.data = c.data[n:]
	return out, nil
}

// inject appends raw bytes directly to the queue, bypassing Send, so
// tests can feed arbitrary (including malformed) byte streams.
func (c *bufChannel) inject(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, b...)
}

// dropOneSend causes the next Send call to silently discard its bytes.
func (c *bufChannel) dropOneSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dropNext = true
}

// linkEnd is one side of an in-memory Transport pair.
type linkEnd struct {
	send *bufChannel
	recv *bufChannel
}

func (e *linkEnd) Send(b []byte) error { return e.send.Send(b) }

func (e *linkEnd) Receive(maxLen int) ([]byte, error) {
	b, err := e.recv.Receive(maxLen)
	if len(b) == 0 && err == nil {
		time.Sleep(time.Millisecond)
	}
	return b, err
}

// newLink returns two linkEnds wired crosswise: a's Send feeds b's
// Receive and vice versa.
func newLink() (a, b *linkEnd) {
	aToB := &bufChannel{}
	bToA := &bufChannel{}
	a = &linkEnd{send: aToB, recv: bToA}
	b = &linkEnd{send: bToA, recv: aToB}
	return a, b
}

// recordingHandler implements Handler and records every upcall for test
// assertions.
type recordingHandler struct {
	mu sync.Mutex

	reliable         [][]byte
	unreliable       [][]byte
	reliableStream   []streamMsg
	unreliableStream []streamMsg
	files            []fileMsg
}

type streamMsg struct {
	payload  []byte
	streamID uint32
}

type fileMsg struct {
	filename string
	data     []byte
}

func (h *recordingHandler) OnReliableMessage(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reliable = append(h.reliable, append([]byte(nil), payload...))
}

func (h *recordingHandler) OnUnreliableMessage(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreliable = append(h.unreliable, append([]byte(nil), payload...))
}

func (h *recordingHandler) OnReliableStreamMessage(payload []byte, streamID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reliableStream = append(h.reliableStream, streamMsg{append([]byte(nil), payload...), streamID})
}

func (h *recordingHandler) OnUnreliableStreamMessage(payload []byte, streamID uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unreliableStream = append(h.unreliableStream, streamMsg{append([]byte(nil), payload...), streamID})
}

func (h *recordingHandler) OnFile(filename string, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.files = append(h.files, fileMsg{filename, append([]byte(nil), data...)})
}

func (h *recordingHandler) reliableCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reliable)
}

func (h *recordingHandler) fileCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.files)
}

func (h *recordingHandler) unreliableCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.unreliable)
}
