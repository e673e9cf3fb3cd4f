// Package peer implements the peer engine: the receive pipeline,
// ACK/retransmit reliability engine, stream multiplexer and
// file-transfer reassembly, and the peer façade exposed to embedders.
package peer

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/eapache/channels.v1"

	"github.com/mesharc/p2pcore/config"
	"github.com/mesharc/p2pcore/dedupstore"
	"github.com/mesharc/p2pcore/metrics"
	"github.com/mesharc/p2pcore/transport"
	"github.com/mesharc/p2pcore/wire"
)

// Peer is one side of a symmetric peer-to-peer messaging session. Callers
// construct one Peer per byte transport and must implement Handler to
// receive delivered messages and files.
type Peer struct {
	transport transport.Transport
	handler   Handler
	cfg       config.Config
	log       *log.Logger
	metrics   *metrics.Metrics
	dedup     dedupstore.Store

	nextMessageID uint32 // atomic; incremented before use, never 0

	tq *TimerQueue

	framesMu sync.Mutex
	frames   map[uint32][]byte // msg id -> exact bytes to retransmit

	fileStreamPool channels.Channel // of uint32 stream ids
	fileStreamSet  map[uint32]bool  // membership test for dispatch

	chunksMu sync.Mutex
	chunks   map[uint32]map[uint32][]byte // stream id -> chunk index -> data

	haltOnce sync.Once
	haltCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures optional aspects of a Peer at construction time.
type Option func(*Peer)

// WithConfig overrides the default Config.
func WithConfig(cfg config.Config) Option {
	return func(p *Peer) { p.cfg = config.Normalize(cfg) }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Peer) { p.log = l }
}

// WithMetrics overrides the default (unregistered) metrics bundle.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Peer) { p.metrics = m }
}

// WithDedupStore overrides the default in-memory dedup/ACK store, e.g.
// with dedupstore.OpenBoltStore for a long-lived, TTL-pruned peer.
func WithDedupStore(s dedupstore.Store) Option {
	return func(p *Peer) { p.dedup = s }
}

// New constructs a Peer bound to t and handler, and starts its listener
// and retransmit scheduler goroutines.
func New(t transport.Transport, handler Handler, opts ...Option) *Peer {
	p := &Peer{
		transport: t,
		handler:   handler,
		cfg:       config.Default(),
		log:       log.Default(),
		metrics:   metrics.New(nil),
		dedup:     dedupstore.NewMemStore(),
		frames:    make(map[uint32][]byte),
		chunks:    make(map[uint32]map[uint32][]byte),
		haltCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.log = p.log.WithPrefix("peer")

	p.fileStreamSet = make(map[uint32]bool, len(p.cfg.FileTransferStreams))
	pool := channels.NewNativeChannel(channels.BufferCap(len(p.cfg.FileTransferStreams)))
	for _, id := range p.cfg.FileTransferStreams {
		p.fileStreamSet[id] = true
		p.chunks[id] = make(map[uint32][]byte)
		pool.In() <- id
	}
	p.fileStreamPool = pool

	p.tq = NewTimerQueue(p.onRetransmitDue)
	p.tq.Start()

	p.wg.Add(1)
	go p.listen()

	return p
}

// Close stops the listener and retransmit scheduler goroutines. It is a
// local resource-cleanup operation only: it never exchanges a teardown
// message with the remote peer.
func (p *Peer) Close() error {
	p.haltOnce.Do(func() {
		close(p.haltCh)
		p.tq.Halt()
	})
	p.wg.Wait()
	p.tq.Wait()
	return p.dedup.Close()
}

func (p *Peer) nextID() uint32 {
	return atomic.AddUint32(&p.nextMessageID, 1)
}

// SendReliable sends payload with at-least-once, exactly-once-delivered
// semantics: the frame is retransmitted at cfg.AckArrivalTime intervals
// until an ACK is observed. SendReliable returns immediately; delivery
// happens asynchronously.
func (p *Peer) SendReliable(payload []byte) error {
	id := p.nextID()
	frame := wire.WrapReliable(payload, id)
	p.metrics.MessagesSent.WithLabelValues(metrics.ModeReliable).Inc()
	return p.sendReliableFrame(id, frame)
}

// SendUnreliable sends payload once, best-effort, with no ACK and no
// retransmission.
func (p *Peer) SendUnreliable(payload []byte) error {
	p.metrics.MessagesSent.WithLabelValues(metrics.ModeUnreliable).Inc()
	return p.transport.Send(wire.WrapUnreliable(payload))
}

// SendReliableStream sends payload tagged with streamID using the same
// retransmit-until-ACK semantics as SendReliable.
func (p *Peer) SendReliableStream(payload []byte, streamID uint32) error {
	id := p.nextID()
	frame := wire.WrapReliableStream(payload, id, streamID)
	p.metrics.MessagesSent.WithLabelValues(metrics.ModeReliableStream).Inc()
	return p.sendReliableFrame(id, frame)
}

// SendUnreliableStream sends payload tagged with streamID once, best
// effort, with no ACK and no retransmission.
func (p *Peer) SendUnreliableStream(payload []byte, streamID uint32) error {
	p.metrics.MessagesSent.WithLabelValues(metrics.ModeUnreliableStream).Inc()
	return p.transport.Send(wire.WrapUnreliableStream(payload, streamID))
}

// sendReliableFrame registers id as outstanding, transmits frame once, and
// arms the retransmit scheduler for it. The scheduler resends the
// byte-identical frame at cfg.AckArrivalTime intervals, with no backoff
// and no cap, until the ACK table shows id acked.
func (p *Peer) sendReliableFrame(id uint32, frame []byte) error {
	p.dedup.TrackOutstanding(id)

	p.framesMu.Lock()
	p.frames[id] = frame
	p.framesMu.Unlock()

	if err := p.transport.Send(frame); err != nil {
		return err
	}

	priority := uint64(time.Now().Add(p.cfg.AckArrivalTime).UnixNano())
	p.tq.Push(priority, id)
	return nil
}

// onRetransmitDue is the TimerQueue callback: it fires once per
// outstanding reliable message at its current deadline.
func (p *Peer) onRetransmitDue(value interface{}) {
	id := value.(uint32)

	acked, tracked := p.dedup.IsAcked(id)
	if !tracked || acked {
		return
	}

	p.framesMu.Lock()
	frame, ok := p.frames[id]
	p.framesMu.Unlock()
	if !ok {
		return
	}

	if err := p.transport.Send(frame); err != nil {
		p.log.Warnf("retransmit of message %d failed: %v", id, err)
	}
	p.metrics.Retransmits.Inc()

	priority := uint64(time.Now().Add(p.cfg.AckArrivalTime).UnixNano())
	p.tq.Push(priority, id)
}

func msgIDEqual(a, b interface{}) bool {
	return a.(uint32) == b.(uint32)
}

// handleAck marks id acked and cancels its pending retransmit.
func (p *Peer) handleAck(id uint32) {
	_, tracked := p.dedup.IsAcked(id)
	if !tracked {
		p.log.Warnf("%v", &UnknownAckError{MessageID: id})
		p.metrics.UnknownAcksDropped.Inc()
		return
	}
	p.dedup.MarkAcked(id)
	p.tq.Remove(id, msgIDEqual)

	p.framesMu.Lock()
	delete(p.frames, id)
	p.framesMu.Unlock()
}

// SendFile sends the file at path over a reliable stream, chunked at
// cfg.FileChunkSize. It fails synchronously if path does not exist or is
// not a regular file; otherwise it starts an asynchronous transfer and
// returns immediately.
func (p *Peer) SendFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return &NoSuchFileError{Path: path}
	}
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return &NotAFileError{Path: path}
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sendFile(path)
	}()
	return nil
}
