package peer

import (
	"github.com/mesharc/p2pcore/metrics"
	"github.com/mesharc/p2pcore/wire"
)

// handleUnwrapped decides what to do with one parsed packet: update the
// ACK table, deliver an unreliable message with no ACK and no dedup, or
// ACK and dedup-gate a reliable message before delivering it. It always
// runs on the listener goroutine except for the file-assembly
// finalisation it may kick off, which runs in its own goroutine.
func (p *Peer) handleUnwrapped(pkt wire.Packet) {
	if pkt.AckedMessageID != nil {
		p.handleAck(*pkt.AckedMessageID)
		return
	}

	if pkt.MessageID == nil {
		// Unreliable: no ACK, no dedup.
		if pkt.StreamID == nil {
			p.metrics.MessagesReceived.WithLabelValues(metrics.ModeUnreliable).Inc()
			p.handler.OnUnreliableMessage(pkt.Payload)
		} else {
			p.metrics.MessagesReceived.WithLabelValues(metrics.ModeUnreliableStream).Inc()
			p.handler.OnUnreliableStreamMessage(pkt.Payload, *pkt.StreamID)
		}
		return
	}

	// Reliable: ACK unconditionally, even for a duplicate, so the sender
	// stops retransmitting regardless of whether this is a first delivery.
	if err := p.transport.Send(wire.WrapAck(*pkt.MessageID)); err != nil {
		p.log.Warnf("failed to send ack for message %d: %v", *pkt.MessageID, err)
	} else {
		p.metrics.AcksSent.Inc()
	}

	if !p.dedup.MarkReceived(*pkt.MessageID) {
		p.metrics.DedupDropped.Inc()
		return
	}

	switch {
	case pkt.StreamID == nil:
		p.metrics.MessagesReceived.WithLabelValues(metrics.ModeReliable).Inc()
		p.handler.OnReliableMessage(pkt.Payload)

	case p.fileStreamSet[*pkt.StreamID]:
		p.handleFileChunk(*pkt.StreamID, pkt.Payload)

	default:
		p.metrics.MessagesReceived.WithLabelValues(metrics.ModeReliableStream).Inc()
		p.handler.OnReliableStreamMessage(pkt.Payload, *pkt.StreamID)
	}
}
