package peer

import (
	"github.com/mesharc/p2pcore/wire"
)

// listen is the peer's single long-running reader. It owns a growing
// tail buffer, resynchronises on the Barker after any corruption, and
// dispatches every successfully parsed packet in the order it was
// parsed.
func (p *Peer) listen() {
	defer p.wg.Done()

	var data []byte

	for {
		select {
		case <-p.haltCh:
			return
		default:
		}

		chunk, err := p.transport.Receive(p.cfg.ReadQuantum)
		if err != nil {
			p.log.Errorf("transport receive failed: %v", err)
			return
		}
		if len(chunk) == 0 {
			continue
		}
		data = append(data, chunk...)

		barkerIdx := wire.IndexBarker(data, 0)
		if barkerIdx == -1 {
			p.log.Debugf("bad data, no barker in %d bytes", len(data))
			if len(data) > wire.BarkerLength-1 {
				data = data[len(data)-(wire.BarkerLength-1):]
			}
			continue
		}
		data = data[barkerIdx:]

		packets := extractCandidatePackets(data)
		for _, candidate := range packets[:len(packets)-1] {
			pkt, err := wire.Unwrap(candidate)
			if err != nil {
				p.log.Warnf("%v", &BadPacketError{Cause: err})
				p.metrics.BadPacketsDropped.Inc()
				continue
			}
			if len(pkt.RedundantTail) > 0 {
				p.log.Debugf("redundant bytes after packet: %d", len(pkt.RedundantTail))
			}
			p.handleUnwrapped(pkt)
		}

		last := packets[len(packets)-1]
		pkt, err := wire.Unwrap(last)
		if err != nil {
			// Not yet a complete packet; keep it and wait for more bytes.
			data = last
			continue
		}
		p.handleUnwrapped(pkt)
		data = pkt.RedundantTail
	}
}

// extractCandidatePackets splits data, which must start with a Barker,
// into a list of candidate packets by scanning for subsequent Barker
// occurrences. The final candidate may be an incomplete packet.
func extractCandidatePackets(data []byte) [][]byte {
	var barkerIdxs []int
	for from := 0; ; {
		idx := wire.IndexBarker(data, from)
		if idx == -1 {
			break
		}
		barkerIdxs = append(barkerIdxs, idx)
		from = idx + wire.BarkerLength
	}

	packets := make([][]byte, 0, len(barkerIdxs))
	for i := 0; i < len(barkerIdxs)-1; i++ {
		packets = append(packets, data[barkerIdxs[i]:barkerIdxs[i+1]])
	}
	packets = append(packets, data[barkerIdxs[len(barkerIdxs)-1]:])
	return packets
}
