package peer

import (
	"github.com/fxamacker/cbor/v2"
)

// StateSnapshot is a point-in-time, read-only view of a Peer's internal
// tables, intended purely for operational diagnostics. It is never sent
// on the wire and has no bearing on protocol behavior.
type StateSnapshot struct {
	OutstandingMessageIDs []uint32          `cbor:"outstanding_message_ids"`
	ChunksBufferedByStream map[uint32]int   `cbor:"chunks_buffered_by_stream"`
	StreamPoolAvailable   int               `cbor:"stream_pool_available"`
}

// SnapshotState returns a cbor-encoded StateSnapshot describing the
// peer's current outstanding reliable sends, per-stream chunk-table
// occupancy, and free file-transfer stream-id count.
func (p *Peer) SnapshotState() ([]byte, error) {
	p.framesMu.Lock()
	outstanding := make([]uint32, 0, len(p.frames))
	for id := range p.frames {
		outstanding = append(outstanding, id)
	}
	p.framesMu.Unlock()

	p.chunksMu.Lock()
	bufferedByStream := make(map[uint32]int, len(p.chunks))
	for streamID, table := range p.chunks {
		bufferedByStream[streamID] = len(table)
	}
	p.chunksMu.Unlock()

	snap := StateSnapshot{
		OutstandingMessageIDs:  outstanding,
		ChunksBufferedByStream: bufferedByStream,
		StreamPoolAvailable:    p.fileStreamPool.Len(),
	}

	return cbor.Marshal(snap)
}
