package peer

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

// TestSnapshotStateReflectsOutstandingSend checks that a reliable send
// awaiting its ACK shows up in the snapshot's outstanding-message-id list,
// that the free stream-pool count matches the configured pool size
// before any file transfer has claimed a slot, and that every file stream
// reports zero buffered chunks.
func TestSnapshotStateReflectsOutstandingSend(t *testing.T) {
	aEnd, bEnd := newLink()

	cfg := testConfig()
	a := New(aEnd, &recordingHandler{}, WithConfig(cfg))
	defer a.Close()
	b := New(bEnd, &recordingHandler{}, WithConfig(cfg))
	defer b.Close()

	aEnd.send.dropOneSend() // first transmission never arrives, so b never ACKs it
	require.NoError(t, a.SendReliable([]byte("pending")))

	raw, err := a.SnapshotState()
	require.NoError(t, err)

	var snap StateSnapshot
	require.NoError(t, cbor.Unmarshal(raw, &snap))

	require.Len(t, snap.OutstandingMessageIDs, 1)
	require.Equal(t, len(cfg.FileTransferStreams), snap.StreamPoolAvailable)
	wantChunks := make(map[uint32]int, len(cfg.FileTransferStreams))
	for _, id := range cfg.FileTransferStreams {
		wantChunks[id] = 0
	}
	require.Equal(t, wantChunks, snap.ChunksBufferedByStream)
}
