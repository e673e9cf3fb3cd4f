package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mesharc/p2pcore/config"
)

// testConfig returns a Config tuned for fast, deterministic tests: short
// retransmit/poll intervals and a reduced file-transfer stream pool so
// exhaustion scenarios don't require many concurrent transfers.
func testConfig() config.Config {
	cfg := config.Default()
	cfg.AckArrivalTime = 20 * time.Millisecond
	cfg.WaitBeforeFileStreamRelease = 10 * time.Millisecond
	cfg.FileFinaliserPollInterval = 5 * time.Millisecond
	cfg.ChunkSize = 64
	cfg.ReadQuantum = 64
	cfg.FileChunkSize = 64
	cfg.FileTransferStreams = []uint32{9001, 9002}
	return cfg
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met within %s", timeout)
}

// TestReliableDeliveryAcrossDroppedFirstTransmission drops the first
// transmission of a reliable message on the wire: the retransmit
// scheduler alone must still deliver it exactly once.
func TestReliableDeliveryAcrossDroppedFirstTransmission(t *testing.T) {
	aEnd, bEnd := newLink()

	aHandler := &recordingHandler{}
	bHandler := &recordingHandler{}

	a := New(aEnd, aHandler, WithConfig(testConfig()))
	defer a.Close()
	b := New(bEnd, bHandler, WithConfig(testConfig()))
	defer b.Close()

	aEnd.send.dropOneSend() // drops the first transmission of SendReliable
	require.NoError(t, a.SendReliable([]byte("hello")))

	eventually(t, time.Second, func() bool { return bHandler.reliableCount() == 1 })
	require.Equal(t, []byte("hello"), bHandler.reliable[0])

	// The retransmit scheduler must stop once the ACK arrives: no
	// duplicate delivery should show up after settling.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, bHandler.reliableCount())
}

// TestReliableMessageContainingBarkerLiteral checks that a payload
// containing the Barker byte sequence round-trips unchanged thanks to
// byte stuffing, without desynchronising the receiver.
func TestReliableMessageContainingBarkerLiteral(t *testing.T) {
	aEnd, bEnd := newLink()

	bHandler := &recordingHandler{}
	a := New(aEnd, &recordingHandler{}, WithConfig(testConfig()))
	defer a.Close()
	b := New(bEnd, bHandler, WithConfig(testConfig()))
	defer b.Close()

	payload := []byte("prefix-BADFDADF-BADFDAD-suffix")
	require.NoError(t, a.SendReliable(payload))

	eventually(t, time.Second, func() bool { return bHandler.reliableCount() == 1 })
	require.Equal(t, payload, bHandler.reliable[0])
}

// TestUnreliableMessageDeliveredOnce checks that a single unreliable send
// delivers exactly once, with no further delivery after settling.
func TestUnreliableMessageDeliveredOnce(t *testing.T) {
	aEnd, bEnd := newLink()

	bHandler := &recordingHandler{}
	a := New(aEnd, &recordingHandler{}, WithConfig(testConfig()))
	defer a.Close()
	b := New(bEnd, bHandler, WithConfig(testConfig()))
	defer b.Close()

	require.NoError(t, a.SendUnreliable([]byte("ping")))

	eventually(t, time.Second, func() bool { return bHandler.unreliableCount() == 1 })
	require.Equal(t, []byte("ping"), bHandler.unreliable[0])

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, 1, bHandler.unreliableCount())
}

// TestReliableRetransmissionRepeatsAtConfiguredInterval checks sustained
// retransmission: a sender that never observes an ACK keeps resending the
// same bytes at cfg.AckArrivalTime intervals, not just once.
func TestReliableRetransmissionRepeatsAtConfiguredInterval(t *testing.T) {
	send := &bufChannel{}
	recv := &bufChannel{} // nothing is ever injected here, so no ACK ever arrives
	end := &linkEnd{send: send, recv: recv}

	cfg := testConfig()
	cfg.AckArrivalTime = 20 * time.Millisecond

	a := New(end, &recordingHandler{}, WithConfig(cfg))
	defer a.Close()

	require.NoError(t, a.SendReliable([]byte("never acked")))

	first, err := send.Receive(1 << 20)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	time.Sleep(7 * cfg.AckArrivalTime)

	rest, err := send.Receive(1 << 20)
	require.NoError(t, err)
	require.NotZero(t, len(rest))
	require.Zero(t, len(rest)%len(first), "retransmissions must be whole, byte-identical copies of the original frame")

	count := len(rest) / len(first)
	require.GreaterOrEqual(t, count, 3, "expected at least 3 retransmissions within %s", 7*cfg.AckArrivalTime)

	for i := 0; i < count; i++ {
		chunk := rest[i*len(first) : (i+1)*len(first)]
		require.Equal(t, first, chunk, "retransmission %d differs from the original frame", i)
	}
}

// TestUnknownAckIsDroppedNotFatal covers an ACK for a message id the peer
// never sent: it must be logged and counted, not acted upon.
func TestUnknownAckIsDroppedNotFatal(t *testing.T) {
	aEnd, bEnd := newLink()
	a := New(aEnd, &recordingHandler{}, WithConfig(testConfig()))
	defer a.Close()
	_ = bEnd

	a.handleAck(99999)
	_, tracked := a.dedup.IsAcked(99999)
	require.False(t, tracked)
}

// TestMessageIDsAreMonotonicAndNeverZero checks that message ids are
// strictly increasing and never zero across repeated allocation.
func TestMessageIDsAreMonotonicAndNeverZero(t *testing.T) {
	aEnd, bEnd := newLink()
	a := New(aEnd, &recordingHandler{}, WithConfig(testConfig()))
	defer a.Close()
	_ = bEnd

	var prev uint32
	for i := 0; i < 10; i++ {
		id := a.nextID()
		require.NotZero(t, id)
		require.Greater(t, id, prev)
		prev = id
	}
}
