package peer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"
)

// File-transfer frames carry a 4-byte little-endian chunk index followed
// by a single is-last flag byte ('0' or '1') ahead of the chunk payload.
// Chunk index 0 carries the filename; indices 1..N-1 carry file content;
// index N is an empty end-of-file sentinel.
const (
	isLastFalse byte = '0'
	isLastTrue  byte = '1'
)

func encodeChunkHeader(index uint32, isLast byte) []byte {
	header := make([]byte, 5)
	binary.LittleEndian.PutUint32(header[0:4], index)
	header[4] = isLast
	return header
}

// acquireFileStream blocks until a file-transfer stream id is free, so
// two transfers can never share one concurrently. Blocking on a
// pre-filled bounded channel replaces the reference's busy-wait spin loop
// over a plain list.
func (p *Peer) acquireFileStream() uint32 {
	id := (<-p.fileStreamPool.Out()).(uint32)
	p.metrics.StreamPoolInUse.Inc()
	return id
}

// releaseFileStream returns a stream id to the pool after the configured
// post-transfer drain delay, so the receiver has time to finish draining
// any in-flight retransmissions before the id is reused.
func (p *Peer) releaseFileStream(streamID uint32) {
	time.Sleep(p.cfg.WaitBeforeFileStreamRelease)
	p.fileStreamPool.In() <- streamID
	p.metrics.StreamPoolInUse.Dec()
}

// sendFile sends a filename frame followed by the file's content in
// cfg.FileChunkSize pieces and a final empty end-marker frame, all on
// streamID. It runs on its own goroutine (see Peer.SendFile) and owns
// streamID for the duration of the transfer.
func (p *Peer) sendFile(path string) {
	streamID := p.acquireFileStream()
	defer p.releaseFileStream(streamID)

	p.metrics.FileTransfersActive.Inc()
	defer p.metrics.FileTransfersActive.Dec()

	filename := filepath.Base(path)
	index := uint32(0)
	if err := p.SendReliableStream(append(encodeChunkHeader(index, isLastFalse), filename...), streamID); err != nil {
		p.log.Errorf("send file %q: filename frame: %v", path, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		p.log.Errorf("send file %q: open: %v", path, err)
		return
	}
	defer f.Close()

	buf := make([]byte, p.cfg.FileChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			index++
			chunk := append(encodeChunkHeader(index, isLastFalse), buf[:n]...)
			if sendErr := p.SendReliableStream(chunk, streamID); sendErr != nil {
				p.log.Errorf("send file %q: chunk %d: %v", path, index, sendErr)
				return
			}
		}
		if err != nil {
			break
		}
	}

	index++
	if err := p.SendReliableStream(encodeChunkHeader(index, isLastTrue), streamID); err != nil {
		p.log.Errorf("send file %q: end marker: %v", path, err)
	}

	p.metrics.FileTransfersTotal.Inc()
}

// handleFileChunk is the receiver side of a file-transfer frame, called
// from handleUnwrapped once a reliable-stream message on a file-transfer
// stream id has passed dedup.
func (p *Peer) handleFileChunk(streamID uint32, message []byte) {
	if len(message) < 5 {
		p.log.Warnf("file chunk on stream %d shorter than header", streamID)
		return
	}

	chunkIndex := binary.LittleEndian.Uint32(message[0:4])
	isLast := message[4]
	payload := message[5:]

	switch isLast {
	case isLastTrue:
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.finalizeFile(streamID, chunkIndex)
		}()
	case isLastFalse:
		p.chunksMu.Lock()
		p.chunks[streamID][chunkIndex] = payload
		p.chunksMu.Unlock()
	default:
		p.log.Warnf("%v", &InvalidChunkFlagError{StreamID: streamID, Value: isLast})
	}
}

// finalizeFile waits for every chunk 0..numChunks-1 to arrive (they may
// still be in flight as retransmissions), then assembles the file and
// invokes OnFile exactly once.
func (p *Peer) finalizeFile(streamID uint32, numChunks uint32) {
	p.metrics.FileTransfersActive.Inc()
	defer p.metrics.FileTransfersActive.Dec()

	for {
		p.chunksMu.Lock()
		have := uint32(len(p.chunks[streamID]))
		p.chunksMu.Unlock()
		if have == numChunks {
			break
		}
		select {
		case <-p.haltCh:
			return
		case <-time.After(p.cfg.FileFinaliserPollInterval):
		}
	}

	p.chunksMu.Lock()
	table := p.chunks[streamID]
	p.chunks[streamID] = make(map[uint32][]byte)
	p.chunksMu.Unlock()

	filename := string(table[0])
	var data []byte
	for i := uint32(1); i < numChunks; i++ {
		data = append(data, table[i]...)
	}

	p.metrics.FileTransfersTotal.Inc()
	p.handler.OnFile(filename, data)
}
