package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesReferenceConstants(t *testing.T) {
	cfg := Default()
	require.Equal(t, DefaultChunkSize, cfg.ChunkSize)
	require.Equal(t, DefaultChunkSize, cfg.ReadQuantum)
	require.Equal(t, DefaultChunkSize, cfg.FileChunkSize)
	require.Equal(t, DefaultAckArrivalTime, cfg.AckArrivalTime)
	require.Equal(t, DefaultFileTransferStreams(), cfg.FileTransferStreams)
}

func TestNormalizeFillsZeroFieldsFromChunkSize(t *testing.T) {
	cfg := Normalize(Config{ChunkSize: 256})
	require.Equal(t, 256, cfg.ReadQuantum)
	require.Equal(t, 256, cfg.FileChunkSize)
	require.Equal(t, DefaultAckArrivalTime, cfg.AckArrivalTime)
	require.Equal(t, DefaultFileTransferStreams(), cfg.FileTransferStreams)
}

func TestNormalizeLeavesExplicitFieldsAlone(t *testing.T) {
	cfg := Normalize(Config{
		ChunkSize:     256,
		ReadQuantum:   64,
		FileChunkSize: 128,
	})
	require.Equal(t, 64, cfg.ReadQuantum)
	require.Equal(t, 128, cfg.FileChunkSize)
}

func TestLoadFileLayersOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.toml")
	contents := `
chunk_size = 2048
ack_arrival_time_ms = 250
file_transfer_streams = [1, 2, 3]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, 2048, cfg.ChunkSize)
	require.Equal(t, 2048, cfg.ReadQuantum)
	require.Equal(t, 2048, cfg.FileChunkSize)
	require.Equal(t, 250*time.Millisecond, cfg.AckArrivalTime)
	require.Equal(t, []uint32{1, 2, 3}, cfg.FileTransferStreams)
	require.Equal(t, DefaultWaitBeforeFileStreamRelease, cfg.WaitBeforeFileStreamRelease)
}

func TestLoadFileReadQuantumOverridesChunkSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.toml")
	contents := `
chunk_size = 2048
read_quantum = 512
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	require.Equal(t, 2048, cfg.ChunkSize)
	require.Equal(t, 512, cfg.ReadQuantum)
	require.Equal(t, 2048, cfg.FileChunkSize)
}
