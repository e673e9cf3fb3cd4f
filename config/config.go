// Package config loads the tunable constants of the peer engine from an
// optional TOML file, falling back to the reference defaults when a field
// is absent. This is ambient plumbing only; it has no bearing on the wire
// protocol itself.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults matching the reference implementation's tuning constants.
const (
	DefaultChunkSize                    = 1024
	DefaultAckArrivalTime                = 500 * time.Millisecond
	DefaultWaitBeforeFileStreamRelease   = 4 * time.Second
	DefaultFileFinaliserPollInterval    = 100 * time.Millisecond
)

// DefaultFileTransferStreams is the reference reserved stream-id pool.
func DefaultFileTransferStreams() []uint32 {
	return []uint32{7771, 7772, 7773, 7774}
}

// Config holds every tunable constant the peer engine's components read
// at construction time.
type Config struct {
	// ReadQuantum is how many bytes the listener asks the transport for
	// per read. Defaults to ChunkSize when zero.
	ReadQuantum int

	// FileChunkSize is the content-bearing size of each file-transfer
	// frame. Defaults to ChunkSize when zero. Kept separate from
	// ReadQuantum since they are unrelated concerns that merely share a
	// default.
	FileChunkSize int

	// ChunkSize is the shared default for ReadQuantum and FileChunkSize.
	ChunkSize int

	// AckArrivalTime is the retransmit interval for reliable sends.
	AckArrivalTime time.Duration

	// WaitBeforeFileStreamRelease is the post-transfer drain delay before
	// a file-transfer stream id is returned to the pool.
	WaitBeforeFileStreamRelease time.Duration

	// FileFinaliserPollInterval is how often the file-receive finaliser
	// polls for a complete chunk set.
	FileFinaliserPollInterval time.Duration

	// FileTransferStreams is the reserved, mutually-exclusive stream-id
	// pool used for file transfer.
	FileTransferStreams []uint32
}

// fileConfig mirrors Config's TOML-serializable subset. Durations are
// expressed as integer milliseconds on disk.
type fileConfig struct {
	ChunkSize                     int      `toml:"chunk_size"`
	ReadQuantum                   int      `toml:"read_quantum"`
	FileChunkSize                 int      `toml:"file_chunk_size"`
	AckArrivalTimeMillis          int64    `toml:"ack_arrival_time_ms"`
	WaitBeforeFileReleaseMillis   int64    `toml:"wait_before_file_stream_release_ms"`
	FileFinaliserPollMillis       int64    `toml:"file_finaliser_poll_interval_ms"`
	FileTransferStreams           []uint32 `toml:"file_transfer_streams"`
}

// Default returns the reference-equivalent configuration.
func Default() Config {
	return Config{
		ChunkSize:                   DefaultChunkSize,
		ReadQuantum:                 DefaultChunkSize,
		FileChunkSize:               DefaultChunkSize,
		AckArrivalTime:              DefaultAckArrivalTime,
		WaitBeforeFileStreamRelease: DefaultWaitBeforeFileStreamRelease,
		FileFinaliserPollInterval:   DefaultFileFinaliserPollInterval,
		FileTransferStreams:         DefaultFileTransferStreams(),
	}
}

// LoadFile reads a TOML config file at path, layering any fields it sets
// over Default(). A missing or empty field keeps its default value.
func LoadFile(path string) (Config, error) {
	cfg := Default()

	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, err
	}

	if fc.ChunkSize != 0 {
		cfg.ChunkSize = fc.ChunkSize
		cfg.ReadQuantum = fc.ChunkSize
		cfg.FileChunkSize = fc.ChunkSize
	}
	if fc.ReadQuantum != 0 {
		cfg.ReadQuantum = fc.ReadQuantum
	}
	if fc.FileChunkSize != 0 {
		cfg.FileChunkSize = fc.FileChunkSize
	}
	if fc.AckArrivalTimeMillis != 0 {
		cfg.AckArrivalTime = time.Duration(fc.AckArrivalTimeMillis) * time.Millisecond
	}
	if fc.WaitBeforeFileReleaseMillis != 0 {
		cfg.WaitBeforeFileStreamRelease = time.Duration(fc.WaitBeforeFileReleaseMillis) * time.Millisecond
	}
	if fc.FileFinaliserPollMillis != 0 {
		cfg.FileFinaliserPollInterval = time.Duration(fc.FileFinaliserPollMillis) * time.Millisecond
	}
	if len(fc.FileTransferStreams) > 0 {
		cfg.FileTransferStreams = fc.FileTransferStreams
	}

	return cfg, nil
}

// normalize fills zero-valued ReadQuantum/FileChunkSize from ChunkSize, for
// callers that construct a Config by hand rather than via Default/LoadFile.
func (c Config) normalize() Config {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ReadQuantum == 0 {
		c.ReadQuantum = c.ChunkSize
	}
	if c.FileChunkSize == 0 {
		c.FileChunkSize = c.ChunkSize
	}
	if c.AckArrivalTime == 0 {
		c.AckArrivalTime = DefaultAckArrivalTime
	}
	if c.WaitBeforeFileStreamRelease == 0 {
		c.WaitBeforeFileStreamRelease = DefaultWaitBeforeFileStreamRelease
	}
	if c.FileFinaliserPollInterval == 0 {
		c.FileFinaliserPollInterval = DefaultFileFinaliserPollInterval
	}
	if len(c.FileTransferStreams) == 0 {
		c.FileTransferStreams = DefaultFileTransferStreams()
	}
	return c
}

// Normalize returns c with every zero-valued field replaced by its default.
func Normalize(c Config) Config {
	return c.normalize()
}
