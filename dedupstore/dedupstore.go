// Package dedupstore backs the peer engine's outstanding-ACK and
// received-ids tables. Left unbounded, these tables grow for the life of
// the process — acceptable for a short-lived peer, a problem for a
// long-lived one. This package makes that tradeoff explicit: an
// in-memory Store reproduces the original's unbounded-growth behavior
// exactly (the default), and a bbolt-backed Store adds opt-in
// persistence with TTL pruning for long-lived peers.
package dedupstore

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Store tracks which message ids have already been seen (for receiver-side
// dedup) and, separately, which outgoing message ids have been ACKed.
// Implementations must be safe for concurrent use.
type Store interface {
	// MarkReceived records msgID as delivered upward. It returns true if
	// msgID had NOT been seen before (i.e. the caller should deliver),
	// false if it was already present (a duplicate).
	MarkReceived(msgID uint32) (firstTime bool)

	// MarkAcked records that msgID has been ACKed.
	MarkAcked(msgID uint32)

	// IsAcked reports whether msgID has been ACKed. The second return
	// value is false if msgID is not being tracked at all.
	IsAcked(msgID uint32) (acked bool, tracked bool)

	// TrackOutstanding begins tracking msgID as a not-yet-acked outgoing
	// message.
	TrackOutstanding(msgID uint32)

	// Close releases any resources held by the store.
	Close() error
}

// memStore is the in-memory default: two plain maps guarded by a mutex,
// byte-for-byte the growth behavior of the original's dictionaries.
type memStore struct {
	mu       sync.Mutex
	received map[uint32]struct{}
	acked    map[uint32]bool
}

// NewMemStore returns the default, unbounded in-memory Store.
func NewMemStore() Store {
	return &memStore{
		received: make(map[uint32]struct{}),
		acked:    make(map[uint32]bool),
	}
}

func (s *memStore) MarkReceived(msgID uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.received[msgID]; ok {
		return false
	}
	s.received[msgID] = struct{}{}
	return true
}

func (s *memStore) MarkAcked(msgID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[msgID] = true
}

func (s *memStore) IsAcked(msgID uint32) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acked, tracked := s.acked[msgID]
	return acked, tracked
}

func (s *memStore) TrackOutstanding(msgID uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[msgID] = false
}

func (s *memStore) Close() error { return nil }

var (
	receivedBucket = []byte("received")
	outstandingBucket = []byte("outstanding")
)

// boltStore is a bbolt-backed Store that additionally prunes entries older
// than ttl. It is opt-in: callers that want the reference's unbounded
// behavior should use NewMemStore instead.
type boltStore struct {
	db  *bolt.DB
	ttl time.Duration

	mu      sync.Mutex
	ackedMem map[uint32]bool // fast path mirrored in memory; bbolt is the durable log

	stopPrune chan struct{}
}

// OpenBoltStore opens (creating if necessary) a bbolt database at path and
// returns a Store that persists the dedup/ACK tables and prunes entries
// older than ttl on a background timer.
func OpenBoltStore(path string, ttl time.Duration) (Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bbolt store %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(receivedBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(outstandingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}

	s := &boltStore{
		db:        db,
		ttl:       ttl,
		ackedMem:  make(map[uint32]bool),
		stopPrune: make(chan struct{}),
	}
	go s.pruneLoop()
	return s, nil
}

func keyWithTimestamp(msgID uint32, now time.Time) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint32(buf[0:4], msgID)
	binary.BigEndian.PutUint64(buf[4:12], uint64(now.UnixNano()))
	return buf
}

func (s *boltStore) MarkReceived(msgID uint32) bool {
	firstTime := false
	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(receivedBucket)
		c := b.Cursor()
		prefix := make([]byte, 4)
		binary.BigEndian.PutUint32(prefix, msgID)
		for k, _ := c.Seek(prefix); k != nil && len(k) >= 4 && string(k[:4]) == string(prefix); k, _ = c.Next() {
			return nil // already present
		}
		firstTime = true
		return b.Put(keyWithTimestamp(msgID, time.Now()), nil)
	})
	return firstTime
}

func (s *boltStore) MarkAcked(msgID uint32) {
	s.mu.Lock()
	s.ackedMem[msgID] = true
	s.mu.Unlock()

	_ = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(outstandingBucket).Put(keyWithTimestamp(msgID, time.Now()), []byte{1})
	})
}

func (s *boltStore) IsAcked(msgID uint32) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acked, tracked := s.ackedMem[msgID]
	return acked, tracked
}

func (s *boltStore) TrackOutstanding(msgID uint32) {
	s.mu.Lock()
	s.ackedMem[msgID] = false
	s.mu.Unlock()
}

func (s *boltStore) pruneLoop() {
	ticker := time.NewTicker(s.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopPrune:
			return
		case <-ticker.C:
			s.prune()
		}
	}
}

func (s *boltStore) prune() {
	cutoff := time.Now().Add(-s.ttl).UnixNano()
	_ = s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{receivedBucket, outstandingBucket} {
			b := tx.Bucket(name)
			c := b.Cursor()
			var stale [][]byte
			for k, _ := c.First(); k != nil; k, _ = c.Next() {
				if len(k) < 12 {
					continue
				}
				ts := int64(binary.BigEndian.Uint64(k[4:12]))
				if ts < cutoff {
					stale = append(stale, append([]byte(nil), k...))
				}
			}
			for _, k := range stale {
				if err := b.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *boltStore) Close() error {
	close(s.stopPrune)
	return s.db.Close()
}
