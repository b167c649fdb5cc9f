// Package store implements the node's append-only block log with an
// out-of-order gap-filling cache (spec §4.2), backed by a single
// memory-mapped key-value file via go.etcd.io/bbolt (the upstream node's
// own store is LMDB-backed; see growth.go). Two buckets behind
// one bbolt environment implement spec's two logical tables, "chain"
// and "cache", keyed by the block's 8-byte sequence number.
//
// Key encoding: sequence numbers are stored big-endian so that bbolt's
// natural byte-lexicographic B+tree ordering matches numeric order, per
// spec §9's open question ("the spec requires only that iteration order
// matches numeric order of the sequence").
package store

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"relaynode.dev/node/block"
)

const (
	bucketChain = "chain"
	bucketCache = "cache"

	defaultGrowthIncrement uint64 = 64 * 1024 * 1024 // 64MiB
)

// Store is the block store with gap-filling cache described in spec
// §4.2. It is safe for concurrent use; writers hold the store's lock for
// the minimum span a single commit requires.
type Store struct {
	mu sync.RWMutex

	db   *bolt.DB
	path string
	log  logrus.FieldLogger

	chainTop   uint64
	cacheFront uint64 // math.MaxUint64 sentinel means empty

	growth *growthPolicy
}

// Open opens (creating if absent) a block store rooted at path. On
// construction, chain_top and cache_front are recovered by scanning the
// chain/cache buckets' ordered keys (spec §4.2 startup recovery).
func Open(path string, log logrus.FieldLogger) (*Store, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("store: mkdir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("store: open bbolt: %w", err)
	}

	s := &Store{
		db:     db,
		path:   path,
		log:    log.WithField("component", "store"),
		growth: newGrowthPolicy(defaultGrowthIncrement),
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketChain, bucketCache} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create bucket %s: %w", name, err)
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := s.recover(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying memory-mapped file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) recover() error {
	return s.db.View(func(tx *bolt.Tx) error {
		chain := tx.Bucket([]byte(bucketChain))
		if k, _ := chain.Cursor().Last(); k != nil {
			s.chainTop = binary.BigEndian.Uint64(k)
		} else {
			s.chainTop = 0
		}

		cache := tx.Bucket([]byte(bucketCache))
		if k, _ := cache.Cursor().First(); k != nil {
			s.cacheFront = binary.BigEndian.Uint64(k)
		} else {
			s.cacheFront = math.MaxUint64
		}
		return nil
	})
}

// Top returns chain_top: the sequence number of the latest block in the
// linear chain, or 0 if empty.
func (s *Store) Top() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chainTop
}

// CacheFront returns the lowest sequence number currently held in the
// out-of-order cache, or math.MaxUint64 if the cache is empty.
func (s *Store) CacheFront() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cacheFront
}

// Store attempts to append or cache blk. It is idempotent: if blk's
// sequence is already present in the chain or cache, Store returns
// false and leaves all indices unchanged (spec §4.2 testable property
// 5). A malformed block (no readable sequence) is also rejected.
func (s *Store) Store(blk *block.RawBlock) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.storeLocked(blk)
}

func (s *Store) storeLocked(blk *block.RawBlock) bool {
	seq, ok := blk.Sequence()
	if !ok {
		return false
	}
	if s.containsLocked(seq) {
		return false
	}

	if seq == s.chainTop+1 {
		if !s.growth.checkAndGrow(s.path, s.log) {
			s.log.WithField("sequence", seq).Error("failed to store block: map grow failed")
			return false
		}
		if err := s.putLocked(bucketChain, seq, blk.Bytes()); err != nil {
			s.log.WithError(err).WithField("sequence", seq).Error("failed to chain block")
			return false
		}
		s.chainTop = seq
		s.testCachedBlocksLocked()
		return true
	}

	if !s.growth.checkAndGrow(s.path, s.log) {
		s.log.WithField("sequence", seq).Error("failed to cache block: map grow failed")
		return false
	}
	if err := s.putLocked(bucketCache, seq, blk.Bytes()); err != nil {
		s.log.WithError(err).WithField("sequence", seq).Error("failed to cache block")
		return false
	}
	if seq < s.cacheFront {
		s.cacheFront = seq
	}
	return true
}

// containsLocked mirrors the upstream blocks.rs contains(): chain
// membership is implied by the no-holes invariant, so a bucket lookup is
// needed only for cache entries past the front.
func (s *Store) containsLocked(seq uint64) bool {
	if seq <= s.chainTop {
		return true
	}
	if seq < s.cacheFront {
		return false
	}
	if seq == s.cacheFront {
		return true
	}
	var found bool
	key := seqKey(seq)
	_ = s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket([]byte(bucketCache)).Get(key) != nil
		return nil
	})
	return found
}

// Contains reports whether seq is already present in the chain or
// cache.
func (s *Store) Contains(seq uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.containsLocked(seq)
}

func (s *Store) putLocked(bucket string, seq uint64, data []byte) error {
	key := seqKey(seq)
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket))
		if b.Get(key) != nil {
			// storeLocked always checks containsLocked first; reaching
			// here means an index/bucket desync, which is the
			// duplicate-sequence-insert invariant violation spec §7
			// names as a program bug.
			panic(fmt.Sprintf("store: invariant violation: duplicate sequence insert %d in %s", seq, bucket))
		}
		return b.Put(key, data)
	})
}

// testCachedBlocksLocked implements the gap-filling algorithm: on a
// successful chain append, pop the smallest cache entry while it equals
// chain_top+1, then re-run store on each popped block so it takes the
// normal chain-write path. Collecting first and writing second (rather
// than writing while iterating) keeps the cache bucket's cursor usage
// simple and matches the upstream two-phase design.
func (s *Store) testCachedBlocksLocked() {
	var ready []*block.RawBlock
	nextReq := s.chainTop + 1
	for nextReq == s.cacheFront {
		blk, ok := s.popFromCacheLocked()
		if !ok {
			s.log.WithField("sequence", nextReq).Error("gap-fill: expected cached block missing")
			break
		}
		ready = append(ready, blk)
		nextReq++
	}
	for _, blk := range ready {
		// Re-entrant by construction, not by call stack: the block was
		// already removed from the cache bucket by popFromCacheLocked,
		// so this call takes the plain chain-append branch and
		// recurses into testCachedBlocksLocked again, which
		// short-circuits immediately because cache_front no longer
		// equals chain_top+1 for the remaining run.
		s.storeLocked(blk)
	}
}

func (s *Store) popFromCacheLocked() (*block.RawBlock, bool) {
	var popped *block.RawBlock
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketCache))
		k, v := b.Cursor().First()
		if k == nil {
			return nil
		}
		raw := append([]byte(nil), v...)
		blk, ok := block.FromBytes(raw)
		if !ok {
			return fmt.Errorf("corrupt cached block at key %x", k)
		}
		if err := b.Delete(k); err != nil {
			return err
		}
		popped = blk
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("gap-fill: failed to pop cached block")
		return nil, false
	}
	if popped == nil {
		return nil, false
	}

	_ = s.db.View(func(tx *bolt.Tx) error {
		k, _ := tx.Bucket([]byte(bucketCache)).Cursor().First()
		if k == nil {
			s.cacheFront = math.MaxUint64
		} else {
			s.cacheFront = binary.BigEndian.Uint64(k)
		}
		return nil
	})
	return popped, true
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
