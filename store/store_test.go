package store

import (
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/block"
)

func mustOpenStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s, err := Open(filepath.Join(dir, "blocks.db"), log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// mustBlock builds a minimal well-formed block with the given sequence
// number: no transactions, no wallets, no trusted info, no signatures.
func mustBlock(t *testing.T, seq uint64) *block.RawBlock {
	t.Helper()
	var out []byte
	out = append(out, 1, block.HashSize)
	out = append(out, make([]byte, block.HashSize)...)
	seqBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBytes, seq)
	out = append(out, seqBytes...)
	out = append(out, 0)                              // no user fields
	out = append(out, make([]byte, block.MoneySize)...) // round cost
	out = append(out, 0, 0, 0, 0)                     // no transactions
	out = append(out, 0, 0, 0, 0)                     // no new wallets
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0, 0)       // consensus set: count=0, bitset=0
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0, 0)       // nrt set: count=0, bitset=0
	out = append(out, make([]byte, 8)...)              // hashed length marker
	out = append(out, 0)                               // no contract signatures

	blk, ok := block.FromBytes(out)
	if !ok {
		t.Fatalf("mustBlock(%d): fixture failed to validate", seq)
	}
	return blk
}

func TestStoreOrderedChain(t *testing.T) {
	s := mustOpenStore(t)
	for _, seq := range []uint64{1, 2, 3} {
		if !s.Store(mustBlock(t, seq)) {
			t.Fatalf("Store(%d) = false, want true", seq)
		}
	}
	if top := s.Top(); top != 3 {
		t.Fatalf("Top() = %d, want 3", top)
	}
	if front := s.CacheFront(); front != math.MaxUint64 {
		t.Fatalf("CacheFront() = %d, want sentinel", front)
	}
}

func TestStoreGapFill(t *testing.T) {
	s := mustOpenStore(t)

	if !s.Store(mustBlock(t, 3)) {
		t.Fatalf("Store(3) = false, want true")
	}
	if s.Top() != 0 || s.CacheFront() != 3 {
		t.Fatalf("after store(3): top=%d front=%d, want 0,3", s.Top(), s.CacheFront())
	}

	if !s.Store(mustBlock(t, 1)) {
		t.Fatalf("Store(1) = false, want true")
	}
	if s.Top() != 1 || s.CacheFront() != 3 {
		t.Fatalf("after store(1): top=%d front=%d, want 1,3", s.Top(), s.CacheFront())
	}

	if !s.Store(mustBlock(t, 2)) {
		t.Fatalf("Store(2) = false, want true")
	}
	if s.Top() != 3 || s.CacheFront() != math.MaxUint64 {
		t.Fatalf("after store(2): top=%d front=%d, want 3,sentinel", s.Top(), s.CacheFront())
	}
}

func TestStoreGapFillUnorderedFive(t *testing.T) {
	s := mustOpenStore(t)
	for _, seq := range []uint64{3, 2, 1, 5, 4} {
		if !s.Store(mustBlock(t, seq)) {
			t.Fatalf("Store(%d) = false, want true", seq)
		}
	}
	if top := s.Top(); top != 5 {
		t.Fatalf("Top() = %d, want 5", top)
	}
	if front := s.CacheFront(); front != math.MaxUint64 {
		t.Fatalf("CacheFront() = %d, want sentinel", front)
	}
}

func TestStoreIdempotent(t *testing.T) {
	s := mustOpenStore(t)
	blk := mustBlock(t, 1)
	if !s.Store(blk) {
		t.Fatalf("first Store(1) = false, want true")
	}
	if s.Store(blk) {
		t.Fatalf("repeated Store(1) = true, want false")
	}
	if s.Top() != 1 {
		t.Fatalf("Top() = %d, want 1 after repeated store", s.Top())
	}
}

func TestStoreRecoversAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "blocks.db")
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s1, err := Open(path, log)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s1.Store(mustBlock(t, 1))
	s1.Store(mustBlock(t, 2))
	s1.Store(mustBlock(t, 4))
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path, log)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if top := s2.Top(); top != 2 {
		t.Fatalf("recovered Top() = %d, want 2", top)
	}
	if front := s2.CacheFront(); front != 4 {
		t.Fatalf("recovered CacheFront() = %d, want 4", front)
	}
}
