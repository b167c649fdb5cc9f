package round

import (
	"encoding/binary"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/block"
	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
	"relaynode.dev/node/store"
)

func mustStore(t *testing.T) *store.Store {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	s, err := store.Open(filepath.Join(t.TempDir(), "blocks.db"), log)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// mustBlockBytes builds a minimal well-formed block's raw bytes (no
// transactions, no wallets, no trusted info, no signatures) for the
// given sequence number, without wrapping it in block.RawBlock — the
// caller frames it with an 8-byte big-endian size prefix to build a
// RequestedBlock batch.
func mustBlockBytes(t *testing.T, seq uint64) []byte {
	t.Helper()
	var out []byte
	out = append(out, 1, block.HashSize)
	out = append(out, make([]byte, block.HashSize)...)
	seqBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(seqBytes, seq)
	out = append(out, seqBytes...)
	out = append(out, 0)
	out = append(out, make([]byte, block.MoneySize)...)
	out = append(out, 0, 0, 0, 0)
	out = append(out, 0, 0, 0, 0)
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	out = append(out, 0, 0, 0, 0, 0, 0, 0, 0, 0)
	out = append(out, make([]byte, 8)...)
	out = append(out, 0)
	if _, ok := block.FromBytes(out); !ok {
		t.Fatalf("mustBlockBytes(%d): fixture failed to validate", seq)
	}
	return out
}

func framed(blocks ...[]byte) []byte {
	var out []byte
	for _, b := range blocks {
		size := make([]byte, 8)
		binary.BigEndian.PutUint64(size, uint64(len(b)))
		out = append(out, size...)
		out = append(out, b...)
	}
	return out
}

func TestTrackerHandleTableFirstCall(t *testing.T) {
	tr := NewTracker()
	tr.HandleTable(10)
	if got := tr.Current(); got != 10 {
		t.Fatalf("Current() = %d, want 10", got)
	}
}

func TestTrackerHandleTableAveDuration(t *testing.T) {
	tr := NewTracker()
	tick := time.Unix(1000, 0)
	tr.now = func() time.Time { return tick }

	tr.HandleTable(5)
	if got := tr.AveDuration(); got != 0 {
		t.Fatalf("AveDuration() after first call = %v, want 0", got)
	}

	tick = tick.Add(10 * time.Second)
	tr.now = func() time.Time { return tick }
	tr.HandleTable(7)

	want := 5 * time.Second // 10s uptime over (7-5) rounds
	if got := tr.AveDuration(); got != want {
		t.Fatalf("AveDuration() = %v, want %v", got, want)
	}
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	s := mustStore(t)
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	d := NewDispatcher(NewTracker(), s, log, nil)
	return d, s
}

func TestTestPacketRoundAlwaysAdmitted(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.tracker.HandleTable(100)
	if !d.TestPacketRound(0, packet.MsgBlockRequest) {
		t.Fatalf("MsgBlockRequest at round 0 should be admitted regardless of current round")
	}
}

func TestTestPacketRoundRoundGated(t *testing.T) {
	d, _ := newTestDispatcher(t)
	d.tracker.HandleTable(100)
	if d.TestPacketRound(50, packet.MsgNewCharacteristic) {
		t.Fatalf("round-gated message behind current round should be rejected")
	}
	if !d.TestPacketRound(100, packet.MsgNewCharacteristic) {
		t.Fatalf("round-gated message at current round should be admitted")
	}
}

func TestDispatcherHandleRoundTableAdvancesTracker(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var sender identity.PublicKey
	d.Handle(sender, packet.MsgRoundTable, 42, nil)
	if got := d.Tracker().Current(); got != 42 {
		t.Fatalf("Tracker().Current() = %d, want 42", got)
	}
}

func TestDispatcherHandleRequestedBlocksStoresBatch(t *testing.T) {
	d, s := newTestDispatcher(t)
	var sender identity.PublicKey

	b1 := mustBlockBytes(t, 1)
	b2 := mustBlockBytes(t, 2)
	b3 := mustBlockBytes(t, 3)

	count := make([]byte, 8)
	binary.LittleEndian.PutUint64(count, 3)
	payload := append(count, framed(b1, b2, b3)...)

	d.Handle(sender, packet.MsgRequestedBlock, 0, payload)

	if top := s.Top(); top != 3 {
		t.Fatalf("after requested-block batch: Top() = %d, want 3", top)
	}
}

func TestDispatcherHandleRequestedBlocksAbortsOnBadBlock(t *testing.T) {
	d, s := newTestDispatcher(t)
	var sender identity.PublicKey

	b1 := mustBlockBytes(t, 1)
	garbage := []byte{0xFF, 0xFF}

	count := make([]byte, 8)
	binary.LittleEndian.PutUint64(count, 2)
	payload := append(count, framed(b1, garbage)...)

	d.Handle(sender, packet.MsgRequestedBlock, 0, payload)

	if top := s.Top(); top != 1 {
		t.Fatalf("after aborted batch: Top() = %d, want 1 (first block still stored)", top)
	}
}

func TestDispatcherHandleNodeStopRequestInvokesHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)
	var called identity.PublicKey
	called[0] = 0xAB
	d.onStop = func(sender identity.PublicKey) { called = sender }

	var sender identity.PublicKey
	sender[0] = 0x42
	d.Handle(sender, packet.MsgNodeStopRequest, 0, nil)

	if called != sender {
		t.Fatalf("onStop called with %v, want %v", called, sender)
	}
}
