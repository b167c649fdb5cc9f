package collab

import (
	"testing"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
	"relaynode.dev/node/transport"
)

type fakeTransport struct {
	sent map[identity.PublicKey][][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[identity.PublicKey][][]byte)}
}

func (f *fakeTransport) Inbound() <-chan transport.Frame { return nil }

func (f *fakeTransport) Send(peer identity.PublicKey, data []byte) error {
	f.sent[peer] = append(f.sent[peer], append([]byte(nil), data...))
	return nil
}

func (f *fakeTransport) Broadcast(data []byte) error { return nil }

func (f *fakeTransport) lastSent(peer identity.PublicKey) []byte {
	msgs := f.sent[peer]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

type fakeChain struct {
	top   uint64
	round uint64
}

func (c fakeChain) Top() uint64   { return c.top }
func (c fakeChain) Round() uint64 { return c.round }

func newTestCollaboration(t *testing.T, cfg Config) (*Collaboration, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	c := New(cfg, fakeChain{}, tr, log)
	return c, tr
}

func peerID(b byte) identity.PublicKey {
	var id identity.PublicKey
	id[0] = b
	return id
}

// TestHandleVersionRequestS1 reproduces spec testable property S1: the
// reply to a VersionRequest is exactly
// 01 03 [NODE_VERSION:2][UUID_TESTNET:8][0:8][0:8] when the node's own
// top/round are both zero.
func TestHandleVersionRequestS1(t *testing.T) {
	c, tr := newTestCollaboration(t, Config{})
	sender := peerID(0x01)

	c.Handle(sender, packet.CmdVersionReq, nil)

	got := tr.lastSent(sender)
	want := []byte{0x01, 0x03}
	want = appendU16(want, NodeVersion)
	want = appendU64(want, UUIDTestnet)
	want = appendU64(want, 0)
	want = appendU64(want, 0)

	if string(got) != string(want) {
		t.Fatalf("VersionReply = %x, want %x", got, want)
	}
}

func TestHandleNodeFoundSendsVersionRequest(t *testing.T) {
	c, tr := newTestCollaboration(t, Config{})
	peer := peerID(0x02)

	c.Handle(peer, packet.CmdNodeFound, nil)

	got := tr.lastSent(peer)
	want := []byte{byte(packet.FlagNeighbour), byte(packet.CmdVersionReq)}
	if string(got) != string(want) {
		t.Fatalf("NodeFound reply = %x, want %x", got, want)
	}
}

func versionReplyPayload(version uint16, uuid, seq, round uint64) []byte {
	var out []byte
	out = appendU16(out, version)
	out = appendU64(out, uuid)
	out = appendU64(out, seq)
	out = appendU64(out, round)
	return out
}

func TestTryAddPeerAdmitsCompatiblePeer(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{MinCompatibleVersion: 500, ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x03)

	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 7, 3))

	info, ok := c.Get(sender)
	if !ok {
		t.Fatalf("peer not admitted")
	}
	if info.Sequence != 7 || info.Round != 3 {
		t.Fatalf("PeerInfo = %+v, want sequence=7 round=3", info)
	}
}

func TestTryAddPeerRejectsIncompatibleVersion(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{MinCompatibleVersion: 500, ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x04)

	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(100, UUIDTestnet, 1, 1))

	if _, ok := c.Get(sender); ok {
		t.Fatalf("peer with incompatible version was admitted")
	}
}

func TestTryAddPeerRejectsUUIDMismatch(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{MinCompatibleVersion: 500, ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x05)

	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet+1, 1, 1))

	if _, ok := c.Get(sender); ok {
		t.Fatalf("peer with mismatched UUID was admitted")
	}
}

func TestTryAddPeerRejectsOverMaxNeighbours(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{MinCompatibleVersion: 0, ExpectedUUID: UUIDTestnet, MaxNeighbours: 1})
	c.Handle(peerID(0x06), packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 1, 1))
	c.Handle(peerID(0x07), packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 1, 1))

	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (second peer should be rejected)", c.Count())
	}
}

func TestTryAddPeerReobservationAlwaysSucceeds(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{MinCompatibleVersion: 500, ExpectedUUID: UUIDTestnet, MaxNeighbours: 1})
	sender := peerID(0x08)
	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 1, 1))
	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 5, 9))

	info, ok := c.Get(sender)
	if !ok || info.Sequence != 5 || info.Round != 9 {
		t.Fatalf("re-observed peer info = %+v, ok=%v, want sequence=5 round=9", info, ok)
	}
}

func TestTryUpdatePeerMonotonic(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x09)
	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 10, 5))

	pongPayload := func(seq, round uint64) []byte {
		var out []byte
		out = appendU64(out, seq)
		out = appendU64(out, round)
		return out
	}

	c.Handle(sender, packet.CmdPong, pongPayload(3, 2))
	info, _ := c.Get(sender)
	if info.Sequence != 10 || info.Round != 5 {
		t.Fatalf("pong should not lower sequence/round, got %+v", info)
	}

	c.Handle(sender, packet.CmdPong, pongPayload(20, 9))
	info, _ = c.Get(sender)
	if info.Sequence != 20 || info.Round != 9 {
		t.Fatalf("pong should raise sequence/round, got %+v", info)
	}
}

func TestHandleNodeLostRemovesPeer(t *testing.T) {
	c, _ := newTestCollaboration(t, Config{ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x0A)
	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 1, 1))

	c.Handle(sender, packet.CmdNodeLost, nil)

	if _, ok := c.Get(sender); ok {
		t.Fatalf("peer still present after NodeLost")
	}
}

func TestHandleNodeLostPersistentResendsVersionRequest(t *testing.T) {
	c, tr := newTestCollaboration(t, Config{ExpectedUUID: UUIDTestnet, MaxNeighbours: 10})
	sender := peerID(0x0B)
	c.Handle(sender, packet.CmdVersionReply, versionReplyPayload(NodeVersion, UUIDTestnet, 1, 1))

	// Mark the record persistent the way a config-driven bootstrap host
	// would (tests reach into the map directly since nothing in the
	// public API flips this flag on an already-admitted peer).
	c.mu.Lock()
	c.peers[sender].Persistent = true
	c.mu.Unlock()

	c.Handle(sender, packet.CmdNodeLost, nil)

	got := tr.lastSent(sender)
	want := []byte{byte(packet.FlagNeighbour), byte(packet.CmdVersionReq)}
	if string(got) != string(want) {
		t.Fatalf("persistent-peer-lost reply = %x, want version-request %x", got, want)
	}
}
