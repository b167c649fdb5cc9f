// Package collab implements the node's neighbour state machine (spec
// §4.4): the peer-record table and the handshake/ping protocol that
// keeps it current. It depends only on identity, packet and the
// transport interface — never on round or block — so it can be
// exercised from the command processor without creating an import
// cycle back into the pipeline.
package collab

import (
	"sync"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/identity"
	"relaynode.dev/node/transport"
)

// NodeVersion and UUIDTestnet are the fixed wire parameters every
// handshake advertises (spec §6).
const (
	NodeVersion uint16 = 502
	UUIDTestnet uint64 = 5283967947175248524
)

// PeerInfo is the per-neighbour record spec §3 describes: a build
// number, the blockchain UUID it claims, the highest sequence/round it
// has reported, and whether it should be treated as persistent (a
// node-lost on a persistent peer triggers an immediate re-handshake
// rather than a plain removal).
type PeerInfo struct {
	BuildNumber    uint16
	BlockchainUUID uint64
	Sequence       uint64
	Round          uint64
	Persistent     bool
}

// ChainState is the narrow view of local chain progress the handshake
// handlers need to answer VersionRequest/Ping with this node's own
// top sequence and round. cmd/relay-node satisfies it with an adapter
// over store.Store and round.Tracker, so collab imports neither package.
type ChainState interface {
	Top() uint64
	Round() uint64
}

// Config holds the admission parameters from the [params] config
// section (spec §6) that govern try_add_peer.
type Config struct {
	MinCompatibleVersion uint16
	ExpectedUUID         uint64
	MaxNeighbours        int
}

// Collaboration owns the peer map and dispatches neighbour-command
// events onto it (spec §4.4).
type Collaboration struct {
	mu    sync.RWMutex
	peers map[identity.PublicKey]*PeerInfo

	cfg   Config
	chain ChainState
	tr    transport.Transport
	log   logrus.FieldLogger
}

// New builds a Collaboration over the given transport and chain-state
// view. log may be nil.
func New(cfg Config, chain ChainState, tr transport.Transport, log logrus.FieldLogger) *Collaboration {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Collaboration{
		peers: make(map[identity.PublicKey]*PeerInfo),
		cfg:   cfg,
		chain: chain,
		tr:    tr,
		log:   log.WithField("component", "collab"),
	}
}

// Count returns the current neighbour count.
func (c *Collaboration) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.peers)
}

// Get returns a copy of the peer record for id, if known.
func (c *Collaboration) Get(id identity.PublicKey) (PeerInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.peers[id]
	if !ok {
		return PeerInfo{}, false
	}
	return *p, true
}

// Range calls fn once per known peer, holding the read lock for the
// duration. fn must not call back into Collaboration.
func (c *Collaboration) Range(fn func(id identity.PublicKey, info PeerInfo)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for id, p := range c.peers {
		fn(id, *p)
	}
}

// tryAddPeer implements spec §4.4's admission rule: a brand-new peer
// must clear the compatible-version, UUID and max-neighbours checks;
// re-observing an already-known peer always succeeds (and refreshes
// its record) regardless of those checks.
func (c *Collaboration) tryAddPeer(id identity.PublicKey, info PeerInfo) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.peers[id]; ok {
		c.log.WithField("peer", id.String()).Debug("duplicate version-reply from known peer")
		*existing = info
		return true
	}

	if info.BuildNumber < c.cfg.MinCompatibleVersion {
		c.log.WithField("peer", id.String()).Info("rejecting peer: incompatible version")
		return false
	}
	if info.BlockchainUUID != c.cfg.ExpectedUUID {
		c.log.WithField("peer", id.String()).Info("rejecting peer: blockchain UUID mismatch")
		return false
	}
	if c.cfg.MaxNeighbours > 0 && len(c.peers) >= c.cfg.MaxNeighbours {
		c.log.WithField("peer", id.String()).Info("rejecting peer: max neighbours reached")
		return false
	}

	c.peers[id] = &info
	return true
}

// tryUpdatePeer raises the stored sequence/round monotonically; it
// never lowers them, and does nothing for an unknown peer.
func (c *Collaboration) tryUpdatePeer(id identity.PublicKey, seq, round uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peers[id]
	if !ok {
		return false
	}
	if seq > p.Sequence {
		p.Sequence = seq
	}
	if round > p.Round {
		p.Round = round
	}
	return true
}

// removePeer deletes id from the peer map and reports whether the
// removed record was persistent.
func (c *Collaboration) removePeer(id identity.PublicKey) (persistent bool, existed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.peers[id]
	if !ok {
		return false, false
	}
	delete(c.peers, id)
	return p.Persistent, true
}
