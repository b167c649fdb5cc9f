package collab

import (
	"encoding/binary"
	"fmt"

	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
)

// Wire sizes for the strictly positional handshake payloads (spec
// §4.4): little-endian integers, no padding, no length prefixes beyond
// the header packet.NghbrCmd already carries.
const (
	versionReplyLen = 1 + 1 + 2 + 8 + 8 + 8 // flags, cmd, version, uuid, seq, round
	versionReqLen   = 1 + 1                 // flags, cmd
	pongLen         = 1 + 1 + 8 + 8         // flags, cmd, seq, round
	versionReplyBodyLen = 2 + 8 + 8 + 8     // version, uuid, seq, round
	pongBodyLen          = 8 + 8            // seq, round
)

// Handle dispatches one neighbour-command event (spec §4.4's event
// table). payload is the packet's body (the bytes after flags+cmd);
// it is nil for NodeFound/NodeLost, which the transport synthesizes
// with no payload at all.
func (c *Collaboration) Handle(sender identity.PublicKey, cmd packet.NghbrCmd, payload []byte) {
	switch cmd {
	case packet.CmdNodeFound:
		c.handleNodeFound(sender)
	case packet.CmdNodeLost:
		c.handleNodeLost(sender)
	case packet.CmdError:
		// no-op (spec §4.4)
	case packet.CmdVersionReq:
		c.handleVersionRequest(sender)
	case packet.CmdVersionReply:
		c.handleVersionReply(sender, payload)
	case packet.CmdPing:
		c.handlePing(sender)
	case packet.CmdPong:
		c.handlePong(sender, payload)
	default:
		c.log.WithField("cmd", cmd).Debug("neighbour command handler is not implemented yet")
	}
}

// handleNodeFound sends a VersionRequest to a newly discovered peer.
func (c *Collaboration) handleNodeFound(id identity.PublicKey) {
	c.sendVersionRequest(id)
}

// handleNodeLost removes the peer; a persistent record is immediately
// re-solicited rather than left gone.
func (c *Collaboration) handleNodeLost(id identity.PublicKey) {
	persistent, existed := c.removePeer(id)
	if !existed {
		return
	}
	if persistent {
		c.log.WithField("peer", id.String()).Info("persistent peer lost, re-requesting version")
		c.sendVersionRequest(id)
	}
}

func (c *Collaboration) sendVersionRequest(id identity.PublicKey) {
	out := make([]byte, 0, versionReqLen)
	out = append(out, byte(packet.FlagNeighbour))
	out = append(out, byte(packet.CmdVersionReq))
	if len(out) != versionReqLen {
		panic(fmt.Sprintf("collab: version-request packed length %d, want %d", len(out), versionReqLen))
	}
	if err := c.tr.Send(id, out); err != nil {
		c.log.WithError(err).WithField("peer", id.String()).Warn("failed to send version request")
	}
}

// handleVersionRequest replies with this node's own VersionReply:
// NODE_VERSION, UUID_TESTNET, local top sequence, local round, packed
// into the exact positional layout S1 exercises byte-for-byte.
func (c *Collaboration) handleVersionRequest(sender identity.PublicKey) {
	out := make([]byte, 0, versionReplyLen)
	out = append(out, byte(packet.FlagNeighbour))
	out = append(out, byte(packet.CmdVersionReply))
	out = appendU16(out, NodeVersion)
	out = appendU64(out, UUIDTestnet)
	out = appendU64(out, c.chain.Top())
	out = appendU64(out, c.chain.Round())

	if len(out) != versionReplyLen {
		panic(fmt.Sprintf("collab: version-reply packed length %d, want %d", len(out), versionReplyLen))
	}
	if err := c.tr.Send(sender, out); err != nil {
		c.log.WithError(err).WithField("peer", sender.String()).Warn("failed to send version reply")
	}
}

// handleVersionReply parses (version, uuid, seq, round) and feeds the
// result to try_add_peer.
func (c *Collaboration) handleVersionReply(sender identity.PublicKey, payload []byte) {
	if len(payload) < versionReplyBodyLen {
		c.log.WithField("peer", sender.String()).Warn("truncated version-reply payload")
		return
	}
	version := binary.LittleEndian.Uint16(payload[0:2])
	uuid := binary.LittleEndian.Uint64(payload[2:10])
	seq := binary.LittleEndian.Uint64(payload[10:18])
	round := binary.LittleEndian.Uint64(payload[18:26])

	c.tryAddPeer(sender, PeerInfo{
		BuildNumber:    version,
		BlockchainUUID: uuid,
		Sequence:       seq,
		Round:          round,
	})
}

// handlePing replies with this node's current top/round as a Pong.
func (c *Collaboration) handlePing(sender identity.PublicKey) {
	out := make([]byte, 0, pongLen)
	out = append(out, byte(packet.FlagNeighbour))
	out = append(out, byte(packet.CmdPong))
	out = appendU64(out, c.chain.Top())
	out = appendU64(out, c.chain.Round())

	if len(out) != pongLen {
		panic(fmt.Sprintf("collab: pong packed length %d, want %d", len(out), pongLen))
	}
	if err := c.tr.Send(sender, out); err != nil {
		c.log.WithError(err).WithField("peer", sender.String()).Warn("failed to send pong")
	}
}

// handlePong parses (seq, round) and feeds try_update_peer.
func (c *Collaboration) handlePong(sender identity.PublicKey, payload []byte) {
	if len(payload) < pongBodyLen {
		c.log.WithField("peer", sender.String()).Warn("truncated pong payload")
		return
	}
	seq := binary.LittleEndian.Uint64(payload[0:8])
	round := binary.LittleEndian.Uint64(payload[8:16])
	c.tryUpdatePeer(sender, seq, round)
}

func appendU16(b []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(b, buf[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}
