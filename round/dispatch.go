package round

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/block"
	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
	"relaynode.dev/node/store"
)

// admittedAnyRound is the set of message types admitted regardless of
// the sender's round (spec §4.5 test_packet_round): request/reply
// pairs and out-of-band reports that must not be starved by round
// drift.
var admittedAnyRound = map[packet.MsgType]bool{
	packet.MsgRoundTableRequest:         true,
	packet.MsgRoundTableReply:           true,
	packet.MsgTransactionPacket:         true,
	packet.MsgTransactionsPacketReply:   true,
	packet.MsgTransactionsPacketRequest: true,
	packet.MsgBlockRequest:              true,
	packet.MsgRequestedBlock:            true,
	packet.MsgStateRequest:              true,
	packet.MsgStateReply:                true,
	packet.MsgEmptyRoundPack:            true,
	packet.MsgBlockAlarm:                true,
	packet.MsgEventReport:               true,
}

// obsoleteTypes go through the ordinary round gate in TestPacketRound;
// once admitted they produce no behaviour beyond a log line. The
// upstream node keeps handling them to avoid treating legacy peers as
// misbehaving.
var obsoleteTypes = map[packet.MsgType]string{
	packet.MsgTransactions:       "obsolete MsgTransactions received",
	packet.MsgFirstTransaction:   "obsolete MsgFirstTransaction received",
	packet.MsgNewBlock:           "obsolete MsgNewBlock received",
	packet.MsgNewCharacteristic:  "obsolete MsgNewCharacteristic received",
	packet.MsgWriterNotification: "obsolete MsgWriterNotification received",
}

// TestPacketRound is the round-admission gate (spec §4.5): message
// types in admittedAnyRound always pass; everything else is admitted
// only if rnd is at or past the tracker's current round.
func (d *Dispatcher) TestPacketRound(rnd uint64, msg packet.MsgType) bool {
	if admittedAnyRound[msg] {
		return true
	}
	return rnd >= d.tracker.Current()
}

// StopHandler is invoked when a NodeStopRequest message is admitted.
type StopHandler func(sender identity.PublicKey)

// Dispatcher routes admitted message packets to the round tracker, the
// block store (for RequestedBlock batches) and a handful of narrow
// handler hooks. It is the message-side counterpart of collab's
// neighbour-command handling.
type Dispatcher struct {
	tracker *Tracker
	blocks  *store.Store
	log     logrus.FieldLogger

	onStop StopHandler
}

// NewDispatcher builds a Dispatcher over an existing round tracker and
// block store. onStop may be nil.
func NewDispatcher(tracker *Tracker, blocks *store.Store, log logrus.FieldLogger, onStop StopHandler) *Dispatcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Dispatcher{
		tracker: tracker,
		blocks:  blocks,
		log:     log.WithField("component", "round"),
		onStop:  onStop,
	}
}

// Tracker exposes the dispatcher's round tracker for callers (e.g. the
// command processor's ping/sync loop) that need the current round.
func (d *Dispatcher) Tracker() *Tracker { return d.tracker }

// Handle is the message-processor entry point (spec §4.3.3): gate on
// TestPacketRound, then dispatch by message type.
func (d *Dispatcher) Handle(sender identity.PublicKey, msg packet.MsgType, rnd uint64, payload []byte) {
	if !d.TestPacketRound(rnd, msg) {
		return
	}

	if reason, ok := obsoleteTypes[msg]; ok {
		d.log.Info(reason)
		return
	}

	switch msg {
	case packet.MsgRoundTable:
		d.tracker.HandleTable(rnd)
		d.log.WithField("round", rnd).Info("round table advanced")
	case packet.MsgRequestedBlock:
		d.handleRequestedBlocks(sender, payload)
	case packet.MsgNodeStopRequest:
		if d.onStop != nil {
			d.onStop(sender)
		}
	default:
		d.log.WithField("msg", msg).Debug("handler is not implemented yet")
	}
}

// handleRequestedBlocks ingests a batch of length-prefixed blocks
// (spec §4.5): an 8-byte little-endian count, then count blocks each
// framed with block.FromStream. A parse failure aborts the whole batch
// immediately, matching the upstream's "return on first bad block"
// behaviour rather than skipping the offender.
func (d *Dispatcher) handleRequestedBlocks(sender identity.PublicKey, payload []byte) {
	if payload == nil {
		d.log.WithField("peer", sender.String()).Info("get requested blocks")
		return
	}
	if len(payload) < 8 {
		d.log.Warn("requested-block batch missing count prefix")
		return
	}
	count := binary.LittleEndian.Uint64(payload[:8])
	rest := payload[8:]

	var first, last uint64
	var lastHash [32]byte
	var failed []uint64

	for i := uint64(0); i < count; i++ {
		blk, tail, ok := block.FromStream(rest)
		if !ok {
			d.log.Warn("failed to extract block from requested-block batch")
			return
		}
		rest = tail

		seq, _ := blk.Sequence()
		if i == 0 {
			first = seq
		}
		if i+1 == count {
			last = seq
			lastHash = blk.Hash()
		}

		if !d.blocks.Store(blk) {
			failed = append(failed, seq)
			d.log.WithField("sequence", seq).Warn("failed to store block from requested-block batch")
		}
	}

	if last == 0 {
		return
	}
	okCount := 1 + last - first - uint64(len(failed))
	if len(failed) == 0 {
		d.log.WithField("lastHash", hex.EncodeToString(lastHash[:])).Info(fmt.Sprintf("stored %d blocks from %d..%d", okCount, first, last))
		return
	}
	d.log.WithFields(logrus.Fields{"failed": failed, "lastHash": hex.EncodeToString(lastHash[:])}).Warn(fmt.Sprintf("stored %d of %d blocks from %d..%d", okCount, last-first+1, first, last))
}
