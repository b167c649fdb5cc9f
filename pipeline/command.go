package pipeline

import (
	"encoding/binary"
	"time"

	"relaynode.dev/node/collab"
	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
)

// runCommandProcessor implements spec §4.3.2: decompress and dispatch
// neighbour commands to collab, and drive the periodic ping / sync
// trigger on its own ticker.
func (p *Pipeline) runCommandProcessor() {
	defer p.wg.Done()
	p.log.Debug("command processor started")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case pkt, ok := <-p.commandCh:
			if !ok {
				return
			}
			p.handleCommandPacket(pkt)
		case <-ticker.C:
			// The ticker can win every race against the freshly started
			// stop-poll timer, so the stop flag is also checked here.
			if p.stop.Load() {
				p.log.Debug("command processor stopped")
				return
			}
			p.pingNeighbours()
			p.maybeTriggerSync()
		case <-afterStopPoll():
			if p.stop.Load() {
				p.log.Debug("command processor stopped")
				return
			}
		}
	}
}

func (p *Pipeline) handleCommandPacket(pkt *packet.Packet) {
	if pkt.IsCompressed() {
		decompressed, err := pkt.Decompress()
		if err != nil {
			p.log.WithError(err).Debug("failed to decompress neighbour packet")
			return
		}
		pkt = decompressed
	}

	cmd, ok := pkt.NghbrCmd()
	if !ok {
		return
	}
	sender, _ := pkt.Address()
	payload, _ := pkt.Payload()
	p.collab.Handle(sender, cmd, payload)
}

// pingNeighbours enqueues a Ping packet addressed to every known
// neighbour.
func (p *Pipeline) pingNeighbours() {
	p.collab.Range(func(id identity.PublicKey, _ collab.PeerInfo) {
		data := []byte{byte(packet.FlagNeighbour), byte(packet.CmdPing)}
		pkt, ok := packet.NewBroadcast(data)
		if !ok {
			return
		}
		pkt.SetAddress(id)
		p.outbound.push(pkt)
	})
}

// maybeTriggerSync implements spec's S5 sync-trigger: when the known
// round outruns the local chain top by more than one, ask the first
// neighbour whose reported sequence covers the gap for the next batch
// of blocks.
func (p *Pipeline) maybeTriggerSync() {
	currentRound := p.dispatch.Tracker().Current()
	chainTop := p.blocks.Top()
	if currentRound <= chainTop+1 {
		return
	}

	start := chainTop + 1
	var target identity.PublicKey
	var found bool
	p.collab.Range(func(id identity.PublicKey, info collab.PeerInfo) {
		if found {
			return
		}
		if info.Sequence >= start {
			target = id
			found = true
		}
	})
	if !found {
		return
	}

	payload := make([]byte, 0, 9)
	startBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(startBytes, start)
	payload = append(payload, startBytes...)
	payload = append(payload, p.cfg.MaxBlockRequest)

	header := []byte{0, byte(packet.MsgBlockRequest)}
	roundBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(roundBytes, currentRound)
	header = append(header, roundBytes...)

	pkt, ok := packet.NewBroadcast(append(header, payload...))
	if !ok {
		return
	}
	pkt.SetAddress(target)
	p.outbound.push(pkt)
}
