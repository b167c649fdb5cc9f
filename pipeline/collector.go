package pipeline

import (
	"relaynode.dev/node/identity"
	"relaynode.dev/node/packet"
)

// runCollector implements spec §4.3.1: drain the transport's unbounded
// inbound channel, build a Packet per frame (rejecting empty frames
// and message packets with no readable round field), and route into
// the bounded command/message queues.
func (p *Pipeline) runCollector() {
	defer p.wg.Done()
	p.log.Debug("packet collector started")
	inbound := p.transport.Inbound()

	for {
		select {
		case frame, ok := <-inbound:
			if !ok {
				p.log.Debug("packet collector stopped: transport closed")
				return
			}
			p.collectFrame(frame.PeerID, frame.Bytes)
		case <-afterStopPoll():
			if p.stop.Load() {
				p.log.Debug("packet collector stopped")
				return
			}
		}
	}
}

func (p *Pipeline) collectFrame(sender identity.PublicKey, data []byte) {
	pkt, ok := packet.NewFromPeer(sender, data)
	if !ok {
		return
	}
	if pkt.IsMessage() {
		if _, ok := pkt.Round(); !ok {
			p.log.Debug("dropping message packet with no round field")
			return
		}
		enqueueDropIncoming(p.messageCh, pkt, p.log, "message")
		return
	}
	enqueueDropIncoming(p.commandCh, pkt, p.log, "command")
}
