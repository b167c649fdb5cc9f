package pipeline

import "relaynode.dev/node/packet"

// runSender implements spec §4.3.4: unicast if the packet carries an
// address, otherwise broadcast.
func (p *Pipeline) runSender() {
	defer p.wg.Done()
	p.log.Debug("packet sender started")

	out := p.outbound.outCh()
	for {
		select {
		case pkt, ok := <-out:
			if !ok {
				return
			}
			p.sendPacket(pkt)
		case <-afterStopPoll():
			if p.stop.Load() {
				p.log.Debug("packet sender stopped")
				return
			}
		}
	}
}

func (p *Pipeline) sendPacket(pkt *packet.Packet) {
	if addr, ok := pkt.Address(); ok {
		if err := p.transport.Send(addr, pkt.Data()); err != nil {
			p.log.WithError(err).Debug("failed to unicast packet")
		}
		return
	}
	if err := p.transport.Broadcast(pkt.Data()); err != nil {
		p.log.WithError(err).Debug("failed to broadcast packet")
	}
}
