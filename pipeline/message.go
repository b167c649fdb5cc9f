package pipeline

import "relaynode.dev/node/packet"

// runMessageProcessor implements spec §4.3.3: dispatch admitted
// message packets to the round package's Dispatcher.
func (p *Pipeline) runMessageProcessor() {
	defer p.wg.Done()
	p.log.Debug("message processor started")

	for {
		select {
		case pkt, ok := <-p.messageCh:
			if !ok {
				return
			}
			p.handleMessagePacket(pkt)
		case <-afterStopPoll():
			if p.stop.Load() {
				p.log.Debug("message processor stopped")
				return
			}
		}
	}
}

func (p *Pipeline) handleMessagePacket(pkt *packet.Packet) {
	msg, ok := pkt.MsgType()
	if !ok {
		return
	}

	// RequestedBlock is decompressed unconditionally (spec §4.3.3); all
	// other message types only if the C flag happens to be set.
	if pkt.IsCompressed() || msg == packet.MsgRequestedBlock {
		decompressed, err := pkt.Decompress()
		if err != nil {
			p.log.WithError(err).Debug("failed to decompress message packet")
			return
		}
		pkt = decompressed
	}

	rnd, ok := pkt.Round()
	if !ok {
		return
	}
	sender, _ := pkt.Address()
	payload, _ := pkt.Payload()
	p.dispatch.Handle(sender, msg, rnd, payload)
}
