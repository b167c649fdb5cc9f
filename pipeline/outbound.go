package pipeline

import "relaynode.dev/node/packet"

// outboundQueue is the never-drop queue feeding the sender (spec §5:
// "{commands, messages} → sender: unbounded"). A bounded channel with
// a drop policy, like the collector's two queues, would violate that
// edge's contract, so pushes are buffered in a growing slice instead
// of a fixed-capacity channel; push never blocks waiting on the
// sender and never discards a packet.
type outboundQueue struct {
	in  chan *packet.Packet
	out chan *packet.Packet
}

func newOutboundQueue() *outboundQueue {
	return &outboundQueue{
		in:  make(chan *packet.Packet),
		out: make(chan *packet.Packet),
	}
}

// push enqueues pkt. It only blocks long enough for the pump goroutine
// to accept it into its buffer, never on the sender draining out.
func (q *outboundQueue) push(pkt *packet.Packet) {
	q.in <- pkt
}

// outCh is what the sender reads from.
func (q *outboundQueue) outCh() <-chan *packet.Packet {
	return q.out
}

// close stops the pump. Packets still buffered at that point are not
// delivered to out.
func (q *outboundQueue) close() {
	close(q.in)
}

// pump owns the unbounded buffer: it accepts from in as fast as it
// arrives and drains into out as the sender keeps up. Once in is
// closed it returns immediately without trying to flush whatever is
// still buffered, since by the time a caller closes the queue the
// sender has already stopped reading out.
func (q *outboundQueue) pump() {
	defer close(q.out)

	var buf []*packet.Packet
	for {
		if len(buf) == 0 {
			pkt, ok := <-q.in
			if !ok {
				return
			}
			buf = append(buf, pkt)
			continue
		}

		select {
		case pkt, ok := <-q.in:
			if !ok {
				return
			}
			buf = append(buf, pkt)
		case q.out <- buf[0]:
			buf = buf[1:]
		}
	}
}
