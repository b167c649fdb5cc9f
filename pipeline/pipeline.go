// Package pipeline wires the transport, collab and round packages
// together into the five worker stages spec §4.3/§5 describes:
// collector, command processor, message processor, sender, plus a
// config-reload thread. It is kept separate from packet/collab/round
// so those packages stay free of any dependency on the orchestration
// layer that imports all three.
package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/collab"
	"relaynode.dev/node/packet"
	"relaynode.dev/node/round"
	"relaynode.dev/node/store"
	"relaynode.dev/node/transport"
)

// testStopDelay is the cooperative-shutdown poll interval every worker
// loop falls back to when it has nothing else to wait on (spec §5's
// concurrency model, grounded directly in the upstream network
// module's literal sleep-and-check-flag shutdown pattern).
const testStopDelay = 2 * time.Second

// pingInterval is how often the command processor walks the neighbour
// table sending liveness pings.
const pingInterval = 1900 * time.Millisecond

// channelCapacity bounds the collector's two output queues (spec §5:
// "collector → commands/messages: bounded (1024); overflow drops the
// incoming item with a warning"). The sender's inbound edge is
// explicitly unbounded and uses outboundQueue instead.
const channelCapacity = 1024

// Config bundles the knobs the config package's [params]/[pool_sync]
// sections feed into the pipeline.
type Config struct {
	MaxBlockRequest uint8
}

// Pipeline owns the bounded command/message queues, the unbounded
// outbound queue, and the goroutines draining them.
type Pipeline struct {
	cfg Config

	transport transport.Transport
	collab    *collab.Collaboration
	dispatch  *round.Dispatcher
	blocks    *store.Store

	commandCh chan *packet.Packet
	messageCh chan *packet.Packet
	outbound  *outboundQueue

	stop     atomic.Bool
	wg       sync.WaitGroup
	pumpDone chan struct{}
	log      logrus.FieldLogger
}

// New builds a Pipeline. log may be nil.
func New(cfg Config, tr transport.Transport, collaboration *collab.Collaboration, dispatcher *round.Dispatcher, blocks *store.Store, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		cfg:       cfg,
		transport: tr,
		collab:    collaboration,
		dispatch:  dispatcher,
		blocks:    blocks,
		commandCh: make(chan *packet.Packet, channelCapacity),
		messageCh: make(chan *packet.Packet, channelCapacity),
		outbound:  newOutboundQueue(),
		pumpDone:  make(chan struct{}),
		log:       log.WithField("component", "pipeline"),
	}
}

// Start launches the four packet-moving stages plus the outbound
// queue's buffering pump. It does not launch a config-reload thread;
// callers that want one use StartConfigReload.
func (p *Pipeline) Start() {
	p.wg.Add(4)
	go p.runCollector()
	go p.runCommandProcessor()
	go p.runMessageProcessor()
	go p.runSender()
	go func() {
		defer close(p.pumpDone)
		p.outbound.pump()
	}()
}

// Stop signals every worker's stop flag and waits for the collector,
// command processor, message processor and sender to return. Only
// then does it close the outbound queue: the command processor is the
// only producer that pushes onto it, so closing earlier could race a
// push against the close. The pump itself is waited on last, after
// closing, since it only returns once its input is closed.
func (p *Pipeline) Stop() {
	p.stop.Store(true)
	p.wg.Wait()
	p.outbound.close()
	<-p.pumpDone
}

// afterStopPoll returns a timer channel used as the select fallback
// branch every worker loop uses to notice Stop() was called even while
// idle.
func afterStopPoll() <-chan time.Time {
	return time.After(testStopDelay)
}

// enqueueDropIncoming pushes pkt onto ch, dropping pkt itself with a
// logged warning if ch is already full (spec §5's overflow policy for
// the collector's two output queues: "overflow drops the incoming
// item with a warning"). The queue's existing contents are never
// touched.
func enqueueDropIncoming(ch chan *packet.Packet, pkt *packet.Packet, log logrus.FieldLogger, queueName string) {
	select {
	case ch <- pkt:
	default:
		log.WithField("queue", queueName).Warn("queue full, dropped incoming packet")
	}
}
