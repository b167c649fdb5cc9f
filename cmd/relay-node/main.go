package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"relaynode.dev/node/collab"
	"relaynode.dev/node/config"
	"relaynode.dev/node/identity"
	"relaynode.dev/node/logging"
	"relaynode.dev/node/pipeline"
	"relaynode.dev/node/round"
	"relaynode.dev/node/store"
	"relaynode.dev/node/transport"
)

var newStoreFn = store.Open
var newTransportFn = func() (transport.Transport, error) { return transport.Null(), nil }

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("relay-node", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.ini", "path to the node's INI configuration file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		fmt.Fprintf(stderr, "config load failed: %v\n", err)
		return 2
	}

	log, err := logging.Setup(cfg.Logging)
	if err != nil {
		fmt.Fprintf(stderr, "logging setup failed: %v\n", err)
		return 2
	}

	blockStorePath := "db/blockchain/blocks"
	blocks, err := newStoreFn(blockStorePath, log)
	if err != nil {
		log.WithError(err).Error("block store open failed")
		return 1
	}
	defer blocks.Close()

	tr, err := newTransportFn()
	if err != nil {
		log.WithError(err).Error("transport init failed")
		return 1
	}

	tracker := round.NewTracker()
	chain := chainState{blocks: blocks, tracker: tracker}

	collabCfg := collab.Config{
		MinCompatibleVersion: uint16(cfg.Params.MinCompatibleVersion),
		ExpectedUUID:         collab.UUIDTestnet,
		MaxNeighbours:        cfg.Params.MaxNeighbours,
	}
	collaboration := collab.New(collabCfg, chain, tr, log)

	// NodeStopRequest is accepted but not acted on, matching the
	// original handler it's grounded on (core_logic::handle_stop_request
	// is empty): it exists as an admitted message type, not a remote
	// shutdown trigger.
	dispatcher := round.NewDispatcher(tracker, blocks, log, func(sender identity.PublicKey) {
		log.WithField("peer", sender.String()).Info("node stop requested")
	})

	pipe := pipeline.New(pipeline.Config{MaxBlockRequest: cfg.PoolSync.BlockPoolsCount}, tr, collaboration, dispatcher, blocks, log)
	pipe.Start()

	watcher := config.NewWatcher(*configPath, *cfg, log)
	pipe.StartConfigReload(cfg.Params.ObserverWaitTime, watcher.Reload)

	log.Info("relay-node started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	pipe.Stop()
	log.Info("relay-node stopped")
	return 0
}

// chainState adapts store.Store and round.Tracker to collab.ChainState
// so the handshake handlers can answer VersionRequest/Ping with this
// node's own top sequence and round without collab importing either
// package.
type chainState struct {
	blocks  *store.Store
	tracker *round.Tracker
}

func (c chainState) Top() uint64   { return c.blocks.Top() }
func (c chainState) Round() uint64 { return c.tracker.Current() }
