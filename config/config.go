// Package config loads and hot-reloads the node's INI configuration
// file (spec §6) via gopkg.in/ini.v1, the same library the retrieved
// Rust original wraps through its own ini crate. Unknown keys are
// logged at trace level and ignored; a file that fails to parse on
// reload leaves the previously loaded values untouched.
package config

import (
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"relaynode.dev/node/identity"
)

// Endpoint is the ip/port pair shared by several sections.
type Endpoint struct {
	IP   string
	Port uint16
}

// Params is the [params] section.
type Params struct {
	NodeID                   identity.PublicKey
	HostsFilename            string
	BootstrapType            string
	IPv6                     bool
	MinCompatibleVersion     uint32
	CompatibleVersion        bool
	MinNeighbours            int
	MaxNeighbours            int
	RestrictNeighbours       bool
	BroadcastFillingPercents int
	ObserverWaitTime         time.Duration
}

// PoolSync is the [pool_sync] section.
type PoolSync struct {
	OneReplyBlock                  bool
	FastMode                       bool
	BlockPoolsCount                uint8
	RequestRepeatRoundCount        uint8
	NeighbourPacketsCount          uint8
	SequencesVerificationFrequency uint16
}

// API is the [api] section.
type API struct {
	Port                  uint16
	AjaxPort              uint16
	ExecutorPort          uint16
	ApiExecPort           uint16
	ExecutorSendTimeout   uint32
	ExecutorRecvTimeout   uint32
	ServerSendTimeout     uint32
	ServerRecvTimeout     uint32
	AjaxSendTimeout       uint32
	AjaxRecvTimeout       uint32
	ExecutorIP            string
	ExecutorCommand       string
	ExecutorRunDelay      uint32
	ExecutorObserverDelay uint32
	ExecutorTestDelay     uint32
	ExecutorMultiInstance bool
	ExecutorCommitMin     uint32
	ExecutorCommitMax     uint32
	JpsCommand            string
}

// Conveyer is the [conveyer] section.
type Conveyer struct {
	SendCacheValue      int
	MaxResendsSendCache int
	MaxPacketLifeTime   int
}

// EventReport is the [event_report] section.
type EventReport struct {
	Endpoint                 Endpoint
	On                       bool
	ConsensusLiar            bool
	ConsensusSilent          bool
	ConsensusFailed          bool
	ContractsLiar            bool
	ContractsSilent          bool
	ContractsFailed          bool
	AddGrayList              bool
	EraseGrayList            bool
	RejectTransaction        bool
	RejectContractExecution  bool
	RejectContractConsensus  bool
	AlarmInvalidBlock        bool
	BigBang                  bool
}

// DBSQL is the [dbsql] section.
type DBSQL struct {
	Host     string
	Port     uint16
	Name     string
	User     string
	Password string
}

// Sink is one of [Core]/[Sinks.Console]/[Sinks.File]: just a raw
// Filter string, parsed by the logging package into a logrus.Level.
type Sink struct {
	Filter string
	Path   string
}

// Logging groups the three sink sections.
type Logging struct {
	Core    Sink
	Console Sink
	File    Sink
}

// Config is the fully parsed node configuration.
type Config struct {
	Params      Params
	StartNode   Endpoint
	HostInput   Endpoint
	PoolSync    PoolSync
	API         API
	Conveyer    Conveyer
	EventReport EventReport
	DBSQL       DBSQL
	Logging     Logging
}

// defaults mirrors the Rust original's hard-coded defaults (spec §6,
// grounded in original_source/src/config/mod.rs) for every field a
// freshly missing INI file would otherwise leave zero-valued.
func defaults() Config {
	return Config{
		Params: Params{
			BootstrapType:            "signal_server",
			MinCompatibleVersion:     uint32(500),
			MinNeighbours:            3,
			MaxNeighbours:            10,
			BroadcastFillingPercents: 70,
			ObserverWaitTime:         5 * time.Second,
		},
		PoolSync: PoolSync{
			OneReplyBlock:                  true,
			FastMode:                       false,
			BlockPoolsCount:                25,
			RequestRepeatRoundCount:        20,
			NeighbourPacketsCount:          10,
			SequencesVerificationFrequency: 350,
		},
		API: API{
			Port:                  9090,
			AjaxPort:              8081,
			ExecutorPort:          9080,
			ApiExecPort:           9070,
			ExecutorSendTimeout:   4000,
			ExecutorRecvTimeout:   4000,
			ServerSendTimeout:     30000,
			ServerRecvTimeout:     30000,
			AjaxSendTimeout:       30000,
			AjaxRecvTimeout:       30000,
			ExecutorIP:            "localhost",
			ExecutorRunDelay:      100,
			ExecutorObserverDelay: 100,
			ExecutorTestDelay:     1000,
			ExecutorCommitMin:     1506,
			ExecutorCommitMax:     ^uint32(0),
			JpsCommand:            "jps",
		},
		Conveyer: Conveyer{
			SendCacheValue:      10,
			MaxPacketLifeTime:   10,
			MaxResendsSendCache: 5,
		},
		EventReport: EventReport{
			ConsensusFailed:         true,
			ContractsFailed:         true,
			RejectTransaction:       true,
			RejectContractExecution: true,
			RejectContractConsensus: true,
			AlarmInvalidBlock:       true,
			AddGrayList:             true,
		},
		DBSQL: DBSQL{
			Host:     "localhost",
			Port:     5432,
			Name:     "roundinfo",
			User:     "postgres",
			Password: "postgres",
		},
		Logging: Logging{
			Core:    Sink{Filter: "%severity% >= info"},
			Console: Sink{Filter: "%severity% >= info"},
			File:    Sink{Filter: "%severity% >= debug"},
		},
	}
}

// Load reads path into a fresh Config seeded with defaults().
func Load(path string, log logrus.FieldLogger) (*Config, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	cfg := defaults()

	file, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	applyFile(&cfg, file, log)
	return &cfg, nil
}

// Watcher holds the last successfully loaded Config and re-reads the
// backing file on demand (spec §6's hot-reload contract: a bad parse
// retains the previous value).
type Watcher struct {
	path string
	log  logrus.FieldLogger

	mu  sync.RWMutex
	cur Config
}

// NewWatcher wraps an already-loaded Config for polling reloads.
func NewWatcher(path string, initial Config, log logrus.FieldLogger) *Watcher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Watcher{path: path, log: log.WithField("component", "config"), cur: initial}
}

// Current returns a copy of the currently loaded configuration.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Reload re-reads the config file. On parse failure it logs a warning
// and keeps the previous Config. Change detection is a single
// whole-config comparison, not a per-section update; a change is
// logged and replaces the current Config. Reload always returns nil.
func (w *Watcher) Reload() error {
	next := defaults()
	file, err := ini.Load(w.path)
	if err != nil {
		w.log.WithError(err).Warn("config reload failed, keeping previous values")
		return nil
	}
	applyFile(&next, file, w.log)

	w.mu.Lock()
	changed := !reflect.DeepEqual(w.cur, next)
	if changed {
		w.cur = next
	}
	w.mu.Unlock()

	if changed {
		w.log.Info("configuration changed")
	}
	return nil
}
