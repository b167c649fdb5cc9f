package config

import (
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/ini.v1"

	"relaynode.dev/node/identity"
)

func applyFile(cfg *Config, file *ini.File, log logrus.FieldLogger) {
	applyParams(&cfg.Params, file, log)
	applyEndpoint(&cfg.StartNode, file, "start_node", log)
	applyEndpoint(&cfg.HostInput, file, "host_input", log)
	applyPoolSync(&cfg.PoolSync, file, log)
	applyAPI(&cfg.API, file, log)
	applyConveyer(&cfg.Conveyer, file, log)
	applyEventReport(&cfg.EventReport, file, log)
	applyDBSQL(&cfg.DBSQL, file, log)
	applySink(&cfg.Logging.Core, file, "Core", log)
	applySink(&cfg.Logging.Console, file, "Sinks.Console", log)
	applySink(&cfg.Logging.File, file, "Sinks.File", log)
}

// warnUnknownKeys logs a trace line for every key in section not named
// in known (spec §6: "unknown keys are ignored with a trace log").
func warnUnknownKeys(file *ini.File, section string, known []string, log logrus.FieldLogger) {
	if !file.HasSection(section) {
		return
	}
	knownSet := make(map[string]bool, len(known))
	for _, k := range known {
		knownSet[k] = true
	}
	for _, key := range file.Section(section).Keys() {
		if !knownSet[key.Name()] {
			log.WithField("section", section).WithField("key", key.Name()).Trace("unknown config key ignored")
		}
	}
}

func applyParams(p *Params, file *ini.File, log logrus.FieldLogger) {
	known := []string{
		"node_id", "hosts_filename", "bootstrap_type", "ipv6",
		"min_compatible_version", "compatible_version", "min_neighbours",
		"max_neighbours", "restrict_neighbours", "broadcast_filling_percents",
		"observer_wait_time",
	}
	warnUnknownKeys(file, "params", known, log)
	if !file.HasSection("params") {
		return
	}
	sec := file.Section("params")

	if v := sec.Key("node_id").String(); v != "" {
		if id, err := identity.Parse(v); err == nil {
			p.NodeID = id
		} else {
			log.WithError(err).Warn("params.node_id: invalid base58 key, keeping previous value")
		}
	}
	p.HostsFilename = sec.Key("hosts_filename").MustString(p.HostsFilename)
	p.BootstrapType = sec.Key("bootstrap_type").MustString(p.BootstrapType)
	p.IPv6 = sec.Key("ipv6").MustBool(p.IPv6)
	p.MinCompatibleVersion = uint32(sec.Key("min_compatible_version").MustInt(int(p.MinCompatibleVersion)))
	p.CompatibleVersion = sec.Key("compatible_version").MustBool(p.CompatibleVersion)
	p.MinNeighbours = sec.Key("min_neighbours").MustInt(p.MinNeighbours)
	p.MaxNeighbours = sec.Key("max_neighbours").MustInt(p.MaxNeighbours)
	p.RestrictNeighbours = sec.Key("restrict_neighbours").MustBool(p.RestrictNeighbours)
	p.BroadcastFillingPercents = sec.Key("broadcast_filling_percents").MustInt(p.BroadcastFillingPercents)
	p.ObserverWaitTime = time.Duration(sec.Key("observer_wait_time").MustInt(int(p.ObserverWaitTime/time.Second))) * time.Second
}

func applyEndpoint(e *Endpoint, file *ini.File, section string, log logrus.FieldLogger) {
	warnUnknownKeys(file, section, []string{"ip", "port"}, log)
	if !file.HasSection(section) {
		return
	}
	sec := file.Section(section)
	e.IP = sec.Key("ip").MustString(e.IP)
	e.Port = uint16(sec.Key("port").MustInt(int(e.Port)))
}

func applyPoolSync(ps *PoolSync, file *ini.File, log logrus.FieldLogger) {
	known := []string{
		"one_reply_block", "fast_mode", "block_pools_count",
		"request_repeat_round_count", "neighbour_packets_count",
		"sequences_verification_frequency",
	}
	warnUnknownKeys(file, "pool_sync", known, log)
	if !file.HasSection("pool_sync") {
		return
	}
	sec := file.Section("pool_sync")
	ps.OneReplyBlock = sec.Key("one_reply_block").MustBool(ps.OneReplyBlock)
	ps.FastMode = sec.Key("fast_mode").MustBool(ps.FastMode)
	ps.BlockPoolsCount = uint8(sec.Key("block_pools_count").MustInt(int(ps.BlockPoolsCount)))
	ps.RequestRepeatRoundCount = uint8(sec.Key("request_repeat_round_count").MustInt(int(ps.RequestRepeatRoundCount)))
	ps.NeighbourPacketsCount = uint8(sec.Key("neighbour_packets_count").MustInt(int(ps.NeighbourPacketsCount)))
	ps.SequencesVerificationFrequency = uint16(sec.Key("sequences_verification_frequency").MustInt(int(ps.SequencesVerificationFrequency)))
}

func applyAPI(a *API, file *ini.File, log logrus.FieldLogger) {
	known := []string{
		"port", "ajax_port", "executor_port", "apiexec_port",
		"executor_send_timeout", "executor_recv_timeout", "server_send_timeout",
		"server_recv_timeout", "ajax_send_timeout", "ajax_recv_timeout",
		"executor_ip", "executor_command", "executor_run_delay",
		"executor_observer_delay", "executor_test_delay", "executor_multi_instance",
		"executor_commit_min", "executor_commit_max", "jps_command",
	}
	warnUnknownKeys(file, "api", known, log)
	if !file.HasSection("api") {
		return
	}
	sec := file.Section("api")
	a.Port = uint16(sec.Key("port").MustInt(int(a.Port)))
	a.AjaxPort = uint16(sec.Key("ajax_port").MustInt(int(a.AjaxPort)))
	a.ExecutorPort = uint16(sec.Key("executor_port").MustInt(int(a.ExecutorPort)))
	a.ApiExecPort = uint16(sec.Key("apiexec_port").MustInt(int(a.ApiExecPort)))
	a.ExecutorSendTimeout = uint32(sec.Key("executor_send_timeout").MustInt(int(a.ExecutorSendTimeout)))
	a.ExecutorRecvTimeout = uint32(sec.Key("executor_recv_timeout").MustInt(int(a.ExecutorRecvTimeout)))
	a.ServerSendTimeout = uint32(sec.Key("server_send_timeout").MustInt(int(a.ServerSendTimeout)))
	a.ServerRecvTimeout = uint32(sec.Key("server_recv_timeout").MustInt(int(a.ServerRecvTimeout)))
	a.AjaxSendTimeout = uint32(sec.Key("ajax_send_timeout").MustInt(int(a.AjaxSendTimeout)))
	a.AjaxRecvTimeout = uint32(sec.Key("ajax_recv_timeout").MustInt(int(a.AjaxRecvTimeout)))
	a.ExecutorIP = sec.Key("executor_ip").MustString(a.ExecutorIP)
	a.ExecutorCommand = sec.Key("executor_command").MustString(a.ExecutorCommand)
	a.ExecutorRunDelay = uint32(sec.Key("executor_run_delay").MustInt(int(a.ExecutorRunDelay)))
	a.ExecutorObserverDelay = uint32(sec.Key("executor_observer_delay").MustInt(int(a.ExecutorObserverDelay)))
	a.ExecutorTestDelay = uint32(sec.Key("executor_test_delay").MustInt(int(a.ExecutorTestDelay)))
	a.ExecutorMultiInstance = sec.Key("executor_multi_instance").MustBool(a.ExecutorMultiInstance)
	a.ExecutorCommitMin = uint32(sec.Key("executor_commit_min").MustInt(int(a.ExecutorCommitMin)))
	a.ExecutorCommitMax = uint32(sec.Key("executor_commit_max").MustInt(int(a.ExecutorCommitMax)))
	a.JpsCommand = sec.Key("jps_command").MustString(a.JpsCommand)
}

func applyConveyer(c *Conveyer, file *ini.File, log logrus.FieldLogger) {
	known := []string{"send_cache_value", "max_resends_send_cache", "max_packet_life_time"}
	warnUnknownKeys(file, "conveyer", known, log)
	if !file.HasSection("conveyer") {
		return
	}
	sec := file.Section("conveyer")
	c.SendCacheValue = sec.Key("send_cache_value").MustInt(c.SendCacheValue)
	c.MaxResendsSendCache = sec.Key("max_resends_send_cache").MustInt(c.MaxResendsSendCache)
	c.MaxPacketLifeTime = sec.Key("max_packet_life_time").MustInt(c.MaxPacketLifeTime)
}

func applyEventReport(e *EventReport, file *ini.File, log logrus.FieldLogger) {
	known := []string{
		"endpoint_ip", "endpoint_port", "on",
		"consensus_liar", "consensus_silent", "consensus_failed",
		"contracts_liar", "contracts_silent", "contracts_failed",
		"add_gray_list", "erase_gray_list", "reject_transaction",
		"reject_contract_execution", "reject_contract_consensus",
		"alarm_invalid_block", "big_bang",
	}
	warnUnknownKeys(file, "event_report", known, log)
	if !file.HasSection("event_report") {
		return
	}
	sec := file.Section("event_report")
	e.Endpoint.IP = sec.Key("endpoint_ip").MustString(e.Endpoint.IP)
	e.Endpoint.Port = uint16(sec.Key("endpoint_port").MustInt(int(e.Endpoint.Port)))
	e.On = sec.Key("on").MustBool(e.On)
	e.ConsensusLiar = sec.Key("consensus_liar").MustBool(e.ConsensusLiar)
	e.ConsensusSilent = sec.Key("consensus_silent").MustBool(e.ConsensusSilent)
	e.ConsensusFailed = sec.Key("consensus_failed").MustBool(e.ConsensusFailed)
	e.ContractsLiar = sec.Key("contracts_liar").MustBool(e.ContractsLiar)
	e.ContractsSilent = sec.Key("contracts_silent").MustBool(e.ContractsSilent)
	e.ContractsFailed = sec.Key("contracts_failed").MustBool(e.ContractsFailed)
	e.AddGrayList = sec.Key("add_gray_list").MustBool(e.AddGrayList)
	e.EraseGrayList = sec.Key("erase_gray_list").MustBool(e.EraseGrayList)
	e.RejectTransaction = sec.Key("reject_transaction").MustBool(e.RejectTransaction)
	e.RejectContractExecution = sec.Key("reject_contract_execution").MustBool(e.RejectContractExecution)
	e.RejectContractConsensus = sec.Key("reject_contract_consensus").MustBool(e.RejectContractConsensus)
	e.AlarmInvalidBlock = sec.Key("alarm_invalid_block").MustBool(e.AlarmInvalidBlock)
	e.BigBang = sec.Key("big_bang").MustBool(e.BigBang)
}

func applyDBSQL(d *DBSQL, file *ini.File, log logrus.FieldLogger) {
	known := []string{"host", "port", "name", "user", "password"}
	warnUnknownKeys(file, "dbsql", known, log)
	if !file.HasSection("dbsql") {
		return
	}
	sec := file.Section("dbsql")
	d.Host = sec.Key("host").MustString(d.Host)
	d.Port = uint16(sec.Key("port").MustInt(int(d.Port)))
	d.Name = sec.Key("name").MustString(d.Name)
	d.User = sec.Key("user").MustString(d.User)
	d.Password = sec.Key("password").MustString(d.Password)
}

func applySink(s *Sink, file *ini.File, section string, log logrus.FieldLogger) {
	warnUnknownKeys(file, section, []string{"Filter", "Path"}, log)
	if !file.HasSection(section) {
		return
	}
	sec := file.Section(section)
	s.Filter = sec.Key("Filter").MustString(s.Filter)
	s.Path = sec.Key("Path").MustString(s.Path)
}
