package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/identity"
)

func mustWriteFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func testLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func TestLoadAppliesValuesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "config.ini", `
[params]
min_neighbours = 5
max_neighbours = 20

[pool_sync]
block_pools_count = 50
`)
	cfg, err := Load(path, testLog())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Params.MinNeighbours != 5 || cfg.Params.MaxNeighbours != 20 {
		t.Fatalf("Params = %+v, want min=5 max=20", cfg.Params)
	}
	if cfg.PoolSync.BlockPoolsCount != 50 {
		t.Fatalf("PoolSync.BlockPoolsCount = %d, want 50", cfg.PoolSync.BlockPoolsCount)
	}
	// Untouched defaults must survive.
	if cfg.API.Port != 9090 {
		t.Fatalf("API.Port = %d, want default 9090", cfg.API.Port)
	}
}

func TestReloadKeepsPreviousValuesOnParseFailure(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "config.ini", "[params]\nmin_neighbours = 7\n")

	cfg, err := Load(path, testLog())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := NewWatcher(path, *cfg, testLog())

	if err := os.WriteFile(path, []byte("not valid ini [[["), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if got := w.Current().Params.MinNeighbours; got != 7 {
		t.Fatalf("after failed reload, MinNeighbours = %d, want unchanged 7", got)
	}
}

func TestReloadDetectsChange(t *testing.T) {
	dir := t.TempDir()
	path := mustWriteFile(t, dir, "config.ini", "[params]\nmin_neighbours = 3\n")

	cfg, err := Load(path, testLog())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	w := NewWatcher(path, *cfg, testLog())

	mustWriteFile(t, dir, "config.ini", "[params]\nmin_neighbours = 9\n")
	if err := w.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := w.Current().Params.MinNeighbours; got != 9 {
		t.Fatalf("after reload, MinNeighbours = %d, want 9", got)
	}
}

func TestLoadHostsFallsBackWhenAbsent(t *testing.T) {
	hosts := LoadHosts(filepath.Join(t.TempDir(), "missing.txt"), testLog())
	if len(hosts) == 0 {
		t.Fatalf("LoadHosts should fall back to a non-empty bootstrap list")
	}
}

func TestLoadHostsParsesValidLines(t *testing.T) {
	dir := t.TempDir()
	var id identity.PublicKey
	id[0] = 0x01
	path := mustWriteFile(t, dir, "hosts.txt", "10.0.0.1:31111 "+id.String()+"\nmalformed-line\n")

	hosts := LoadHosts(path, testLog())
	if len(hosts) != 1 {
		t.Fatalf("LoadHosts() = %d hosts, want 1 (malformed line skipped)", len(hosts))
	}
	if hosts[0].IP != "10.0.0.1" || hosts[0].Port != 31111 {
		t.Fatalf("LoadHosts()[0] = %+v, want ip=10.0.0.1 port=31111", hosts[0])
	}
}
