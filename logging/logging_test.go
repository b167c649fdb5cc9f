package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/config"
)

func TestParseLevelRecognizesKeywords(t *testing.T) {
	cases := map[string]logrus.Level{
		"%severity% >= info":    logrus.InfoLevel,
		"%severity% >= warning": logrus.WarnLevel,
		"%severity% >= error":   logrus.ErrorLevel,
		"%severity% >= debug":   logrus.DebugLevel,
		"%severity% >= trace":   logrus.TraceLevel,
	}
	for filter, want := range cases {
		got, err := ParseLevel(filter)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", filter, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", filter, got, want)
		}
	}
}

func TestParseLevelRejectsGarbage(t *testing.T) {
	if _, err := ParseLevel("not a filter at all"); err == nil {
		t.Fatalf("ParseLevel should reject an unparsable filter")
	}
}

func TestSetupWritesToFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")
	logger, err := Setup(config.Logging{
		Core:    config.Sink{Filter: "%severity% >= debug"},
		Console: config.Sink{Filter: "%severity% >= info"},
		File:    config.Sink{Filter: "%severity% >= debug", Path: path},
	})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info("hello from the test")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("file sink received no output")
	}
}
