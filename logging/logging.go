// Package logging builds the node's logrus logger from the [Core]/
// [Sinks.Console]/[Sinks.File] config sections (spec §6): each sink
// gets its own minimum severity, implemented as a logrus hook writing
// to its own destination while the root logger's own output is
// discarded. This is the standard way logrus documents running
// multiple independently-filtered destinations off one logger.
package logging

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"relaynode.dev/node/config"
)

// filterPattern extracts the trailing level keyword from a
// "%severity% OP LEVEL" filter string (spec §6).
var filterPattern = regexp.MustCompile(`(?i)(trace|debug|info|warning|warn|error)\s*$`)

// ParseLevel extracts the severity keyword from a sink's Filter
// string. An unparsable filter yields logrus.InfoLevel and an error so
// the caller can log and fall back.
func ParseLevel(filter string) (logrus.Level, error) {
	m := filterPattern.FindStringSubmatch(strings.TrimSpace(filter))
	if m == nil {
		return logrus.InfoLevel, fmt.Errorf("logging: unparsable filter %q", filter)
	}
	keyword := strings.ToLower(m[1])
	if keyword == "warning" {
		keyword = "warn"
	}
	return logrus.ParseLevel(keyword)
}

// sinkHook fires only for levels at or more severe than min, matching
// one sink's independent Filter threshold.
type sinkHook struct {
	writer    io.Writer
	formatter logrus.Formatter
	min       logrus.Level
}

func (h *sinkHook) Levels() []logrus.Level {
	return logrus.AllLevels[:h.min+1]
}

func (h *sinkHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}

// Setup builds a *logrus.Logger wired to the Core/Console/File sinks.
// The logger's own level is the least restrictive of the three so
// every hook sees the entries it cares about; the logger's direct
// output is discarded since the hooks own actual delivery.
func Setup(cfg config.Logging) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	coreLevel, err := resolveLevel(cfg.Core.Filter, logger)
	if err != nil {
		return nil, err
	}

	consoleLevel, cErr := resolveLevel(cfg.Console.Filter, logger)
	if cErr != nil {
		consoleLevel = coreLevel
	}
	logger.AddHook(&sinkHook{
		writer:    os.Stdout,
		formatter: &logrus.TextFormatter{FullTimestamp: true},
		min:       consoleLevel,
	})

	if cfg.File.Path != "" {
		fileLevel, fErr := resolveLevel(cfg.File.Filter, logger)
		if fErr != nil {
			fileLevel = coreLevel
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logging: open file sink: %w", err)
		}
		logger.AddHook(&sinkHook{
			writer:    f,
			formatter: &logrus.JSONFormatter{},
			min:       fileLevel,
		})
		if fileLevel > coreLevel {
			coreLevel = fileLevel
		}
	}
	if consoleLevel > coreLevel {
		coreLevel = consoleLevel
	}
	logger.SetLevel(coreLevel)

	return logger, nil
}

func resolveLevel(filter string, bootstrap *logrus.Logger) (logrus.Level, error) {
	level, err := ParseLevel(filter)
	if err != nil {
		bootstrap.WithError(err).Warn("unparsable log filter")
		return logrus.InfoLevel, err
	}
	return level, nil
}
