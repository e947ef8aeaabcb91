// Package logging configures the logrus logger used by the wxmem command.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// GetLevel parses a level name. The empty string means info.
func GetLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel, nil
	case "", "info":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.DebugLevel, fmt.Errorf("invalid log level: %v", level)
	}
}

// GetFormatter returns the formatter for "text", "json-pretty" or, for
// anything else, single-line JSON.
func GetFormatter(format string) logrus.Formatter {
	switch format {
	case "text":
		return &logrus.TextFormatter{DisableTimestamp: true}
	case "json-pretty":
		return &logrus.JSONFormatter{PrettyPrint: true}
	default:
		return &logrus.JSONFormatter{}
	}
}

// New returns a logger writing to w with the given level and format.
func New(w io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(lvl)
	l.SetFormatter(GetFormatter(format))
	return l, nil
}
