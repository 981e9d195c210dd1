// Package logging builds the process logger.
package logging

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// Supported output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Fields represents structured logging fields.
type Fields = logrus.Fields

// New returns a logger writing to w at level in format. Empty values mean
// info and text.
func New(level, format string, w io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(w)

	if strings.TrimSpace(level) == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case FormatJSON:
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format: unknown %q (want text or json)", format)
	}
	return logger, nil
}
