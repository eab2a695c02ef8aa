package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
		return logrus.ParseLevel(level)
	}
	return 0, errors.Errorf("unknown log level %q", level)
}

// ConfigureLogger applies the log level and format to l.
func (c *Config) ConfigureLogger(l *logrus.Logger) error {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return invalid("log_level", "%s", err)
	}
	l.SetLevel(level)

	if c.LogFormat == "json" {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
		return nil
	}
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return nil
}
