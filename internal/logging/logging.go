// Package logging builds the process logger shared by every component.
package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// componentHook prefixes messages with the component field so plain text
// logs stay greppable the same way the "auth: ..." prefixes used to be.
type componentHook struct{}

// Levels implements logrus.Hook.
func (componentHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook.
func (componentHook) Fire(entry *logrus.Entry) error {
	if c, ok := entry.Data["component"].(string); ok && c != "" {
		entry.Message = c + ": " + entry.Message
	}
	return nil
}

// New returns a logger writing text lines with full timestamps to out.
// An unparseable level falls back to info and logs a warning.
func New(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.AddHook(componentHook{})

	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		lvl = "info"
	}
	parsed, err := logrus.ParseLevel(lvl)
	if err != nil {
		logger.Warnf("invalid log level %q, defaulting to info", level)
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Component returns a child logger tagged with the component name.
func Component(logger logrus.FieldLogger, name string) logrus.FieldLogger {
	return logger.WithField("component", name)
}

// Discard returns a logger that drops everything. Used by tests and by
// constructors that were handed a nil logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// Redact shortens a secret to a prefix safe for logs.
func Redact(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return secret[:4] + "…"
}
