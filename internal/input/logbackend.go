package input

import (
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// LogBackend is a dry-run backend that records every keystroke in the log
// instead of injecting it. Useful on headless hosts and in demos.
type LogBackend struct {
	log logrus.FieldLogger
}

// NewLogBackend creates a dry-run backend writing to logger.
func NewLogBackend(logger logrus.FieldLogger) *LogBackend {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogBackend{log: logging.Component(logger, "input")}
}

// Name implements Backend.
func (b *LogBackend) Name() string { return "log" }

// Open implements Backend.
func (b *LogBackend) Open() (Keyboard, error) {
	return &logKeyboard{log: b.log}, nil
}

type logKeyboard struct {
	log logrus.FieldLogger
}

func (k *logKeyboard) Press(key Key) error {
	k.log.WithField("key", key).Info("dry-run keydown")
	return nil
}

func (k *logKeyboard) Release(key Key) error {
	k.log.WithField("key", key).Info("dry-run keyup")
	return nil
}

func (k *logKeyboard) Type(text string) error {
	k.log.WithField("chars", len([]rune(text))).Info("dry-run type")
	return nil
}

func (k *logKeyboard) Close() error { return nil }
