package input

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// NewBackend returns the backend registered under name ("xdotool" or "log").
func NewBackend(name string, logger logrus.FieldLogger) (Backend, error) {
	switch name {
	case "xdotool":
		return NewXdotoolBackend(), nil
	case "log":
		return NewLogBackend(logger), nil
	default:
		return nil, fmt.Errorf("unknown input backend %q", name)
	}
}
