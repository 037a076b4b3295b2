//go:build darwin

package keepawake

import (
	"os"
	"strconv"
)

// NewDefaultAdapter keeps the display and system awake with caffeinate,
// bound to this process so a crash releases it.
func NewDefaultAdapter() Adapter {
	return NewCommandAdapter("caffeinate", "-d", "-i", "-w", strconv.Itoa(os.Getpid()))
}
