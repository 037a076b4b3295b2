// Package input drives the host keyboard on behalf of a single remote
// controller. Keystrokes go through an opaque Backend so the controller logic
// can be exercised without touching the real display server.
package input

import (
	"errors"
	"fmt"
	"strings"
)

// ErrKeyboardClosed is returned by a Keyboard used after Close for anything
// other than a release.
var ErrKeyboardClosed = errors.New("keyboard handle closed")

// Keyboard is a live handle on an input backend.
//
// Implementations must tolerate use after Close without panicking, because a
// press already in flight may outlive the controller session that started it.
// Release should still be honoured after Close so held keys never stick.
type Keyboard interface {
	Press(k Key) error
	Release(k Key) error
	Type(text string) error
	Close() error
}

// Backend opens keyboard handles.
type Backend interface {
	Name() string
	Open() (Keyboard, error)
}

// UnmappableError reports characters a backend could not synthesize.
// The rest of the text was typed.
type UnmappableError struct {
	Chars []rune
}

func (e *UnmappableError) Error() string {
	quoted := make([]string, len(e.Chars))
	for i, r := range e.Chars {
		quoted[i] = fmt.Sprintf("%q", r)
	}
	return "unmappable characters: " + strings.Join(quoted, ", ")
}
