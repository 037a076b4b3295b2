package input

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// commandTimeout bounds a single xdotool invocation.
const commandTimeout = 2 * time.Second

// XdotoolBackend injects keystrokes on X11 through the xdotool binary.
type XdotoolBackend struct {
	// execCommand creates exec.Cmd instances.
	// Tests inject a fake; in production it is exec.CommandContext.
	execCommand func(ctx context.Context, name string, arg ...string) *exec.Cmd

	// lookPath resolves the binary. In production it is exec.LookPath.
	lookPath func(file string) (string, error)
}

// NewXdotoolBackend creates a backend using the real xdotool binary.
func NewXdotoolBackend() *XdotoolBackend {
	return &XdotoolBackend{
		execCommand: exec.CommandContext,
		lookPath:    exec.LookPath,
	}
}

// Name implements Backend.
func (b *XdotoolBackend) Name() string { return "xdotool" }

// Open implements Backend. It fails when xdotool is not installed.
func (b *XdotoolBackend) Open() (Keyboard, error) {
	path, err := b.lookPath("xdotool")
	if err != nil {
		return nil, fmt.Errorf("xdotool not found: %w", err)
	}
	return &xdotoolKeyboard{path: path, execCommand: b.execCommand}, nil
}

type xdotoolKeyboard struct {
	path        string
	execCommand func(ctx context.Context, name string, arg ...string) *exec.Cmd

	mu     sync.Mutex
	closed bool
}

func (k *xdotoolKeyboard) isClosed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.closed
}

func (k *xdotoolKeyboard) run(args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := k.execCommand(ctx, k.path, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("xdotool %s: %w (%s)", args[0], err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (k *xdotoolKeyboard) Press(key Key) error {
	if k.isClosed() {
		return ErrKeyboardClosed
	}
	return k.run("keydown", string(key))
}

// Release runs even on a closed handle so a combination interrupted by Stop
// does not leave modifiers held.
func (k *xdotoolKeyboard) Release(key Key) error {
	return k.run("keyup", string(key))
}

func (k *xdotoolKeyboard) Type(text string) error {
	if k.isClosed() {
		return ErrKeyboardClosed
	}

	typeable, rejected := splitTypeable(text)
	if typeable != "" {
		if err := k.run("type", "--clearmodifiers", "--delay", "0", "--", typeable); err != nil {
			return err
		}
	}
	if len(rejected) > 0 {
		return &UnmappableError{Chars: rejected}
	}
	return nil
}

func (k *xdotoolKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return nil
}

// splitTypeable drops characters no keyboard layout can produce: invalid
// UTF-8 and control characters other than newline and tab.
func splitTypeable(text string) (string, []rune) {
	var b strings.Builder
	var rejected []rune
	for i, w := 0, 0; i < len(text); i += w {
		r, width := utf8.DecodeRuneInString(text[i:])
		w = width
		if r == utf8.RuneError && width <= 1 {
			rejected = append(rejected, r)
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			rejected = append(rejected, r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String(), rejected
}
