package keepawake

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

// CommandAdapter holds an inhibitor by running a command that keeps the
// lock until it is terminated.
type CommandAdapter struct {
	name string
	args []string

	lookPath func(string) (string, error)
	execCmd  func(name string, arg ...string) *exec.Cmd
}

// NewCommandAdapter creates an adapter running name with args.
func NewCommandAdapter(name string, args ...string) *CommandAdapter {
	return &CommandAdapter{
		name:     name,
		args:     args,
		lookPath: exec.LookPath,
		execCmd:  exec.Command,
	}
}

// Acquire starts the inhibitor command.
func (a *CommandAdapter) Acquire(ctx context.Context) (Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := a.lookPath(a.name)
	if err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeUnsupported, fmt.Sprintf("%s is unavailable", a.name), err)
	}

	cmd := a.execCmd(path, a.args...)
	if err := cmd.Start(); err != nil {
		return nil, hostErrors.Wrap(hostErrors.CodeKeepAwakeAcquireFailed, fmt.Sprintf("start %s", a.name), err)
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	go h.wait()
	return h, nil
}

type processHandle struct {
	cmd  *exec.Cmd
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	err      error
	released bool
}

func (h *processHandle) wait() {
	err := h.cmd.Wait()

	h.mu.Lock()
	if h.released {
		err = nil
	} else if err == nil {
		err = errors.New("inhibitor exited")
	}
	h.err = err
	h.mu.Unlock()

	close(h.done)
}

func (h *processHandle) Done() <-chan struct{} { return h.done }

func (h *processHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Release sends SIGTERM and waits for exit, escalating to SIGKILL when ctx ends.
func (h *processHandle) Release(ctx context.Context) error {
	h.once.Do(func() {
		h.mu.Lock()
		h.released = true
		h.mu.Unlock()
		_ = h.cmd.Process.Signal(syscall.SIGTERM)
	})

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		_ = h.cmd.Process.Kill()
		select {
		case <-h.done:
		case <-time.After(200 * time.Millisecond):
		}
		return fmt.Errorf("release timed out waiting for inhibitor exit: %w", ctx.Err())
	}
}
