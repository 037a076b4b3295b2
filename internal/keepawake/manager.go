package keepawake

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
)

// Manager keeps one inhibitor alive for as long as a holder wants it.
//
// Hold and Release are driven by the control-panel session; the lock is
// never held across Acquire or Release of the OS handle.
type Manager struct {
	adapter Adapter
	now     func() time.Time
	log     logrus.FieldLogger

	mu     sync.Mutex
	status Status
	handle Handle
	gen    uint64
	closed bool
}

// NewManager creates a manager over adapter. It starts OFF.
func NewManager(adapter Adapter, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Manager{
		adapter: adapter,
		now:     opts.Now,
		log:     logging.Component(opts.Logger, "keepawake"),
		status:  Status{State: StateOff, UpdatedAt: opts.Now()},
	}
}

// Snapshot returns a copy of the current status.
func (m *Manager) Snapshot() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Hold keeps the display awake on behalf of holder. A live inhibitor is
// reused; a dead one is replaced. Failure to acquire leaves the status
// DEGRADED and is not returned as an error.
func (m *Manager) Hold(ctx context.Context, holder string) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}
	m.status.Holder = holder
	if m.handle != nil {
		select {
		case <-m.handle.Done():
			m.dropLocked(DegradedReasonIntegrityLost, exitMessage(m.handle))
		default:
			defer m.mu.Unlock()
			return m.status
		}
	}
	m.setLocked(StatePending, "", "")
	m.mu.Unlock()

	h, err := m.adapter.Acquire(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case err != nil:
		reason := DegradedReasonAcquireFailed
		if hostErrors.IsCode(err, hostErrors.CodeKeepAwakeUnsupported) {
			reason = DegradedReasonUnsupported
		}
		m.setLocked(StateDegraded, reason, err.Error())
		m.log.WithError(err).WithField("reason", reason).Warn("keep-awake unavailable")
	case m.closed || m.status.Holder != holder:
		// Released or handed over while the inhibitor was starting.
		go h.Release(context.Background())
	default:
		m.gen++
		m.handle = h
		m.setLocked(StateOn, "", "")
		go m.watch(h, m.gen)
		m.log.WithField("holder", holder).Info("keep-awake on")
	}
	return m.status
}

// Release lets the display sleep again. It is a no-op when nothing is held.
func (m *Manager) Release(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}
	h, holder := m.handle, m.status.Holder
	m.handle = nil
	m.gen++
	m.status.Holder = ""
	m.setLocked(StateOff, "", "")
	st := m.status
	m.mu.Unlock()

	if h == nil {
		return st
	}
	if err := h.Release(ctx); err != nil {
		m.log.WithError(err).Warn("release inhibitor")
		m.mu.Lock()
		m.status.LastError = err.Error()
		st = m.status
		m.mu.Unlock()
	}
	m.log.WithField("holder", holder).Info("keep-awake off")
	return st
}

// Close releases any inhibitor and turns later Hold calls into no-ops.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	h := m.handle
	m.handle = nil
	m.gen++
	m.status.Holder = ""
	m.setLocked(StateOff, "", "")
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Release(ctx)
}

// watch degrades the status when the inhibitor of generation gen dies
// while still wanted.
func (m *Manager) watch(h Handle, gen uint64) {
	<-h.Done()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen != gen || m.handle != h {
		return
	}
	m.dropLocked(DegradedReasonIntegrityLost, exitMessage(h))
	m.log.WithField("error", m.status.LastError).Warn("inhibitor exited while held")
}

func (m *Manager) dropLocked(reason DegradedReason, msg string) {
	m.handle = nil
	m.gen++
	m.setLocked(StateDegraded, reason, msg)
}

func (m *Manager) setLocked(next State, reason DegradedReason, lastErr string) {
	m.status.State = next
	m.status.Reason = reason
	m.status.LastError = lastErr
	m.status.UpdatedAt = m.now()
	m.status.Revision++
}

func exitMessage(h Handle) string {
	if err := h.Err(); err != nil {
		return err.Error()
	}
	return "inhibitor exited"
}
