// Package keepawake holds an OS sleep inhibitor while a remote session
// drives the keyboard, so the display does not blank mid-presentation.
package keepawake

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the inhibitor runtime state.
type State string

const (
	StateOff      State = "OFF"
	StatePending  State = "PENDING"
	StateOn       State = "ON"
	StateDegraded State = "DEGRADED"
)

// DegradedReason identifies why keep-awake could not be maintained.
type DegradedReason string

const (
	DegradedReasonUnsupported   DegradedReason = "unsupported_environment"
	DegradedReasonAcquireFailed DegradedReason = "acquire_failed"
	// DegradedReasonIntegrityLost means the inhibitor exited while still wanted.
	DegradedReasonIntegrityLost DegradedReason = "integrity_lost"
)

// Status is a snapshot of keep-awake state.
type Status struct {
	State State
	// Holder labels the session that wants the display awake; empty when none.
	Holder    string
	Reason    DegradedReason
	LastError string
	UpdatedAt time.Time
	// Revision increments on every transition.
	Revision int64
}

// Handle is an acquired inhibitor.
type Handle interface {
	// Done is closed when the inhibitor exits.
	Done() <-chan struct{}
	// Err returns the exit error once Done is closed.
	Err() error
	Release(ctx context.Context) error
}

// Adapter acquires OS-specific inhibitors.
type Adapter interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Options configures a Manager.
type Options struct {
	// Now returns the current time. Default: time.Now.
	Now func() time.Time

	// Logger receives state transitions. Default: discard.
	Logger logrus.FieldLogger
}
