package input

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
)

// DefaultDwell is the pause between key transitions.
const DefaultDwell = 20 * time.Millisecond

// Controller errors.
var (
	ErrAlreadyRunning      = hostErrors.New(hostErrors.CodeInputAlreadyRunning, "another client already controls the keyboard")
	ErrNoActiveController  = hostErrors.New(hostErrors.CodeInputNoController, "no active keyboard controller")
	ErrUnknownKey          = hostErrors.New(hostErrors.CodeInputUnknownKey, "unknown key")
	ErrUnmappableCharacter = hostErrors.New(hostErrors.CodeInputUnmappable, "character has no key mapping")
)

// Options configures a Controller.
type Options struct {
	// Dwell is the pause between key transitions. Default: 20ms.
	Dwell time.Duration

	// Sleep pauses for a dwell. Tests replace it to avoid real delays.
	// Default: time.Sleep.
	Sleep func(time.Duration)

	// Logger receives controller events. Default: discard.
	Logger logrus.FieldLogger
}

// Controller binds the keyboard to at most one controlling session.
//
// The lock guards only the owner and handle. Press and TypeText copy the
// handle under the lock and actuate after releasing it, so a long combination
// never blocks Start or Stop. A Stop racing an in-flight press leaves that
// press running on a closed handle; Keyboard implementations tolerate this.
type Controller struct {
	backend Backend
	dwell   time.Duration
	sleep   func(time.Duration)
	log     logrus.FieldLogger

	mu      sync.Mutex
	kb      Keyboard
	owner   string
	running bool
}

// NewController creates a controller over backend.
func NewController(backend Backend, opts Options) *Controller {
	if opts.Dwell == 0 {
		opts.Dwell = DefaultDwell
	}
	if opts.Sleep == nil {
		opts.Sleep = time.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Controller{
		backend: backend,
		dwell:   opts.Dwell,
		sleep:   opts.Sleep,
		log:     logging.Component(opts.Logger, "input"),
	}
}

// Start binds the keyboard to owner. It fails with ErrAlreadyRunning, leaving
// the current owner in place, when a session is already bound.
func (c *Controller) Start(owner string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		c.log.WithFields(logrus.Fields{
			"owner":     c.owner,
			"requester": owner,
		}).Warn("keyboard already controlled")
		return hostErrors.New(ErrAlreadyRunning.Code, fmt.Sprintf("another client (%s) already controls the keyboard", c.owner))
	}

	kb, err := c.backend.Open()
	if err != nil {
		return hostErrors.Wrap(hostErrors.CodeInputBackendFailed, fmt.Sprintf("open %s backend", c.backend.Name()), err)
	}

	c.kb = kb
	c.owner = owner
	c.running = true

	c.log.WithField("owner", owner).Info("keyboard control started")
	return nil
}

// Stop releases the keyboard. It is a no-op when nothing is bound.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	kb := c.kb
	owner := c.owner
	c.kb = nil
	c.owner = ""
	c.running = false
	c.mu.Unlock()

	if err := kb.Close(); err != nil {
		c.log.WithError(err).Warn("closing keyboard handle")
	}
	c.log.WithField("owner", owner).Info("keyboard control stopped")
}

// Owner returns the label of the bound session.
func (c *Controller) Owner() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner, c.running
}

// snapshot returns the live handle and owner, or ErrNoActiveController.
func (c *Controller) snapshot() (Keyboard, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.kb == nil {
		return nil, "", ErrNoActiveController
	}
	return c.kb, c.owner, nil
}

// Press performs the action bound to name.
func (c *Controller) Press(name KeyName) error {
	kb, owner, err := c.snapshot()
	if err != nil {
		return err
	}

	action, ok := Lookup(name)
	if !ok {
		return hostErrors.New(ErrUnknownKey.Code, fmt.Sprintf("unknown key: %s", name))
	}

	if err := execute(kb, action, c.dwell, c.sleep); err != nil {
		return hostErrors.Wrap(hostErrors.CodeInputBackendFailed, fmt.Sprintf("press %s", name), err)
	}

	c.log.WithFields(logrus.Fields{"key": name, "owner": owner}).Debug("key pressed")
	return nil
}

// TypeText types text. Characters the backend cannot synthesize are logged
// and skipped; they do not fail the call.
func (c *Controller) TypeText(text string) error {
	kb, owner, err := c.snapshot()
	if err != nil {
		return err
	}

	if err := kb.Type(text); err != nil {
		var unmappable *UnmappableError
		if errors.As(err, &unmappable) {
			c.log.WithField("chars", string(unmappable.Chars)).Warn(ErrUnmappableCharacter.Message)
			return nil
		}
		return hostErrors.Wrap(hostErrors.CodeInputBackendFailed, "type text", err)
	}

	c.log.WithFields(logrus.Fields{"chars": len([]rune(text)), "owner": owner}).Debug("text typed")
	return nil
}
