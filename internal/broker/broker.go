// Package broker holds the live connection of each role (admin, client,
// waiting) and routes messages between them.
//
// Each role has at most one connection. A new connection for a role replaces
// the old one. A failed write clears the slot, so the broker's view never
// outlives the socket.
package broker

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/protocol"
)

// Role names a connection slot.
type Role string

// Roles.
const (
	RoleAdmin   Role = "admin"
	RoleClient  Role = "client"
	RoleWaiting Role = "waiting"
)

// Roles lists every slot.
var Roles = []Role{RoleAdmin, RoleClient, RoleWaiting}

// Valid reports whether r is one of the three roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleClient || r == RoleWaiting
}

// bestEffort roles are observers: sending to them while detached is not an error.
func (r Role) bestEffort() bool {
	return r == RoleAdmin || r == RoleWaiting
}

// Mode selects how a payload is framed.
type Mode int

const (
	// ModeText sends a string or []byte as a text frame.
	ModeText Mode = iota
	// ModeJSON marshals the payload and sends it as a text frame.
	ModeJSON
	// ModeBinary sends []byte as a binary frame.
	ModeBinary
)

func (m Mode) String() string {
	switch m {
	case ModeText:
		return "text"
	case ModeJSON:
		return "json"
	case ModeBinary:
		return "binary"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Conn is an accepted duplex connection as seen by the broker.
type Conn interface {
	// Write sends one frame.
	Write(mode Mode, data []byte) error
	// Close sends a close frame with code and reason and releases the socket.
	// Closing an already closed connection must not panic.
	Close(code int, reason string) error
}

// Broker owns the role slots. The lock is held only around slot access and
// never across a write or close.
type Broker struct {
	log logrus.FieldLogger

	mu    sync.Mutex
	slots map[Role]Conn
}

// New creates an empty broker.
func New(logger logrus.FieldLogger) *Broker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Broker{
		log:   logging.Component(logger, "broker"),
		slots: make(map[Role]Conn),
	}
}

// Connect attaches conn to role. A previous holder of the role is detached
// and its socket closed so its read loop ends; it receives no message.
func (b *Broker) Connect(role Role, conn Conn) error {
	if !role.Valid() {
		return hostErrors.New(hostErrors.CodeBrokerUnknownRole, fmt.Sprintf("unknown role %q", role))
	}

	b.mu.Lock()
	prev := b.slots[role]
	b.slots[role] = conn
	b.mu.Unlock()

	if prev != nil && prev != conn {
		b.log.WithField("role", role).Info("replacing existing connection")
		if err := prev.Close(websocket.CloseGoingAway, "replaced by a newer connection"); err != nil {
			b.log.WithError(err).WithField("role", role).Debug("closing displaced connection")
		}
	}
	b.log.WithField("role", role).Info("connection attached")
	return nil
}

// Disconnect closes the role's connection with reason and clears the slot.
// Closing an already closed socket is not an error; a detached role is a no-op.
func (b *Broker) Disconnect(role Role, reason string) {
	b.mu.Lock()
	conn := b.slots[role]
	delete(b.slots, role)
	b.mu.Unlock()

	if conn == nil {
		return
	}
	if err := conn.Close(websocket.CloseNormalClosure, reason); err != nil {
		b.log.WithError(err).WithField("role", role).Debug("close after disconnect")
	}
	b.log.WithFields(logrus.Fields{"role": role, "reason": reason}).Info("connection detached")
}

// Detach clears role only if conn still holds it. Read loops call this on
// exit so a replaced connection cannot evict its successor.
func (b *Broker) Detach(role Role, conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.slots[role] != conn {
		return false
	}
	delete(b.slots, role)
	b.log.WithField("role", role).Info("connection detached")
	return true
}

// IsAttached reports whether role has a live connection.
func (b *Broker) IsAttached(role Role) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.slots[role] != nil
}

// Holds reports whether conn currently holds role.
func (b *Broker) Holds(role Role, conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return conn != nil && b.slots[role] == conn
}

// Send delivers payload to role.
//
// A detached admin or waiting role is logged and skipped. A detached client
// is an error. A failed write clears the slot and returns the error.
func (b *Broker) Send(role Role, payload any, mode Mode) error {
	if !role.Valid() {
		return hostErrors.New(hostErrors.CodeBrokerUnknownRole, fmt.Sprintf("unknown role %q", role))
	}

	data, err := frame(payload, mode)
	if err != nil {
		return err
	}

	b.mu.Lock()
	conn := b.slots[role]
	b.mu.Unlock()

	if conn == nil {
		if role.bestEffort() {
			b.log.WithField("role", role).Warn("dropping message for detached role")
			return nil
		}
		return hostErrors.NotAttached(string(role))
	}

	if err := conn.Write(mode, data); err != nil {
		b.Detach(role, conn)
		b.log.WithError(err).WithField("role", role).Warn("send failed, connection dropped")
		return hostErrors.SendFailed(string(role), err)
	}
	return nil
}

// SendEnvelope sends env to role as JSON.
func (b *Broker) SendEnvelope(role Role, env protocol.Envelope) error {
	return b.Send(role, env, ModeJSON)
}

// NotifyAdmin sends a NOTIFY to the admin. Failures are logged, never returned.
func (b *Broker) NotifyAdmin(message string) {
	env, err := protocol.NewNotify(message)
	if err != nil {
		b.log.WithError(err).Error("building admin notification")
		return
	}
	b.ForwardToAdmin(env)
}

// ForwardToAdmin sends env to the admin, logging and swallowing failures.
func (b *Broker) ForwardToAdmin(env protocol.Envelope) {
	if err := b.SendEnvelope(RoleAdmin, env); err != nil {
		b.log.WithError(err).Warn("admin notification failed")
	}
}

// PushToWaiting sends env to the waiting screen. Unlike Send, a detached
// waiting screen is an error here, which stops the rotation loop.
func (b *Broker) PushToWaiting(env protocol.Envelope) error {
	if !b.IsAttached(RoleWaiting) {
		return hostErrors.NotAttached(string(RoleWaiting))
	}
	return b.SendEnvelope(RoleWaiting, env)
}

// CloseAll disconnects every role with reason. Used at shutdown.
func (b *Broker) CloseAll(reason string) {
	for _, role := range Roles {
		b.Disconnect(role, reason)
	}
}

// frame converts payload to bytes for mode.
func frame(payload any, mode Mode) ([]byte, error) {
	switch mode {
	case ModeJSON:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, hostErrors.Wrap(hostErrors.CodeBrokerBadMode, "marshal payload", err)
		}
		return data, nil
	case ModeText, ModeBinary:
		switch p := payload.(type) {
		case string:
			return []byte(p), nil
		case []byte:
			return p, nil
		}
		return nil, hostErrors.New(hostErrors.CodeBrokerBadMode, fmt.Sprintf("%s mode needs string or []byte, got %T", mode, payload))
	default:
		return nil, hostErrors.New(hostErrors.CodeBrokerBadMode, fmt.Sprintf("unknown send mode %s", mode))
	}
}
