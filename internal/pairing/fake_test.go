package pairing

import (
	"errors"
	"sync"
	"time"

	"github.com/remotekeys/host/internal/auth"
	"github.com/remotekeys/host/internal/broker"
	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/protocol"
)

type sent struct {
	role broker.Role
	env  protocol.Envelope
}

// fakeHub records what pairing sends and lets tests toggle attachment.
type fakeHub struct {
	mu            sync.Mutex
	attached      map[broker.Role]bool
	sent          []sent
	notes         []string
	disconnects   []string
	pushErr       error
	panicOnPushes bool
}

func newFakeHub(roles ...broker.Role) *fakeHub {
	h := &fakeHub{attached: map[broker.Role]bool{}}
	for _, r := range roles {
		h.attached[r] = true
	}
	return h
}

func (h *fakeHub) IsAttached(role broker.Role) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached[role]
}

func (h *fakeHub) setAttached(role broker.Role, v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[role] = v
}

func (h *fakeHub) SendEnvelope(role broker.Role, env protocol.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.attached[role] {
		return nil
	}
	h.sent = append(h.sent, sent{role, env})
	return nil
}

func (h *fakeHub) PushToWaiting(env protocol.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicOnPushes {
		panic("push exploded")
	}
	if h.pushErr != nil {
		return h.pushErr
	}
	if !h.attached[broker.RoleWaiting] {
		return hostErrors.NotAttached(string(broker.RoleWaiting))
	}
	h.sent = append(h.sent, sent{broker.RoleWaiting, env})
	return nil
}

func (h *fakeHub) ForwardToAdmin(env protocol.Envelope) {
	_ = h.SendEnvelope(broker.RoleAdmin, env)
}

func (h *fakeHub) NotifyAdmin(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notes = append(h.notes, message)
}

func (h *fakeHub) Disconnect(role broker.Role, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached[role] = false
	h.disconnects = append(h.disconnects, string(role)+":"+reason)
}

func (h *fakeHub) sentTo(role broker.Role) []protocol.Envelope {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []protocol.Envelope
	for _, s := range h.sent {
		if s.role == role {
			out = append(out, s.env)
		}
	}
	return out
}

var errBoom = errors.New("boom")

// fixture bundles a service over fresh stores sharing one clock.
type fixture struct {
	now        time.Time
	challenges *auth.ChallengeStore
	pins       *auth.PinStore
	tokens     *auth.TokenStore
	hub        *fakeHub
	svc        *Service
}

func newFixture(hub *fakeHub) *fixture {
	f := &fixture{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC), hub: hub}
	clock := func() time.Time { return f.now }
	f.challenges = auth.NewChallengeStore(auth.ChallengeConfig{TimeNow: clock})
	f.pins = auth.NewPinStore(auth.PinConfig{TimeNow: clock})
	f.tokens = auth.NewTokenStore(clock, nil)
	issuer := auth.NewTokenIssuer(f.tokens, auth.IssuerConfig{TimeNow: clock})
	var h Hub
	if hub != nil {
		h = hub
	}
	f.svc = NewService(f.challenges, f.pins, issuer, h, nil)
	return f
}
