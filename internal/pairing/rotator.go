package pairing

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/broker"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/protocol"
)

// DefaultRotationInterval is how often the waiting screen gets a new challenge.
const DefaultRotationInterval = 300 * time.Second

// Rotator pushes a fresh challenge and PIN to the waiting screen on a
// fixed interval for as long as the waiting screen is attached.
type Rotator struct {
	svc      *Service
	hub      Hub
	interval time.Duration
	log      logrus.FieldLogger
}

// NewRotator creates a rotator. A zero interval uses the default.
func NewRotator(svc *Service, hub Hub, interval time.Duration, logger logrus.FieldLogger) *Rotator {
	if interval <= 0 {
		interval = DefaultRotationInterval
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Rotator{
		svc:      svc,
		hub:      hub,
		interval: interval,
		log:      logging.Component(logger, "pairing"),
	}
}

// Rotation is a running loop. The connection that started it stops it on
// teardown.
type Rotation struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the loop and waits for it to exit. Safe to call twice.
func (r *Rotation) Stop() {
	r.once.Do(r.cancel)
	<-r.done
}

// Done is closed when the loop has exited.
func (r *Rotation) Done() <-chan struct{} {
	return r.done
}

// Start runs the first cycle immediately and then one per interval. The
// loop exits when ctx is cancelled, Stop is called, or the waiting screen
// is found detached at the top of a cycle.
func (r *Rotator) Start(ctx context.Context) *Rotation {
	ctx, cancel := context.WithCancel(ctx)
	rot := &Rotation{cancel: cancel, done: make(chan struct{})}
	go r.run(ctx, rot.done)
	return rot
}

func (r *Rotator) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if !r.hub.IsAttached(broker.RoleWaiting) {
			r.log.Info("waiting screen detached, rotation stopped")
			return
		}
		r.cycle()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle never lets a failure escape: one bad cycle must not end the loop.
func (r *Rotator) cycle() {
	defer func() {
		if p := recover(); p != nil {
			r.log.WithField("panic", p).Error("rotation cycle panicked")
		}
	}()

	resp, err := r.svc.CreateChallenge()
	if err != nil {
		r.log.WithError(err).Error("rotation cycle failed")
		return
	}

	env, err := protocol.NewEnvelope(protocol.TypeChallengeCreated, protocol.ChallengeCreated{
		ChallengeID: resp.ChallengeID,
		Pin:         resp.PinCode,
		ExpiresAt:   resp.ExpiresAt,
	})
	if err != nil {
		r.log.WithError(err).Error("rotation cycle failed")
		return
	}

	if err := r.hub.PushToWaiting(env); err != nil {
		r.log.WithError(err).Warn("could not push challenge to waiting screen")
		return
	}
	r.hub.ForwardToAdmin(env)

	r.log.WithFields(logrus.Fields{
		"challenge_id": resp.ChallengeID,
		"pin":          logging.Redact(resp.PinCode),
	}).Debug("challenge rotated")
}
