// Package pairing turns a challenge or PIN proof into device and session
// tokens, and keeps the waiting screen supplied with fresh challenges.
package pairing

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/auth"
	"github.com/remotekeys/host/internal/broker"
	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
	"github.com/remotekeys/host/internal/protocol"
)

// Verification failures. The messages deliberately do not say which
// condition failed.
var (
	ErrMissingCredentials = hostErrors.New(hostErrors.CodeAuthPairMissingCredentials, "challenge_id or pin is required")
	ErrInvalidChallenge   = hostErrors.New(hostErrors.CodeAuthPairInvalidChallenge, "CHALLENGE NOT FOUND or CHALLENGE IS USED or CHALLENGE HAS EXPIRED")
	ErrInvalidPin         = hostErrors.New(hostErrors.CodeAuthPairInvalidPin, "INVALID PIN or PIN BLOCKED DUE TO MAX ATTEMPTS or PIN NOT FOUND")
)

// Hub is the slice of the connection broker pairing needs.
type Hub interface {
	IsAttached(role broker.Role) bool
	SendEnvelope(role broker.Role, env protocol.Envelope) error
	PushToWaiting(env protocol.Envelope) error
	ForwardToAdmin(env protocol.Envelope)
	NotifyAdmin(message string)
	Disconnect(role broker.Role, reason string)
}

// ChallengeResponse is returned by CreateChallenge.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	PinCode     string    `json:"pin_code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// VerifyRequest carries one of the two pairing proofs. When both are set
// the challenge wins.
type VerifyRequest struct {
	ChallengeID string `json:"challenge_id,omitempty"`
	Pin         string `json:"pin,omitempty"`
}

// VerifyResponse hands the paired device its credentials.
type VerifyResponse struct {
	DeviceID         string    `json:"device_id"`
	DeviceToken      string    `json:"device_token"`
	SessionToken     string    `json:"session_token"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
}

// Service orchestrates challenge creation and verification.
type Service struct {
	challenges *auth.ChallengeStore
	pins       *auth.PinStore
	issuer     *auth.TokenIssuer
	hub        Hub
	log        logrus.FieldLogger
}

// NewService wires a pairing service. hub may be nil when nothing listens.
func NewService(challenges *auth.ChallengeStore, pins *auth.PinStore, issuer *auth.TokenIssuer, hub Hub, logger logrus.FieldLogger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Service{
		challenges: challenges,
		pins:       pins,
		issuer:     issuer,
		hub:        hub,
		log:        logging.Component(logger, "pairing"),
	}
}

// CreateChallenge issues a challenge and the PIN bound to it.
func (s *Service) CreateChallenge() (ChallengeResponse, error) {
	c, err := s.challenges.CreateChallenge()
	if err != nil {
		return ChallengeResponse{}, hostErrors.Internal("create challenge", err)
	}
	p, err := s.pins.CreatePin(c.ID)
	if err != nil {
		return ChallengeResponse{}, hostErrors.Internal("create pin", err)
	}
	return ChallengeResponse{
		ChallengeID: c.ID,
		PinCode:     p.Code,
		ExpiresAt:   c.ExpiresAt,
	}, nil
}

// ChallengeValid reports whether the challenge can still be redeemed.
func (s *Service) ChallengeValid(id string) bool {
	return s.challenges.IsValid(id)
}

// Verify redeems a challenge id or PIN and mints tokens for a new device.
// On success the waiting screen and admin are told, then the waiting
// screen is released.
func (s *Service) Verify(req VerifyRequest) (VerifyResponse, error) {
	switch {
	case req.ChallengeID != "":
		if !s.challenges.Redeem(req.ChallengeID) {
			s.log.Info("challenge verification failed")
			return VerifyResponse{}, ErrInvalidChallenge
		}
	case req.Pin != "":
		if err := s.redeemPin(req.Pin); err != nil {
			s.log.Info("pin verification failed")
			return VerifyResponse{}, err
		}
	default:
		return VerifyResponse{}, ErrMissingCredentials
	}

	device, err := s.issuer.CreateDeviceToken()
	if err != nil {
		return VerifyResponse{}, hostErrors.Wrap(hostErrors.CodeAuthPairInternal, "mint device token", err)
	}
	session, err := s.issuer.CreateSessionToken(device.DeviceID)
	if err != nil {
		return VerifyResponse{}, hostErrors.Wrap(hostErrors.CodeAuthPairInternal, "mint session token", err)
	}

	s.announce(device.DeviceID, session.ExpiresAt)

	return VerifyResponse{
		DeviceID:         device.DeviceID,
		DeviceToken:      device.Token,
		SessionToken:     session.Token,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// redeemPin validates the PIN, then its owning challenge, and only then
// marks both used.
func (s *Service) redeemPin(code string) error {
	pin, ok := s.pins.Validate(code)
	if !ok {
		return ErrInvalidPin
	}
	if !s.challenges.Redeem(pin.ChallengeID) {
		return ErrInvalidPin
	}
	s.pins.MarkUsed(code)
	return nil
}

// announce is best effort: a verify never fails because an observer is gone.
func (s *Service) announce(deviceID string, sessionExpiresAt time.Time) {
	s.log.WithField("device_id", deviceID).Info("device paired")
	if s.hub == nil {
		return
	}

	env, err := protocol.NewEnvelope(protocol.TypeChallengeVerified, protocol.ChallengeVerified{
		DeviceID:         deviceID,
		SessionExpiresAt: sessionExpiresAt,
	})
	if err != nil {
		s.log.WithError(err).Error("building verified envelope")
		return
	}

	if err := s.hub.SendEnvelope(broker.RoleWaiting, env); err != nil {
		s.log.WithError(err).Warn("waiting screen missed verification")
	}
	s.hub.ForwardToAdmin(env)
	s.hub.NotifyAdmin(fmt.Sprintf("device %s paired", deviceID))
	s.hub.Disconnect(broker.RoleWaiting, "paired")
}
