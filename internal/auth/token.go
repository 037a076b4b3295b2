package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// Token defaults.
const (
	DefaultDeviceTokenTTL  = time.Hour
	DefaultSessionTokenTTL = time.Hour

	// tokenBytes is the entropy of every minted secret: 256 bits.
	tokenBytes = 32
)

// IssuerConfig holds configuration for the token issuer.
type IssuerConfig struct {
	// DeviceTTL is the lifetime of a device token. Default: 1 hour.
	DeviceTTL time.Duration

	// SessionTTL is the lifetime of a session token. Default: 1 hour.
	SessionTTL time.Duration

	// TimeNow returns the current time. Default: time.Now.
	TimeNow func() time.Time

	// Random is the entropy source for secrets. Default: crypto/rand.Reader.
	Random io.Reader

	// Logger receives issuer events. Default: discard.
	Logger logrus.FieldLogger
}

// TokenIssuer mints device and session tokens and persists them in a TokenStore.
// Expiry is absolute from mint time; there is no renewal.
type TokenIssuer struct {
	config IssuerConfig
	store  *TokenStore
	log    logrus.FieldLogger
}

// NewTokenIssuer creates an issuer writing into store.
func NewTokenIssuer(store *TokenStore, config IssuerConfig) *TokenIssuer {
	if config.DeviceTTL == 0 {
		config.DeviceTTL = DefaultDeviceTokenTTL
	}
	if config.SessionTTL == 0 {
		config.SessionTTL = DefaultSessionTokenTTL
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.Random == nil {
		config.Random = rand.Reader
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}
	return &TokenIssuer{
		config: config,
		store:  store,
		log:    logging.Component(config.Logger, "auth"),
	}
}

// CreateDeviceToken mints a fresh, unrevoked device token.
func (ti *TokenIssuer) CreateDeviceToken() (DeviceToken, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return DeviceToken{}, fmt.Errorf("generate device id: %w", err)
	}
	secret, err := generateSecureToken(ti.config.Random)
	if err != nil {
		return DeviceToken{}, fmt.Errorf("generate device token: %w", err)
	}

	now := ti.config.TimeNow()
	t := DeviceToken{
		DeviceID:  id.String(),
		Token:     secret,
		CreatedAt: now,
		ExpiresAt: now.Add(ti.config.DeviceTTL),
	}
	ti.store.SaveDeviceToken(t)

	ti.log.WithField("device_id", t.DeviceID).Info("issued device token")
	return t, nil
}

// CreateSessionToken mints a session token bound to deviceID.
// Sessions are active from the moment they are minted.
func (ti *TokenIssuer) CreateSessionToken(deviceID string) (SessionToken, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return SessionToken{}, fmt.Errorf("generate session id: %w", err)
	}
	secret, err := generateSecureToken(ti.config.Random)
	if err != nil {
		return SessionToken{}, fmt.Errorf("generate session token: %w", err)
	}

	now := ti.config.TimeNow()
	t := SessionToken{
		SessionID: id.String(),
		DeviceID:  deviceID,
		Token:     secret,
		CreatedAt: now,
		ExpiresAt: now.Add(ti.config.SessionTTL),
		Active:    true,
	}
	ti.store.SaveSessionToken(t)

	ti.log.WithFields(logrus.Fields{
		"device_id":  deviceID,
		"session_id": t.SessionID,
	}).Info("issued session token")
	return t, nil
}

// generateSecureToken returns 32 random bytes encoded URL-safe without padding.
func generateSecureToken(random io.Reader) (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(random, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
