package auth

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	hostErrors "github.com/remotekeys/host/internal/errors"
	"github.com/remotekeys/host/internal/logging"
)

// Errors returned when claiming a device token.
var (
	ErrTokenMissing = hostErrors.New(hostErrors.CodeAuthTokenMissing, "device token is required")
	ErrTokenInvalid = hostErrors.New(hostErrors.CodeAuthTokenInvalid, "device token is not recognized")
	ErrTokenRevoked = hostErrors.New(hostErrors.CodeAuthTokenRevoked, "device token was already used")
	ErrTokenExpired = hostErrors.New(hostErrors.CodeAuthTokenExpired, "device token has expired")
)

// DeviceToken identifies a paired device. It opens the control panel once;
// the first successful claim revokes it.
type DeviceToken struct {
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
}

// SessionToken is proof of a successful pairing event, bound to a device.
type SessionToken struct {
	SessionID string    `json:"session_id"`
	DeviceID  string    `json:"device_id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// TokenStore holds device and session tokens keyed by their secret.
type TokenStore struct {
	mu       sync.Mutex
	timeNow  func() time.Time
	log      logrus.FieldLogger
	devices  map[string]*DeviceToken
	sessions map[string]*SessionToken
}

// NewTokenStore creates an empty token store. timeNow and logger may be nil.
func NewTokenStore(timeNow func() time.Time, logger logrus.FieldLogger) *TokenStore {
	if timeNow == nil {
		timeNow = time.Now
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TokenStore{
		timeNow:  timeNow,
		log:      logging.Component(logger, "auth"),
		devices:  make(map[string]*DeviceToken),
		sessions: make(map[string]*SessionToken),
	}
}

// SaveDeviceToken stores a device token, replacing any record with the same secret.
func (s *TokenStore) SaveDeviceToken(t DeviceToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[t.Token] = &t
}

// GetDeviceToken is a raw lookup. It does not check expiry or revocation.
func (s *TokenStore) GetDeviceToken(token string) (DeviceToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.devices[token]
	if !ok {
		return DeviceToken{}, false
	}
	return *t, true
}

// RevokeDeviceToken flips the revoked flag. It reports whether the token existed.
func (s *TokenStore) RevokeDeviceToken(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.devices[token]
	if !ok {
		return false
	}
	t.Revoked = true
	return true
}

// ClaimDeviceToken checks the token and revokes it in the same critical
// section, so two concurrent connections cannot both claim it.
func (s *TokenStore) ClaimDeviceToken(token string) (DeviceToken, error) {
	if token == "" {
		return DeviceToken{}, ErrTokenMissing
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.devices[token]
	switch {
	case !ok:
		return DeviceToken{}, ErrTokenInvalid
	case t.Revoked:
		return DeviceToken{}, ErrTokenRevoked
	case !s.timeNow().Before(t.ExpiresAt):
		return DeviceToken{}, ErrTokenExpired
	}

	t.Revoked = true
	s.log.WithField("device_id", t.DeviceID).Info("device token claimed")
	return *t, nil
}

// SaveSessionToken stores a session token.
func (s *TokenStore) SaveSessionToken(t SessionToken) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[t.Token] = &t
}

// GetSessionToken returns the session if it is unexpired and active.
// An expired session is deleted on the way out.
func (s *TokenStore) GetSessionToken(token string) (SessionToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[token]
	if !ok {
		return SessionToken{}, false
	}
	if !s.timeNow().Before(t.ExpiresAt) {
		delete(s.sessions, token)
		return SessionToken{}, false
	}
	if !t.Active {
		return SessionToken{}, false
	}
	return *t, true
}

// RevokeSessionToken deactivates and deletes the session.
func (s *TokenStore) RevokeSessionToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.sessions[token]; ok {
		t.Active = false
		delete(s.sessions, token)
	}
}

// CleanupExpiredSessions removes every session whose expiry has passed and
// returns how many were removed. Device tokens are untouched.
func (s *TokenStore) CleanupExpiredSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	removed := 0
	for key, t := range s.sessions {
		if t.ExpiresAt.Before(now) {
			delete(s.sessions, key)
			removed++
		}
	}
	return removed
}

// CleanupExpiredDevices removes every device token whose expiry has passed.
func (s *TokenStore) CleanupExpiredDevices() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.timeNow()
	removed := 0
	for key, t := range s.devices {
		if t.ExpiresAt.Before(now) {
			delete(s.devices, key)
			removed++
		}
	}
	return removed
}

// Counts returns the number of stored device and session tokens.
func (s *TokenStore) Counts() (devices, sessions int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.devices), len(s.sessions)
}
