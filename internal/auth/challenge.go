// Package auth implements the pairing credentials of the host: single-use
// challenges, attempt-limited PINs, and the device and session tokens minted
// when a pairing succeeds.
//
// All state is memory-resident. Stores hand out copies of their entities so
// callers can never mutate a stored record except through the store's methods.
package auth

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// DefaultChallengeTTL is how long a challenge stays valid after creation.
const DefaultChallengeTTL = 5 * time.Minute

// Challenge is a one-time pairing token, typically shown as a QR code on the
// waiting screen. Used moves from false to true exactly once.
type Challenge struct {
	ID        string    `json:"challenge_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// validAt reports whether the challenge can still be redeemed at now.
func (c *Challenge) validAt(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}

// ChallengeConfig holds configuration for the challenge store.
type ChallengeConfig struct {
	// TTL is how long a challenge remains valid.
	// Default: 5 minutes.
	TTL time.Duration

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time

	// Logger receives store events. Default: discard.
	Logger logrus.FieldLogger
}

// ChallengeStore issues and validates pairing challenges.
//
// Expired challenges are never deleted; they are simply ignored. The working
// set grows by one entry per rotation cycle, which is acceptable for a host
// that pairs a single device at a time.
type ChallengeStore struct {
	mu         sync.Mutex
	config     ChallengeConfig
	log        logrus.FieldLogger
	challenges map[string]*Challenge
}

// NewChallengeStore creates a challenge store with the given config.
func NewChallengeStore(config ChallengeConfig) *ChallengeStore {
	if config.TTL == 0 {
		config.TTL = DefaultChallengeTTL
	}
	if config.TimeNow == nil {
		config.TimeNow = time.Now
	}
	if config.Logger == nil {
		config.Logger = logging.Discard()
	}

	return &ChallengeStore{
		config:     config,
		log:        logging.Component(config.Logger, "auth"),
		challenges: make(map[string]*Challenge),
	}
}

// CreateChallenge generates a fresh challenge valid for the configured TTL.
func (s *ChallengeStore) CreateChallenge() (Challenge, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	c := &Challenge{
		ID:        id.String(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.TTL),
	}
	s.challenges[c.ID] = c

	s.log.WithField("expires_at", c.ExpiresAt.Format(time.RFC3339)).Debug("created challenge")
	return *c, nil
}

// IsValid reports whether the challenge exists, is unused and has not expired.
// Unknown ids are simply invalid.
func (s *ChallengeStore) IsValid(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return false
	}
	return c.validAt(s.config.TimeNow())
}

// MarkUsed marks the challenge as redeemed. Unknown ids are ignored.
func (s *ChallengeStore) MarkUsed(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.challenges[id]; ok {
		c.Used = true
	}
}

// Redeem validates and marks the challenge used in one critical section.
// It returns false when the challenge is unknown, used or expired.
func (s *ChallengeStore) Redeem(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok || !c.validAt(s.config.TimeNow()) {
		return false
	}
	c.Used = true
	return true
}

// Get returns a copy of the challenge, if it exists.
func (s *ChallengeStore) Get(id string) (Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[id]
	if !ok {
		return Challenge{}, false
	}
	return *c, true
}

// Len returns the number of stored challenges, including expired ones.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.challenges)
}
