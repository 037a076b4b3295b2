package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/remotekeys/host/internal/logging"
)

// PIN defaults.
const (
	DefaultPinTTL         = 5 * time.Minute
	DefaultPinMaxAttempts = 3
	pinDigits             = 6
)

// pinSpace is the number of distinct 6-digit codes.
var pinSpace = big.NewInt(1_000_000)

// Pin is a human-typeable stand-in for a challenge. Once Attempts exceeds
// MaxAttempts the PIN is blocked for good.
type Pin struct {
	ID          string    `json:"pin_id"`
	ChallengeID string    `json:"challenge_id"`
	Code        string    `json:"pin_code"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Blocked     bool      `json:"blocked"`
	Used        bool      `json:"used"`
}

func (p *Pin) liveAt(now time.Time) bool {
	return !p.Used && !p.Blocked && now.Before(p.ExpiresAt)
}

// PinConfig holds configuration for the PIN store.
type PinConfig struct {
	// TTL is how long a PIN remains valid.
	// Default: 5 minutes.
	TTL time.Duration

	// MaxAttempts is the number of mismatches tolerated before blocking.
	// Default: 3.
	MaxAttempts int

	// TimeNow returns the current time. Useful for testing.
	// Default: time.Now.
	TimeNow func() time.Time

	// Random is the entropy source for codes.
	// Default: crypto/rand.Reader.
	Random io.Reader

	// Logger receives store events. Default: discard.
	Logger logrus.FieldLogger
}

// PinStore issues and validates PINs.
//
// Codes are not forced unique: with a 6-digit space and a handful of live PINs
// a collision is unlikely, and lookups return the first match in insertion
// order. This is a scaling limit, not a correctness guarantee.
type PinStore struct {
	mu     sync.Mutex
	config PinConfig
	log    logrus.FieldLogger
	pins   []*Pin
}

// NewPinStore creates a PIN store with the given config.
func NewPinStore(config PinConfig) *PinStore {
	if config.TTL == 0 {
		config.TTL = DefaultPinTTL
	}
	if config.MaxAttempts == 0 {
		config.MaxAttempts = DefaultPinMaxAttempts
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

	return &PinStore{
		config: config,
		log:    logging.Component(config.Logger, "auth"),
	}
}

// CreatePin generates a new PIN bound to the given challenge.
func (s *PinStore) CreatePin(challengeID string) (Pin, error) {
	code, err := generatePinCode(s.config.Random)
	if err != nil {
		return Pin{}, fmt.Errorf("generate pin: %w", err)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return Pin{}, fmt.Errorf("generate pin id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	p := &Pin{
		ID:          id.String(),
		ChallengeID: challengeID,
		Code:        code,
		MaxAttempts: s.config.MaxAttempts,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.config.TTL),
	}
	s.pins = append(s.pins, p)

	s.log.WithField("challenge_id", challengeID).Debug("created pin")
	return *p, nil
}

// GetPin returns a copy of the first stored PIN with this code, whatever its state.
func (s *PinStore) GetPin(code string) (Pin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.pins {
		if p.Code == code {
			return *p, true
		}
	}
	return Pin{}, false
}

// IsValid reports whether code matches a live PIN. It does not mark the PIN
// used; see MarkUsed.
func (s *PinStore) IsValid(code string) bool {
	_, ok := s.Validate(code)
	return ok
}

// Validate is IsValid returning the matched PIN.
//
// The supplied code is compared against every live PIN with a constant-time
// comparison and no early exit. When nothing matches, every live PIN records
// an attempt, and a PIN whose attempts exceed MaxAttempts is blocked
// permanently. A single wrong guess therefore counts against all outstanding
// PINs, which is the brute-force bound.
func (s *PinStore) Validate(code string) (Pin, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	supplied := []byte(code)

	var match *Pin
	for _, p := range s.pins {
		eq := subtle.ConstantTimeCompare([]byte(p.Code), supplied) == 1
		if eq && match == nil && p.liveAt(now) {
			match = p
		}
	}
	if match != nil {
		return *match, true
	}

	for _, p := range s.pins {
		if !p.liveAt(now) {
			continue
		}
		p.Attempts++
		if p.Attempts > p.MaxAttempts {
			p.Blocked = true
			s.log.WithFields(logrus.Fields{
				"pin_id":   p.ID,
				"attempts": p.Attempts,
			}).Warn("pin blocked after too many attempts")
		}
	}
	return Pin{}, false
}

// MarkUsed marks the first live PIN with this code as used. It is a no-op when
// no live PIN carries the code, so calling it twice is harmless.
func (s *PinStore) MarkUsed(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.config.TimeNow()
	for _, p := range s.pins {
		if p.Code == code && p.liveAt(now) {
			p.Used = true
			return
		}
	}
}

// Len returns the number of stored PINs, including dead ones.
func (s *PinStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pins)
}

// generatePinCode draws a uniform code in 000000-999999, zero-padded.
func generatePinCode(random io.Reader) (string, error) {
	n, err := rand.Int(random, pinSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", pinDigits, n.Int64()), nil
}
