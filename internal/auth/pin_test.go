package auth

import (
	"bytes"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sixDigits = regexp.MustCompile(`^[0-9]{6}$`)

// wrongCode returns a 6-digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "000001"
	}
	return "000000"
}

func TestCreatePin(t *testing.T) {
	clock := newFakeClock()
	store := NewPinStore(PinConfig{TimeNow: clock.Now})

	p, err := store.CreatePin("challenge-1")
	require.NoError(t, err)

	assert.Regexp(t, sixDigits, p.Code)
	assert.Equal(t, "challenge-1", p.ChallengeID)
	assert.Equal(t, DefaultPinMaxAttempts, p.MaxAttempts)
	assert.Equal(t, clock.Now().Add(DefaultPinTTL), p.ExpiresAt)
	assert.Zero(t, p.Attempts)
	assert.False(t, p.Blocked)
	assert.False(t, p.Used)
}

func TestCreatePin_ZeroPadded(t *testing.T) {
	// 32 zero bytes make rand.Int return 0.
	store := NewPinStore(PinConfig{Random: bytes.NewReader(make([]byte, 32))})

	p, err := store.CreatePin("c")
	require.NoError(t, err)
	assert.Equal(t, "000000", p.Code)
}

func TestCreatePin_Randomness(t *testing.T) {
	store := NewPinStore(PinConfig{})
	codes := make(map[string]bool)
	for i := 0; i < 100; i++ {
		p, err := store.CreatePin("c")
		require.NoError(t, err)
		assert.Regexp(t, sixDigits, p.Code)
		codes[p.Code] = true
	}
	assert.Greater(t, len(codes), 90, "expected mostly unique codes")
}

func TestPinIsValid_DoesNotMarkUsed(t *testing.T) {
	store := NewPinStore(PinConfig{})
	p, err := store.CreatePin("c")
	require.NoError(t, err)

	assert.True(t, store.IsValid(p.Code))
	assert.True(t, store.IsValid(p.Code), "validation alone must not consume the pin")

	store.MarkUsed(p.Code)
	assert.False(t, store.IsValid(p.Code))
	assert.NotPanics(t, func() { store.MarkUsed(p.Code) })

	got, ok := store.GetPin(p.Code)
	require.True(t, ok)
	assert.True(t, got.Used)
}

// TestPinLockout covers the scenario of four wrong guesses followed by the
// right code: the pin is blocked for good.
func TestPinLockout(t *testing.T) {
	store := NewPinStore(PinConfig{})
	p, err := store.CreatePin("c")
	require.NoError(t, err)
	bad := wrongCode(p.Code)

	for i := 1; i <= DefaultPinMaxAttempts; i++ {
		assert.False(t, store.IsValid(bad))
		got, _ := store.GetPin(p.Code)
		assert.Equal(t, i, got.Attempts)
		assert.False(t, got.Blocked, "not blocked after %d attempts", i)
	}

	assert.False(t, store.IsValid(bad))
	got, _ := store.GetPin(p.Code)
	assert.True(t, got.Blocked, "blocked once attempts exceed max")

	assert.False(t, store.IsValid(p.Code), "correct code after lockout must fail")
	assert.False(t, store.IsValid(p.Code))
}

func TestPinCorrectCodeBeforeLockout(t *testing.T) {
	store := NewPinStore(PinConfig{})
	p, err := store.CreatePin("c")
	require.NoError(t, err)
	bad := wrongCode(p.Code)

	for i := 0; i < DefaultPinMaxAttempts; i++ {
		require.False(t, store.IsValid(bad))
	}
	assert.True(t, store.IsValid(p.Code))
}

func TestPinExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewPinStore(PinConfig{TTL: time.Minute, TimeNow: clock.Now})
	p, err := store.CreatePin("c")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	assert.False(t, store.IsValid(p.Code))

	got, _ := store.GetPin(p.Code)
	assert.Zero(t, got.Attempts, "expired pins do not accrue attempts")
}

func TestPinUnknownCode(t *testing.T) {
	store := NewPinStore(PinConfig{})
	assert.False(t, store.IsValid("123456"))
	_, ok := store.GetPin("123456")
	assert.False(t, ok)
	assert.NotPanics(t, func() { store.MarkUsed("123456") })
}

func TestPinValidateReturnsOwningChallenge(t *testing.T) {
	store := NewPinStore(PinConfig{})
	p, err := store.CreatePin("challenge-42")
	require.NoError(t, err)

	got, ok := store.Validate(p.Code)
	require.True(t, ok)
	assert.Equal(t, "challenge-42", got.ChallengeID)
	assert.Equal(t, p.ID, got.ID)
}

// TestPinDuplicateCodes checks that the first live pin in insertion order wins
// when two pins share a code.
func TestPinDuplicateCodes(t *testing.T) {
	zeros := bytes.NewReader(make([]byte, 64))
	store := NewPinStore(PinConfig{Random: zeros})

	first, err := store.CreatePin("first")
	require.NoError(t, err)
	second, err := store.CreatePin("second")
	require.NoError(t, err)
	require.Equal(t, first.Code, second.Code)

	got, ok := store.Validate(first.Code)
	require.True(t, ok)
	assert.Equal(t, "first", got.ChallengeID)

	store.MarkUsed(first.Code)
	got, ok = store.Validate(first.Code)
	require.True(t, ok)
	assert.Equal(t, "second", got.ChallengeID, "used pin is skipped")
}

// TestPinCompareTiming is a coarse check that rejection time does not depend
// on where the mismatch sits in the code.
func TestPinCompareTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}
	store := NewPinStore(PinConfig{MaxAttempts: 1 << 30})
	for i := 0; i < 64; i++ {
		_, err := store.CreatePin("c")
		require.NoError(t, err)
	}
	p, _ := store.CreatePin("c")

	early := []byte(p.Code)
	early[0] = '0' + (early[0]-'0'+1)%10
	late := []byte(p.Code)
	late[5] = '0' + (late[5]-'0'+1)%10

	measure := func(code string) time.Duration {
		const rounds = 2000
		start := time.Now()
		for i := 0; i < rounds; i++ {
			store.IsValid(code)
		}
		return time.Since(start)
	}

	measure(string(early))
	a := measure(string(early))
	b := measure(string(late))
	ratio := float64(a) / float64(b)
	assert.InDelta(t, 1.0, ratio, 0.5, "early=%s late=%s", a, b)
}
