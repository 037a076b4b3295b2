package auth

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSweeper struct {
	runs  atomic.Int32
	panic bool
}

func (s *countingSweeper) CleanupExpiredSessions() int {
	s.runs.Add(1)
	if s.panic {
		panic("sweep exploded")
	}
	return 0
}

func (s *countingSweeper) CleanupExpiredDevices() int { return 0 }

// TestJanitorRunOnce covers the sweep scenario: an expired session disappears,
// a live one stays.
func TestJanitorRunOnce(t *testing.T) {
	clock := newFakeClock()
	store := NewTokenStore(clock.Now, nil)
	store.SaveSessionToken(SessionToken{SessionID: "old", Token: "old", ExpiresAt: clock.Now().Add(-time.Minute), Active: true})
	store.SaveSessionToken(SessionToken{SessionID: "live", Token: "live", ExpiresAt: clock.Now().Add(time.Minute), Active: true})

	logger, hook := test.NewNullLogger()
	j := NewJanitor(store, "", logger)
	j.RunOnce()

	_, ok := store.GetSessionToken("old")
	assert.False(t, ok)
	_, ok = store.GetSessionToken("live")
	assert.True(t, ok)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, 1, hook.LastEntry().Data["sessions_removed"])
}

func TestJanitorRunOnce_RecoversPanic(t *testing.T) {
	logger, hook := test.NewNullLogger()
	sweeper := &countingSweeper{panic: true}
	j := NewJanitor(sweeper, "", logger)

	assert.NotPanics(t, j.RunOnce)
	assert.NotPanics(t, j.RunOnce)
	assert.Equal(t, int32(2), sweeper.runs.Load())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestJanitorSchedule(t *testing.T) {
	sweeper := &countingSweeper{}
	j := NewJanitor(sweeper, "@every 1s", nil)
	require.NoError(t, j.Start())
	require.NoError(t, j.Start())
	defer j.Stop()

	assert.Eventually(t, func() bool { return sweeper.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

func TestJanitorBadSchedule(t *testing.T) {
	j := NewJanitor(&countingSweeper{}, "every now and then", nil)
	assert.Error(t, j.Start())
	assert.NotPanics(t, j.Stop)
}
