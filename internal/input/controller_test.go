package input

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

func newTestController(b Backend) *Controller {
	return NewController(b, Options{Sleep: func(time.Duration) {}})
}

func TestController_StartStop(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)

	require.NoError(t, c.Start("Client Control Panel"))
	owner, running := c.Owner()
	assert.True(t, running)
	assert.Equal(t, "Client Control Panel", owner)

	c.Stop()
	_, running = c.Owner()
	assert.False(t, running)
	assert.True(t, backend.last().closed)

	assert.NotPanics(t, c.Stop, "stop is idempotent")
}

// TestController_StartTwice checks the second start fails and keeps the
// first owner.
func TestController_StartTwice(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)

	require.NoError(t, c.Start("first"))
	err := c.Start("second")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)
	assert.Equal(t, hostErrors.CodeInputAlreadyRunning, hostErrors.GetCode(err))
	assert.Contains(t, err.Error(), "first")

	owner, _ := c.Owner()
	assert.Equal(t, "first", owner)
	assert.Len(t, backend.opened, 1, "failed start must not open a handle")
}

func TestController_ConcurrentStart(t *testing.T) {
	c := newTestController(&fakeBackend{})

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.Start("racer") == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestController_StartBackendFailure(t *testing.T) {
	c := newTestController(&fakeBackend{openErr: errors.New("no display")})

	err := c.Start("x")
	require.Error(t, err)
	assert.Equal(t, hostErrors.CodeInputBackendFailed, hostErrors.GetCode(err))

	_, running := c.Owner()
	assert.False(t, running)
}

func TestController_PressWithoutStart(t *testing.T) {
	c := newTestController(&fakeBackend{})
	assert.ErrorIs(t, c.Press(KeyUp), ErrNoActiveController)
	assert.ErrorIs(t, c.TypeText("hi"), ErrNoActiveController)
}

func TestController_PressUnknownKey(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	err := c.Press("F13")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Contains(t, err.Error(), "F13")
	assert.Empty(t, backend.last().Calls())
}

func TestController_PressSingleAndCombination(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	require.NoError(t, c.Press(KeyVolumeUp))
	require.NoError(t, c.Press(KeyCopy))

	assert.Equal(t, []string{
		"press:XF86AudioRaiseVolume", "release:XF86AudioRaiseVolume",
		"press:ctrl", "press:c", "release:c", "release:ctrl",
	}, backend.last().Calls())
}

func TestController_PressFailureStillReleasesHolds(t *testing.T) {
	backend := &fakeBackend{prepare: func(kb *fakeKeyboard) { kb.failOn = "press:Tab" }}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	err := c.Press(KeyAltTab)
	require.Error(t, err)
	assert.Equal(t, hostErrors.CodeInputBackendFailed, hostErrors.GetCode(err))
	assert.Equal(t, []string{"press:alt", "press:Tab", "release:alt"}, backend.last().Calls())
}

func TestController_EveryKeyIsMapped(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	for _, name := range KnownKeys() {
		assert.NoError(t, c.Press(name), "key %s", name)
	}
	assert.Len(t, KnownKeys(), 14)
}

func TestController_TypeText(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	require.NoError(t, c.TypeText("hello"))
	assert.Equal(t, []string{"type:hello"}, backend.last().Calls())
}

func TestController_TypeTextUnmappableIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	backend := &fakeBackend{prepare: func(kb *fakeKeyboard) {
		kb.typeErr = &UnmappableError{Chars: []rune{'\x07'}}
	}}
	c := NewController(backend, Options{Sleep: func(time.Duration) {}, Logger: logger})
	require.NoError(t, c.Start("x"))

	assert.NoError(t, c.TypeText("a\x07b"))
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestController_TypeTextBackendError(t *testing.T) {
	backend := &fakeBackend{prepare: func(kb *fakeKeyboard) { kb.typeErr = errors.New("x server gone") }}
	c := newTestController(backend)
	require.NoError(t, c.Start("x"))

	err := c.TypeText("hello")
	assert.Equal(t, hostErrors.CodeInputBackendFailed, hostErrors.GetCode(err))
}

// TestController_StopDuringPress checks that Stop is not blocked by an
// in-flight combination and that the stale press completes without panicking.
func TestController_StopDuringPress(t *testing.T) {
	inDwell := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	sleep := func(time.Duration) {
		once.Do(func() {
			close(inDwell)
			<-resume
		})
	}

	backend := &fakeBackend{}
	c := NewController(backend, Options{Sleep: sleep})
	require.NoError(t, c.Start("x"))
	kb := backend.last()

	done := make(chan error, 1)
	go func() { done <- c.Press(KeyCopy) }()

	<-inDwell
	c.Stop()
	_, running := c.Owner()
	assert.False(t, running, "stop completes while the press is mid-dwell")

	close(resume)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"press:ctrl", "press:c", "release:c", "release:ctrl"}, kb.Calls())

	require.NoError(t, c.Start("y"), "controller can be reclaimed")
}
