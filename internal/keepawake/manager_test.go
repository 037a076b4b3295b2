package keepawake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hostErrors "github.com/remotekeys/host/internal/errors"
)

type fakeAdapter struct {
	mu       sync.Mutex
	acquired int
	acquire  func(context.Context) (Handle, error)
}

func (a *fakeAdapter) Acquire(ctx context.Context) (Handle, error) {
	a.mu.Lock()
	a.acquired++
	a.mu.Unlock()
	return a.acquire(ctx)
}

func (a *fakeAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.acquired
}

type fakeHandle struct {
	done     chan struct{}
	once     sync.Once
	err      error
	released chan struct{}
}

func newFakeHandle() *fakeHandle {
	return &fakeHandle{done: make(chan struct{}), released: make(chan struct{}, 1)}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Err() error            { return h.err }
func (h *fakeHandle) exit()                 { h.once.Do(func() { close(h.done) }) }

func (h *fakeHandle) Release(context.Context) error {
	h.exit()
	select {
	case h.released <- struct{}{}:
	default:
	}
	return nil
}

func handing(h Handle) *fakeAdapter {
	return &fakeAdapter{acquire: func(context.Context) (Handle, error) { return h, nil }}
}

func TestManager_StartsOff(t *testing.T) {
	m := NewManager(handing(newFakeHandle()), Options{})
	st := m.Snapshot()
	assert.Equal(t, StateOff, st.State)
	assert.Empty(t, st.Holder)
}

func TestManager_HoldRelease(t *testing.T) {
	h := newFakeHandle()
	m := NewManager(handing(h), Options{})

	st := m.Hold(context.Background(), "panel")
	assert.Equal(t, StateOn, st.State)
	assert.Equal(t, "panel", st.Holder)

	st = m.Release(context.Background())
	assert.Equal(t, StateOff, st.State)
	assert.Empty(t, st.Holder)
	assert.Len(t, h.released, 1)
}

func TestManager_HoldIsIdempotent(t *testing.T) {
	a := handing(newFakeHandle())
	m := NewManager(a, Options{})

	first := m.Hold(context.Background(), "panel")
	second := m.Hold(context.Background(), "panel")
	assert.Equal(t, 1, a.count())
	assert.Equal(t, first.Revision, second.Revision)
}

func TestManager_AcquireFailureDegrades(t *testing.T) {
	m := NewManager(&fakeAdapter{acquire: func(context.Context) (Handle, error) {
		return nil, errors.New("boom")
	}}, Options{})

	st := m.Hold(context.Background(), "panel")
	assert.Equal(t, StateDegraded, st.State)
	assert.Equal(t, DegradedReasonAcquireFailed, st.Reason)
	assert.Equal(t, "boom", st.LastError)
}

func TestManager_UnsupportedDegrades(t *testing.T) {
	m := NewManager(&fakeAdapter{acquire: func(context.Context) (Handle, error) {
		return nil, hostErrors.New(hostErrors.CodeKeepAwakeUnsupported, "nope")
	}}, Options{})

	st := m.Hold(context.Background(), "panel")
	assert.Equal(t, DegradedReasonUnsupported, st.Reason)
}

func TestManager_InhibitorExitDegrades(t *testing.T) {
	h := newFakeHandle()
	h.err = errors.New("killed")
	m := NewManager(handing(h), Options{})
	m.Hold(context.Background(), "panel")

	h.exit()
	require.Eventually(t, func() bool {
		return m.Snapshot().State == StateDegraded
	}, time.Second, 5*time.Millisecond)

	st := m.Snapshot()
	assert.Equal(t, DegradedReasonIntegrityLost, st.Reason)
	assert.Equal(t, "killed", st.LastError)
}

func TestManager_HoldReplacesDeadInhibitor(t *testing.T) {
	first := newFakeHandle()
	second := newFakeHandle()
	handles := []*fakeHandle{first, second}
	a := &fakeAdapter{acquire: func(context.Context) (Handle, error) {
		h := handles[0]
		handles = handles[1:]
		return h, nil
	}}
	m := NewManager(a, Options{})
	m.Hold(context.Background(), "panel")

	first.exit()
	st := m.Hold(context.Background(), "panel")
	assert.Equal(t, StateOn, st.State)
	assert.Equal(t, 2, a.count())
}

func TestManager_CloseReleasesAndSticks(t *testing.T) {
	h := newFakeHandle()
	a := handing(h)
	m := NewManager(a, Options{})
	m.Hold(context.Background(), "panel")

	require.NoError(t, m.Close(context.Background()))
	assert.Len(t, h.released, 1)
	assert.Equal(t, StateOff, m.Snapshot().State)

	m.Hold(context.Background(), "panel")
	assert.Equal(t, 1, a.count())
	assert.NoError(t, m.Close(context.Background()))
}

func TestManager_RevisionAdvances(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(handing(newFakeHandle()), Options{Now: func() time.Time { return now }})

	before := m.Snapshot().Revision
	m.Hold(context.Background(), "panel")
	st := m.Snapshot()
	assert.Greater(t, st.Revision, before)
	assert.Equal(t, now, st.UpdatedAt)
}

func TestManager_ReleaseWhileAcquiring(t *testing.T) {
	h := newFakeHandle()
	entered := make(chan struct{})
	proceed := make(chan struct{})
	m := NewManager(&fakeAdapter{acquire: func(context.Context) (Handle, error) {
		close(entered)
		<-proceed
		return h, nil
	}}, Options{})

	done := make(chan Status)
	go func() { done <- m.Hold(context.Background(), "panel") }()
	<-entered
	m.Release(context.Background())
	close(proceed)

	st := <-done
	assert.Equal(t, StateOff, st.State)
	require.Eventually(t, func() bool { return len(h.released) == 1 }, time.Second, 5*time.Millisecond)
}

func TestManager_ReleaseWithoutHoldIsNoop(t *testing.T) {
	m := NewManager(handing(newFakeHandle()), Options{})
	st := m.Release(context.Background())
	assert.Equal(t, StateOff, st.State)
}
