package input

import (
	"errors"
	"sync"
)

// fakeKeyboard records every call and can be told to fail on a given press.
type fakeKeyboard struct {
	mu       sync.Mutex
	calls    []string
	failOn   string // "press:<key>" or "release:<key>"
	typeErr  error
	closed   bool
	closeErr error
}

func (k *fakeKeyboard) record(call string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, call)
	if call == k.failOn {
		return errors.New("injected failure")
	}
	return nil
}

func (k *fakeKeyboard) Press(key Key) error   { return k.record("press:" + string(key)) }
func (k *fakeKeyboard) Release(key Key) error { return k.record("release:" + string(key)) }

func (k *fakeKeyboard) Type(text string) error {
	if err := k.record("type:" + text); err != nil {
		return err
	}
	return k.typeErr
}

func (k *fakeKeyboard) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	return k.closeErr
}

func (k *fakeKeyboard) Calls() []string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]string(nil), k.calls...)
}

// fakeBackend hands out fakeKeyboards and counts opens.
type fakeBackend struct {
	mu      sync.Mutex
	opened  []*fakeKeyboard
	openErr error
	prepare func(*fakeKeyboard)
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Open() (Keyboard, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.openErr != nil {
		return nil, b.openErr
	}
	kb := &fakeKeyboard{}
	if b.prepare != nil {
		b.prepare(kb)
	}
	b.opened = append(b.opened, kb)
	return kb, nil
}

func (b *fakeBackend) last() *fakeKeyboard {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.opened) == 0 {
		panic("no keyboard opened")
	}
	return b.opened[len(b.opened)-1]
}
