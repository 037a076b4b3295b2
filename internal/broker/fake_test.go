package broker

import (
	"errors"
	"sync"
)

type frameRecord struct {
	mode Mode
	data string
}

// fakeConn records frames and closes, and can be told to fail writes.
type fakeConn struct {
	mu       sync.Mutex
	frames   []frameRecord
	closed   bool
	code     int
	reason   string
	writeErr error
	closeErr error
}

func (c *fakeConn) Write(mode Mode, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	if c.closed {
		return errors.New("write on closed conn")
	}
	c.frames = append(c.frames, frameRecord{mode: mode, data: string(data)})
	return nil
}

func (c *fakeConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		c.code = code
		c.reason = reason
	}
	return c.closeErr
}

func (c *fakeConn) Frames() []frameRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]frameRecord(nil), c.frames...)
}

func (c *fakeConn) Closed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.code, c.reason
}
