package cluster

import (
	"bytes"
	"encoding/gob"
	"time"
)

// defaultTimeout bounds a single in-memory call. Short, because the
// consensus layers count a timed-out call as a rejection and move on.
const defaultTimeout = 100 * time.Millisecond

// channel is the shared machinery of the in-memory RPC channels: a
// registry, the calling endpoint's own id, and a per-call timeout.
type channel struct {
	reg     *Registry
	from    int
	timeout time.Duration
}

// endpoints resolves both ends of a call. A disconnected caller is as
// unreachable as a disconnected target.
func (c *channel) endpoints(to int) (interface{}, error) {
	if c.reg.Disconnected(c.from) {
		return nil, ErrUnreachable
	}
	h, ok := c.reg.Lookup(to)
	if !ok {
		return nil, ErrUnreachable
	}
	return h, nil
}

// invoke runs call in its own goroutine and waits for it or the
// timeout, whichever comes first. A timed-out handler keeps running
// in the background; its side effects simulate a delayed message,
// which the protocols must tolerate anyway.
func (c *channel) invoke(call func() error) error {
	timeout := c.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	done := make(chan error, 1)
	go func() {
		done <- call()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return ErrTimeout
	}
}

// clone deep-copies src into dst through gob, so no memory is ever
// shared across the simulated wire. Entries replicate by value.
func clone(dst, src interface{}) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(src); err != nil {
		return err
	}
	return gob.NewDecoder(&buf).Decode(dst)
}
