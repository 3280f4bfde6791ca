// Package livetest drives live components without a browser: it mounts a
// component on an in-memory socket, feeds it events and info messages the
// way the runtime does, and exposes the rendered HTML.
package livetest

import (
	"sync"

	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/protocol"
)

// Transport implements core.Transport and records every message.
type Transport struct {
	sent   []protocol.Message
	closed bool
	err    error
	mu     sync.Mutex
}

// NewTransport creates a connected recording transport.
func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) Send(msg protocol.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.closed {
		return core.ErrSocketClosed
	}
	t.sent = append(t.sent, msg)
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

// SetError makes every following Send fail with err.
func (t *Transport) SetError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
}

// Sent returns a copy of the recorded messages.
func (t *Transport) Sent() []protocol.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Message(nil), t.sent...)
}
