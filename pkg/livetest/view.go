package livetest

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/gabrielmiguelok/tropa/pkg/core"
)

// View is a mounted component under test.
type View struct {
	t         *testing.T
	comp      core.Component
	socket    *core.Socket
	transport *Transport
	params    core.Params
	session   core.Session
	ctx       context.Context
	html      string
}

// Option configures Mount.
type Option func(*View)

// WithParams sets mount parameters.
func WithParams(params core.Params) Option {
	return func(v *View) { v.params = params }
}

// WithSession sets session data.
func WithSession(session core.Session) Option {
	return func(v *View) { v.session = session }
}

// Mount attaches comp to an in-memory socket, mounts and renders it. The
// component is terminated when the test ends.
func Mount(t *testing.T, comp core.Component, opts ...Option) *View {
	t.Helper()

	v := &View{
		t:         t,
		comp:      comp,
		transport: NewTransport(),
		params:    core.Params{},
		session:   core.Session{},
	}
	for _, opt := range opts {
		opt(v)
	}

	v.socket = core.NewSocket("test-"+uuid.NewString()[:8], v.transport, 16)
	if setter, ok := comp.(core.SocketSetter); ok {
		setter.SetSocket(v.socket)
	}
	v.ctx = core.BuildContext(context.Background(), v.socket, v.session, v.params)

	if err := comp.Mount(v.ctx, v.params, v.session); err != nil {
		t.Fatalf("Mount failed: %v", err)
	}
	t.Cleanup(func() {
		comp.Terminate(context.Background(), core.TerminateNormal)
		v.socket.Close()
	})

	v.render()
	return v
}

// Event sends an event and re-renders. The component's error is returned.
func (v *View) Event(event string, payload map[string]any) error {
	v.t.Helper()
	if payload == nil {
		payload = map[string]any{}
	}
	err := v.comp.HandleEvent(v.ctx, event, payload)
	if err == nil {
		v.render()
	}
	return err
}

// MustEvent is Event failing the test on error.
func (v *View) MustEvent(event string, payload map[string]any) *View {
	v.t.Helper()
	if err := v.Event(event, payload); err != nil {
		v.t.Fatalf("event %q failed: %v", event, err)
	}
	return v
}

// AwaitInfo waits for the next info message queued on the socket, hands it
// to HandleInfo and re-renders. It fails the test after timeout.
func (v *View) AwaitInfo(timeout time.Duration) any {
	v.t.Helper()
	select {
	case msg := <-v.socket.Info():
		if err := v.comp.HandleInfo(v.ctx, msg); err != nil {
			v.t.Fatalf("HandleInfo failed: %v", err)
		}
		v.render()
		return msg
	case <-time.After(timeout):
		v.t.Fatalf("no info message within %s", timeout)
		return nil
	}
}

// HTML returns the last render.
func (v *View) HTML() string {
	return v.html
}

// Socket returns the in-memory socket.
func (v *View) Socket() *core.Socket {
	return v.socket
}

// Transport returns the recording transport.
func (v *View) Transport() *Transport {
	return v.transport
}

func (v *View) render() {
	v.t.Helper()
	r := v.comp.Render(v.ctx)
	if r == nil {
		v.t.Fatal("Render returned nil")
	}
	var buf bytes.Buffer
	if err := r.Render(v.ctx, &buf); err != nil {
		v.t.Fatalf("Render failed: %v", err)
	}
	v.html = buf.String()
}
