package live

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/protocol"
)

type counter struct {
	core.BaseComponent
	name  string
	count int
	note  string
}

func (c *counter) Name() string  { return "counter" }
func (c *counter) Title() string { return "Counter " + c.name }

func (c *counter) Mount(ctx context.Context, params core.Params, session core.Session) error {
	c.name = params.Get("name")
	if c.name == "missing" {
		return fmt.Errorf("%w: %s", ErrNotFound, c.name)
	}
	return nil
}

func (c *counter) HandleEvent(ctx context.Context, event string, payload map[string]any) error {
	switch event {
	case "inc":
		c.count++
	case "boom":
		panic("kaboom")
	case "later":
		socket := c.Socket()
		go socket.SendInfo("done")
	}
	return nil
}

func (c *counter) HandleInfo(ctx context.Context, msg any) error {
	c.note = fmt.Sprint(msg)
	return nil
}

func (c *counter) Render(ctx context.Context) core.Renderer {
	return core.RendererFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<p>%s:%d:%s</p>", c.name, c.count, c.note)
		return err
	})
}

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	t.Helper()
	h := NewHandler(func() core.Component { return &counter{} }, core.DefaultConfig())
	r := chi.NewRouter()
	r.Handle("/c/{name}", h)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, h
}

func TestHandler_StaticRender(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/c/tropa")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "<p>tropa:0:</p>")
	assert.Contains(t, string(body), "<title>Counter tropa</title>")
	assert.Contains(t, string(body), `src="/live.js"`)
}

func TestHandler_NotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/c/missing")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
	ctx  context.Context
	ref  int
}

func dial(t *testing.T, srv *httptest.Server, path string) *client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return &client{t: t, conn: conn, ctx: ctx}
}

func (c *client) send(event string, payload map[string]any) string {
	c.ref++
	ref := fmt.Sprint(c.ref)
	data, err := protocol.JSONCodec{}.Encode(protocol.Message{Ref: ref, Topic: "lv", Event: event, Payload: payload})
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.Write(c.ctx, websocket.MessageText, data))
	return ref
}

func (c *client) read() protocol.Message {
	_, data, err := c.conn.Read(c.ctx)
	require.NoError(c.t, err)
	msg, err := protocol.JSONCodec{}.Decode(data)
	require.NoError(c.t, err)
	return msg
}

func response(msg protocol.Message) map[string]any {
	r, _ := msg.Payload["response"].(map[string]any)
	return r
}

func TestHandler_LiveLoop(t *testing.T) {
	srv, h := newTestServer(t)
	c := dial(t, srv, "/c/tropa")

	ref := c.send(protocol.EventJoin, nil)
	reply := c.read()
	assert.Equal(t, ref, reply.Ref)
	assert.Equal(t, protocol.StatusOK, reply.Payload["status"])
	assert.Equal(t, "<p>tropa:0:</p>", response(reply)["html"])
	assert.Equal(t, 1, h.Sockets().Count())

	c.send("inc", nil)
	reply = c.read()
	assert.Equal(t, "<p>tropa:1:</p>", response(reply)["html"])

	c.send(protocol.EventHeartbeat, nil)
	reply = c.read()
	assert.Equal(t, protocol.StatusOK, reply.Payload["status"])

	c.send("later", nil)
	first := c.read()
	second := c.read()
	// The event reply and the info push may arrive in either order.
	events := []string{first.Event, second.Event}
	assert.ElementsMatch(t, []string{protocol.EventReply, protocol.EventRender}, events)
	push := first
	if second.Event == protocol.EventRender {
		push = second
	}
	assert.Equal(t, "<p>tropa:1:done</p>", push.Payload["html"])
}

func TestHandler_EventBeforeJoin(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, "/c/tropa")

	c.send("inc", nil)
	reply := c.read()
	assert.Equal(t, protocol.StatusError, reply.Payload["status"])
	assert.Equal(t, ErrNotJoined.Error(), response(reply)["reason"])
}

func TestHandler_PanicIsRecovered(t *testing.T) {
	srv, _ := newTestServer(t)
	c := dial(t, srv, "/c/tropa")
	c.send(protocol.EventJoin, nil)
	c.read()

	c.send("boom", nil)
	reply := c.read()
	assert.Equal(t, protocol.StatusError, reply.Payload["status"])
	assert.Equal(t, "internal error", response(reply)["reason"])

	c.send("inc", nil)
	reply = c.read()
	assert.Equal(t, "<p>tropa:1:</p>", response(reply)["html"], "connection survives a panic")
}

func TestHandler_Shutdown(t *testing.T) {
	srv, h := newTestServer(t)
	c := dial(t, srv, "/c/tropa")
	c.send(protocol.EventJoin, nil)
	c.read()

	require.NoError(t, h.Shutdown(context.Background()))
	_, _, err := c.conn.Read(c.ctx)
	assert.Error(t, err)
	assert.Eventually(t, func() bool { return h.Sockets().Count() == 0 }, time.Second, 10*time.Millisecond)
}
