// Package live serves core.Components over HTTP: a plain GET renders the
// mounted component inside a page layout, and a WebSocket upgrade on the
// same URL runs the component's event loop.
package live

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/metrics"
	"github.com/gabrielmiguelok/tropa/pkg/pool"
	"github.com/gabrielmiguelok/tropa/pkg/protocol"
	"github.com/gabrielmiguelok/tropa/pkg/transport"
)

// Handler errors.
var (
	ErrNotFound       = errors.New("live: not found")
	ErrNilRenderer    = errors.New("live: component returned nil renderer")
	ErrComponentPanic = errors.New("live: component panicked")
	ErrNotJoined      = errors.New("live: event before join")
	ErrTooManyConns   = errors.New("live: too many connections")
)

// Page is what the layout receives for the initial HTTP render.
type Page struct {
	Title  string
	Body   template.HTML
	Path   string
	Codec  string
	Script string
}

// Layout writes a full HTML document around a rendered component.
type Layout func(w io.Writer, page Page) error

// Titled is implemented by components that name their page.
type Titled interface {
	Title() string
}

// Handler serves one component type. Every request and every connection
// gets a fresh instance from the factory.
type Handler struct {
	factory  func() core.Component
	cfg      core.Config
	layout   Layout
	script   string
	session  func(*http.Request) core.Session
	logger   logging.Logger
	metrics  *metrics.Metrics
	sockets  *core.SocketManager
	shutdown chan struct{}
	once     sync.Once
}

// Option configures a Handler.
type Option func(*Handler)

// WithLayout replaces the default page layout.
func WithLayout(l Layout) Option {
	return func(h *Handler) { h.layout = l }
}

// WithScript sets the URL of the client script referenced by the layout.
func WithScript(src string) Option {
	return func(h *Handler) { h.script = src }
}

// WithSessionFunc extracts per-client session data from the request.
func WithSessionFunc(fn func(*http.Request) core.Session) Option {
	return func(h *Handler) { h.session = fn }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

// WithSocketManager shares a socket manager between handlers.
func WithSocketManager(sm *core.SocketManager) Option {
	return func(h *Handler) { h.sockets = sm }
}

// NewHandler creates a handler for components built by factory.
func NewHandler(factory func() core.Component, cfg core.Config, opts ...Option) *Handler {
	h := &Handler{
		factory:  factory,
		cfg:      cfg,
		layout:   DefaultLayout,
		script:   "/live.js",
		session:  defaultSession,
		logger:   logging.NopLogger{},
		sockets:  core.NewSocketManager(),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Sockets returns the socket manager.
func (h *Handler) Sockets() *core.SocketManager {
	return h.sockets
}

// Shutdown terminates every live connection.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.once.Do(func() { close(h.shutdown) })
	return h.sockets.Shutdown(ctx)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if isWebSocketRequest(r) {
		h.serveLive(w, r)
		return
	}
	h.serveStatic(w, r)
}

func (h *Handler) serveStatic(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())
	comp := h.factory()
	params := extractParams(r)
	session := h.session(r)

	ctx, cancel := context.WithTimeout(core.BuildContext(r.Context(), nil, session, params), h.cfg.Timeouts.ComponentMount)
	defer cancel()
	defer comp.Terminate(context.Background(), core.TerminateNormal)

	if err := safeCall(func() error { return comp.Mount(ctx, params, session) }); err != nil {
		h.httpError(w, logger, err)
		return
	}

	html, err := renderHTML(ctx, comp)
	if err != nil {
		h.httpError(w, logger, err)
		return
	}

	page := Page{
		Body:   template.HTML(html),
		Path:   r.URL.Path,
		Codec:  h.cfg.Codec,
		Script: h.script,
	}
	if t, ok := comp.(Titled); ok {
		page.Title = t.Title()
	}

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)
	if err := h.layout(buf, page); err != nil {
		h.httpError(w, logger, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(buf.Bytes())
}

func (h *Handler) httpError(w http.ResponseWriter, logger logging.Logger, err error) {
	if errors.Is(err, ErrNotFound) {
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}
	logger.Error("live render failed", logging.Err(err))
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

func (h *Handler) serveLive(w http.ResponseWriter, r *http.Request) {
	logger := logging.L(r.Context())

	if h.cfg.MaxConnections > 0 && h.sockets.Count() >= h.cfg.MaxConnections {
		logger.Warn("rejecting live connection", logging.Err(ErrTooManyConns))
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	name := r.URL.Query().Get("codec")
	if name == "" {
		name = h.cfg.Codec
	}
	codec, err := protocol.CodecByName(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ws, err := transport.Accept(w, r, transport.ConfigFrom(h.cfg), codec, logger)
	if err != nil {
		logger.Warn("websocket upgrade failed", logging.Err(err))
		return
	}

	socket := core.NewSocket(uuid.NewString(), ws, h.cfg.InfoQueueSize)
	if err := h.sockets.Add(socket); err != nil {
		ws.Close()
		return
	}
	h.metrics.ConnectionOpened()

	c := &conn{
		h:       h,
		ws:      ws,
		socket:  socket,
		comp:    h.factory(),
		params:  extractParams(r),
		session: h.session(r),
		logger:  logger.With(logging.String("socket", socket.ID())),
	}
	if s, ok := c.comp.(core.SocketSetter); ok {
		s.SetSocket(socket)
	}

	// The connection outlives the upgrade request's context.
	c.run(context.Background())

	h.sockets.Remove(socket.ID())
	socket.Close()
	h.metrics.ConnectionClosed()
}

// DefaultLayout is a minimal HTML document.
func DefaultLayout(w io.Writer, page Page) error {
	return defaultLayout.Execute(w, page)
}

var defaultLayout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
</head>
<body>
<div id="live-root" data-live-path="{{.Path}}" data-live-codec="{{.Codec}}">{{.Body}}</div>
<script src="{{.Script}}" defer></script>
</body>
</html>
`))

func renderHTML(ctx context.Context, comp core.Component) (string, error) {
	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	err := safeCall(func() error {
		r := comp.Render(ctx)
		if r == nil {
			return ErrNilRenderer
		}
		return r.Render(ctx, buf)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// safeCall runs a component callback, turning a panic into an error.
func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrComponentPanic, r)
		}
	}()
	return fn()
}

func defaultSession(r *http.Request) core.Session {
	session := make(core.Session)
	for _, cookie := range r.Cookies() {
		session["cookie:"+cookie.Name] = cookie.Value
	}
	return session
}

// extractParams merges chi URL parameters and query strings.
func extractParams(r *http.Request) core.Params {
	params := make(core.Params)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			params[key] = values[0]
		}
	}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key != "*" {
				params[key] = rctx.URLParams.Values[i]
			}
		}
	}
	return params
}

func isWebSocketRequest(r *http.Request) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Upgrade")), "websocket")
}

func isPanic(err error) bool {
	return errors.Is(err, ErrComponentPanic)
}
