package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/protocol"
)

// WebSocket is a server-side live connection. Incoming frames are decoded
// onto Receive; Send queues outgoing messages for the write loop.
type WebSocket struct {
	conn   *websocket.Conn
	codec  protocol.Codec
	config Config
	logger logging.Logger

	sendCh    chan protocol.Message
	recvCh    chan protocol.Message
	closeCh   chan struct{}
	closeOnce sync.Once
	connected atomic.Bool
}

// Accept validates the origin, upgrades the request and starts the read,
// write and ping loops.
func Accept(w http.ResponseWriter, r *http.Request, cfg Config, codec protocol.Codec, logger logging.Logger) (*WebSocket, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	origin := r.Header.Get("Origin")
	if !isOriginAllowed(cfg, origin, r.Host) {
		http.Error(w, "Forbidden: Origin not allowed", http.StatusForbidden)
		return nil, ErrOriginNotAllowed
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: cfg.InsecureDevMode,
		OriginPatterns:     originPatterns(cfg.AllowedOrigins),
	})
	if err != nil {
		return nil, fmt.Errorf("accept websocket: %w", err)
	}
	conn.SetReadLimit(cfg.MaxMessageSize)

	t := &WebSocket{
		conn:    conn,
		codec:   codec,
		config:  cfg,
		logger:  logger,
		sendCh:  make(chan protocol.Message, cfg.SendBufferSize),
		recvCh:  make(chan protocol.Message, cfg.ReceiveBufferSize),
		closeCh: make(chan struct{}),
	}
	t.connected.Store(true)

	go t.readLoop()
	go t.writeLoop()
	go t.pingLoop()

	return t, nil
}

// Codec returns the negotiated codec.
func (t *WebSocket) Codec() protocol.Codec {
	return t.codec
}

// Receive returns incoming messages. It is closed when the connection ends.
func (t *WebSocket) Receive() <-chan protocol.Message {
	return t.recvCh
}

// Done is closed when the connection ends.
func (t *WebSocket) Done() <-chan struct{} {
	return t.closeCh
}

// IsConnected returns the connection status.
func (t *WebSocket) IsConnected() bool {
	return t.connected.Load()
}

// Send queues a message.
func (t *WebSocket) Send(msg protocol.Message) error {
	if !t.IsConnected() {
		return ErrNotConnected
	}

	timer := time.NewTimer(t.config.WriteTimeout)
	defer timer.Stop()

	select {
	case t.sendCh <- msg:
		return nil
	case <-t.closeCh:
		return ErrConnectionClosed
	case <-timer.C:
		return ErrSendTimeout
	}
}

// Close closes the connection. It is safe to call more than once.
func (t *WebSocket) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.connected.Store(false)
		close(t.closeCh)
		err = t.conn.Close(websocket.StatusNormalClosure, "closing")
	})
	return err
}

func (t *WebSocket) readLoop() {
	defer close(t.recvCh)
	defer t.Close()

	for {
		ctx, cancel := context.WithTimeout(context.Background(), t.config.ReadTimeout)
		_, data, err := t.conn.Read(ctx)
		cancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				t.logger.Debug("websocket read ended", logging.Err(err))
			}
			return
		}

		msg, err := t.codec.Decode(data)
		if err != nil {
			t.logger.Debug("dropping undecodable frame", logging.Err(err), logging.Int("bytes", len(data)))
			continue
		}

		select {
		case t.recvCh <- msg:
		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocket) writeLoop() {
	typ := websocket.MessageText
	if t.codec.Binary() {
		typ = websocket.MessageBinary
	}

	for {
		select {
		case msg := <-t.sendCh:
			data, err := t.codec.Encode(msg)
			if err != nil {
				t.logger.Warn("encode message failed", logging.String("event", msg.Event), logging.Err(err))
				continue
			}

			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err = t.conn.Write(ctx, typ, data)
			cancel()

			if err != nil {
				t.Close()
				return
			}

		case <-t.closeCh:
			return
		}
	}
}

func (t *WebSocket) pingLoop() {
	if t.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(t.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), t.config.WriteTimeout)
			err := t.conn.Ping(ctx)
			cancel()
			if err != nil {
				t.Close()
				return
			}
		case <-t.closeCh:
			return
		}
	}
}

// isOriginAllowed checks if the origin may open a live connection.
func isOriginAllowed(cfg Config, origin, requestHost string) bool {
	if cfg.InsecureDevMode || origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if originURL.Host == requestHost {
		return true
	}

	for _, allowed := range cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
		if allowedURL, err := url.Parse(allowed); err == nil && allowedURL.Host == originURL.Host {
			return true
		}
	}
	return false
}

func originPatterns(allowed []string) []string {
	patterns := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if u, err := url.Parse(a); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, a)
	}
	return patterns
}
