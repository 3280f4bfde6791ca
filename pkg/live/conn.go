package live

import (
	"context"

	"github.com/gabrielmiguelok/tropa/pkg/core"
	"github.com/gabrielmiguelok/tropa/pkg/logging"
	"github.com/gabrielmiguelok/tropa/pkg/protocol"
	"github.com/gabrielmiguelok/tropa/pkg/transport"
)

// conn runs the event loop of one live connection. Component callbacks are
// only ever invoked from run, so components need no locking of their own
// for state touched by callbacks.
type conn struct {
	h       *Handler
	ws      *transport.WebSocket
	socket  *core.Socket
	comp    core.Component
	params  core.Params
	session core.Session
	logger  logging.Logger
	mounted bool
	base    context.Context
}

func (c *conn) run(ctx context.Context) {
	c.base = core.BuildContext(ctx, c.socket, c.session, c.params)
	reason := core.TerminateNormal

	defer func() {
		if c.mounted {
			if err := safeCall(func() error { return c.comp.Terminate(c.base, reason) }); err != nil {
				c.logger.Warn("component terminate failed", logging.Err(err))
			}
		}
	}()

	for {
		select {
		case msg, ok := <-c.ws.Receive():
			if !ok {
				return
			}
			c.socket.UpdateActivity()

			switch {
			case msg.IsHeartbeat():
				c.reply(protocol.OkReply(msg.Ref, msg.Topic, nil))
			case msg.Event == protocol.EventJoin:
				c.join(msg)
			case msg.Event == protocol.EventLeave:
				c.reply(protocol.OkReply(msg.Ref, msg.Topic, nil))
				c.ws.Close()
				return
			default:
				c.event(msg)
			}

		case info := <-c.socket.Info():
			if c.mounted {
				c.info(info)
			}

		case <-c.h.shutdown:
			reason = core.TerminateShutdown
			c.ws.Close()
			return
		}
	}
}

func (c *conn) join(msg protocol.Message) {
	if !c.mounted {
		if p, ok := msg.Payload["params"].(map[string]any); ok {
			for k, v := range p {
				if s, ok := v.(string); ok {
					if _, exists := c.params[k]; !exists {
						c.params[k] = s
					}
				}
			}
		}

		ctx, cancel := context.WithTimeout(c.base, c.h.cfg.Timeouts.ComponentMount)
		err := safeCall(func() error { return c.comp.Mount(ctx, c.params, c.session) })
		cancel()
		if err != nil {
			c.fail(msg, "mount", err)
			return
		}
		c.mounted = true
		c.logger.Debug("live component joined", logging.String("component", c.comp.Name()))
	}

	html, err := c.render()
	if err != nil {
		c.fail(msg, "render", err)
		return
	}
	c.reply(protocol.OkReply(msg.Ref, c.socket.Topic(), map[string]any{
		"html":  html,
		"topic": c.socket.Topic(),
	}))
}

func (c *conn) event(msg protocol.Message) {
	if !c.mounted {
		c.reply(protocol.ErrorReply(msg.Ref, msg.Topic, ErrNotJoined.Error()))
		return
	}
	c.h.metrics.Event(msg.Event)

	payload := msg.Payload
	if payload == nil {
		payload = make(map[string]any)
	}

	ctx, cancel := context.WithTimeout(c.base, c.h.cfg.Timeouts.ComponentEvent)
	err := safeCall(func() error { return c.comp.HandleEvent(ctx, msg.Event, payload) })
	cancel()
	if err != nil {
		c.fail(msg, "event", err)
		return
	}

	html, err := c.render()
	if err != nil {
		c.fail(msg, "render", err)
		return
	}
	c.reply(protocol.OkReply(msg.Ref, msg.Topic, map[string]any{"html": html}))
}

func (c *conn) info(info any) {
	ctx, cancel := context.WithTimeout(c.base, c.h.cfg.Timeouts.ComponentEvent)
	err := safeCall(func() error { return c.comp.HandleInfo(ctx, info) })
	cancel()
	if err != nil {
		c.logger.Error("component info failed", logging.Err(err))
		if isPanic(err) {
			c.h.metrics.Panic()
		}
		return
	}

	html, err := c.render()
	if err != nil {
		c.logger.Error("component render failed", logging.Err(err))
		return
	}
	if err := c.socket.Push(protocol.EventRender, map[string]any{"html": html}); err != nil {
		c.logger.Debug("push render failed", logging.Err(err))
	}
}

func (c *conn) render() (string, error) {
	ctx, cancel := context.WithTimeout(c.base, c.h.cfg.Timeouts.ComponentEvent)
	defer cancel()
	return renderHTML(ctx, c.comp)
}

// fail reports a callback error to the client. The connection survives.
func (c *conn) fail(msg protocol.Message, stage string, err error) {
	if isPanic(err) {
		c.h.metrics.Panic()
		c.logger.Error("component panic recovered", logging.String("stage", stage), logging.String("event", msg.Event), logging.Err(err))
	} else {
		c.logger.Warn("component callback failed", logging.String("stage", stage), logging.String("event", msg.Event), logging.Err(err))
	}
	reason := err.Error()
	if isPanic(err) {
		reason = "internal error"
	}
	c.reply(protocol.ErrorReply(msg.Ref, msg.Topic, reason))
}

func (c *conn) reply(msg protocol.Message) {
	if err := c.socket.Send(msg); err != nil {
		c.logger.Debug("send reply failed", logging.Err(err))
	}
}
