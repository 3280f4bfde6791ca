// Package protocol defines the wire format between the live client and the
// server: a small envelope carrying an event name and a payload, encoded as
// JSON or MessagePack.
package protocol

// Well-known events.
const (
	EventJoin      = "phx_join"
	EventLeave     = "phx_leave"
	EventReply     = "phx_reply"
	EventHeartbeat = "heartbeat"
	EventRender    = "render"
)

// Reply statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Message represents a protocol message exchanged between client and server.
type Message struct {
	// Ref is a correlation ID for request/response matching
	Ref string `json:"ref,omitempty" msgpack:"ref,omitempty"`

	// Topic is the channel this message belongs to (e.g., "lv:socket-id")
	Topic string `json:"topic" msgpack:"topic"`

	// Event is the event name (e.g., "next", "change")
	Event string `json:"event" msgpack:"event"`

	// Payload contains the message data
	Payload map[string]any `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// String returns a payload value as a string, or "".
func (m Message) String(key string) string {
	if v, ok := m.Payload[key].(string); ok {
		return v
	}
	return ""
}

// IsHeartbeat returns true if this is a heartbeat message.
func (m Message) IsHeartbeat() bool {
	return m.Event == EventHeartbeat || m.Event == "phx_heartbeat"
}

// Reply builds a reply to the message identified by ref.
func Reply(ref, topic, status string, response map[string]any) Message {
	return Message{
		Ref:   ref,
		Topic: topic,
		Event: EventReply,
		Payload: map[string]any{
			"status":   status,
			"response": response,
		},
	}
}

// OkReply creates a successful reply message.
func OkReply(ref, topic string, response map[string]any) Message {
	return Reply(ref, topic, StatusOK, response)
}

// ErrorReply creates an error reply message.
func ErrorReply(ref, topic, reason string) Message {
	return Reply(ref, topic, StatusError, map[string]any{"reason": reason})
}

// Push creates a server-initiated message.
func Push(topic, event string, payload map[string]any) Message {
	return Message{Topic: topic, Event: event, Payload: payload}
}
