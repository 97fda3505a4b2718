// Package wsproto defines the wire envelope exchanged over the Subscription
// Manager's WebSocket transport: a single {type, payload, timestamp} shape
// for both directions, discriminated by type.
package wsproto

import (
	"encoding/json"
	"time"
)

// ClientMessageType names a message a client sends to the server.
type ClientMessageType string

const (
	ClientSubscribeAgent       ClientMessageType = "subscribe:agent"
	ClientUnsubscribeAgent     ClientMessageType = "unsubscribe:agent"
	ClientSubscribeWorkspace   ClientMessageType = "subscribe:workspace"
	ClientUnsubscribeWorkspace ClientMessageType = "unsubscribe:workspace"
	ClientPing                 ClientMessageType = "ping"
)

// ServerMessageType names a message the server sends to a client.
const (
	ServerSubscribed   = "subscribed"
	ServerUnsubscribed = "unsubscribed"
	ServerPong         = "pong"
	ServerError        = "error"
)

// Error codes used in server "error" replies.
const (
	ErrInvalidJSON        = "INVALID_JSON"
	ErrInvalidMessage     = "INVALID_MESSAGE"
	ErrUnknownMessageType = "UNKNOWN_MESSAGE_TYPE"
)

// Envelope is the wire shape in both directions.
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AgentSubscribePayload is the payload of subscribe:agent / unsubscribe:agent.
type AgentSubscribePayload struct {
	AgentID string `json:"agentId"`
}

// WorkspaceSubscribePayload is the payload of subscribe:workspace / unsubscribe:workspace.
type WorkspaceSubscribePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

// ErrorPayload is the payload of a server "error" reply.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongPayload is the payload of a server "pong" reply.
type PongPayload struct {
	Timestamp time.Time `json:"timestamp"`
}

// New builds an Envelope with payload marshaled to JSON. Marshal errors are
// swallowed into an empty payload since every payload type here is a plain
// struct that cannot fail to marshal.
func New(msgType string, payload any) Envelope {
	var raw json.RawMessage
	if payload != nil {
		raw, _ = json.Marshal(payload)
	}
	return Envelope{Type: msgType, Payload: raw, Timestamp: time.Now().UTC()}
}

// WithID sets the envelope's id, echoing a client-supplied one in replies.
func (e Envelope) WithID(id string) Envelope {
	e.ID = id
	return e
}

// Encode marshals the envelope to bytes.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw bytes into an Envelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	err := json.Unmarshal(data, &e)
	return e, err
}

// ParsePayload unmarshals the envelope's payload into v.
func (e Envelope) ParsePayload(v any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(e.Payload, v)
}
