// Package server defines the named-event wire protocol spoken over each
// WebSocket connection. Every frame is a JSON envelope carrying an event name
// and an event-specific payload.
package server

import (
	"encoding/json"
	"fmt"
)

// Inbound event names accepted from clients.
const (
	EventJoin   = "join"
	EventSend   = "send"
	EventTyping = "typing"
	EventRead   = "read"
)

// Outbound event names emitted to clients.
const (
	EventIdentityConfirmed = "identity-confirmed"
	EventPresenceSnapshot  = "presence-snapshot"
	EventMessageCreated    = "message-created"
	EventTypingChanged     = "typing-changed"
	EventMessagesSnapshot  = "messages-snapshot"
	EventError             = "error"
)

// Envelope is the frame format for both directions of the live channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinPayload announces a participant. ID is optional; when omitted the
// connection's transport-assigned id is used.
type JoinPayload struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

// SendPayload submits a chat message. RoomID defaults to "general".
type SendPayload struct {
	Text     string `json:"text"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId,omitempty"`
}

// TypingPayload reports a participant's typing state. A new payload for the
// same userId replaces any prior one.
type TypingPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// ReadPayload marks every message in the room not authored by UserID as read.
type ReadPayload struct {
	UserID string `json:"userId"`
	RoomID string `json:"roomId,omitempty"`
}

// ErrorPayload is unicast to a sender whose event could not be applied.
type ErrorPayload struct {
	Message string `json:"message"`
}

func encodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", event, err)
	}
	return frame, nil
}
