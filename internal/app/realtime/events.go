/*
Package realtime contains the core logic for the live chat channel: connection
tracking, presence, conversation room subscriptions and message delivery.

This file defines the wire protocol of the websocket channel. Every frame is an
Envelope with a type tag and a typed payload; payloads are validated at the
boundary before any business logic runs.
*/
package realtime

import (
	"encoding/json"
	"fmt"
	"time"

	"pairchat/internal/app/store"
)

// Client → server event types.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
	EventTyping            = "typing"
	EventMarkRead          = "mark_read"
	EventGetUserStatus     = "get_user_status"
	EventUpdateStatus      = "update_status"
)

// Server → client event types.
const (
	EventNewMessage       = "new_message"
	EventMessageAck       = "message_ack"
	EventMessageError     = "message_error"
	EventUserStatusChange = "user_status_change"
	EventUserStatus       = "user_status"
	EventUserTyping       = "user_typing"
	EventMessageRead      = "message_read"
	EventError            = "error"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Identity is the authenticated user bound to a connection. Supplied by the
// handshake; never taken from event payloads.
type Identity struct {
	ID       string
	Username string
}

// --- Inbound payloads ---

// ConversationRef addresses a single conversation (join/leave).
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// SendMessagePayload is a message submission. TempID is the client's
// correlation token for reconciling its optimistic copy.
type SendMessagePayload struct {
	ConversationID string  `json:"conversationId"`
	Content        string  `json:"content"`
	ReplyTo        *string `json:"replyTo,omitempty"`
	TempID         string  `json:"tempId,omitempty"`
}

// TypingPayload is the ephemeral typing signal. Never persisted.
type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

// MarkReadPayload appends the sender to a message's read set.
type MarkReadPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
}

// StatusQueryPayload is an on-demand presence query.
type StatusQueryPayload struct {
	UserID string `json:"userId"`
}

// UpdateStatusPayload is an explicit presence override (e.g. away on tab hide).
type UpdateStatusPayload struct {
	Status string `json:"status"`
}

// --- Outbound payloads ---

// NewMessagePayload fans out a persisted, fully populated message.
type NewMessagePayload struct {
	ConversationID string        `json:"conversationId"`
	Message        store.Message `json:"message"`
}

// MessageAckPayload confirms a submission back to its sender.
type MessageAckPayload struct {
	TempID  string        `json:"tempId"`
	Message store.Message `json:"message"`
}

// MessageErrorPayload signals a failed submission. TempID lets the client mark
// its optimistic message failed instead of silently dropping it.
type MessageErrorPayload struct {
	Code   int    `json:"code"`
	Error  string `json:"error"`
	TempID string `json:"tempId,omitempty"`
}

// StatusChangePayload is the global presence broadcast and the response shape
// of an on-demand query.
type StatusChangePayload struct {
	UserID     string     `json:"userId"`
	Status     string     `json:"status"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// TypingRelayPayload is the room-scoped typing relay.
type TypingRelayPayload struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Username       string `json:"username"`
	IsTyping       bool   `json:"isTyping"`
}

// ReadRelayPayload is the room-scoped read-receipt relay.
type ReadRelayPayload struct {
	ConversationID string `json:"conversationId"`
	MessageID      string `json:"messageId"`
	UserID         string `json:"userId"`
}

// ErrorPayload reports a per-connection failure that is not a message
// submission (e.g. a rejected join), so clients can distinguish the two.
type ErrorPayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// EncodeEvent marshals an outbound event envelope once, so fan-out reuses the
// same bytes for every subscriber.
func EncodeEvent(eventType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return json.Marshal(Envelope{Type: eventType, Payload: raw})
}
