/*
Package store contains the durable data model and its PostgreSQL repository.

Users, conversations and messages outlive any realtime connection; the realtime
subsystem consumes this package through small create/read/update operations and
never reaches into the database directly.
*/
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no row matches. Callers distinguish
// missing records from infrastructure failures with errors.Is.
var ErrNotFound = errors.New("store: not found")

// Presence status values. The durable copy is what a status query falls back
// to when no live connection exists.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// User represents a registered account. Identity is established once at
// registration; the session ID is the shareable pairing code.
type User struct {
	ID         string     `json:"id"`
	Username   string     `json:"username"`
	SessionID  string     `json:"sessionId"`
	AvatarURL  string     `json:"avatar,omitempty"`
	Status     string     `json:"status"`
	LastActive *time.Time `json:"lastActive,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Presence is the durable slice of a user's realtime state.
type Presence struct {
	Status     string     `json:"status"`
	LastActive *time.Time `json:"lastActive,omitempty"`
}

// Conversation links exactly two participants. Participants are stored in
// lexical order so a pair maps to a single row.
type Conversation struct {
	ID            string    `json:"id"`
	ParticipantA  string    `json:"participantA"`
	ParticipantB  string    `json:"participantB"`
	LastMessageID *string   `json:"lastMessageId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// HasParticipant reports whether the given user is one of the two participants.
func (c Conversation) HasParticipant(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Peer returns the other participant's ID, or "" if userID is not a participant.
func (c Conversation) Peer(userID string) string {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB
	case c.ParticipantB:
		return c.ParticipantA
	}
	return ""
}

// ConversationSummary is the list-view projection: the conversation plus its
// latest message, the caller's unread count, and the other participant.
type ConversationSummary struct {
	Conversation Conversation `json:"conversation"`
	Peer         User         `json:"peer"`
	LastMessage  *Message     `json:"lastMessage,omitempty"`
	Unread       int          `json:"unread"`
}

// Message is a persisted chat message. Content is immutable once written; the
// ReadBy set only grows.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SenderID       string    `json:"sender"`
	SenderName     string    `json:"senderName"`
	Content        string    `json:"content"`
	ReplyTo        *string   `json:"replyTo,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	ReadBy         []string  `json:"readBy,omitempty"`
}
