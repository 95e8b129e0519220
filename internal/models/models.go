package models

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is an account that can hold WebSocket sessions.
//
// PasswordHash never leaves the server: it is tagged "-" so handlers can
// return a *User directly.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Room is a chat room. Inactive rooms are hidden from listings and refuse
// new WebSocket connections.
type Room struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// Message is either a room broadcast (RoomID set) or a direct message
// (RecipientID set). Never both, never neither.
//
// IsRead only carries meaning for direct messages. Room messages are
// stored read.
type Message struct {
	ID          int64      `json:"id"`
	AuthorID    uuid.UUID  `json:"author_id"`
	Content     string     `json:"content"`
	RoomID      *uuid.UUID `json:"room_id,omitempty"`
	RecipientID *uuid.UUID `json:"recipient_id,omitempty"`
	IsRead      bool       `json:"is_read"`
	CreatedAt   time.Time  `json:"created_at"`
}

// IsDirect reports whether m is addressed to a single recipient.
func (m *Message) IsDirect() bool {
	return m.RecipientID != nil
}

var (
	ErrInvalidTarget = errors.New("message must target exactly one of room or recipient")
	ErrEmptyContent  = errors.New("message content is empty")
	ErrMissingAuthor = errors.New("message author is required")
)

// NewMessage is the input for MessageRepository.Create.
type NewMessage struct {
	AuthorID    uuid.UUID
	Content     string
	RoomID      *uuid.UUID
	RecipientID *uuid.UUID
}

// Normalize trims the content and checks the single-target rule. Every
// repository calls it before writing, so no path can persist untrimmed
// content or a message with an ambiguous target.
func (n NewMessage) Normalize() (NewMessage, error) {
	n.Content = strings.TrimSpace(n.Content)

	if n.AuthorID == uuid.Nil {
		return n, ErrMissingAuthor
	}
	if (n.RoomID == nil) == (n.RecipientID == nil) {
		return n, ErrInvalidTarget
	}
	if n.Content == "" {
		return n, ErrEmptyContent
	}
	return n, nil
}

// Conversation is one entry of a user's direct-message inbox: the other
// party, the latest message either of them sent, and how many messages
// from the other party are still unread.
type Conversation struct {
	User        User    `json:"user"`
	LastMessage Message `json:"last_message"`
	UnreadCount int64   `json:"unread_count"`
}
