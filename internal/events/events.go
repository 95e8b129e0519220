// Package events defines what flows through the group broker: the two
// published message variants, their client-facing wire frames, and the
// envelope used to carry them between nodes.
package events

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lalith-99/salachat/internal/models"
)

// Kind is the message type discriminator shared by inbound frames and
// published events.
type Kind string

const (
	KindRoom   Kind = "room"
	KindDirect Kind = "direct"
)

// ParseKind maps the inbound "type" field to a Kind. An empty value means
// room, matching clients that predate direct messages.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case "", KindRoom:
		return KindRoom, nil
	case KindDirect:
		return KindDirect, nil
	default:
		return "", fmt.Errorf("unknown message type %q", s)
	}
}

// TimestampLayout is how timestamps appear on the wire, always in UTC.
const TimestampLayout = "2006-01-02 15:04:05"

// Event is a published message. The only implementations are
// *RoomMessage and *DirectMessage.
type Event interface {
	Kind() Kind
	sealed()
}

// RoomMessage is broadcast to a room group.
//
// Origin is the session that sent it, so that session can skip its own echo.
type RoomMessage struct {
	MessageID int64     `json:"message_id"`
	RoomID    uuid.UUID `json:"room_id"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin"`
}

func (*RoomMessage) Kind() Kind { return KindRoom }
func (*RoomMessage) sealed()    {}

// DirectMessage is published to a user's personal group. IsRead is true on
// the sender's mirror copy and carries the stored flag on the recipient's.
type DirectMessage struct {
	MessageID   int64     `json:"message_id"`
	RecipientID uuid.UUID `json:"recipient_id"`
	Message     string    `json:"message"`
	Username    string    `json:"username"`
	UserID      uuid.UUID `json:"user_id"`
	Timestamp   time.Time `json:"timestamp"`
	IsRead      bool      `json:"is_read"`
	Origin      string    `json:"origin"`
}

func (*DirectMessage) Kind() Kind { return KindDirect }
func (*DirectMessage) sealed()    {}

// NewRoomMessage renders a persisted room message as an event.
func NewRoomMessage(msg *models.Message, username, origin string) *RoomMessage {
	ev := &RoomMessage{
		MessageID: msg.ID,
		Message:   msg.Content,
		Username:  username,
		UserID:    msg.AuthorID,
		Timestamp: msg.CreatedAt,
		Origin:    origin,
	}
	if msg.RoomID != nil {
		ev.RoomID = *msg.RoomID
	}
	return ev
}

// NewDirectMessage renders a persisted direct message as an event.
func NewDirectMessage(msg *models.Message, username, origin string) *DirectMessage {
	ev := &DirectMessage{
		MessageID: msg.ID,
		Message:   msg.Content,
		Username:  username,
		UserID:    msg.AuthorID,
		Timestamp: msg.CreatedAt,
		IsRead:    msg.IsRead,
		Origin:    origin,
	}
	if msg.RecipientID != nil {
		ev.RecipientID = *msg.RecipientID
	}
	return ev
}
