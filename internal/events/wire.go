package events

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Inbound is one client frame: { message, type?, user_to_id? }.
type Inbound struct {
	Message  string `json:"message"`
	Type     string `json:"type"`
	UserToID string `json:"user_to_id"`
}

// ParseInbound decodes a client frame. It only checks the JSON shape;
// routing decisions belong to the caller.
func ParseInbound(raw []byte) (*Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return &in, nil
}

// RoomFrame is what a room subscriber receives.
type RoomFrame struct {
	Type      Kind      `json:"type"`
	MessageID int64     `json:"message_id"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp string    `json:"timestamp"`
}

// DirectFrame is what a personal-group subscriber receives.
type DirectFrame struct {
	Type      Kind      `json:"type"`
	MessageID int64     `json:"message_id"`
	Message   string    `json:"message"`
	Username  string    `json:"username"`
	UserID    uuid.UUID `json:"user_id"`
	Timestamp string    `json:"timestamp"`
	IsRead    bool      `json:"is_read"`
}

// ErrorFrame is sent only to the connection whose frame failed.
type ErrorFrame struct {
	Error string `json:"error"`
}

func (e *RoomMessage) Frame() RoomFrame {
	return RoomFrame{
		Type:      KindRoom,
		MessageID: e.MessageID,
		Message:   e.Message,
		Username:  e.Username,
		UserID:    e.UserID,
		Timestamp: e.Timestamp.UTC().Format(TimestampLayout),
	}
}

// Frame renders the event with is_read forced to true: reaching a live
// connection is the read.
func (e *DirectMessage) Frame() DirectFrame {
	return DirectFrame{
		Type:      KindDirect,
		MessageID: e.MessageID,
		Message:   e.Message,
		Username:  e.Username,
		UserID:    e.UserID,
		Timestamp: e.Timestamp.UTC().Format(TimestampLayout),
		IsRead:    true,
	}
}

// envelope carries an Event between nodes through Redis or NATS.
type envelope struct {
	Kind   Kind           `json:"kind"`
	Room   *RoomMessage   `json:"room,omitempty"`
	Direct *DirectMessage `json:"direct,omitempty"`
}

// Encode serializes ev for a cluster broker.
func Encode(ev Event) ([]byte, error) {
	env := envelope{Kind: ev.Kind()}
	switch e := ev.(type) {
	case *RoomMessage:
		env.Room = e
	case *DirectMessage:
		env.Direct = e
	default:
		return nil, fmt.Errorf("encode event: unsupported type %T", ev)
	}
	return json.Marshal(env)
}

// Decode is the inverse of Encode.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case env.Kind == KindRoom && env.Room != nil:
		return env.Room, nil
	case env.Kind == KindDirect && env.Direct != nil:
		return env.Direct, nil
	default:
		return nil, fmt.Errorf("decode event: malformed envelope of kind %q", env.Kind)
	}
}
