package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/lalith-99/salachat/internal/models"
)

// Every method takes ctx first: these all hit Postgres, and a closed
// WebSocket or cancelled HTTP request should cancel the query with it.
//
// Lookups return nil, nil when the row does not exist. Callers translate
// that into a 404 or a refused connection.

// RoomRepository defines the contract for room data operations.
type RoomRepository interface {
	// Create inserts an active room and returns it with ID and CreatedAt populated.
	Create(ctx context.Context, name, description string) (*models.Room, error)

	// GetByID returns a single room, active or not.
	GetByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error)

	// ListActive returns active rooms ordered by name.
	// Returns empty slice (not nil) so JSON serializes to [] not null.
	ListActive(ctx context.Context) ([]models.Room, error)
}

// UserRepository handles user data.
type UserRepository interface {
	Create(ctx context.Context, username, displayName, passwordHash string) (*models.User, error)
	GetByID(ctx context.Context, userID uuid.UUID) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)

	// Search returns up to limit users whose username starts with prefix,
	// case-insensitively, ordered by username. Empty slice, not nil.
	Search(ctx context.Context, prefix string, limit int) ([]models.User, error)
}

// MessageRepository handles chat message persistence.
type MessageRepository interface {
	// Create normalizes and persists a message. It rejects input that does
	// not target exactly one of room or recipient before touching the DB.
	Create(ctx context.Context, in models.NewMessage) (*models.Message, error)

	// MarkRead sets is_read on a direct message, but only when recipientID
	// is the message's recipient. Returns true if this call flipped the flag.
	// Calling it on an already-read message is not an error.
	MarkRead(ctx context.Context, messageID int64, recipientID uuid.UUID) (bool, error)

	// ListByRoom returns the latest limit messages of a room, oldest first.
	ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error)

	// ListDirect returns the latest limit messages exchanged between two
	// users in either direction, oldest first.
	ListDirect(ctx context.Context, userA, userB uuid.UUID, limit int) ([]models.Message, error)

	// ListConversations returns one entry per user that userID has
	// exchanged direct messages with, most recent conversation first.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error)
}
