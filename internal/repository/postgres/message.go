package postgres

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/salachat/internal/models"
)

type MessageStore struct {
	pool *pgxpool.Pool
}

func NewMessageStore(pool *pgxpool.Pool) *MessageStore {
	return &MessageStore{pool: pool}
}

const messageColumns = `id, author_id, content, room_id, recipient_id, is_read, created_at`

func (s *MessageStore) Create(ctx context.Context, in models.NewMessage) (*models.Message, error) {
	in, err := in.Normalize()
	if err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}

	// Messages use bigserial, so the ID comes back through RETURNING.
	// The messages_single_target CHECK backs up Normalize at the DB level.
	// Only direct messages start unread; a room message has no single
	// reader to wait for.
	query := `
		INSERT INTO messages (author_id, content, room_id, recipient_id, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING ` + messageColumns

	var msg models.Message
	isRead := in.RecipientID == nil
	err = s.pool.QueryRow(ctx, query, in.AuthorID, in.Content, in.RoomID, in.RecipientID, isRead).Scan(
		&msg.ID,
		&msg.AuthorID,
		&msg.Content,
		&msg.RoomID,
		&msg.RecipientID,
		&msg.IsRead,
		&msg.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return &msg, nil
}

func (s *MessageStore) MarkRead(ctx context.Context, messageID int64, recipientID uuid.UUID) (bool, error) {
	// The recipient_id filter is what keeps a sender's mirrored copy from
	// marking the recipient's message read. "AND NOT is_read" makes the
	// second call a zero-row update instead of a rewrite.
	query := `
		UPDATE messages
		SET is_read = true
		WHERE id = $1 AND recipient_id = $2 AND NOT is_read`

	tag, err := s.pool.Exec(ctx, query, messageID, recipientID)
	if err != nil {
		return false, fmt.Errorf("mark message read: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *MessageStore) ListByRoom(ctx context.Context, roomID uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = $1
		ORDER BY id DESC
		LIMIT $2`

	rows, err := s.pool.Query(ctx, query, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list room messages: %w", err)
	}
	return collectMessages(rows)
}

func (s *MessageStore) ListDirect(ctx context.Context, userA, userB uuid.UUID, limit int) ([]models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (author_id = $1 AND recipient_id = $2)
		   OR (author_id = $2 AND recipient_id = $1)
		ORDER BY id DESC
		LIMIT $3`

	rows, err := s.pool.Query(ctx, query, userA, userB, limit)
	if err != nil {
		return nil, fmt.Errorf("list direct messages: %w", err)
	}
	return collectMessages(rows)
}

// ListConversations picks the newest direct message per other party and
// counts that party's unread messages to userID. A self-conversation is
// listed like any other, with nothing unread.
func (s *MessageStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]models.Conversation, error) {
	query := `
		WITH latest AS (
			SELECT DISTINCT ON (other_id)
				other_id, id, author_id, content, room_id, recipient_id, is_read, created_at
			FROM (
				SELECT m.*,
					CASE WHEN m.author_id = $1 THEN m.recipient_id ELSE m.author_id END AS other_id
				FROM messages m
				WHERE m.recipient_id IS NOT NULL
				  AND (m.author_id = $1 OR m.recipient_id = $1)
			) direct
			ORDER BY other_id, id DESC
		), unread AS (
			SELECT author_id AS other_id, count(*) AS n
			FROM messages
			WHERE recipient_id = $1 AND author_id <> $1 AND NOT is_read
			GROUP BY author_id
		)
		SELECT u.id, u.username, u.display_name, u.created_at,
			l.id, l.author_id, l.content, l.room_id, l.recipient_id, l.is_read, l.created_at,
			COALESCE(un.n, 0)
		FROM latest l
		JOIN users u ON u.id = l.other_id
		LEFT JOIN unread un ON un.other_id = l.other_id
		ORDER BY l.id DESC`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	conversations := make([]models.Conversation, 0)
	for rows.Next() {
		var c models.Conversation
		if err := rows.Scan(
			&c.User.ID,
			&c.User.Username,
			&c.User.DisplayName,
			&c.User.CreatedAt,
			&c.LastMessage.ID,
			&c.LastMessage.AuthorID,
			&c.LastMessage.Content,
			&c.LastMessage.RoomID,
			&c.LastMessage.RecipientID,
			&c.LastMessage.IsRead,
			&c.LastMessage.CreatedAt,
			&c.UnreadCount,
		); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return conversations, nil
}

// collectMessages scans newest-first rows and returns them oldest first,
// which is the order a chat window renders.
func collectMessages(rows pgx.Rows) ([]models.Message, error) {
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(
			&msg.ID,
			&msg.AuthorID,
			&msg.Content,
			&msg.RoomID,
			&msg.RecipientID,
			&msg.IsRead,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	slices.Reverse(messages)
	return messages, nil
}
