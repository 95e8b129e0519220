package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lalith-99/salachat/internal/models"
)

type RoomStore struct {
	pool *pgxpool.Pool
}

func NewRoomStore(pool *pgxpool.Pool) *RoomStore {
	return &RoomStore{pool: pool}
}

func (s *RoomStore) Create(ctx context.Context, name, description string) (*models.Room, error) {
	query := `
		INSERT INTO rooms (id, name, description, is_active, created_at)
		VALUES (gen_random_uuid(), $1, $2, true, now())
		RETURNING id, name, description, is_active, created_at`

	var r models.Room
	err := s.pool.QueryRow(ctx, query, name, description).Scan(
		&r.ID,
		&r.Name,
		&r.Description,
		&r.IsActive,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert room: %w", err)
	}
	return &r, nil
}

func (s *RoomStore) GetByID(ctx context.Context, roomID uuid.UUID) (*models.Room, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM rooms
		WHERE id = $1`

	var r models.Room
	err := s.pool.QueryRow(ctx, query, roomID).Scan(
		&r.ID,
		&r.Name,
		&r.Description,
		&r.IsActive,
		&r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get room: %w", err)
	}
	return &r, nil
}

func (s *RoomStore) ListActive(ctx context.Context) ([]models.Room, error) {
	query := `
		SELECT id, name, description, is_active, created_at
		FROM rooms
		WHERE is_active
		ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	rooms := make([]models.Room, 0)
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(
			&r.ID,
			&r.Name,
			&r.Description,
			&r.IsActive,
			&r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rooms: %w", err)
	}

	return rooms, nil
}
