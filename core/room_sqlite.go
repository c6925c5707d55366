package core

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type SQLiteRoomStore struct {
	db *sql.DB
}

func NewSQLiteRoomStore(db *sql.DB) *SQLiteRoomStore {
	return &SQLiteRoomStore{db: db}
}

func (s *SQLiteRoomStore) CreateRoom(ctx context.Context, input RoomCreateInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}

	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}

	now := time.Now().UTC()
	query := `
	INSERT INTO rooms (id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at)
	VALUES (@id, @name, @topic, @description, @type, 0, @created_at, @last_message_at, @last_activity_at)`
	_, err := s.db.ExecContext(ctx, query,
		sql.Named("id", id), sql.Named("name", input.Name),
		sql.Named("topic", input.Topic), sql.Named("description", input.Description),
		sql.Named("type", string(input.Type)),
		sql.Named("created_at", now),
		sql.Named("last_message_at", now),
		sql.Named("last_activity_at", now))
	if err != nil {
		return "", fmt.Errorf("ExecContext(insert room): %w", err)
	}
	return id, nil
}

func (s *SQLiteRoomStore) GetRoomByID(ctx context.Context, roomID string) (*Room, error) {
	query := `
	SELECT id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at
	FROM rooms WHERE id = @id LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, sql.Named("id", roomID))

	var room Room
	var roomType string
	err := row.Scan(&room.ID, &room.Name, &room.Topic, &room.Description, &roomType,
		&room.ParticipantCount, &room.CreatedAt, &room.LastMessageAt, &room.LastActivityAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning room: %w", err)
	}
	room.Type = RoomType(roomType)
	return &room, nil
}

func (s *SQLiteRoomStore) ListRooms(ctx context.Context, viewerIsVIP bool) ([]Room, error) {
	query := `
	SELECT id, name, topic, description, type, participant_count, created_at, last_message_at, last_activity_at
	FROM rooms
	WHERE @vip OR type != @vip_only
	ORDER BY last_message_at DESC, name ASC`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("vip", viewerIsVIP), sql.Named("vip_only", string(VIPOnlyRoom)))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		var room Room
		var roomType string
		if err := rows.Scan(&room.ID, &room.Name, &room.Topic, &room.Description, &roomType,
			&room.ParticipantCount, &room.CreatedAt, &room.LastMessageAt, &room.LastActivityAt); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		room.Type = RoomType(roomType)
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}
	return rooms, nil
}

func (s *SQLiteRoomStore) CountRooms(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT count(*) FROM rooms`)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("scanning count: %w", err)
	}
	return count, nil
}

func (s *SQLiteRoomStore) TouchRoomActivity(ctx context.Context, roomID string) error {
	query := `UPDATE rooms SET last_activity_at = @now WHERE id = @id`
	res, err := s.db.ExecContext(ctx, query,
		sql.Named("now", time.Now().UTC()), sql.Named("id", roomID))
	if err != nil {
		return fmt.Errorf("ExecContext(touch room): %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidRoom
	}
	return nil
}

func (s *SQLiteRoomStore) BumpRoomLastMessage(ctx context.Context, roomID string) error {
	query := `UPDATE rooms SET last_message_at = @now WHERE id = @id`
	res, err := s.db.ExecContext(ctx, query,
		sql.Named("now", time.Now().UTC()), sql.Named("id", roomID))
	if err != nil {
		return fmt.Errorf("ExecContext(bump room): %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrInvalidRoom
	}
	return nil
}
