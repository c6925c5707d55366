package core

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"
)

type SQLiteMessageStore struct {
	db *sql.DB
}

func NewSQLiteMessageStore(db *sql.DB) *SQLiteMessageStore {
	return &SQLiteMessageStore{db: db}
}

func (s *SQLiteMessageStore) AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	// Timestamp is assigned here, never taken from the client clock.
	timestamp := time.Now().UTC()
	query := `
	INSERT INTO messages (room_id, sender_id, sender_name, type, text, media_url, timestamp)
	VALUES (@room_id, @sender_id, @sender_name, @type, @text, @media_url, @timestamp)
	RETURNING id`
	row := s.db.QueryRowContext(ctx, query,
		sql.Named("room_id", input.RoomID),
		sql.Named("sender_id", input.SenderID),
		sql.Named("sender_name", input.SenderName),
		sql.Named("type", string(input.Type)),
		sql.Named("text", input.Text),
		sql.Named("media_url", input.MediaURL),
		sql.Named("timestamp", timestamp))

	var id int
	if err := row.Scan(&id); err != nil {
		return nil, fmt.Errorf("row.Scan: %w", err)
	}

	return &Message{
		ID:         id,
		RoomID:     input.RoomID,
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		Type:       input.Type,
		Text:       input.Text,
		MediaURL:   input.MediaURL,
		Timestamp:  timestamp,
	}, nil
}

func (s *SQLiteMessageStore) TailMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
	SELECT id, room_id, sender_id, sender_name, type, text, media_url, timestamp
	FROM messages
	WHERE room_id = @room_id
	ORDER BY timestamp DESC, id DESC
	LIMIT @limit`

	rows, err := s.db.QueryContext(ctx, query,
		sql.Named("room_id", roomID), sql.Named("limit", limit))
	if err != nil {
		return nil, fmt.Errorf("QueryContext: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var message Message
		var messageType string
		if err := rows.Scan(&message.ID, &message.RoomID, &message.SenderID, &message.SenderName,
			&messageType, &message.Text, &message.MediaURL, &message.Timestamp); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}
		message.Type = MessageType(messageType)
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	// Query newest-first to bound the window, display oldest-first.
	slices.Reverse(messages)
	return messages, nil
}
