package core

import (
	"context"
	"errors"
	"time"
)

// MessageType determines how a message's body and media are interpreted.
type MessageType string

const (
	TextMessage  MessageType = "text"
	ImageMessage MessageType = "image"
	AudioMessage MessageType = "audio"
)

// MaxMessageLength is the maximum accepted message body length in runes.
const MaxMessageLength = 500

// Message is a single entry in a room's ordered log. Messages are
// immutable once appended; the sender name is denormalized at send time
// and never updated retroactively.
type Message struct {
	ID         int         `json:"id"`
	RoomID     string      `json:"room_id"`
	SenderID   string      `json:"sender_id"`
	SenderName string      `json:"sender_name"`
	Type       MessageType `json:"type"`
	Text       string      `json:"text"`
	MediaURL   string      `json:"media_url,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
}

var (
	ErrInvalidMessage = errors.New("invalid message")
	// ErrMessageTooLong is returned before any store call when the body
	// exceeds MaxMessageLength.
	ErrMessageTooLong = errors.New("message too long")
	// ErrAudioRequiresVIP is returned when a non-VIP sender attempts an
	// audio message.
	ErrAudioRequiresVIP = errors.New("audio messages require VIP")
)

// MessageCreateInput is the input for appending a message to a room.
type MessageCreateInput struct {
	RoomID     string      `json:"room_id" validate:"required"`
	SenderID   string      `json:"sender_id" validate:"required"`
	SenderName string      `json:"sender_name" validate:"required"`
	Type       MessageType `json:"type" validate:"required,oneof=text image audio"`
	Text       string      `json:"text"`
	MediaURL   string      `json:"media_url"`
}

// Validate checks the input before it reaches the store. Text messages
// must carry a body and no media; image and audio messages must carry a
// media URL.
func (m *MessageCreateInput) Validate() error {
	if err := validate.Struct(m); err != nil {
		return ErrInvalidMessage
	}
	if len([]rune(m.Text)) > MaxMessageLength {
		return ErrMessageTooLong
	}
	switch m.Type {
	case TextMessage:
		if m.Text == "" || m.MediaURL != "" {
			return ErrInvalidMessage
		}
	case ImageMessage, AudioMessage:
		if m.MediaURL == "" {
			return ErrInvalidMessage
		}
	}
	return nil
}

type MessageStore interface {

	// AppendMessage stores the message under its room, assigning the ID
	// and a server-side UTC timestamp. The returned message is the
	// stored record.
	AppendMessage(ctx context.Context, input MessageCreateInput) (*Message, error)

	// TailMessages returns the most recent limit messages of the room
	// ordered oldest to newest. If limit is zero it defaults to 50.
	TailMessages(ctx context.Context, roomID string, limit int) ([]Message, error)
}
