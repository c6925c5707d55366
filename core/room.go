package core

import (
	"context"
	"errors"
	"time"
)

// RoomType is the access tier of a room.
type RoomType string

const (
	// PublicRoom is open to everyone.
	PublicRoom RoomType = "public"
	// PrivateRoom is listed to everyone; privacy affects join semantics,
	// not visibility.
	PrivateRoom RoomType = "private"
	// VIPOnlyRoom is listed and joinable only by VIP members.
	VIPOnlyRoom RoomType = "vipOnly"
)

// Room is a named channel holding an ordered message log.
type Room struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	Topic            string    `json:"topic"`
	Description      string    `json:"description"`
	Type             RoomType  `json:"type"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastMessageAt    time.Time `json:"last_message_at"`
	LastActivityAt   time.Time `json:"last_activity_at"`
}

var (
	ErrInvalidRoom = errors.New("invalid room")
	// ErrVIPOnly is returned when a non-VIP viewer attempts to join a
	// vipOnly room.
	ErrVIPOnly = errors.New("room is restricted to VIP members")
)

// RoomCreateInput is the input for explicit room creation.
type RoomCreateInput struct {
	ID          string   `json:"id"`
	Name        string   `json:"name" validate:"required,max=50"`
	Topic       string   `json:"topic" validate:"max=100"`
	Description string   `json:"description" validate:"max=200"`
	Type        RoomType `json:"type" validate:"required,oneof=public private vipOnly"`
}

func (r *RoomCreateInput) Validate() error {
	if err := validate.Struct(r); err != nil {
		return ErrInvalidRoom
	}
	return nil
}

// DefaultRooms is the catalog seeded into an empty directory.
var DefaultRooms = []RoomCreateInput{
	{
		ID:          "general",
		Name:        "General",
		Topic:       "Charla general para todos",
		Description: "Sala principal para charlar de todo un poco",
		Type:        PublicRoom,
	},
	{
		ID:          "amistad",
		Name:        "Amistad",
		Topic:       "Conocé gente nueva y hacé amigos",
		Description: "Para conocer gente y hacer nuevas amistades",
		Type:        PublicRoom,
	},
	{
		ID:          "amor",
		Name:        "Amor y Romance",
		Topic:       "Buscás el amor? Esta es tu sala",
		Description: "Para quienes buscan algo más que amistad",
		Type:        PublicRoom,
	},
	{
		ID:          "musica",
		Name:        "Música",
		Topic:       "Hablemos de música argentina e internacional",
		Description: "Compartí tus gustos musicales",
		Type:        PublicRoom,
	},
	{
		ID:          "deportes",
		Name:        "Deportes",
		Topic:       "Fútbol, básquet, tenis y más",
		Description: "Todo sobre deportes argentinos e internacionales",
		Type:        PublicRoom,
	},
	{
		ID:          "vip-exclusiva",
		Name:        "VIP Exclusiva",
		Topic:       "Sala exclusiva para miembros VIP",
		Description: "Acceso exclusivo para usuarios VIP con funciones premium",
		Type:        VIPOnlyRoom,
	},
}

type RoomStore interface {

	// CreateRoom inserts a room. If input.ID is empty an ID is assigned.
	// It returns the ID of the created room.
	CreateRoom(ctx context.Context, input RoomCreateInput) (string, error)

	// GetRoomByID returns the room with the given ID, or nil if it does
	// not exist.
	GetRoomByID(ctx context.Context, roomID string) (*Room, error)

	// ListRooms returns all rooms visible to the viewer ordered by
	// last_message_at descending. vipOnly rooms are excluded unless
	// viewerIsVIP is true.
	ListRooms(ctx context.Context, viewerIsVIP bool) ([]Room, error)

	// CountRooms returns the number of rooms in the directory.
	CountRooms(ctx context.Context) (int, error)

	// TouchRoomActivity bumps the room's last_activity_at.
	TouchRoomActivity(ctx context.Context, roomID string) error

	// BumpRoomLastMessage bumps the room's last_message_at.
	BumpRoomLastMessage(ctx context.Context, roomID string) error
}
