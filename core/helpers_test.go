package core

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type profileSeed struct {
	uid      string
	nickname string
	vip      bool
}

func seedProfiles(f *ChatFixture, seeds ...profileSeed) []Profile {
	profiles := make([]Profile, 0, len(seeds))
	for _, seed := range seeds {
		profile, err := f.profileStore.EnsureProfile(f.ctx, seed.uid, ProfileCreateInput{
			Nickname: seed.nickname,
			Age:      25,
			Gender:   GenderOther,
			Location: "Buenos Aires",
		})
		if err != nil {
			f.t.Fatal(err)
		}
		if seed.vip {
			if err := f.profileStore.SetVIP(f.ctx, seed.uid, true); err != nil {
				f.t.Fatal(err)
			}
			profile.IsVIP = true
		}
		profiles = append(profiles, *profile)
	}
	return profiles
}

func seedRoom(f *ChatFixture, id, name string, roomType RoomType) Room {
	roomID, err := f.directory.Create(f.ctx, RoomCreateInput{
		ID:   id,
		Name: name,
		Type: roomType,
	})
	if err != nil {
		f.t.Fatal(err)
	}

	room, err := f.directory.Get(f.ctx, roomID)
	if err != nil {
		f.t.Fatal(err)
	}
	if room == nil {
		f.t.Fatalf("room %s not found after create", roomID)
	}
	return *room
}

func seedMessages(f *ChatFixture, roomID string, sender Profile, bodies ...string) []Message {
	messages := make([]Message, 0, len(bodies))
	for _, body := range bodies {
		message, err := f.stream.Append(f.ctx, MessageCreateInput{
			RoomID:     roomID,
			SenderID:   sender.UID,
			SenderName: sender.Nickname,
			Type:       TextMessage,
			Text:       body,
		})
		if err != nil {
			f.t.Fatal(err)
		}
		messages = append(messages, *message)
	}
	return messages
}

// stubRoomStore and stubMessageStore back tests that hammer the live
// paths from many goroutines, where the shared-cache SQLite fixture
// would hit table locks. The stub clock hands out strictly increasing
// timestamps so ordering assertions are exact.
type stubRoomStore struct {
	mu    sync.Mutex
	clock int64
	rooms []Room
}

func newStubRoomStore(rooms ...Room) *stubRoomStore {
	return &stubRoomStore{rooms: rooms}
}

func (s *stubRoomStore) tick() time.Time {
	s.clock++
	return time.Unix(s.clock, 0).UTC()
}

func (s *stubRoomStore) CreateRoom(_ context.Context, input RoomCreateInput) (string, error) {
	if err := input.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id := input.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := s.tick()
	s.rooms = append(s.rooms, Room{
		ID:             id,
		Name:           input.Name,
		Topic:          input.Topic,
		Description:    input.Description,
		Type:           input.Type,
		CreatedAt:      now,
		LastMessageAt:  now,
		LastActivityAt: now,
	})
	return id, nil
}

func (s *stubRoomStore) GetRoomByID(_ context.Context, roomID string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.ID == roomID {
			found := room
			return &found, nil
		}
	}
	return nil, nil
}

func (s *stubRoomStore) ListRooms(_ context.Context, viewerIsVIP bool) ([]Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	listed := make([]Room, 0, len(s.rooms))
	for _, room := range s.rooms {
		if room.Type == VIPOnlyRoom && !viewerIsVIP {
			continue
		}
		listed = append(listed, room)
	}
	slices.SortFunc(listed, func(a, b Room) int {
		if c := b.LastMessageAt.Compare(a.LastMessageAt); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return listed, nil
}

func (s *stubRoomStore) CountRooms(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms), nil
}

func (s *stubRoomStore) TouchRoomActivity(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			s.rooms[i].LastActivityAt = s.tick()
			return nil
		}
	}
	return ErrInvalidRoom
}

func (s *stubRoomStore) BumpRoomLastMessage(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rooms {
		if s.rooms[i].ID == roomID {
			s.rooms[i].LastMessageAt = s.tick()
			return nil
		}
	}
	return ErrInvalidRoom
}

type stubMessageStore struct {
	mu       sync.Mutex
	nextID   int
	messages []Message
}

func newStubMessageStore() *stubMessageStore {
	return &stubMessageStore{}
}

func (s *stubMessageStore) AppendMessage(_ context.Context, input MessageCreateInput) (*Message, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	message := Message{
		ID:         s.nextID,
		RoomID:     input.RoomID,
		SenderID:   input.SenderID,
		SenderName: input.SenderName,
		Type:       input.Type,
		Text:       input.Text,
		MediaURL:   input.MediaURL,
		Timestamp:  time.Unix(int64(s.nextID), 0).UTC(),
	}
	s.messages = append(s.messages, message)
	return &message, nil
}

func (s *stubMessageStore) TailMessages(_ context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultTailLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var tail []Message
	for _, message := range s.messages {
		if message.RoomID == roomID {
			tail = append(tail, message)
		}
	}
	if len(tail) > limit {
		tail = tail[len(tail)-limit:]
	}
	return slices.Clone(tail), nil
}
