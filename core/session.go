package core

import (
	"context"
	"log/slog"
	"slices"
	"sync"
)

// RoomSession is the client-local notion of "the room I am currently
// viewing". It is not a durable membership record: joining selects a
// room and wires up its tail subscription, leaving tears both down.
// A session is either in No-Room or Room-Active state; joining while
// active is an implicit leave-and-join that resets the window.
type RoomSession struct {
	rooms    *RoomDirectory
	stream   *MessageStream
	presence Presence
	logger   *slog.Logger
	limit    int

	mu         sync.Mutex
	epoch      int
	viewer     Profile
	current    *Room
	cancelTail CancelFunc
	window     []Message
	deliver    func([]Message)
}

type SessionOption func(*RoomSession)

// WithTailLimit overrides the session's message window size.
func WithTailLimit(limit int) SessionOption {
	return func(s *RoomSession) {
		s.limit = limit
	}
}

// WithDelivery registers fn to receive each window after it lands on
// the session. Deliveries for a room stop before the next Join's
// deliveries start.
func WithDelivery(fn func([]Message)) SessionOption {
	return func(s *RoomSession) {
		s.deliver = fn
	}
}

func NewRoomSession(rooms *RoomDirectory, stream *MessageStream, presence Presence, logger *slog.Logger, opts ...SessionOption) *RoomSession {
	s := &RoomSession{
		rooms:    rooms,
		stream:   stream,
		presence: presence,
		logger:   logger,
		limit:    DefaultTailLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join selects room as the current room. The viewer's tier is
// re-checked here even though the directory already filters listings:
// vipOnly rooms fail closed for non-VIP viewers. The previous tail
// subscription, if any, is cancelled before the new one is established
// so windows from different rooms never interleave. The activity bump
// and presence registration are advisory; their failures are logged and
// never surfaced.
func (s *RoomSession) Join(ctx context.Context, viewer Profile, room Room) error {
	if room.Type == VIPOnlyRoom && !viewer.IsVIP {
		return ErrVIPOnly
	}

	s.mu.Lock()
	if s.cancelTail != nil {
		s.cancelTail()
		s.cancelTail = nil
	}
	s.epoch++
	epoch := s.epoch
	previous := s.current
	previousViewer := s.viewer
	joined := room
	s.viewer = viewer
	s.current = &joined
	s.window = nil
	s.mu.Unlock()

	if previous != nil {
		if err := s.presence.Leave(ctx, previous.ID, previousViewer.UID); err != nil {
			s.logger.Warn("presence leave failed",
				slog.String("room", previous.ID), slog.String("error", err.Error()))
		}
	}

	cancel := s.stream.SubscribeTail(ctx, room.ID, s.limit, func(window []Message) {
		s.mu.Lock()
		// A stale delivery racing a room switch must not leak in.
		if s.epoch != epoch {
			s.mu.Unlock()
			return
		}
		s.window = window
		deliver := s.deliver
		s.mu.Unlock()
		if deliver != nil {
			deliver(window)
		}
	})

	s.mu.Lock()
	if s.epoch != epoch {
		// A Leave or another Join raced in while the subscription was
		// being established; it lost, tear it down.
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancelTail = cancel
	s.mu.Unlock()

	if err := s.rooms.TouchActivity(ctx, room.ID); err != nil {
		s.logger.Warn("room activity bump failed",
			slog.String("room", room.ID), slog.String("error", err.Error()))
	}
	if err := s.presence.Join(ctx, room.ID, viewer.UID); err != nil {
		s.logger.Warn("presence join failed",
			slog.String("room", room.ID), slog.String("error", err.Error()))
	}
	return nil
}

// Leave clears the current room, the loaded window and the tracked
// online set.
func (s *RoomSession) Leave(ctx context.Context) {
	s.mu.Lock()
	s.epoch++
	cancel := s.cancelTail
	current := s.current
	viewer := s.viewer
	s.cancelTail = nil
	s.current = nil
	s.window = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if current != nil {
		if err := s.presence.Leave(ctx, current.ID, viewer.UID); err != nil {
			s.logger.Warn("presence leave failed",
				slog.String("room", current.ID), slog.String("error", err.Error()))
		}
	}
}

// Current returns a copy of the selected room, or nil in No-Room state.
func (s *RoomSession) Current() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	room := *s.current
	return &room
}

// Window returns a copy of the last delivered message window.
func (s *RoomSession) Window() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.window)
}

// Online returns the online users of the current room, or nil in
// No-Room state. Presence failures read as nobody online.
func (s *RoomSession) Online(ctx context.Context) []string {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()
	if current == nil {
		return nil
	}
	online, err := s.presence.Online(ctx, current.ID)
	if err != nil {
		s.logger.Warn("presence lookup failed",
			slog.String("room", current.ID), slog.String("error", err.Error()))
		return nil
	}
	return online
}
