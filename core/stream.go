package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTailLimit is the window size used when a subscriber does not
// ask for one.
const DefaultTailLimit = 50

const bumpTimeout = 5 * time.Second

// MessageStream is the per-room ordered log with bounded live tails.
// Appends go through the store, which assigns the timestamp and ID;
// subscribers then receive the full recomputed last-N window of the
// room, never a delta.
type MessageStream struct {
	store  MessageStore
	rooms  *RoomDirectory
	tails  *SyncMap[string, *Feed[struct{}]]
	logger *slog.Logger
}

func NewMessageStream(store MessageStore, rooms *RoomDirectory, logger *slog.Logger) *MessageStream {
	return &MessageStream{
		store:  store,
		rooms:  rooms,
		tails:  NewSyncMap[string, *Feed[struct{}]](),
		logger: logger,
	}
}

// Tail returns the room's current window of at most limit messages,
// oldest first.
func (s *MessageStream) Tail(ctx context.Context, roomID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultTailLimit
	}
	return s.store.TailMessages(ctx, roomID, limit)
}

// Append validates and stores a message, then bumps the room's last
// message time in the background and notifies the room's tail
// subscribers. On failure the message is not stored and the caller must
// not assume delivery.
func (s *MessageStream) Append(ctx context.Context, input MessageCreateInput) (*Message, error) {
	message, err := s.store.AppendMessage(ctx, input)
	if err != nil {
		return nil, err
	}

	// The directory bump is advisory. It must never delay or fail the
	// send, so it runs detached from the caller's context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), bumpTimeout)
		defer cancel()
		if err := s.rooms.NoteMessage(ctx, message.RoomID); err != nil {
			s.logger.Warn("room last-message bump failed",
				slog.String("room", message.RoomID), slog.String("error", err.Error()))
		}
	}()

	s.notify(message.RoomID)
	return message, nil
}

// AppendImage appends an image message. An empty caption defaults to
// the type label.
func (s *MessageStream) AppendImage(ctx context.Context, roomID, senderID, senderName, imageURL, caption string) (*Message, error) {
	if caption == "" {
		caption = "Imagen"
	}
	return s.Append(ctx, MessageCreateInput{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Type:       ImageMessage,
		Text:       caption,
		MediaURL:   imageURL,
	})
}

// AppendAudio appends an audio message. Audio is a VIP entitlement.
func (s *MessageStream) AppendAudio(ctx context.Context, roomID, senderID, senderName, audioURL string, seconds int, senderIsVIP bool) (*Message, error) {
	if !senderIsVIP {
		return nil, ErrAudioRequiresVIP
	}
	return s.Append(ctx, MessageCreateInput{
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Type:       AudioMessage,
		Text:       fmt.Sprintf("Audio (%ds)", seconds),
		MediaURL:   audioURL,
	})
}

// SubscribeTail establishes a live view of the most recent limit
// messages of the room, ordered oldest to newest. The current window is
// delivered immediately; every subsequent append to the room delivers
// the entire recomputed window. Deliveries within one subscription are
// serialized and never carry a window older than an already delivered
// one. If establishment fails the callback is
// invoked once with an empty window and the handle is a no-op; callers
// cannot distinguish "unreachable" from "no messages yet".
func (s *MessageStream) SubscribeTail(ctx context.Context, roomID string, limit int, fn func([]Message)) CancelFunc {
	if limit <= 0 {
		limit = DefaultTailLimit
	}

	// mu holds each recompute and its delivery together: a window
	// queried later is delivered later, so the subscriber never sees a
	// window older than one it already received.
	var mu sync.Mutex
	mu.Lock()
	defer mu.Unlock()

	window, err := s.store.TailMessages(ctx, roomID, limit)
	if err != nil {
		s.logger.Error("tail subscription failed",
			slog.String("room", roomID), slog.String("error", err.Error()))
		fn(nil)
		return func() {}
	}

	feed := s.tails.LoadOrStore(roomID, NewFeed[struct{}])
	cancel := feed.Subscribe(func(struct{}) {
		mu.Lock()
		defer mu.Unlock()
		window, err := s.store.TailMessages(ctx, roomID, limit)
		if err != nil {
			// Keep the last delivered window rather than regressing to empty.
			s.logger.Warn("tail window refresh failed",
				slog.String("room", roomID), slog.String("error", err.Error()))
			return
		}
		fn(window)
	})
	fn(window)
	return cancel
}

func (s *MessageStream) notify(roomID string) {
	if feed, ok := s.tails.Load(roomID); ok {
		feed.Publish(struct{}{})
	}
}
