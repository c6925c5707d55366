package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// RoomDirectory presents a live, ordered view of all rooms, filtered by
// the viewer's access tier. Every mutation routed through the directory
// re-queries the store and pushes the full recomputed snapshot to all
// subscribers; deliveries are never patched incrementally.
type RoomDirectory struct {
	store  RoomStore
	feed   *Feed[[]Room]
	logger *slog.Logger

	// refreshMu holds each snapshot query and its publish together so
	// concurrent mutations cannot publish a stale snapshot after a
	// fresher one.
	refreshMu sync.Mutex
}

func NewRoomDirectory(store RoomStore, logger *slog.Logger) *RoomDirectory {
	return &RoomDirectory{
		store:  store,
		feed:   NewFeed[[]Room](),
		logger: logger,
	}
}

// List returns the rooms visible to the viewer ordered by last message
// time descending.
func (d *RoomDirectory) List(ctx context.Context, viewerIsVIP bool) ([]Room, error) {
	return d.store.ListRooms(ctx, viewerIsVIP)
}

// Get returns the room with the given ID, or nil.
func (d *RoomDirectory) Get(ctx context.Context, roomID string) (*Room, error) {
	return d.store.GetRoomByID(ctx, roomID)
}

// Subscribe delivers the current snapshot immediately and a full
// recomputed snapshot on every subsequent room insert or update. If the
// initial query fails the callback is invoked once with an empty
// snapshot and the returned handle is a no-op: an unreachable directory
// reads as an empty one, it never crashes the caller.
func (d *RoomDirectory) Subscribe(ctx context.Context, viewerIsVIP bool, fn func([]Room)) CancelFunc {
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()

	rooms, err := d.store.ListRooms(ctx, viewerIsVIP)
	if err != nil {
		d.logger.Error("room subscription failed", slog.String("error", err.Error()))
		fn(nil)
		return func() {}
	}

	cancel := d.feed.Subscribe(func(all []Room) {
		fn(filterRooms(all, viewerIsVIP))
	})
	fn(rooms)
	return cancel
}

func filterRooms(rooms []Room, viewerIsVIP bool) []Room {
	filtered := make([]Room, 0, len(rooms))
	for _, room := range rooms {
		if room.Type == VIPOnlyRoom && !viewerIsVIP {
			continue
		}
		filtered = append(filtered, room)
	}
	return filtered
}

// EnsureDefaults seeds the fixed room catalog when the directory is
// empty. The check-then-insert is not transactional: two processes
// racing the empty check can both seed. That duplication is accepted.
func (d *RoomDirectory) EnsureDefaults(ctx context.Context) error {
	count, err := d.store.CountRooms(ctx)
	if err != nil {
		return fmt.Errorf("CountRooms: %w", err)
	}
	if count > 0 {
		return nil
	}

	for _, input := range DefaultRooms {
		if _, err := d.store.CreateRoom(ctx, input); err != nil {
			return fmt.Errorf("CreateRoom(%s): %w", input.ID, err)
		}
	}
	d.refresh(ctx)
	return nil
}

// Create inserts a room and notifies subscribers.
func (d *RoomDirectory) Create(ctx context.Context, input RoomCreateInput) (string, error) {
	id, err := d.store.CreateRoom(ctx, input)
	if err != nil {
		return "", err
	}
	d.refresh(ctx)
	return id, nil
}

// TouchActivity is the advisory activity bump issued on join/leave.
func (d *RoomDirectory) TouchActivity(ctx context.Context, roomID string) error {
	if err := d.store.TouchRoomActivity(ctx, roomID); err != nil {
		return err
	}
	d.refresh(ctx)
	return nil
}

// NoteMessage bumps the room's last message time, reordering the
// directory. Called by the message stream after a successful append.
func (d *RoomDirectory) NoteMessage(ctx context.Context, roomID string) error {
	if err := d.store.BumpRoomLastMessage(ctx, roomID); err != nil {
		return err
	}
	d.refresh(ctx)
	return nil
}

func (d *RoomDirectory) refresh(ctx context.Context) {
	if d.feed.Len() == 0 {
		return
	}
	d.refreshMu.Lock()
	defer d.refreshMu.Unlock()
	rooms, err := d.store.ListRooms(ctx, true)
	if err != nil {
		// Subscribers keep their last delivered snapshot.
		d.logger.Warn("room snapshot refresh failed", slog.String("error", err.Error()))
		return
	}
	d.feed.Publish(rooms)
}
