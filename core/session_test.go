package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type SessionFixture struct {
	*ChatFixture
	session *RoomSession
}

func NewSessionFixture(t *testing.T, opts ...SessionOption) *SessionFixture {
	chat := NewChatFixture(t)
	if err := chat.directory.EnsureDefaults(chat.ctx); err != nil {
		t.Fatal(err)
	}
	session := NewRoomSession(chat.directory, chat.stream, chat.presence, chat.logger, opts...)
	return &SessionFixture{ChatFixture: chat, session: session}
}

func mustRoom(f *SessionFixture, roomID string) Room {
	room, err := f.directory.Get(f.ctx, roomID)
	if err != nil {
		f.t.Fatal(err)
	}
	if room == nil {
		f.t.Fatalf("room %s not found", roomID)
	}
	return *room
}

func TestSessionJoin(t *testing.T) {
	t.Run("starts in no-room state", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()

		assert.Nil(t, f.session.Current())
		assert.Empty(t, f.session.Window())
		assert.Nil(t, f.session.Online(f.ctx))
	})

	t.Run("join selects the room and loads its window", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()
		viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]
		seedMessages(f.ChatFixture, "general", viewer, "hola")

		require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))

		current := f.session.Current()
		require.NotNil(t, current)
		assert.Equal(t, "general", current.ID)

		window := f.session.Window()
		require.Len(t, window, 1)
		assert.Equal(t, "hola", window[0].Text)

		assert.Equal(t, []string{"u1"}, f.session.Online(f.ctx))
	})

	t.Run("appends while joined refresh the window", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()
		viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]

		require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))
		seedMessages(f.ChatFixture, "general", viewer, "hola", "che")

		window := f.session.Window()
		require.Len(t, window, 2)
		assert.Equal(t, "che", window[1].Text)
	})

	t.Run("vip room fails closed for non-vip viewers", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()
		viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]

		err := f.session.Join(f.ctx, viewer, mustRoom(f, "vip-exclusiva"))
		assert.ErrorIs(t, err, ErrVIPOnly)
		assert.Nil(t, f.session.Current())
	})

	t.Run("vip viewer joins a vip room", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()
		viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "v1", nickname: "valen", vip: true})[0]

		require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "vip-exclusiva")))
		require.NotNil(t, f.session.Current())
		assert.Equal(t, "vip-exclusiva", f.session.Current().ID)
	})

	t.Run("joining another room is an implicit leave", func(t *testing.T) {
		f := NewSessionFixture(t)
		defer f.tearDown()
		viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]
		seedMessages(f.ChatFixture, "general", viewer, "hola general")

		require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))
		require.Len(t, f.session.Window(), 1)

		require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "amistad")))
		assert.Equal(t, "amistad", f.session.Current().ID)
		// The old room's window never carries over.
		assert.Empty(t, f.session.Window())

		// Appends to the old room no longer reach the session.
		seedMessages(f.ChatFixture, "general", viewer, "tarde")
		assert.Empty(t, f.session.Window())

		online, err := f.presence.Online(f.ctx, "amistad")
		require.Nil(t, err)
		assert.Equal(t, []string{"u1"}, online)

		previous, err := f.presence.Online(f.ctx, "general")
		require.Nil(t, err)
		assert.Empty(t, previous)
	})
}

func TestSessionLeave(t *testing.T) {
	f := NewSessionFixture(t)
	defer f.tearDown()
	viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]
	seedMessages(f.ChatFixture, "general", viewer, "hola")

	require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))
	f.session.Leave(f.ctx)

	assert.Nil(t, f.session.Current())
	assert.Empty(t, f.session.Window())
	assert.Nil(t, f.session.Online(f.ctx))

	online, err := f.presence.Online(f.ctx, "general")
	require.Nil(t, err)
	assert.Empty(t, online)

	// Leave in no-room state is a no-op.
	assert.NotPanics(t, func() { f.session.Leave(f.ctx) })
}

func TestSessionDelivery(t *testing.T) {
	var delivered [][]Message
	f := NewSessionFixture(t, WithDelivery(func(window []Message) {
		delivered = append(delivered, window)
	}))
	defer f.tearDown()
	viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]

	require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))
	seedMessages(f.ChatFixture, "general", viewer, "hola")

	require.Len(t, delivered, 2)
	assert.Empty(t, delivered[0])
	require.Len(t, delivered[1], 1)
	assert.Equal(t, "hola", delivered[1][0].Text)
}

func TestSessionTailLimit(t *testing.T) {
	f := NewSessionFixture(t, WithTailLimit(2))
	defer f.tearDown()
	viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]
	seedMessages(f.ChatFixture, "general", viewer, "uno", "dos", "tres")

	require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))

	window := f.session.Window()
	require.Len(t, window, 2)
	assert.Equal(t, "dos", window[0].Text)
	assert.Equal(t, "tres", window[1].Text)
}

func TestSessionLeaveDuringJoin(t *testing.T) {
	// Leaving from inside the first delivery lands in the gap between
	// the tail subscription being established and its cancel handle
	// being recorded; the join must notice it lost and tear the
	// subscription down itself.
	var f *SessionFixture
	deliveries := 0
	f = NewSessionFixture(t, WithDelivery(func([]Message) {
		deliveries++
		if deliveries == 1 {
			f.session.Leave(f.ctx)
		}
	}))
	defer f.tearDown()

	viewer := seedProfiles(f.ChatFixture, profileSeed{uid: "u1", nickname: "mateo"})[0]
	require.Nil(t, f.session.Join(f.ctx, viewer, mustRoom(f, "general")))

	assert.Nil(t, f.session.Current())
	assert.Empty(t, f.session.Window())

	online, err := f.presence.Online(f.ctx, "general")
	require.Nil(t, err)
	assert.Empty(t, online)

	seedMessages(f.ChatFixture, "general", viewer, "hola")
	assert.Equal(t, 1, deliveries)
}
