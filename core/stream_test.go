package core

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	t.Run("rejects bodies over the length cap", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		long := make([]rune, MaxMessageLength+1)
		for i := range long {
			long[i] = 'a'
		}

		_, err := f.stream.Append(f.ctx, MessageCreateInput{
			RoomID:     "general",
			SenderID:   sender.UID,
			SenderName: sender.Nickname,
			Type:       TextMessage,
			Text:       string(long),
		})
		assert.ErrorIs(t, err, ErrMessageTooLong)

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)
		assert.Empty(t, window)
	})

	t.Run("rejects text messages without a body", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))

		_, err := f.stream.Append(f.ctx, MessageCreateInput{
			RoomID:     "general",
			SenderID:   "u1",
			SenderName: "mateo",
			Type:       TextMessage,
		})
		assert.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("appended message lands at the end of the window", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		seedMessages(f, "general", sender, "primero", "segundo")
		message, err := f.stream.Append(f.ctx, MessageCreateInput{
			RoomID:     "general",
			SenderID:   sender.UID,
			SenderName: sender.Nickname,
			Type:       TextMessage,
			Text:       "tercero",
		})
		require.Nil(t, err)
		assert.NotZero(t, message.ID)
		assert.False(t, message.Timestamp.IsZero())

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)
		require.Len(t, window, 3)
		assert.Equal(t, "primero", window[0].Text)
		assert.Equal(t, "tercero", window[2].Text)
	})

	t.Run("bumps the room's last message time", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		before, err := f.directory.Get(f.ctx, "amistad")
		require.Nil(t, err)

		time.Sleep(5 * time.Millisecond)
		seedMessages(f, "amistad", sender, "hola")

		// The bump runs detached from the send.
		require.Eventually(t, func() bool {
			after, err := f.directory.Get(f.ctx, "amistad")
			return err == nil && after.LastMessageAt.After(before.LastMessageAt)
		}, time.Second, 10*time.Millisecond)
	})
}

func TestAppendImage(t *testing.T) {
	f := NewChatFixture(t)
	defer f.tearDown()
	require.Nil(t, f.directory.EnsureDefaults(f.ctx))
	sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

	message, err := f.stream.AppendImage(f.ctx, "general", sender.UID, sender.Nickname,
		"/media/u1/pic.jpg", "")
	require.Nil(t, err)
	assert.Equal(t, ImageMessage, message.Type)
	assert.Equal(t, "Imagen", message.Text)
	assert.Equal(t, "/media/u1/pic.jpg", message.MediaURL)

	captioned, err := f.stream.AppendImage(f.ctx, "general", sender.UID, sender.Nickname,
		"/media/u1/pic2.jpg", "mirá esto")
	require.Nil(t, err)
	assert.Equal(t, "mirá esto", captioned.Text)
}

func TestAppendAudio(t *testing.T) {
	t.Run("vip senders record a labelled audio message", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "v1", nickname: "valen", vip: true})[0]

		message, err := f.stream.AppendAudio(f.ctx, "general", sender.UID, sender.Nickname,
			"/media/v1/voice.ogg", 7, sender.IsVIP)
		require.Nil(t, err)
		assert.Equal(t, AudioMessage, message.Type)
		assert.Equal(t, "Audio (7s)", message.Text)
	})

	t.Run("non-vip senders are refused", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		_, err := f.stream.AppendAudio(f.ctx, "general", sender.UID, sender.Nickname,
			"/media/u1/voice.ogg", 3, sender.IsVIP)
		assert.ErrorIs(t, err, ErrAudioRequiresVIP)

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)
		assert.Empty(t, window)
	})
}

func TestSubscribeTail(t *testing.T) {
	t.Run("delivers the current window immediately", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]
		seedMessages(f, "general", sender, "hola")

		var windows [][]Message
		cancel := f.stream.SubscribeTail(f.ctx, "general", 0, func(window []Message) {
			windows = append(windows, window)
		})
		defer cancel()

		require.Len(t, windows, 1)
		require.Len(t, windows[0], 1)
		assert.Equal(t, "hola", windows[0][0].Text)
	})

	t.Run("every append delivers the whole recomputed window", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		var windows [][]Message
		cancel := f.stream.SubscribeTail(f.ctx, "general", 0, func(window []Message) {
			windows = append(windows, window)
		})
		defer cancel()

		seedMessages(f, "general", sender, "hola", "che")

		require.Len(t, windows, 3)
		assert.Empty(t, windows[0])
		require.Len(t, windows[1], 1)
		require.Len(t, windows[2], 2)
		assert.Equal(t, "hola", windows[2][0].Text)
		assert.Equal(t, "che", windows[2][1].Text)
	})

	t.Run("window is capped and drops the oldest messages", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		bodies := make([]string, 60)
		for i := range bodies {
			bodies[i] = fmt.Sprintf("mensaje %d", i)
		}
		seedMessages(f, "general", sender, bodies...)

		var last []Message
		cancel := f.stream.SubscribeTail(f.ctx, "general", DefaultTailLimit, func(window []Message) {
			last = window
		})
		defer cancel()

		require.Len(t, last, DefaultTailLimit)
		assert.Equal(t, "mensaje 10", last[0].Text)
		assert.Equal(t, "mensaje 59", last[len(last)-1].Text)
	})

	t.Run("appends to other rooms do not leak in", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		sender := seedProfiles(f, profileSeed{uid: "u1", nickname: "mateo"})[0]

		var deliveries int
		cancel := f.stream.SubscribeTail(f.ctx, "general", 0, func([]Message) {
			deliveries++
		})
		defer cancel()

		seedMessages(f, "amistad", sender, "hola amistad")

		assert.Equal(t, 1, deliveries)
	})

	t.Run("unreachable stream reads as empty", func(t *testing.T) {
		f := NewChatFixture(t)
		f.tearDown()

		called := false
		cancel := f.stream.SubscribeTail(f.ctx, "general", 0, func(window []Message) {
			called = true
			assert.Nil(t, window)
		})

		assert.True(t, called)
		assert.NotPanics(t, func() { cancel() })
	})
}

func TestSubscribeTailConcurrentAppends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roomStore := newStubRoomStore(Room{ID: "general", Name: "General", Type: PublicRoom})
	stream := NewMessageStream(newStubMessageStore(), NewRoomDirectory(roomStore, logger), logger)

	var mu sync.Mutex
	var windows [][]Message
	cancel := stream.SubscribeTail(context.Background(), "general", 0, func(window []Message) {
		mu.Lock()
		windows = append(windows, slices.Clone(window))
		mu.Unlock()
	})
	defer cancel()

	const senders = 20
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := stream.Append(context.Background(), MessageCreateInput{
				RoomID:     "general",
				SenderID:   "u1",
				SenderName: "mateo",
				Type:       TextMessage,
				Text:       fmt.Sprintf("mensaje %d", i),
			})
			assert.Nil(t, err)
		}(i)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()

	// Every delivery extends the one before it: a later delivery never
	// carries an older window.
	require.NotEmpty(t, windows)
	for i := 1; i < len(windows); i++ {
		prev, curr := windows[i-1], windows[i]
		require.GreaterOrEqual(t, len(curr), len(prev), "window %d regressed", i)
		for j := range prev {
			assert.Equal(t, prev[j].ID, curr[j].ID)
		}
	}
	assert.Len(t, windows[len(windows)-1], senders)
}
