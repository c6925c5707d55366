package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlocking(t *testing.T) {
	t.Run("block and unblock round trip", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedProfiles(f,
			profileSeed{uid: "u1", nickname: "mateo"},
			profileSeed{uid: "u2", nickname: "sofi"})

		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))

		blocked, err := f.moderation.IsBlocked(f.ctx, "u1", "u2")
		require.Nil(t, err)
		assert.True(t, blocked)

		// Blocking is one-directional.
		reverse, err := f.moderation.IsBlocked(f.ctx, "u2", "u1")
		require.Nil(t, err)
		assert.False(t, reverse)

		require.Nil(t, f.moderation.Unblock(f.ctx, "u1", "u2"))
		blocked, err = f.moderation.IsBlocked(f.ctx, "u1", "u2")
		require.Nil(t, err)
		assert.False(t, blocked)
	})

	t.Run("block is idempotent", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		seedProfiles(f,
			profileSeed{uid: "u1", nickname: "mateo"},
			profileSeed{uid: "u2", nickname: "sofi"})

		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))
		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))

		blocked, err := f.moderation.Blocked(f.ctx, "u1")
		require.Nil(t, err)
		assert.Equal(t, []string{"u2"}, blocked)

		// Unblocking an unblocked user is also a no-op.
		require.Nil(t, f.moderation.Unblock(f.ctx, "u1", "u3"))
	})
}

func TestRenderWindow(t *testing.T) {
	t.Run("suppresses blocked senders per viewer", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		profiles := seedProfiles(f,
			profileSeed{uid: "u1", nickname: "mateo"},
			profileSeed{uid: "u2", nickname: "sofi"},
			profileSeed{uid: "u3", nickname: "lucas"})

		seedMessages(f, "general", profiles[0], "hola")
		seedMessages(f, "general", profiles[1], "grosero")
		seedMessages(f, "general", profiles[2], "todo bien")

		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)

		rendered := f.moderation.RenderWindow(f.ctx, "u1", window)
		require.Len(t, rendered, 3)
		assert.False(t, rendered[0].Hidden)
		assert.True(t, rendered[1].Hidden)
		assert.Equal(t, BlockedPlaceholder, rendered[1].Text)
		assert.Empty(t, rendered[1].MediaURL)
		// Sender attribution survives so the viewer can unblock.
		assert.Equal(t, "u2", rendered[1].SenderID)
		assert.False(t, rendered[2].Hidden)

		// Another viewer sees the message untouched.
		other := f.moderation.RenderWindow(f.ctx, "u3", window)
		require.Len(t, other, 3)
		assert.False(t, other[1].Hidden)
		assert.Equal(t, "grosero", other[1].Text)
	})

	t.Run("keeps count and order stable", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		profiles := seedProfiles(f,
			profileSeed{uid: "u1", nickname: "mateo"},
			profileSeed{uid: "u2", nickname: "sofi"})

		seedMessages(f, "general", profiles[1], "uno", "dos", "tres")
		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)
		rendered := f.moderation.RenderWindow(f.ctx, "u1", window)

		require.Len(t, rendered, len(window))
		for i, r := range rendered {
			assert.Equal(t, window[i].ID, r.ID)
			assert.True(t, r.Hidden)
		}
	})

	t.Run("stored messages are untouched by blocking", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()
		require.Nil(t, f.directory.EnsureDefaults(f.ctx))
		profiles := seedProfiles(f,
			profileSeed{uid: "u1", nickname: "mateo"},
			profileSeed{uid: "u2", nickname: "sofi"})

		seedMessages(f, "general", profiles[1], "hola")
		require.Nil(t, f.moderation.Block(f.ctx, "u1", "u2"))
		require.Nil(t, f.moderation.Unblock(f.ctx, "u1", "u2"))

		window, err := f.stream.Tail(f.ctx, "general", 0)
		require.Nil(t, err)
		rendered := f.moderation.RenderWindow(f.ctx, "u1", window)
		require.Len(t, rendered, 1)
		assert.False(t, rendered[0].Hidden)
		assert.Equal(t, "hola", rendered[0].Text)
	})
}

func TestReport(t *testing.T) {
	t.Run("files a pending report", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		err := f.moderation.Report(f.ctx, ReportInput{
			ReporterID: "u1",
			Target:     ReportUser,
			TargetID:   "u2",
			RoomID:     "general",
			Reason:     "spam",
		})
		require.Nil(t, err)

		var status string
		row := f.db.QueryRow(`SELECT status FROM reports WHERE reporter_id = 'u1'`)
		require.Nil(t, row.Scan(&status))
		assert.Equal(t, string(ReportPending), status)
	})

	t.Run("rejects unknown reasons and targets", func(t *testing.T) {
		f := NewChatFixture(t)
		defer f.tearDown()

		err := f.moderation.Report(f.ctx, ReportInput{
			ReporterID: "u1",
			Target:     ReportUser,
			TargetID:   "u2",
			Reason:     "just because",
		})
		assert.ErrorIs(t, err, ErrInvalidReport)

		err = f.moderation.Report(f.ctx, ReportInput{
			ReporterID: "u1",
			Target:     "planet",
			TargetID:   "earth",
			Reason:     "spam",
		})
		assert.ErrorIs(t, err, ErrInvalidReport)
	})
}
