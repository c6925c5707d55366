package core

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/pressly/goose/v3"
)

type BaseFixture struct {
	ctx      context.Context
	db       *sql.DB
	t        *testing.T
	logger   *slog.Logger
	tearDown func()
}

func NewBaseFixture(t *testing.T) *BaseFixture {

	ctx, cancel := context.WithCancel(context.Background())

	db, err := sql.Open("sqlite3", "file::memory:?cache=shared")
	if err != nil {
		t.Fatal(err)
	}

	migrationfs := os.DirFS("../migrations")
	goose.SetBaseFS(migrationfs)

	if err := goose.SetDialect("sqlite3"); err != nil {
		t.Fatal(err)
	}

	if err := goose.Up(db, "."); err != nil {
		t.Fatal(err)
	}

	return &BaseFixture{
		ctx:    ctx,
		db:     db,
		t:      t,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tearDown: func() {
			cancel()
			db.Close()
		},
	}
}

type ChatFixture struct {
	*BaseFixture
	roomStore    RoomStore
	messageStore MessageStore
	profileStore ProfileStore
	reportStore  ReportStore

	directory  *RoomDirectory
	stream     *MessageStream
	moderation *Moderation
	presence   Presence
}

func NewChatFixture(t *testing.T) *ChatFixture {
	base := NewBaseFixture(t)

	roomStore := NewSQLiteRoomStore(base.db)
	messageStore := NewSQLiteMessageStore(base.db)
	profileStore := NewSQLiteProfileStore(base.db)
	reportStore := NewSQLiteReportStore(base.db)

	directory := NewRoomDirectory(roomStore, base.logger)
	stream := NewMessageStream(messageStore, directory, base.logger)
	moderation := NewModeration(profileStore, reportStore, base.logger)
	presence := NewMemoryPresence()

	return &ChatFixture{
		BaseFixture:  base,
		roomStore:    roomStore,
		messageStore: messageStore,
		profileStore: profileStore,
		reportStore:  reportStore,
		directory:    directory,
		stream:       stream,
		moderation:   moderation,
		presence:     presence,
	}
}
