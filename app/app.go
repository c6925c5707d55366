package charla

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/cors"

	"github.com/charla-app/charla/core"
)

const mediaURLPrefix = "/media"

type App struct {
	config  *Config
	db      *core.SQLiteDB
	pg      *core.PostgresStore
	context context.Context
	server  *http.Server
	logger  *slog.Logger
	router  *Router

	exit chan int

	roomStore    core.RoomStore
	messageStore core.MessageStore
	profileStore core.ProfileStore
	reportStore  core.ReportStore

	directory  *core.RoomDirectory
	stream     *core.MessageStream
	moderation *core.Moderation
	presence   core.Presence

	authStore *AuthStore
	storage   *DiskStorage
	limiter   *SendLimiter

	authHandler       *AuthHandler
	profileHandler    *ProfileHandler
	roomHandler       *RoomHandler
	messageHandler    *MessageHandler
	moderationHandler *ModerationHandler
	mediaHandler      *MediaHandler
	wsHandler         *WSHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

func New(ctx context.Context, config *Config) *App {
	var err error
	app := &App{
		exit: make(chan int),
	}
	if ctx == nil {
		ctx, _ = signal.NotifyContext(
			context.Background(),
			syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)
	}
	app.context = ctx

	if config == nil {
		var err error
		config, err = LoadConfig()
		if err != nil {
			failed(1, "failed to load config: %v\n", err)
		}
	}
	if err := config.Validate(); err != nil {
		failed(1, FormatValidationErrors(err))
	}
	app.config = config

	app.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))

	// Accounts always live in SQLite; the Postgres switch below only
	// moves the chat domain data.
	sqliteOptions := &core.SQLiteDBOption{
		Mode:        "rwc",
		Cache:       "shared",
		JournalMode: "WAL",
	}
	app.db, err = core.NewSQLiteDB(app.config.SQLite.File, app.config.SQLite.Migrations, sqliteOptions)
	if err != nil {
		failed(1, "failed to open database: %v\n", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err := app.db.Migrate(); err != nil {
		failed(1, "failed to migrate database: %v\n", err)
	}

	if app.config.Postgres.URL != "" {
		app.pg, err = core.NewPostgresStore(ctx, app.config.Postgres.URL)
		if err != nil {
			failed(1, "failed to connect to postgres: %v\n", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			app.pg.Close()
		})
		if err := app.pg.InitSchema(ctx); err != nil {
			failed(1, "failed to init postgres schema: %v\n", err)
		}
		app.roomStore = app.pg
		app.messageStore = app.pg
		app.profileStore = app.pg
		app.reportStore = app.pg
	} else {
		app.roomStore = core.NewSQLiteRoomStore(app.db.DB)
		app.messageStore = core.NewSQLiteMessageStore(app.db.DB)
		app.profileStore = core.NewSQLiteProfileStore(app.db.DB)
		app.reportStore = core.NewSQLiteReportStore(app.db.DB)
	}

	if app.config.Redis.URL != "" {
		redisPresence, err := core.NewRedisPresence(ctx, app.config.Redis.URL)
		if err != nil {
			failed(1, "failed to connect to redis: %v\n", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			redisPresence.Close()
		})
		app.presence = redisPresence
	} else {
		app.presence = core.NewMemoryPresence()
	}

	app.directory = core.NewRoomDirectory(app.roomStore, app.logger)
	if err := app.directory.EnsureDefaults(ctx); err != nil {
		failed(1, "failed to seed default rooms: %v\n", err)
	}
	app.stream = core.NewMessageStream(app.messageStore, app.directory, app.logger)
	app.moderation = core.NewModeration(app.profileStore, app.reportStore, app.logger)

	app.authStore = NewAuthStore(app.db.DB, []byte(app.config.Auth.Secret), app.config.Auth.TokenTTL)
	app.storage, err = NewDiskStorage(app.config.Media.Dir, mediaURLPrefix)
	if err != nil {
		failed(1, "failed to open media storage: %v\n", err)
	}
	app.limiter = NewSendLimiter(app.config.Chat.MessagesPerSecond, app.config.Chat.Burst)

	app.authHandler = NewAuthHandler(app.authStore)
	app.profileHandler = NewProfileHandler(app.profileStore, app.presence)
	app.roomHandler = NewRoomHandler(app.directory, app.profileStore, app.presence)
	app.messageHandler = NewMessageHandler(app.stream, app.moderation, app.profileStore, app.limiter)
	app.moderationHandler = NewModerationHandler(app.moderation)
	app.mediaHandler = NewMediaHandler(app.storage, app.profileStore)
	app.wsHandler = NewWSHandler(app.directory, app.stream, app.moderation, app.presence,
		app.profileStore, app.authStore, app.limiter, app.logger, &app.wg)
	authMiddleware := JWTMiddleware(app.authStore)

	app.router = NewRouter(WithRouterLogger(app.logger))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.Route("/ws", func(r *Router) {
		r.Use(authMiddleware)
		r.Get("/rooms", app.wsHandler.DirectoryHandler)
		r.Get("/rooms/{roomID}", app.wsHandler.RoomHandler)
	})

	api := NewRouter(WithRouterLogger(app.logger))

	api.Route("/auth", func(r *Router) {
		r.Post("/register", app.authHandler.RegisterHandler)
		r.Post("/signin", app.authHandler.SigninHandler)
		r.Post("/signout", app.authHandler.SignoutHandler)
	})

	api.Group(func(r *Router) {
		r.Use(authMiddleware)

		r.Get("/catalogs", app.profileHandler.CatalogsHandler)

		r.Post("/profiles", app.profileHandler.EnsureHandler)
		r.Get("/profiles/me", app.profileHandler.MeHandler)
		r.Put("/profiles/me", app.profileHandler.UpdateMeHandler)
		r.Post("/profiles/me/heartbeat", app.profileHandler.HeartbeatHandler)
		r.Get("/profiles/search", app.profileHandler.SearchHandler)
		r.Get("/profiles/{uid}", app.profileHandler.GetHandler)
		r.Get("/nicknames/{nickname}/available", app.profileHandler.NicknameHandler)

		r.Get("/rooms", app.roomHandler.ListHandler)
		r.Post("/rooms", app.roomHandler.CreateHandler)
		r.Get("/rooms/{roomID}", app.roomHandler.GetHandler)
		r.Get("/rooms/{roomID}/online", app.roomHandler.OnlineHandler)
		r.Get("/rooms/{roomID}/messages", app.messageHandler.TailHandler)
		r.Post("/rooms/{roomID}/messages", app.messageHandler.SendHandler)

		r.Get("/blocks", app.moderationHandler.ListBlocksHandler)
		r.Post("/blocks/{uid}", app.moderationHandler.BlockHandler)
		r.Delete("/blocks/{uid}", app.moderationHandler.UnblockHandler)
		r.Post("/reports", app.moderationHandler.ReportHandler)

		r.Post("/media", app.mediaHandler.UploadHandler)
	})

	app.router.Mount("/api", api)

	app.router.Router.Mount(mediaURLPrefix, app.storage.FileServer())

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", app.config.Hostname, app.config.Port),
		Handler: app.router.Router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}

	return app
}

func (app *App) Start() {
	// listen for shutdown signal
	go func() {
		<-app.context.Done()
		closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer closeCancel()
		var wg sync.WaitGroup

		for _, f := range app.cleanupFuncs {
			wg.Add(1)
			go func(f func(context.Context)) {
				defer wg.Done()
				f(closeCtx)
			}(f)
		}

		done := make(chan struct{})
		go func() {
			wg.Wait()
			app.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			app.logger.Info("app shutdown gracefully")
			app.exit <- 0
		case <-closeCtx.Done():
			app.logger.Info("app shutdown timed out")
			app.exit <- 1
		}
	}()

	app.AddCleanupFunc(func(ctx context.Context) {
		app.server.Shutdown(ctx)
	})
	app.logger.Info(fmt.Sprintf("app running on: %s:%d",
		app.config.Hostname, app.config.Port))

	err := app.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		failed(1, "server error: %v\n", err)
	}

	code := <-app.exit
	os.Exit(code)
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

func failed(code int, s string, args ...interface{}) {
	fmt.Printf(s, args...)
	os.Exit(code)
}
