package charla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/charla-app/charla/core"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// How often a live connection refreshes the viewer's last-seen marks.
	heartbeatPeriod = 30 * time.Second
)

var defaultUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsEvent is the envelope for everything pushed to a websocket client.
type wsEvent struct {
	Type     string                 `json:"type"`
	Rooms    []core.Room            `json:"rooms,omitempty"`
	Messages []core.RenderedMessage `json:"messages,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// WSHandler serves the two live surfaces: the room directory feed and
// per-room sessions that deliver message windows and accept sends.
type WSHandler struct {
	directory  *core.RoomDirectory
	stream     *core.MessageStream
	moderation *core.Moderation
	presence   core.Presence
	profiles   core.ProfileStore
	auth       *AuthStore
	limiter    *SendLimiter
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	wg         *sync.WaitGroup
}

func NewWSHandler(
	directory *core.RoomDirectory,
	stream *core.MessageStream,
	moderation *core.Moderation,
	presence core.Presence,
	profiles core.ProfileStore,
	auth *AuthStore,
	limiter *SendLimiter,
	logger *slog.Logger,
	wg *sync.WaitGroup,
) *WSHandler {
	return &WSHandler{
		directory:  directory,
		stream:     stream,
		moderation: moderation,
		presence:   presence,
		profiles:   profiles,
		auth:       auth,
		limiter:    limiter,
		logger:     logger,
		upgrader:   defaultUpgrader,
		wg:         wg,
	}
}

// enqueueLatest offers an event to a capacity-1 channel, replacing any
// event still waiting. Every pushed event is a full snapshot, so a
// client that misses an intermediate one still converges on the next.
func enqueueLatest(send chan wsEvent, event wsEvent) {
	for {
		select {
		case send <- event:
			return
		default:
		}
		select {
		case <-send:
		default:
		}
	}
}

// DirectoryHandler streams room catalog snapshots to the client. The
// client receives the currently visible catalog immediately and a fresh
// full snapshot after every catalog change.
func (h *WSHandler) DirectoryHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
	if err != nil {
		return err
	}
	isVIP := profile != nil && profile.IsVIP

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan wsEvent, 1)
	cancelFeed := h.directory.Subscribe(ctx, isVIP, func(rooms []core.Room) {
		enqueueLatest(send, wsEvent{Type: "rooms", Rooms: rooms})
	})
	defer cancelFeed()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(ctx, conn, send)
	}()

	h.discardLoop(conn)
	return nil
}

// RoomHandler runs a room session over a websocket. Joining delivers
// the current window rendered for the viewer; every append in the room
// delivers a fresh window; inbound frames are sends.
func (h *WSHandler) RoomHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	roomID := chi.URLParam(r, "roomID")

	profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
	if err != nil {
		return err
	}
	if profile == nil {
		return NewJsonError(http.StatusForbidden, "profile required to join rooms")
	}

	room, err := h.directory.Get(r.Context(), roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewJsonError(http.StatusNotFound, "room not found")
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	send := make(chan wsEvent, 1)
	session := core.NewRoomSession(h.directory, h.stream, h.presence, h.logger,
		core.WithDelivery(func(window []core.Message) {
			rendered := h.moderation.RenderWindow(ctx, profile.UID, window)
			enqueueLatest(send, wsEvent{Type: "window", Messages: rendered})
		}))

	if err := session.Join(ctx, *profile, *room); err != nil {
		if errors.Is(err, core.ErrVIPOnly) {
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
			conn.Close()
			return nil
		}
		conn.Close()
		return err
	}
	defer session.Leave(context.Background())

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.writeLoop(ctx, conn, send)
	}()

	provider := NewTokenIdentityProvider(h.auth, requestToken(r))
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.heartbeatLoop(ctx, provider)
	}()

	h.readLoop(conn, roomID, profile, send)
	return nil
}

// readLoop consumes send payloads from the client until the connection
// drops. Rejected sends are reported back on the connection instead of
// tearing it down.
func (h *WSHandler) readLoop(conn *websocket.Conn, roomID string, profile *core.Profile, send chan wsEvent) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		format, reader, err := conn.NextReader()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			if websocket.IsUnexpectedCloseError(err) {
				h.logger.Error(fmt.Sprintf("unexpected close: %v", err))
				return
			}
			h.logger.Error(fmt.Sprintf("NextReader: %v", err))
			return
		}

		if format != websocket.TextMessage {
			h.logger.Error(fmt.Sprintf("unexpected message format: %v", format))
			continue
		}

		var payload SendPayload
		if err := json.NewDecoder(reader).Decode(&payload); err != nil {
			enqueueLatest(send, wsEvent{Type: "error", Error: "malformed payload"})
			continue
		}

		if !h.limiter.Allow(profile.UID) {
			enqueueLatest(send, wsEvent{Type: "error", Error: "sending too fast"})
			continue
		}

		if _, err := appendToStream(context.Background(), h.stream, roomID, profile, payload); err != nil {
			if errors.Is(err, core.ErrInvalidMessage) ||
				errors.Is(err, core.ErrMessageTooLong) ||
				errors.Is(err, core.ErrAudioRequiresVIP) {
				enqueueLatest(send, wsEvent{Type: "error", Error: err.Error()})
				continue
			}
			h.logger.Error(fmt.Sprintf("append: %v", err))
			enqueueLatest(send, wsEvent{Type: "error", Error: "message not delivered"})
		}
	}
}

// discardLoop drains inbound frames on connections that only push,
// keeping pong handling alive and noticing the close.
func (h *WSHandler) discardLoop(conn *websocket.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, send chan wsEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case event := <-send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			writer, err := conn.NextWriter(websocket.TextMessage)
			if err != nil {
				h.logger.Error(fmt.Sprintf("getting next writer: %v", err))
				return
			}
			if err := json.NewEncoder(writer).Encode(event); err != nil {
				h.logger.Error(fmt.Sprintf("Encode: %v", err))
			}
			writer.Close()
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error(fmt.Sprintf("writing ping: %v", err))
				return
			}
		}
	}
}

// heartbeatLoop refreshes the viewer's last-seen marks while the
// connection lives and its session token still resolves.
func (h *WSHandler) heartbeatLoop(ctx context.Context, provider core.IdentityProvider) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			identity, err := provider.Current(ctx)
			if err != nil {
				h.logger.Warn("identity lookup failed", slog.String("error", err.Error()))
				continue
			}
			if identity == nil {
				return
			}
			uid := identity.UID
			if err := h.profiles.Heartbeat(ctx, uid); err != nil {
				h.logger.Warn("heartbeat failed", slog.String("uid", uid), slog.String("error", err.Error()))
			}
			if err := h.presence.Heartbeat(ctx, uid); err != nil {
				h.logger.Warn("presence heartbeat failed", slog.String("uid", uid), slog.String("error", err.Error()))
			}
		}
	}
}
