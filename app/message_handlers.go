package charla

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/charla-app/charla/core"
)

// SendLimiter caps the per-sender message rate across transports. The
// HTTP and websocket send paths share one instance so switching
// transports does not reset the budget.
type SendLimiter struct {
	limiters *core.SyncMap[string, *rate.Limiter]
	rate     rate.Limit
	burst    int
}

func NewSendLimiter(perSecond float64, burst int) *SendLimiter {
	return &SendLimiter{
		limiters: core.NewSyncMap[string, *rate.Limiter](),
		rate:     rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether uid may send another message right now.
func (l *SendLimiter) Allow(uid string) bool {
	limiter := l.limiters.LoadOrStore(uid, func() *rate.Limiter {
		return rate.NewLimiter(l.rate, l.burst)
	})
	return limiter.Allow()
}

type MessageHandler struct {
	stream     *core.MessageStream
	moderation *core.Moderation
	profiles   core.ProfileStore
	limiter    *SendLimiter
}

func NewMessageHandler(stream *core.MessageStream, moderation *core.Moderation, profiles core.ProfileStore, limiter *SendLimiter) *MessageHandler {
	return &MessageHandler{
		stream:     stream,
		moderation: moderation,
		profiles:   profiles,
		limiter:    limiter,
	}
}

// TailHandler returns the room's current message window, oldest first,
// with the caller's blocked senders suppressed.
func (h *MessageHandler) TailHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	roomID := chi.URLParam(r, "roomID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	window, err := h.stream.Tail(r.Context(), roomID, limit)
	if err != nil {
		return err
	}

	rendered := h.moderation.RenderWindow(r.Context(), identity.UID, window)
	if err := json.NewEncoder(w).Encode(rendered); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

type SendPayload struct {
	Type     core.MessageType `json:"type"`
	Text     string           `json:"text"`
	MediaURL string           `json:"media_url"`
	// DurationSeconds only applies to audio messages.
	DurationSeconds int `json:"duration_seconds"`
}

// SendHandler appends a message to the room on behalf of the caller.
func (h *MessageHandler) SendHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	roomID := chi.URLParam(r, "roomID")

	var payload SendPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
	if err != nil {
		return err
	}
	if profile == nil {
		return NewJsonError(http.StatusForbidden, "profile required to send messages")
	}

	if !h.limiter.Allow(identity.UID) {
		return NewJsonError(http.StatusTooManyRequests, "sending too fast")
	}

	message, err := h.append(r, roomID, profile, payload)
	if err != nil {
		if errors.Is(err, core.ErrInvalidMessage) || errors.Is(err, core.ErrMessageTooLong) {
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, core.ErrAudioRequiresVIP) {
			return NewJsonError(http.StatusForbidden, err.Error())
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(message); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *MessageHandler) append(r *http.Request, roomID string, profile *core.Profile, payload SendPayload) (*core.Message, error) {
	return appendToStream(r.Context(), h.stream, roomID, profile, payload)
}

// appendToStream dispatches a send payload to the stream. The HTTP and
// websocket send paths both funnel through here.
func appendToStream(ctx context.Context, stream *core.MessageStream, roomID string, profile *core.Profile, payload SendPayload) (*core.Message, error) {
	switch payload.Type {
	case core.ImageMessage:
		return stream.AppendImage(ctx, roomID, profile.UID, profile.Nickname, payload.MediaURL, payload.Text)
	case core.AudioMessage:
		return stream.AppendAudio(ctx, roomID, profile.UID, profile.Nickname, payload.MediaURL, payload.DurationSeconds, profile.IsVIP)
	default:
		return stream.Append(ctx, core.MessageCreateInput{
			RoomID:     roomID,
			SenderID:   profile.UID,
			SenderName: profile.Nickname,
			Type:       core.TextMessage,
			Text:       payload.Text,
		})
	}
}
