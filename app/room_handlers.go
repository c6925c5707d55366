package charla

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/charla-app/charla/core"
)

type RoomHandler struct {
	directory *core.RoomDirectory
	profiles  core.ProfileStore
	presence  core.Presence
}

func NewRoomHandler(directory *core.RoomDirectory, profiles core.ProfileStore, presence core.Presence) *RoomHandler {
	return &RoomHandler{directory: directory, profiles: profiles, presence: presence}
}

// viewerIsVIP resolves the caller's tier. A missing profile reads as
// non-VIP.
func (h *RoomHandler) viewerIsVIP(r *http.Request) (bool, error) {
	identity := IdentityFromRequest(r)
	profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
	if err != nil {
		return false, err
	}
	return profile != nil && profile.IsVIP, nil
}

// ListHandler returns the room catalog the caller is allowed to see,
// most recently active first.
func (h *RoomHandler) ListHandler(w http.ResponseWriter, r *http.Request) error {
	isVIP, err := h.viewerIsVIP(r)
	if err != nil {
		return err
	}

	rooms, err := h.directory.List(r.Context(), isVIP)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(rooms); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *RoomHandler) GetHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := chi.URLParam(r, "roomID")

	room, err := h.directory.Get(r.Context(), roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewJsonError(http.StatusNotFound, "room not found")
	}

	if room.Type == core.VIPOnlyRoom {
		isVIP, err := h.viewerIsVIP(r)
		if err != nil {
			return err
		}
		if !isVIP {
			return NewJsonError(http.StatusForbidden, core.ErrVIPOnly.Error())
		}
	}

	if err := json.NewEncoder(w).Encode(room); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *RoomHandler) CreateHandler(w http.ResponseWriter, r *http.Request) error {
	var input core.RoomCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	id, err := h.directory.Create(r.Context(), input)
	if err != nil {
		if errors.Is(err, core.ErrInvalidRoom) {
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"id": id}); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// OnlineHandler returns the UIDs currently present in the room.
func (h *RoomHandler) OnlineHandler(w http.ResponseWriter, r *http.Request) error {
	roomID := chi.URLParam(r, "roomID")

	room, err := h.directory.Get(r.Context(), roomID)
	if err != nil {
		return err
	}
	if room == nil {
		return NewJsonError(http.StatusNotFound, "room not found")
	}

	online, err := h.presence.Online(r.Context(), roomID)
	if err != nil {
		return err
	}
	if online == nil {
		online = []string{}
	}

	if err := json.NewEncoder(w).Encode(online); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}
