package charla

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/charla-app/charla/core"
)

type ProfileHandler struct {
	profiles core.ProfileStore
	presence core.Presence
}

func NewProfileHandler(profiles core.ProfileStore, presence core.Presence) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, presence: presence}
}

// EnsureHandler creates the caller's profile on first call and returns
// the existing one on every call after that.
func (h *ProfileHandler) EnsureHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	var input core.ProfileCreateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	profile, err := h.profiles.EnsureProfile(r.Context(), identity.UID, input)
	if err != nil {
		if errors.Is(err, core.ErrNicknameTaken) {
			return NewJsonError(http.StatusConflict, err.Error())
		}
		if errors.Is(err, core.ErrInvalidProfile) {
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	if err := json.NewEncoder(w).Encode(profile); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *ProfileHandler) MeHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
	if err != nil {
		return err
	}
	if profile == nil {
		return NewJsonError(http.StatusNotFound, "profile not found")
	}

	if err := json.NewEncoder(w).Encode(profile); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *ProfileHandler) UpdateMeHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	var input core.ProfileUpdateInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	err := h.profiles.UpdateProfile(r.Context(), identity.UID, input)
	if err != nil {
		if errors.Is(err, core.ErrNicknameTaken) {
			return NewJsonError(http.StatusConflict, err.Error())
		}
		if errors.Is(err, core.ErrInvalidProfile) {
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		if errors.Is(err, core.ErrUnknownProfile) {
			return NewJsonError(http.StatusNotFound, err.Error())
		}
		return err
	}

	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *ProfileHandler) GetHandler(w http.ResponseWriter, r *http.Request) error {
	uid := chi.URLParam(r, "uid")

	profile, err := h.profiles.GetProfile(r.Context(), uid)
	if err != nil {
		return err
	}
	if profile == nil {
		return NewJsonError(http.StatusNotFound, "profile not found")
	}

	if err := json.NewEncoder(w).Encode(profile); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// SearchHandler searches profiles by nickname prefix.
func (h *ProfileHandler) SearchHandler(w http.ResponseWriter, r *http.Request) error {
	prefix := r.URL.Query().Get("q")
	if prefix == "" {
		return NewJsonError(http.StatusBadRequest, "q is required")
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	profiles, err := h.profiles.SearchProfiles(r.Context(), prefix, limit)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(profiles); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// NicknameHandler reports whether a nickname is still free. The check
// is advisory; a racing registration can still claim it first.
func (h *ProfileHandler) NicknameHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	nickname := chi.URLParam(r, "nickname")

	available, err := h.profiles.NicknameAvailable(r.Context(), nickname, identity.UID)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(map[string]bool{"available": available}); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// HeartbeatHandler records that the caller is still around.
func (h *ProfileHandler) HeartbeatHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	if err := h.profiles.Heartbeat(r.Context(), identity.UID); err != nil {
		return err
	}
	if err := h.presence.Heartbeat(r.Context(), identity.UID); err != nil {
		return err
	}

	w.WriteHeader(http.StatusOK)
	return nil
}

// CatalogsHandler returns the fixed gender and province catalogs the
// profile form offers.
func (h *ProfileHandler) CatalogsHandler(w http.ResponseWriter, r *http.Request) error {
	catalogs := map[string][]string{
		"genders": {
			core.GenderMale,
			core.GenderFemale,
			core.GenderOther,
			core.GenderPreferNotToSay,
		},
		"provinces": core.ArgentinaProvinces,
	}

	if err := json.NewEncoder(w).Encode(catalogs); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}
