package charla

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/charla-app/charla/core"
)

type ModerationHandler struct {
	moderation *core.Moderation
}

func NewModerationHandler(moderation *core.Moderation) *ModerationHandler {
	return &ModerationHandler{moderation: moderation}
}

func (h *ModerationHandler) BlockHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	target := chi.URLParam(r, "uid")

	if target == identity.UID {
		return NewJsonError(http.StatusBadRequest, "cannot block yourself")
	}

	if err := h.moderation.Block(r.Context(), identity.UID, target); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *ModerationHandler) UnblockHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)
	target := chi.URLParam(r, "uid")

	if err := h.moderation.Unblock(r.Context(), identity.UID, target); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	return nil
}

func (h *ModerationHandler) ListBlocksHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	blocked, err := h.moderation.Blocked(r.Context(), identity.UID)
	if err != nil {
		return err
	}
	if blocked == nil {
		blocked = []string{}
	}

	if err := json.NewEncoder(w).Encode(blocked); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// ReportHandler files a report. Reports are append-only; filing one has
// no visible effect on rooms or messages.
func (h *ModerationHandler) ReportHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	var input core.ReportInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	input.ReporterID = identity.UID
	if err := h.moderation.Report(r.Context(), input); err != nil {
		if errors.Is(err, core.ErrInvalidReport) {
			return NewJsonError(http.StatusBadRequest, err.Error())
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	return nil
}
