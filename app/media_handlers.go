package charla

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/google/uuid"

	"github.com/charla-app/charla/core"
)

// maxUploadBytes bounds a single media upload.
const maxUploadBytes = 10 << 20

type MediaHandler struct {
	storage  core.ObjectStorage
	profiles core.ProfileStore
}

func NewMediaHandler(storage core.ObjectStorage, profiles core.ProfileStore) *MediaHandler {
	return &MediaHandler{storage: storage, profiles: profiles}
}

// UploadHandler stores a media file and returns its URL. Audio uploads
// are reserved for VIP senders; the same rule holds again at message
// append time.
func (h *MediaHandler) UploadHandler(w http.ResponseWriter, r *http.Request) error {
	identity := IdentityFromRequest(r)

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return NewJsonError(http.StatusBadRequest, "invalid multipart form")
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return NewJsonError(http.StatusBadRequest, "file is required")
	}
	defer file.Close()

	kind := r.FormValue("kind")
	switch kind {
	case "image":
	case "audio":
		profile, err := h.profiles.GetProfile(r.Context(), identity.UID)
		if err != nil {
			return err
		}
		if profile == nil || !profile.IsVIP {
			return NewJsonError(http.StatusForbidden, core.ErrAudioRequiresVIP.Error())
		}
	default:
		return NewJsonError(http.StatusBadRequest, "kind must be image or audio")
	}

	name := path.Join(identity.UID, uuid.New().String()+path.Ext(header.Filename))
	url, err := h.storage.Store(r.Context(), name, file)
	if err != nil {
		return fmt.Errorf("Store: %w", err)
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]string{"url": url}); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}
