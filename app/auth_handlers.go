package charla

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type AuthHandler struct {
	store *AuthStore
}

func NewAuthHandler(store *AuthStore) *AuthHandler {
	return &AuthHandler{store: store}
}

type CredentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) error {
	var payload CredentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	identity, err := h.store.Register(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return NewJsonError(http.StatusConflict, err.Error())
		}
		if errors.Is(err, ErrBadCredentials) {
			return NewJsonError(http.StatusBadRequest, "email and password are required")
		}
		return err
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(identity); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *AuthHandler) SigninHandler(w http.ResponseWriter, r *http.Request) error {
	var payload CredentialsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		return fmt.Errorf("Decode: %w", err)
	}
	defer r.Body.Close()

	session, err := h.store.Signin(r.Context(), payload.Email, payload.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			return NewJsonError(http.StatusUnauthorized, err.Error())
		}
		return err
	}

	cookie := http.Cookie{
		Name:     AuthCookieName,
		Value:    session.Token,
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		Path:     "/",
	}

	http.SetCookie(w, &cookie)

	if err := json.NewEncoder(w).Encode(session); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

func (h *AuthHandler) SignoutHandler(w http.ResponseWriter, r *http.Request) error {
	http.SetCookie(w, &http.Cookie{
		Name:     AuthCookieName,
		Value:    "",
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusOK)
	return nil
}
