package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/hopegrove/hopegrove/internal/repository"
	"github.com/hopegrove/hopegrove/internal/validation"
)

// AvailabilityHandler answers the signup form's live "is this taken?"
// checks. Answers are advisory, registration still enforces uniqueness.
type AvailabilityHandler struct {
	users repository.UserRepository
}

func NewAvailabilityHandler(users repository.UserRepository) *AvailabilityHandler {
	return &AvailabilityHandler{users: users}
}

func (h *AvailabilityHandler) CheckEmail(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("email")))

	err := validation.ValidateEmail(email)
	if err != nil {
		respondError(w, http.StatusBadRequest, KindValidation, err.Error())
		return
	}

	_, err = h.users.ByEmail(email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondJSON(w, http.StatusOK, map[string]any{"available": true})
			return
		}
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"available": false})
}

func (h *AvailabilityHandler) CheckUsername(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(strings.ToLower(r.URL.Query().Get("username")))

	err := validation.ValidateUsername(username)
	if err != nil {
		respondError(w, http.StatusBadRequest, KindValidation, err.Error())
		return
	}

	_, err = h.users.ByUsername(username)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			respondJSON(w, http.StatusOK, map[string]any{"available": true})
			return
		}
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"available": false})
}
