package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/hopegrove/hopegrove/internal/ctxkeys"
	"github.com/hopegrove/hopegrove/internal/service"
	"github.com/hopegrove/hopegrove/internal/validation"
)

// 25 MB, matches the storage layer's single-part upload path.
const maxShareUploadBytes = 25 << 20

type ShareHandler struct {
	shares *service.ShareService
}

func NewShareHandler(shares *service.ShareService) *ShareHandler {
	return &ShareHandler{shares: shares}
}

// Create accepts a multipart upload with a "file" part and a "password"
// field and returns the share link id. Requires authentication.
func (h *ShareHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := ctxkeys.UserID(r.Context())
	if userID == "" {
		respondError(w, http.StatusUnauthorized, KindAuth, "authentication required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxShareUploadBytes)
	err := r.ParseMultipartForm(maxShareUploadBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, KindValidation, "invalid multipart upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, KindValidation, "missing file")
		return
	}
	defer func() {
		closeErr := file.Close()
		if closeErr != nil {
			slog.Error("failed to close upload", "error", closeErr)
		}
	}()

	shared, err := h.shares.Share(r.Context(), service.ShareInput{
		UserID:       userID,
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Size:         header.Size,
		Password:     r.FormValue("password"),
		Body:         file,
	})
	if err != nil {
		if validation.IsError(err) {
			respondError(w, http.StatusBadRequest, KindValidation, err.Error())
			return
		}
		respondInternal(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"share_id":   shared.ShareID,
		"name":       shared.OriginalName,
		"expires_at": shared.ExpiresAt,
	})
}

// Resolve exchanges a share id plus password for a short-lived download URL.
func (h *ShareHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	shareID := r.PathValue("shareID")

	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	url, file, err := h.shares.Resolve(r.Context(), shareID, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrShareNotFound):
			respondError(w, http.StatusNotFound, KindNotFound, err.Error())
		case errors.Is(err, service.ErrShareExpired):
			respondError(w, http.StatusGone, KindGone, err.Error())
		case errors.Is(err, service.ErrSharePasswordInvalid):
			respondError(w, http.StatusUnauthorized, KindAuth, err.Error())
		default:
			respondInternal(w, err)
		}
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"name":       file.OriginalName,
		"mime_type":  file.MimeType,
		"size":       file.Size,
		"expires_at": file.ExpiresAt,
	})
}
