package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Every JSON response uses the same envelope: {"ok":true,"data":…} on
// success, {"ok":false,"kind":…,"detail":…} on failure. "kind" is the
// machine-readable class; "code" further disambiguates outcomes that share
// a kind and status.
const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindInvalidToken = "invalid_token"
	KindAuth         = "auth"
	KindGone         = "gone"
	KindRateLimited  = "rate_limited"
	KindDependency   = "dependency"
)

type successEnvelope struct {
	OK   bool `json:"ok"`
	Data any  `json:"data"`
}

type errorEnvelope struct {
	OK     bool   `json:"ok"`
	Kind   string `json:"kind"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(successEnvelope{OK: true, Data: data})
	if err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, kind, detail string) {
	respondErrorCode(w, status, kind, "", detail)
}

func respondErrorCode(w http.ResponseWriter, status int, kind, code, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(errorEnvelope{Kind: kind, Code: code, Detail: detail})
	if err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// respondInternal hides the cause from the client and logs it server-side.
func respondInternal(w http.ResponseWriter, err error) {
	slog.Error("request failed", "error", err)
	respondError(w, http.StatusInternalServerError, KindDependency, "something went wrong, please try again")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err != nil {
		respondError(w, http.StatusBadRequest, KindValidation, "invalid request body")
		return false
	}
	return true
}
