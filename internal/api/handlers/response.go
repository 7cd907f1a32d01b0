// Package handlers implements the agswitch command API. Every response is a
// JSON object with a "success" field; failures add "error".
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/auth/google"
	"github.com/pysugar/antigravity-switch/internal/quota"
)

// maxBodyBytes bounds request bodies, imports included.
const maxBodyBytes = 4 << 20

var errBadRequest = errors.New("invalid request")

func writeJSON(w http.ResponseWriter, status int, body map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("⚠️ [api] encode response: %v", err)
	}
}

func writeOK(w http.ResponseWriter, body map[string]interface{}) {
	if body == nil {
		body = map[string]interface{}{}
	}
	body["success"] = true
	writeJSON(w, http.StatusOK, body)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("❌ [api] %v", err)
	}
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, accounts.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, accounts.ErrDuplicateAccount):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, accounts.ErrNoValidAccounts),
		errors.Is(err, google.ErrOAuthCallback):
		return http.StatusBadRequest
	case errors.Is(err, google.ErrTokenExchangeFailed),
		errors.Is(err, google.ErrTokenRefreshFailed),
		errors.Is(err, google.ErrProfileFetchFailed),
		errors.Is(err, quota.ErrForbidden),
		errors.Is(err, quota.ErrProjectUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
