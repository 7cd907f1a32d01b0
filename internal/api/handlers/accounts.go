package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/auth/google"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/quota"
)

// AccountStore is the account file as the API sees it.
type AccountStore interface {
	Add(email, refreshToken, name string, tokens *models.TokenData) (models.Account, error)
	Delete(id string) error
	GetActive() (*models.Account, error)
	Export() ([]byte, error)
	Import(imported []models.Account) (accounts.ImportResult, error)
}

// Refresher validates a refresh token by using it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenData, error)
}

// TokenRefresher forces a token refresh for a stored account.
type TokenRefresher interface {
	RefreshAccount(ctx context.Context, id string) (string, error)
}

// QuotaService lists accounts together with their quota.
type QuotaService interface {
	All(ctx context.Context) ([]quota.AccountQuota, error)
	ForAccount(ctx context.Context, id string) (quota.AccountQuota, error)
}

// ListAccountsHandler returns every account with its quota.
func ListAccountsHandler(svc QuotaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.All(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]interface{}{"accounts": list})
	}
}

// AddAccountRequest adds an account from a pasted refresh token.
type AddAccountRequest struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
	Name         string `json:"name"`
}

// AddAccountHandler refreshes the token once to prove it works, then stores
// the account with the fresh access token. Without an email the ID token's
// email claim is used.
func AddAccountHandler(store AccountStore, refresher Refresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddAccountRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		req.RefreshToken = strings.TrimSpace(req.RefreshToken)
		if req.RefreshToken == "" || (req.Email != "" && !strings.Contains(req.Email, "@")) {
			writeError(w, fmt.Errorf("%w: a refresh_token and a valid email are required", errBadRequest))
			return
		}

		tokens, err := refresher.Refresh(r.Context(), req.RefreshToken)
		if err != nil {
			log.Printf("❌ [api] Refresh token for %s rejected: %v", req.Email, err)
			writeError(w, err)
			return
		}

		if req.Email == "" {
			email, err := google.EmailFromIDToken(tokens.IDToken)
			if err != nil {
				writeError(w, fmt.Errorf("%w: email is required (%v)", errBadRequest, err))
				return
			}
			req.Email = email
		}

		acc, err := store.Add(req.Email, req.RefreshToken, strings.TrimSpace(req.Name), &tokens)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]interface{}{"account": publicAccount(acc)})
	}
}

// DeleteAccountHandler removes an account.
func DeleteAccountHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Delete(chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, nil)
	}
}

// ActiveAccountHandler returns the active account, or null.
func ActiveAccountHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		acc, err := store.GetActive()
		if err != nil {
			writeError(w, err)
			return
		}
		var body interface{}
		if acc != nil {
			body = publicAccount(*acc)
		}
		writeOK(w, map[string]interface{}{"account": body})
	}
}

// RefreshQuotaHandler fetches the quota of one account.
func RefreshQuotaHandler(svc QuotaService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		aq, err := svc.ForAccount(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]interface{}{"account": aq, "quota": aq.Quota})
	}
}

// RefreshAccountHandler forces a refresh of an account's access token.
func RefreshAccountHandler(tokens TokenRefresher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := tokens.RefreshAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]interface{}{"message": "Token refreshed"})
	}
}

// ExportHandler returns the accounts file, secrets included, as an
// attachment.
func ExportHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := store.Export()
		if err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="antigravity-accounts.json"`)
		w.Write(data)
	}
}

// ImportHandler merges an accounts export into the store.
func ImportHandler(store AccountStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var raw json.RawMessage
		if err := decodeBody(w, r, &raw); err != nil {
			writeError(w, err)
			return
		}

		imported, err := ParseImport(raw)
		if err != nil {
			writeError(w, err)
			return
		}

		res, err := store.Import(imported)
		if err != nil {
			writeError(w, err)
			return
		}
		log.Printf("📥 [api] Imported accounts: %d added, %d updated, %d skipped", res.Added, res.Updated, res.Skipped)
		writeOK(w, map[string]interface{}{
			"added":   res.Added,
			"updated": res.Updated,
			"skipped": res.Skipped,
		})
	}
}

// ParseImport decodes an accounts export: either the array itself or
// {"json_data": "<array as string>"}.
func ParseImport(raw json.RawMessage) ([]models.Account, error) {
	var wrapped struct {
		JSONData string `json:"json_data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.JSONData != "" {
		raw = json.RawMessage(wrapped.JSONData)
	}

	var imported []models.Account
	if err := json.Unmarshal(raw, &imported); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of accounts: %v", errBadRequest, err)
	}
	return imported, nil
}

// publicAccount strips tokens from an account for API responses.
func publicAccount(acc models.Account) map[string]interface{} {
	return map[string]interface{}{
		"id":            acc.ID,
		"email":         acc.Email,
		"name":          acc.DisplayName(),
		"picture":       acc.Picture,
		"is_active":     acc.IsActive,
		"added_at":      acc.AddedAt,
		"last_switched": acc.LastSwitched,
		"last_checked":  acc.LastChecked,
	}
}
