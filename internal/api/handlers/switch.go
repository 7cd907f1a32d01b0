package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/pysugar/antigravity-switch/internal/db"
	"github.com/pysugar/antigravity-switch/internal/switcher"
)

// Switcher moves the IDE to another account.
type Switcher interface {
	Switch(ctx context.Context, id string) (switcher.Result, error)
}

// StatusReader reads the identity the IDE currently holds.
type StatusReader interface {
	ReadAuthStatus(ctx context.Context) (*db.AuthStatus, error)
}

// SwitchHandler switches the IDE to the account in the URL. A partial
// failure is reported with success=false and the switch result; the IDE
// was restarted on its previous login.
func SwitchHandler(sw Switcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := sw.Switch(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}

		if res.Outcome != switcher.Success {
			msg := res.Message
			if res.Cause != nil {
				msg = res.Cause.Error()
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"success": false,
				"error":   msg,
				"result":  res,
			})
			return
		}
		writeOK(w, map[string]interface{}{"email": res.Email, "result": res})
	}
}

// IDEStatusHandler reports which account the IDE's database is signed in
// as. The access token is not returned.
func IDEStatusHandler(reader StatusReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, err := reader.ReadAuthStatus(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		var body interface{}
		if status != nil {
			body = map[string]string{"email": status.Email, "name": status.Name}
		}
		writeOK(w, map[string]interface{}{"ide_account": body})
	}
}
