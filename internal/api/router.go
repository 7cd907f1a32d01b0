// Package api exposes the account switcher over a local HTTP command API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/pysugar/antigravity-switch/internal/api/handlers"
	"github.com/pysugar/antigravity-switch/internal/api/middleware"
	"github.com/pysugar/antigravity-switch/internal/discovery"
)

// Deps are the services behind the routes.
type Deps struct {
	Store     handlers.AccountStore
	Refresher handlers.Refresher
	Tokens    handlers.TokenRefresher
	Quota     handlers.QuotaService
	Switcher  handlers.Switcher
	IDEStatus handlers.StatusReader
	OAuth     *handlers.OAuthHandlers
	Scanner   *discovery.Scanner
	DataDir   string
	APIToken  string
}

// NewRouter builds the command API.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.APITokenAuth(d.APIToken))

		r.Post("/auth/start", d.OAuth.StartHandler())
		r.Post("/auth/callback", d.OAuth.CallbackHandler())

		r.Route("/api", func(r chi.Router) {
			// Accounts
			r.Get("/accounts", handlers.ListAccountsHandler(d.Quota))
			r.Post("/accounts", handlers.AddAccountHandler(d.Store, d.Refresher))
			r.Delete("/accounts/{id}", handlers.DeleteAccountHandler(d.Store))
			r.Post("/accounts/{id}/quota", handlers.RefreshQuotaHandler(d.Quota))
			r.Post("/accounts/{id}/refresh", handlers.RefreshAccountHandler(d.Tokens))

			// Switching
			r.Post("/switch/{id}", handlers.SwitchHandler(d.Switcher))
			r.Get("/active", handlers.ActiveAccountHandler(d.Store))
			r.Get("/ide-status", handlers.IDEStatusHandler(d.IDEStatus))

			// Backup
			r.Get("/export", handlers.ExportHandler(d.Store))
			r.Post("/import", handlers.ImportHandler(d.Store))

			// Discovery
			r.Get("/discovery/scan", handlers.DiscoveryScanHandler(d.Scanner))
			r.Post("/discovery/import", handlers.DiscoveryImportHandler(d.Scanner, d.Store))

			r.Get("/data-dir", handlers.DataDirHandler(d.DataDir))
			r.Get("/version", handlers.VersionHandler())
		})
	})

	return r
}
