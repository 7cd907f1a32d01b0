package handlers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/pysugar/antigravity-switch/internal/auth/google"
	"github.com/pysugar/antigravity-switch/internal/db/models"
)

// LoginFlow is the interactive Google login.
type LoginFlow interface {
	Begin(ctx context.Context) (*google.PendingLogin, error)
	CompleteWithCode(ctx context.Context, code string) (models.Account, error)
}

// OAuthHandlers serves the login endpoints. At most one browser login is
// pending; starting another cancels it and frees the callback port.
type OAuthHandlers struct {
	flow LoginFlow

	mu      sync.Mutex
	pending *loginSession
}

type loginSession struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOAuthHandlers wraps flow.
func NewOAuthHandlers(flow LoginFlow) *OAuthHandlers {
	return &OAuthHandlers{flow: flow}
}

// StartHandler binds the callback listener and returns the consent URL.
// The login completes in the background when the browser redirects.
func (h *OAuthHandlers) StartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		defer h.mu.Unlock()

		if h.pending != nil {
			h.pending.cancel()
			<-h.pending.done
			h.pending = nil
		}

		pending, err := h.flow.Begin(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		ctx, cancel := context.WithCancel(context.Background())
		session := &loginSession{cancel: cancel, done: make(chan struct{})}
		h.pending = session

		go func() {
			defer close(session.done)
			defer cancel()
			acc, err := pending.Complete(ctx)
			switch {
			case err == nil:
				log.Printf("✅ [OAuth] Background login stored %s", acc.Email)
			case errors.Is(err, context.Canceled):
				log.Printf("[OAuth] Pending login cancelled")
			default:
				log.Printf("❌ [OAuth] Background login failed: %v", err)
			}
		}()

		writeOK(w, map[string]interface{}{"url": pending.URL})
	}
}

// CallbackRequest carries an authorization code pasted by the user.
type CallbackRequest struct {
	Code string `json:"code"`
}

// CallbackHandler finishes a login from a code obtained out of band.
func (h *OAuthHandlers) CallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CallbackRequest
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, err)
			return
		}
		code := strings.TrimSpace(req.Code)
		if code == "" {
			writeError(w, fmt.Errorf("%w: code is required", errBadRequest))
			return
		}

		acc, err := h.flow.CompleteWithCode(r.Context(), code)
		if err != nil {
			writeError(w, err)
			return
		}
		writeOK(w, map[string]interface{}{"account": publicAccount(acc)})
	}
}

// Close cancels any pending login.
func (h *OAuthHandlers) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.pending != nil {
		h.pending.cancel()
		<-h.pending.done
		h.pending = nil
	}
}
