// Package token keeps account access tokens fresh.
package token

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/util"
)

// RefreshMargin is how close to expiry a cached token is considered stale.
const RefreshMargin = 5 * time.Minute

// Refresher performs the refresh-token grant.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (models.TokenData, error)
}

// Store is the subset of the account store the manager needs.
type Store interface {
	Get(id string) (*models.Account, error)
	UpdateToken(id, accessToken string, expiresIn int64) error
}

// Manager refreshes access tokens on demand. It holds no cache of its own;
// the account store is the single source of truth.
type Manager struct {
	store     Store
	refresher Refresher
	now       func() time.Time
}

// NewManager creates a new token manager
func NewManager(store Store, refresher Refresher) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		now:       time.Now,
	}
}

// NeedsRefresh reports whether acc has no usable cached access token.
func (m *Manager) NeedsRefresh(acc models.Account) bool {
	if acc.AccessToken == "" || acc.ExpiresAt == 0 {
		return true
	}
	return m.now().UnixMilli() > acc.ExpiresAt-RefreshMargin.Milliseconds()
}

// EnsureFresh returns a valid access token for acc, refreshing and
// persisting it first when needed. The network call is made without
// holding the store lock.
func (m *Manager) EnsureFresh(ctx context.Context, acc models.Account) (string, error) {
	if !m.NeedsRefresh(acc) {
		return acc.AccessToken, nil
	}
	log.Printf("⚠️ Token for %s is expired/expiring, refreshing...", acc.Email)
	return m.refresh(ctx, acc)
}

// RefreshAccount forces a refresh for a specific account
func (m *Manager) RefreshAccount(ctx context.Context, id string) (string, error) {
	acc, err := m.store.Get(id)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, id)
	}
	return m.refresh(ctx, *acc)
}

func (m *Manager) refresh(ctx context.Context, acc models.Account) (string, error) {
	tokens, err := m.refresher.Refresh(ctx, acc.RefreshToken)
	if err != nil {
		log.Printf("❌ Refresh token failed for %s: %v", acc.Email, err)
		if IsPermanentRefreshError(err) {
			log.Printf("🔒 Refresh token for %s was rejected. Please re-login.", acc.Email)
		}
		return "", err
	}

	if err := m.store.UpdateToken(acc.ID, tokens.AccessToken, tokens.ExpiresIn); err != nil {
		return "", fmt.Errorf("save refreshed token: %w", err)
	}
	log.Printf("✅ Refreshed token for: %s (token: %s, expires in %ds)",
		acc.Email, util.MaskToken(tokens.AccessToken), tokens.ExpiresIn)
	return tokens.AccessToken, nil
}

// IsPermanentRefreshError reports whether a refresh failure means the
// refresh token itself is dead. It only drives log hints.
func IsPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	permanentMarkers := []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	}
	for _, marker := range permanentMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
