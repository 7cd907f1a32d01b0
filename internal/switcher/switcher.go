// Package switcher moves the Antigravity IDE from one signed-in Google
// account to another.
package switcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/credential"
	"github.com/pysugar/antigravity-switch/internal/db"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"github.com/pysugar/antigravity-switch/internal/logging"
	"github.com/pysugar/antigravity-switch/internal/target"
)

const (
	// SettleDelay gives the OS time to tear the killed processes down.
	SettleDelay = 500 * time.Millisecond
	// InjectedTokenLifetime is the expiry written into the IDE's record.
	InjectedTokenLifetime = time.Hour
)

// ErrInjectionFailed marks a switch that stopped the IDE but could not
// write the new login into its database.
var ErrInjectionFailed = errors.New("database injection failed")

// Outcome distinguishes a completed switch from one that only got part way.
type Outcome string

const (
	Success        Outcome = "success"
	PartialFailure Outcome = "partial_failure"
)

// Result describes a switch that reached the IDE.
type Result struct {
	Outcome   Outcome `json:"outcome"`
	AccountID string  `json:"account_id"`
	Email     string  `json:"email"`
	Message   string  `json:"message,omitempty"`
	// Cause wraps ErrInjectionFailed on PartialFailure.
	Cause error `json:"-"`
}

// AccountStore is the subset of accounts.Store used by a switch.
type AccountStore interface {
	Get(id string) (*models.Account, error)
	SetActive(id string) error
}

// TokenSource yields a valid access token for an account.
type TokenSource interface {
	EnsureFresh(ctx context.Context, acc models.Account) (string, error)
}

// Injector writes a login into the IDE's state database.
type Injector interface {
	Inject(ctx context.Context, in db.Injection) error
}

// Switcher runs switches one at a time.
type Switcher struct {
	mu sync.Mutex

	store      AccountStore
	tokens     TokenSource
	controller target.Controller
	injector   Injector

	settle         time.Duration
	now            func() time.Time
	removeSidecars func(path string) error
}

// New wires a Switcher.
func New(store AccountStore, tokens TokenSource, controller target.Controller, injector Injector) *Switcher {
	return &Switcher{
		store:          store,
		tokens:         tokens,
		controller:     controller,
		injector:       injector,
		settle:         SettleDelay,
		now:            time.Now,
		removeSidecars: db.RemoveSidecars,
	}
}

// Switch makes account id the IDE's login.
//
// A nil error with Outcome PartialFailure means the IDE was stopped and
// restarted but still holds its previous login; the account is not marked
// active, so the call can simply be retried. A non-nil error before the IDE
// is touched (unknown account, refresh failure) has no side effects.
func (s *Switcher) Switch(ctx context.Context, id string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx = logging.EnsureOpID(ctx)

	acc, err := s.store.Get(id)
	if err != nil {
		return Result{}, err
	}
	if acc == nil {
		return Result{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, id)
	}
	logging.Printf(ctx, "switch", "🔄 Switching to %s", acc.Email)

	accessToken, err := s.tokens.EnsureFresh(ctx, *acc)
	if err != nil {
		logging.Printf(ctx, "switch", "❌ Token refresh failed for %s: %v", acc.Email, err)
		return Result{}, err
	}

	// From here on the IDE is being torn down; the switch must finish even
	// if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	if err := s.controller.Stop(ctx); err != nil {
		logging.Printf(ctx, "switch", "⚠️ Stop reported: %v (continuing)", err)
	}
	time.Sleep(s.settle)

	dbPath := s.controller.StateDBPath()
	if err := s.removeSidecars(dbPath); err != nil {
		logging.Printf(ctx, "switch", "⚠️ Could not remove lock files: %v", err)
	}

	res := Result{AccountID: acc.ID, Email: acc.Email}

	if err := s.inject(ctx, *acc, accessToken); err != nil {
		logging.Printf(ctx, "switch", "❌ Injection into %s failed: %v", dbPath, err)
		s.restart(ctx)
		res.Outcome = PartialFailure
		res.Message = "Database injection failed"
		res.Cause = fmt.Errorf("%w: %v", ErrInjectionFailed, err)
		return res, nil
	}

	if err := s.store.SetActive(acc.ID); err != nil {
		s.restart(ctx)
		return Result{}, fmt.Errorf("mark %s active: %w", acc.Email, err)
	}
	s.restart(ctx)

	logging.Printf(ctx, "switch", "✅ Switched to %s", acc.Email)
	res.Outcome = Success
	return res, nil
}

func (s *Switcher) inject(ctx context.Context, acc models.Account, accessToken string) error {
	expiry := s.now().Add(InjectedTokenLifetime).Unix()
	record, err := credential.EncodeBase64(accessToken, acc.RefreshToken, expiry)
	if err != nil {
		return err
	}
	return s.injector.Inject(ctx, db.Injection{
		Email:       acc.Email,
		AccessToken: accessToken,
		StateRecord: record,
	})
}

func (s *Switcher) restart(ctx context.Context) {
	if err := s.controller.Start(ctx); err != nil {
		logging.Printf(ctx, "switch", "⚠️ Restart failed: %v", err)
	}
}
