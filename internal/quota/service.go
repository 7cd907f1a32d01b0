package quota

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pysugar/antigravity-switch/internal/accounts"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds parallel quota fetches across accounts.
const DefaultConcurrency = 4

// AccountQuota is an account as shown in the account list: identity and
// status without secrets, plus its quota or the reason it is missing.
type AccountQuota struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Picture      string `json:"picture,omitempty"`
	IsActive     bool   `json:"is_active"`
	AddedAt      int64  `json:"added_at"`
	LastSwitched int64  `json:"last_switched,omitempty"`
	LastChecked  int64  `json:"last_checked,omitempty"`
	Quota        *Info  `json:"quota,omitempty"`
	Error        string `json:"error,omitempty"`
}

// TokenSource yields a valid access token for an account.
type TokenSource interface {
	EnsureFresh(ctx context.Context, acc models.Account) (string, error)
}

// Store is the subset of accounts.Store the service needs.
type Store interface {
	Load() ([]models.Account, error)
	Get(id string) (*models.Account, error)
	MarkChecked(id string) error
}

// Fetcher returns the quota behind an access token.
type Fetcher interface {
	Fetch(ctx context.Context, accessToken string) (*Info, error)
}

// Service combines the account store, token refresh and the quota API.
type Service struct {
	store       Store
	tokens      TokenSource
	fetcher     Fetcher
	concurrency int
}

// NewService wires a Service.
func NewService(store Store, tokens TokenSource, fetcher Fetcher) *Service {
	return &Service{
		store:       store,
		tokens:      tokens,
		fetcher:     fetcher,
		concurrency: DefaultConcurrency,
	}
}

// All returns every account with its quota, in store order. Per-account
// failures are reported in AccountQuota.Error, never as the call's error.
func (s *Service) All(ctx context.Context) ([]AccountQuota, error) {
	all, err := s.store.Load()
	if err != nil {
		return nil, err
	}

	out := make([]AccountQuota, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range all {
		i := i
		g.Go(func() error {
			out[i] = s.fetchOne(gctx, all[i])
			return nil
		})
	}
	_ = g.Wait()
	return out, nil
}

// ForAccount refreshes the quota of one account.
func (s *Service) ForAccount(ctx context.Context, id string) (AccountQuota, error) {
	acc, err := s.store.Get(id)
	if err != nil {
		return AccountQuota{}, err
	}
	if acc == nil {
		return AccountQuota{}, fmt.Errorf("%w: %s", accounts.ErrAccountNotFound, id)
	}
	return s.fetchOne(ctx, *acc), nil
}

func (s *Service) fetchOne(ctx context.Context, acc models.Account) AccountQuota {
	aq := summarize(acc)

	token, err := s.tokens.EnsureFresh(ctx, acc)
	if err != nil {
		aq.Error = err.Error()
		return aq
	}

	info, err := s.fetcher.Fetch(ctx, token)
	if err != nil {
		log.Printf("⚠️ [quota] %s: %v", acc.Email, err)
		if errors.Is(err, ErrForbidden) {
			aq.Error = ErrForbidden.Error()
		} else {
			aq.Error = err.Error()
		}
		return aq
	}
	aq.Quota = info

	if err := s.store.MarkChecked(acc.ID); err != nil {
		log.Printf("⚠️ [quota] mark %s checked: %v", acc.Email, err)
	} else if updated, err := s.store.Get(acc.ID); err == nil && updated != nil {
		aq.LastChecked = updated.LastChecked
	}
	return aq
}

func summarize(acc models.Account) AccountQuota {
	return AccountQuota{
		ID:           acc.ID,
		Email:        acc.Email,
		Name:         acc.DisplayName(),
		Picture:      acc.Picture,
		IsActive:     acc.IsActive,
		AddedAt:      acc.AddedAt,
		LastSwitched: acc.LastSwitched,
		LastChecked:  acc.LastChecked,
	}
}
