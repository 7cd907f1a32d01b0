// Package accounts persists the user's Google identities in a single JSON
// file and enforces that at most one of them is active.
package accounts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/natefinch/atomic"
	"github.com/pysugar/antigravity-switch/internal/db/models"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("account already exists")
	ErrNoValidAccounts  = errors.New("no valid accounts found to import")
)

// FileName is the accounts file inside the data directory.
const FileName = "accounts.json"

// Store is the owner of the accounts file. Every exported method is a full
// load, mutate, save cycle under one mutex; network calls must never be made
// while it is held, so Store exposes no callback-style API.
type Store struct {
	mu   sync.Mutex
	path string

	now   func() time.Time
	newID func() string
}

// NewStore returns a store backed by path. The parent directory is created
// on first save.
func NewStore(path string) *Store {
	return &Store{
		path:  path,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// ImportResult summarizes an Import call.
type ImportResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Load returns all accounts in insertion order.
func (s *Store) Load() ([]models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Export returns the accounts file content as pretty-printed JSON.
func (s *Store) Export() ([]byte, error) {
	accounts, err := s.Load()
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(accounts, "", "  ")
}

// Add creates an account from a known refresh token. The new account is
// active only if the store was empty.
func (s *Store) Add(email, refreshToken, name string, tokens *models.TokenData) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return models.Account{}, err
	}
	if indexByEmail(accounts, email) >= 0 {
		return models.Account{}, fmt.Errorf("%w: %s", ErrDuplicateAccount, email)
	}

	now := s.nowMillis()
	if name == "" {
		name = models.LocalPart(email)
	}
	account := models.Account{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		RefreshToken: refreshToken,
		IsActive:     len(accounts) == 0,
		AddedAt:      now,
	}
	if tokens != nil {
		account.AccessToken = tokens.AccessToken
		account.ExpiresAt = now + tokens.ExpiresIn*1000
	}

	accounts = append(accounts, account)
	if err := s.save(accounts); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// Delete removes the account with the given id.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	i := indexByID(accounts, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	accounts = append(accounts[:i], accounts[i+1:]...)
	return s.save(accounts)
}

// Get returns the account with the given id, or nil if there is none.
func (s *Store) Get(id string) (*models.Account, error) {
	accounts, err := s.Load()
	if err != nil {
		return nil, err
	}
	if i := indexByID(accounts, id); i >= 0 {
		return &accounts[i], nil
	}
	return nil, nil
}

// GetActive returns the active account, or nil if there is none.
func (s *Store) GetActive() (*models.Account, error) {
	accounts, err := s.Load()
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].IsActive {
			return &accounts[i], nil
		}
	}
	return nil, nil
}

// SetActive makes id the only active account and stamps LastSwitched.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	if indexByID(accounts, id) < 0 {
		return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}

	now := s.nowMillis()
	for i := range accounts {
		if accounts[i].ID == id {
			accounts[i].IsActive = true
			accounts[i].LastSwitched = now
		} else {
			accounts[i].IsActive = false
		}
	}
	return s.save(accounts)
}

// UpdateToken caches a refreshed access token. An unknown id is ignored:
// the account may have been deleted while the refresh was in flight.
func (s *Store) UpdateToken(id, accessToken string, expiresIn int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	i := indexByID(accounts, id)
	if i < 0 {
		return nil
	}
	accounts[i].AccessToken = accessToken
	accounts[i].ExpiresAt = s.nowMillis() + expiresIn*1000
	return s.save(accounts)
}

// MarkChecked records that quota was fetched for id. Unknown ids are ignored.
func (s *Store) MarkChecked(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return err
	}
	i := indexByID(accounts, id)
	if i < 0 {
		return nil
	}
	accounts[i].LastChecked = s.nowMillis()
	return s.save(accounts)
}

// UpsertOAuth merges the result of an interactive login by email. Existing
// accounts keep their id, added_at and active flag.
func (s *Store) UpsertOAuth(info models.UserInfo, tokens models.TokenData) (models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return models.Account{}, err
	}

	now := s.nowMillis()
	name := info.Name
	if name == "" {
		name = models.LocalPart(info.Email)
	}

	if i := indexByEmail(accounts, info.Email); i >= 0 {
		existing := &accounts[i]
		existing.RefreshToken = tokens.RefreshToken
		existing.AccessToken = tokens.AccessToken
		existing.ExpiresAt = now + tokens.ExpiresIn*1000
		existing.Name = name
		existing.Picture = info.Picture
		if err := s.save(accounts); err != nil {
			return models.Account{}, err
		}
		return *existing, nil
	}

	account := models.Account{
		ID:           s.newID(),
		Email:        info.Email,
		Name:         name,
		Picture:      info.Picture,
		RefreshToken: tokens.RefreshToken,
		AccessToken:  tokens.AccessToken,
		ExpiresAt:    now + tokens.ExpiresIn*1000,
		IsActive:     len(accounts) == 0,
		AddedAt:      now,
	}
	accounts = append(accounts, account)
	if err := s.save(accounts); err != nil {
		return models.Account{}, err
	}
	return account, nil
}

// Import merges exported accounts by email. Records without an email, a
// refresh token, or an '@' in the email are skipped. If every record was
// skipped the call fails with ErrNoValidAccounts and nothing is written.
//
// Imported is_active flags are not trusted: merged accounts keep their
// current flag, new ones start inactive, and if the result has no active
// account the first one is activated.
func (s *Store) Import(imported []models.Account) (ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	accounts, err := s.load()
	if err != nil {
		return ImportResult{}, err
	}

	var res ImportResult
	for _, acc := range imported {
		switch {
		case acc.Email == "":
			log.Printf("⚠️ [accounts] Skipping imported account with empty email")
			res.Skipped++
			continue
		case acc.RefreshToken == "":
			log.Printf("⚠️ [accounts] Skipping imported account %s with empty refresh_token", acc.Email)
			res.Skipped++
			continue
		case !strings.Contains(acc.Email, "@"):
			log.Printf("⚠️ [accounts] Skipping imported account with invalid email: %s", acc.Email)
			res.Skipped++
			continue
		}

		if acc.Name == "" {
			acc.Name = models.LocalPart(acc.Email)
		}

		if i := indexByEmail(accounts, acc.Email); i >= 0 {
			acc.ID = accounts[i].ID
			acc.AddedAt = accounts[i].AddedAt
			acc.IsActive = accounts[i].IsActive
			accounts[i] = acc
			res.Updated++
			continue
		}

		if acc.ID == "" || indexByID(accounts, acc.ID) >= 0 {
			acc.ID = s.newID()
		}
		if acc.AddedAt == 0 {
			acc.AddedAt = s.nowMillis()
		}
		acc.IsActive = false
		accounts = append(accounts, acc)
		res.Added++
	}

	if res.Added == 0 && res.Updated == 0 && res.Skipped > 0 {
		return res, fmt.Errorf("%w: %d accounts were skipped due to missing email or refresh_token",
			ErrNoValidAccounts, res.Skipped)
	}

	if len(accounts) > 0 && activeIndex(accounts) < 0 {
		accounts[0].IsActive = true
	}
	if err := s.save(accounts); err != nil {
		return ImportResult{}, err
	}
	return res, nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func (s *Store) load() ([]models.Account, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return []models.Account{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read accounts file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []models.Account{}, nil
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		return nil, fmt.Errorf("parse accounts file %s: %w", s.path, err)
	}
	if accounts == nil {
		accounts = []models.Account{}
	}
	return accounts, nil
}

// save replaces the whole file. atomic.WriteFile writes a temp file in the
// same directory, fsyncs it and renames it over the target.
func (s *Store) save(accounts []models.Account) error {
	data, err := json.MarshalIndent(accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write accounts file: %w", err)
	}
	return nil
}

func indexByID(accounts []models.Account, id string) int {
	for i := range accounts {
		if accounts[i].ID == id {
			return i
		}
	}
	return -1
}

// indexByEmail compares emails case-insensitively, as the CLI resolves them.
func indexByEmail(accounts []models.Account, email string) int {
	for i := range accounts {
		if strings.EqualFold(accounts[i].Email, email) {
			return i
		}
	}
	return -1
}

func activeIndex(accounts []models.Account) int {
	for i := range accounts {
		if accounts[i].IsActive {
			return i
		}
	}
	return -1
}
