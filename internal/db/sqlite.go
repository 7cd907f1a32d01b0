// Package db writes Antigravity's login state into the IDE's own SQLite
// key-value store (state.vscdb).
package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/glebarez/sqlite"
	"github.com/pysugar/antigravity-switch/internal/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const (
	// KeyAgentManagerInitState holds the base64 OAuth record.
	KeyAgentManagerInitState = "jetskiStateSync.agentManagerInitState"
	// KeyAuthStatus holds the JSON identity shown in the IDE.
	KeyAuthStatus = "antigravityAuthStatus"

	busyTimeoutPragma = "?_pragma=busy_timeout(5000)"
)

// CacheKeys are per-account caches cleared on every switch, together with
// any key nested under them ("<key>.something").
var CacheKeys = []string{
	"google.geminicodeassist",
	"google.geminicodeassist.hasRunOnce",
	"geminiCodeAssist.chatThreads",
}

var ErrStateDBMissing = errors.New("Antigravity state database not found")

// AuthStatus is the value stored under KeyAuthStatus.
type AuthStatus struct {
	Email  string `json:"email"`
	APIKey string `json:"apiKey"`
	Name   string `json:"name"`
}

// Injection is everything written for one account.
type Injection struct {
	Email       string
	AccessToken string
	// StateRecord is the base64 credential record for KeyAgentManagerInitState.
	StateRecord string
}

// Injector edits one state.vscdb file. The IDE must not be running.
type Injector struct {
	path string
}

// NewInjector returns an injector for the database at path.
func NewInjector(path string) *Injector {
	return &Injector{path: path}
}

// Path returns the database path.
func (i *Injector) Path() string {
	return i.path
}

// Inject writes the credential record and auth status and clears the
// cache keys, all in one transaction.
func (i *Injector) Inject(ctx context.Context, in Injection) error {
	gdb, closeDB, err := i.open()
	if err != nil {
		return err
	}
	defer closeDB()

	status, err := json.Marshal(AuthStatus{
		Email:  in.Email,
		APIKey: in.AccessToken,
		Name:   models.LocalPart(in.Email),
	})
	if err != nil {
		return fmt.Errorf("encode auth status: %w", err)
	}

	return gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := upsertStateRecord(tx, in.StateRecord); err != nil {
			return err
		}

		item := models.Item{Key: KeyAuthStatus, Value: string(status)}
		if err := tx.Clauses(clause.Insert{Modifier: "OR REPLACE"}).Create(&item).Error; err != nil {
			return fmt.Errorf("write %s: %w", KeyAuthStatus, err)
		}

		for _, key := range CacheKeys {
			res := tx.Where("key = ? OR key LIKE ?", key, key+".%").Delete(&models.Item{})
			if res.Error != nil {
				return fmt.Errorf("clear %s: %w", key, res.Error)
			}
			if res.RowsAffected > 0 {
				log.Printf("🧹 [statedb] Cleared %d rows under %s", res.RowsAffected, key)
			}
		}
		return nil
	})
}

// upsertStateRecord updates the row when present and inserts it otherwise.
func upsertStateRecord(tx *gorm.DB, record string) error {
	var count int64
	if err := tx.Model(&models.Item{}).Where("key = ?", KeyAgentManagerInitState).Count(&count).Error; err != nil {
		return fmt.Errorf("lookup %s: %w", KeyAgentManagerInitState, err)
	}

	if count == 0 {
		item := models.Item{Key: KeyAgentManagerInitState, Value: record}
		if err := tx.Create(&item).Error; err != nil {
			return fmt.Errorf("insert %s: %w", KeyAgentManagerInitState, err)
		}
		return nil
	}

	err := tx.Model(&models.Item{}).
		Where("key = ?", KeyAgentManagerInitState).
		Update("value", record).Error
	if err != nil {
		return fmt.Errorf("update %s: %w", KeyAgentManagerInitState, err)
	}
	return nil
}

// ReadAuthStatus returns the identity the IDE currently shows, or nil when
// it has none.
func (i *Injector) ReadAuthStatus(ctx context.Context) (*AuthStatus, error) {
	gdb, closeDB, err := i.open()
	if err != nil {
		return nil, err
	}
	defer closeDB()

	var items []models.Item
	if err := gdb.WithContext(ctx).Where("key = ?", KeyAuthStatus).Limit(1).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", KeyAuthStatus, err)
	}
	if len(items) == 0 || items[0].Value == "" {
		return nil, nil
	}

	var status AuthStatus
	if err := json.Unmarshal([]byte(items[0].Value), &status); err != nil {
		return nil, fmt.Errorf("decode %s: %w", KeyAuthStatus, err)
	}
	return &status, nil
}

func (i *Injector) open() (*gorm.DB, func(), error) {
	if _, err := os.Stat(i.path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("%w: %s", ErrStateDBMissing, i.path)
		}
		return nil, nil, fmt.Errorf("stat state db: %w", err)
	}

	// The IDE sometimes leaves the file read-only.
	if err := os.Chmod(i.path, 0o644); err != nil {
		log.Printf("⚠️ [statedb] chmod %s: %v", i.path, err)
	}

	// Values carry live tokens, so the SQL logger stays silent.
	gdb, err := gorm.Open(sqlite.Open(i.path+busyTimeoutPragma), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open state db: %w", err)
	}

	closeDB := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return gdb, closeDB, nil
}

// RemoveSidecars deletes the -wal and -shm files next to path. Missing
// files are not an error.
func RemoveSidecars(path string) error {
	var errs []error
	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Remove(path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
