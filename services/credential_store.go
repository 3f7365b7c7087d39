package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"siem-console/models"
	"siem-console/system"
)

// DurableSlot persists the bearer token across restarts. Only the
// CredentialStore talks to it, and only the Session drives the store.
type DurableSlot interface {
	Load() (models.Credential, error)
	Save(models.Credential) error
	Clear() error
}

// CredentialStore holds the current credential in memory and mirrors it to
// a durable slot. Other packages may read it; writes are unexported so that
// the Session stays the single writer.
type CredentialStore struct {
	mu   sync.RWMutex
	cred models.Credential
	slot DurableSlot
}

// NewCredentialStore wraps a durable slot. A nil slot keeps everything in
// memory.
func NewCredentialStore(slot DurableSlot) *CredentialStore {
	if slot == nil {
		slot = NewMemorySlot()
	}
	return &CredentialStore{slot: slot}
}

// Token returns the in-memory bearer token, "" when absent
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.Token
}

// Credential returns a copy of the in-memory credential
func (s *CredentialStore) Credential() models.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cred
	if c.User != nil {
		u := *c.User
		c.User = &u
	}
	return c
}

// persisted reads the durable slot without touching memory. Used at
// startup to find a token worth verifying.
func (s *CredentialStore) persisted() (models.Credential, error) {
	return s.slot.Load()
}

// store writes memory and the durable slot together. Memory is only
// updated when the durable write succeeds.
func (s *CredentialStore) store(c models.Credential) error {
	if c.Token == "" || c.User == nil {
		return errors.New("credential needs both token and user")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.slot.Save(c); err != nil {
		return fmt.Errorf("failed to persist credential: %w", err)
	}
	s.cred = c
	return nil
}

// clear wipes memory first so no request can pick the token up again, then
// the durable slot.
func (s *CredentialStore) clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = models.Credential{}
	if err := s.slot.Clear(); err != nil {
		return fmt.Errorf("failed to clear persisted credential: %w", err)
	}
	return nil
}

// MemorySlot is a DurableSlot that lives only as long as the process
type MemorySlot struct {
	mu   sync.Mutex
	cred models.Credential
}

func NewMemorySlot() *MemorySlot { return &MemorySlot{} }

func (m *MemorySlot) Load() (models.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *MemorySlot) Save(c models.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = c
	return nil
}

func (m *MemorySlot) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = models.Credential{}
	return nil
}

const tokenSlotName = "token"

// SQLiteSlot keeps the token in a single sqlite row
type SQLiteSlot struct {
	db *gorm.DB
}

// OpenSQLiteSlot opens (or creates) the slot database at path
func OpenSQLiteSlot(path string) (*SQLiteSlot, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}

	// WAL keeps the CLI and a running console from locking each other out
	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		system.Warn("Failed to enable WAL mode: %v", err)
	}

	if err := db.AutoMigrate(&models.TokenSlot{}); err != nil {
		return nil, fmt.Errorf("credential store migration failed: %w", err)
	}
	return &SQLiteSlot{db: db}, nil
}

// Load returns the stored credential, empty when nothing is stored
func (s *SQLiteSlot) Load() (models.Credential, error) {
	var row models.TokenSlot
	err := s.db.Where("name = ?", tokenSlotName).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Credential{}, nil
	}
	if err != nil {
		return models.Credential{}, err
	}

	cred := models.Credential{Token: row.Token}
	if row.Token == "" {
		return models.Credential{}, nil
	}
	if row.UserJSON != "" {
		var id models.Identity
		if err := json.Unmarshal([]byte(row.UserJSON), &id); err == nil {
			cred.User = &id
		}
	}
	if cred.User == nil {
		cred.User = &models.Identity{Email: row.UserEmail}
	}
	return cred, nil
}

// Save upserts the single row
func (s *SQLiteSlot) Save(c models.Credential) error {
	row := models.TokenSlot{Name: tokenSlotName, Token: c.Token}
	if c.User != nil {
		row.UserEmail = c.User.Email
		if data, err := json.Marshal(c.User); err == nil {
			row.UserJSON = string(data)
		}
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.TokenSlot
		err := tx.Where("name = ?", tokenSlotName).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&row).Error
		}
		if err != nil {
			return err
		}
		row.ID = existing.ID
		return tx.Save(&row).Error
	})
}

// Clear removes the row; clearing an empty slot is fine
func (s *SQLiteSlot) Clear() error {
	return s.db.Where("name = ?", tokenSlotName).Delete(&models.TokenSlot{}).Error
}

// Close releases the database handle
func (s *SQLiteSlot) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
