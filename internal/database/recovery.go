package database

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wavelink/wavelink/internal/call"
)

// recoveryRepo is the SQLite-backed call.RecoveryStore. Entries survive a
// process restart, which is the whole point: an offer persisted while
// ringing is picked up again by the poller after a crash.
type recoveryRepo struct {
	db *DB
}

// NewRecoveryStore creates a call.RecoveryStore backed by db.
func NewRecoveryStore(db *DB) call.RecoveryStore {
	return &recoveryRepo{db: db}
}

// Set stores value under key, replacing any previous entry.
func (r *recoveryRepo) Set(key string, value []byte, ttl time.Duration) error {
	_, err := r.db.Exec(
		`INSERT INTO recovery_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().Add(ttl).UTC(),
	)
	if err != nil {
		return fmt.Errorf("storing recovery entry: %w", err)
	}
	return nil
}

// Consume reads and deletes the entry under key in one transaction. Expired
// entries are deleted and reported as absent.
func (r *recoveryRepo) Consume(key string) ([]byte, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return nil, false, fmt.Errorf("beginning recovery transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		value     []byte
		expiresAt time.Time
	)
	err = tx.QueryRow(
		"SELECT value, expires_at FROM recovery_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading recovery entry: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM recovery_entries WHERE key = ?", key); err != nil {
		return nil, false, fmt.Errorf("deleting recovery entry: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing recovery consume: %w", err)
	}

	if time.Now().After(expiresAt) {
		return nil, false, nil
	}
	return value, true, nil
}

// Peek reads the entry under key without deleting it. Expired entries are
// reported as absent but left for the next Consume to clear.
func (r *recoveryRepo) Peek(key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt time.Time
	)
	err := r.db.QueryRow(
		"SELECT value, expires_at FROM recovery_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading recovery entry: %w", err)
	}
	if time.Now().After(expiresAt) {
		return nil, false, nil
	}
	return value, true, nil
}

// Delete removes the entry under key if present.
func (r *recoveryRepo) Delete(key string) error {
	if _, err := r.db.Exec("DELETE FROM recovery_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting recovery entry: %w", err)
	}
	return nil
}

// MemoryRecoveryStore is an in-process call.RecoveryStore used when no data
// directory is available. It does not survive restarts.
type MemoryRecoveryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryRecoveryStore creates an empty in-memory store.
func NewMemoryRecoveryStore() *MemoryRecoveryStore {
	return &MemoryRecoveryStore{entries: make(map[string]memoryEntry)}
}

func (m *MemoryRecoveryStore) Set(key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = memoryEntry{value: v, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemoryRecoveryStore) Consume(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	delete(m.entries, key)
	if time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryRecoveryStore) Peek(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (m *MemoryRecoveryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
