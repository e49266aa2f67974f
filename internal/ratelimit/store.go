package ratelimit

import (
	"database/sql"
	"fmt"
	"sync"
)

// SQLStore persists windows in the rate_windows table.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a store over the given database.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(storageKey string) (Window, bool, error) {
	var w Window
	err := s.db.QueryRow(
		"SELECT window_end, count FROM rate_windows WHERE storage_key = ?",
		storageKey,
	).Scan(&w.WindowEnd, &w.Count)
	if err == sql.ErrNoRows {
		return Window{}, false, nil
	}
	if err != nil {
		return Window{}, false, fmt.Errorf("failed to load rate window: %w", err)
	}
	return w, true, nil
}

func (s *SQLStore) Put(storageKey string, w Window) error {
	_, err := s.db.Exec(`
		INSERT INTO rate_windows (storage_key, window_end, count) VALUES (?, ?, ?)
		ON CONFLICT(storage_key) DO UPDATE SET window_end = excluded.window_end, count = excluded.count
	`, storageKey, w.WindowEnd, w.Count)
	if err != nil {
		return fmt.Errorf("failed to store rate window: %w", err)
	}
	return nil
}

func (s *SQLStore) Delete(storageKey string) error {
	_, err := s.db.Exec("DELETE FROM rate_windows WHERE storage_key = ?", storageKey)
	if err != nil {
		return fmt.Errorf("failed to delete rate window: %w", err)
	}
	return nil
}

// PruneExpired removes windows that ended before the cutoff.
func (s *SQLStore) PruneExpired(cutoff int64) error {
	_, err := s.db.Exec("DELETE FROM rate_windows WHERE window_end <= ?", cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune rate windows: %w", err)
	}
	return nil
}

// MemoryStore keeps windows in memory, for tests and single-process use.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]Window
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]Window)}
}

func (s *MemoryStore) Get(storageKey string) (Window, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[storageKey]
	return w, ok, nil
}

func (s *MemoryStore) Put(storageKey string, w Window) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.windows[storageKey] = w
	return nil
}

func (s *MemoryStore) Delete(storageKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, storageKey)
	return nil
}
