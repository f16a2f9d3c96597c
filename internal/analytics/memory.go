package analytics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MemoryEntry is one persisted insight keyed for cross-session reuse.
type MemoryEntry struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	SessionID string          `json:"session_id,omitempty"`
	Tags      []string        `json:"tags"`
}

// MemoryStore is a key-value map of entries with whole-map JSON
// persistence. It has no schema migration; the file is the format.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]MemoryEntry
	path    string
}

// NewMemoryStore returns an empty store persisting to path. An empty
// path disables persistence.
func NewMemoryStore(path string) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]MemoryEntry),
		path:    path,
	}
}

// Write upserts an entry, preserving created_at across updates.
func (m *MemoryStore) Write(key string, value json.RawMessage, sessionID string, tags []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	e, ok := m.entries[key]
	if !ok {
		e = MemoryEntry{Key: key, CreatedAt: now, SessionID: sessionID}
	}
	e.Value = append(json.RawMessage(nil), value...)
	e.UpdatedAt = now
	e.Tags = append([]string(nil), tags...)
	m.entries[key] = e
}

// Read returns the entry for key.
func (m *MemoryStore) Read(key string) (MemoryEntry, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok
}

// List returns all entries.
func (m *MemoryStore) List() []MemoryEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]MemoryEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out
}

// Delete removes the entry for key, reporting whether it existed.
func (m *MemoryStore) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok
}

// Persist writes the whole map to disk with write-then-rename.
func (m *MemoryStore) Persist() error {
	if m.path == "" {
		return nil
	}
	m.mu.RLock()
	data, err := json.MarshalIndent(m.entries, "", "  ")
	m.mu.RUnlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, m.path)
}

// Load replaces the map with the on-disk contents. A missing file is
// an empty store, not an error.
func (m *MemoryStore) Load() error {
	if m.path == "" {
		return nil
	}
	data, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	loaded := make(map[string]MemoryEntry)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	m.mu.Lock()
	m.entries = loaded
	m.mu.Unlock()
	return nil
}
