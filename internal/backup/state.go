package backup

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MarkerStore persists the calendar date (YYYY-MM-DD) of the last
// successful automatic snapshot. An empty string means none yet.
type MarkerStore interface {
	LastAutomaticBackup() (string, error)
	SetLastAutomaticBackup(date string) error
}

// schedulerState is the on-disk form of the marker file.
type schedulerState struct {
	LastAutomaticBackup string    `json:"last_automatic_backup"`
	LastUpdate          time.Time `json:"last_update"`
}

// FileMarkerStore keeps the marker in a small JSON file.
type FileMarkerStore struct {
	path  string
	mu    sync.Mutex
	state *schedulerState // nil until loaded
}

// NewFileMarkerStore returns a marker store using the file at path. The
// file is created on the first write.
func NewFileMarkerStore(path string) *FileMarkerStore {
	return &FileMarkerStore{path: path}
}

// Path returns the state file location.
func (m *FileMarkerStore) Path() string {
	return m.path
}

// LastAutomaticBackup returns the stored date, or "" when the file does not
// exist yet.
func (m *FileMarkerStore) LastAutomaticBackup() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		return "", err
	}
	return m.state.LastAutomaticBackup, nil
}

// SetLastAutomaticBackup stores date and writes the file atomically.
func (m *FileMarkerStore) SetLastAutomaticBackup(date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadLocked(); err != nil {
		// an unreadable file is replaced rather than blocking the marker
		GetLogger().Warn("discarding unreadable scheduler state",
			logString("path", m.path),
			logError(err))
		m.state = &schedulerState{}
	}

	next := *m.state
	next.LastAutomaticBackup = date
	next.LastUpdate = time.Now()
	if err := m.saveLocked(&next); err != nil {
		return err
	}
	m.state = &next
	return nil
}

func (m *FileMarkerStore) loadLocked() error {
	if m.state != nil {
		return nil
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		m.state = &schedulerState{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read scheduler state: %w", err)
	}

	var state schedulerState
	if err := json.Unmarshal(data, &state); err != nil {
		return fmt.Errorf("failed to parse scheduler state %s: %w", m.path, err)
	}
	m.state = &state
	return nil
}

func (m *FileMarkerStore) saveLocked(state *schedulerState) error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write to temporary file first
	tempFile := m.path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary state file: %w", err)
	}
	if err := os.Rename(tempFile, m.path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}
