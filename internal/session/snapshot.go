package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// SnapshotVersion is the current snapshot schema version. Restores of any
// other version fail rather than guess.
const SnapshotVersion = 1

// ErrNoSnapshot is returned by a SnapshotStore when no snapshot exists.
// Restore treats it as a clean start.
var ErrNoSnapshot = errors.New("no snapshot available")

// Snapshot is the versioned persistent form of a session's aircraft map.
type Snapshot struct {
	Version   int                  `json:"version"`
	SessionID string               `json:"session_id"`
	SavedAt   time.Time            `json:"saved_at"`
	Aircraft  map[string]*Aircraft `json:"aircraft"`
}

// SnapshotStore persists and recovers session snapshots.
type SnapshotStore interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
}

// EncodeSnapshot renders a snapshot to its JSON wire form, stamping the
// current schema version.
func EncodeSnapshot(snap *Snapshot) ([]byte, error) {
	snap.Version = SnapshotVersion
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a snapshot and rejects unknown schema versions.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}

// FileStore persists snapshots as a JSON file.
type FileStore struct {
	path string
}

// NewFileStore returns a store writing to path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save writes the snapshot, replacing any previous one.
func (s *FileStore) Save(snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return nil
}

// Load reads the snapshot; a missing file maps to ErrNoSnapshot.
func (s *FileStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	return DecodeSnapshot(data)
}
