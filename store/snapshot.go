// Package store persists engine snapshots and claim receipts.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/PurgeGame/purge-settlement-engine/engine"
)

// SnapshotStore writes the engine image to data/state.json.
type SnapshotStore struct {
	mu      sync.Mutex
	dataDir string
}

func NewSnapshotStore(dataDir string) *SnapshotStore {
	if dataDir == "" {
		dataDir = "data"
	}
	return &SnapshotStore{dataDir: dataDir}
}

func (ss *SnapshotStore) path() string {
	return filepath.Join(ss.dataDir, "state.json")
}

func (ss *SnapshotStore) ensureDir() error {
	return os.MkdirAll(ss.dataDir, 0755)
}

// Save replaces the snapshot on disk.
func (ss *SnapshotStore) Save(s engine.State) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if err := ss.ensureDir(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(ss.path(), data, 0644)
}

// Load reads the snapshot back; ok is false when none was saved yet.
func (ss *SnapshotStore) Load() (engine.State, bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	data, err := os.ReadFile(ss.path())
	if err != nil {
		if os.IsNotExist(err) {
			return engine.State{}, false, nil
		}
		return engine.State{}, false, err
	}
	var s engine.State
	if err := json.Unmarshal(data, &s); err != nil {
		return engine.State{}, false, err
	}
	return s, true, nil
}
