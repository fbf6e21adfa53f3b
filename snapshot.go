package authclient

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
	"time"
)

// Snapshot is the persisted subset of a Session: exactly {user, accessToken,
// tokenExpiresAt}, nothing else. Timestamps cross storage as RFC 3339 strings
// and are rehydrated into time.Time on load.
type Snapshot struct {
	User           *User     `json:"user,omitempty"`
	AccessToken    string    `json:"accessToken,omitempty"`
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}

// SnapshotStore persists session snapshots across restarts. Load returns
// (nil, nil) when no snapshot exists.
type SnapshotStore interface {
	Save(snap *Snapshot) error
	Load() (*Snapshot, error)
	Clear() error
}

// MemorySnapshotStore keeps the snapshot in process memory. Useful in tests
// and for hosts that manage their own persistence.
type MemorySnapshotStore struct {
	mu   sync.Mutex
	snap *Snapshot
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(snap *Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	if snap.User != nil {
		u := *snap.User
		cp.User = &u
	}
	m.snap = &cp
	return nil
}

func (m *MemorySnapshotStore) Load() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, nil
	}
	cp := *m.snap
	if m.snap.User != nil {
		u := *m.snap.User
		cp.User = &u
	}
	return &cp, nil
}

func (m *MemorySnapshotStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	return nil
}

// FileSnapshotStore persists the snapshot as a JSON file, mode 0600. The file
// holds a bearer credential; callers should point it at a per-user location.
type FileSnapshotStore struct {
	mu   sync.Mutex
	path string
}

var _ SnapshotStore = (*FileSnapshotStore)(nil)

func NewFileSnapshotStore(path string) *FileSnapshotStore {
	return &FileSnapshotStore{path: path}
}

func (f *FileSnapshotStore) Save(snap *Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, data, 0o600)
}

func (f *FileSnapshotStore) Load() (*Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	snap := &Snapshot{}
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (f *FileSnapshotStore) Clear() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
