package authclient

import (
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// Theme is the UI theme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// Preferences are the long-lived user preferences. Unlike the session
// snapshot they survive logout and are persisted indefinitely.
type Preferences struct {
	Theme Theme `json:"theme"`
}

// PreferenceStore persists preferences as a JSON file. Missing file means
// defaults.
type PreferenceStore struct {
	mu   sync.Mutex
	path string
}

// NewPreferenceStore returns a store backed by the given file path.
func NewPreferenceStore(path string) *PreferenceStore {
	return &PreferenceStore{path: path}
}

// Load returns the stored preferences, or defaults when nothing was saved.
func (p *PreferenceStore) Load() (Preferences, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prefs := Preferences{Theme: ThemeSystem}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return prefs, nil
		}
		return prefs, err
	}
	if err := json.Unmarshal(data, &prefs); err != nil {
		return Preferences{Theme: ThemeSystem}, err
	}
	if prefs.Theme == "" {
		prefs.Theme = ThemeSystem
	}
	return prefs, nil
}

// Save writes the preferences to disk.
func (p *PreferenceStore) Save(prefs Preferences) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	data, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, data, 0o644)
}
