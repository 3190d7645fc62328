package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Settings are the user-editable defaults kept in the settings file. API keys
// never live here.
type Settings struct {
	Run       RunConfig `json:"run" toml:"run"`
	WatchCron string    `json:"watch_cron,omitempty" toml:"watch_cron,omitempty"`
}

func (s Settings) Validate() error {
	if err := s.Run.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(s.WatchCron) != "" {
		if _, err := cron.ParseStandard(s.WatchCron); err != nil {
			return fmt.Errorf("%w: invalid watch_cron: %v", ErrInvalid, err)
		}
	}
	return nil
}

func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := toml.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	settings.Run = settings.Run.Normalize()
	return settings, nil
}

func WriteSettingsFile(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := toml.Marshal(settings)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SettingsStore guards the current settings. With an empty path updates stay
// in memory only.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore starts from initial and, when path names an existing
// file, from the file's content instead.
func NewSettingsStore(path string, initial Settings) (*SettingsStore, error) {
	initial.Run = initial.Run.Normalize()
	if strings.TrimSpace(path) != "" {
		loaded, err := LoadSettingsFile(path)
		switch {
		case err == nil:
			initial = loaded
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{
		path:    path,
		current: initial,
	}, nil
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *SettingsStore) Update(next Settings) (Settings, error) {
	next.Run = next.Run.Normalize()
	if err := next.Validate(); err != nil {
		return Settings{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path != "" {
		if err := WriteSettingsFile(s.path, next); err != nil {
			return Settings{}, err
		}
	}
	s.current = next
	return next, nil
}
