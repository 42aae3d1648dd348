package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "moodiary/pkg/errors"
	"moodiary/pkg/logger"
	"moodiary/pkg/models"
)

const bgURLKey = "bg_url"

// DefaultBackgroundURL is used when settings.json has no usable bg_url
const DefaultBackgroundURL = "https://images.unsplash.com/photo-1503264116251-35a269479413"

// SettingsStore manages data/settings.json
type SettingsStore struct {
	path         string
	defaultBGURL string
	mutex        sync.Mutex
	log          *logger.Logger
}

// NewSettingsStore creates a settings store; an empty defaultBG selects the built-in URL
func NewSettingsStore(path, defaultBG string, log *logger.Logger) (*SettingsStore, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if strings.TrimSpace(defaultBG) == "" {
		defaultBG = DefaultBackgroundURL
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.WriteFailed(err, filepath.Dir(path))
	}

	return &SettingsStore{
		path:         path,
		defaultBGURL: defaultBG,
		log:          log.WithComponent("settings_store"),
	}, nil
}

// Path returns the settings file location
func (s *SettingsStore) Path() string {
	return s.path
}

// Get loads the settings, filling the background URL with the default when
// the key is absent or blank.
func (s *SettingsStore) Get() (models.Settings, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, err := s.readLocked()
	if err != nil {
		return models.Settings{}, err
	}
	return s.toSettings(raw)
}

// SetBackgroundURL stores a new bg_url, keeping every other key as it was
func (s *SettingsStore) SetBackgroundURL(url string) (models.Settings, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, err := s.readLocked()
	if err != nil {
		return models.Settings{}, err
	}
	raw[bgURLKey] = strings.TrimSpace(url)

	data, err := marshalIndent(raw)
	if err != nil {
		return models.Settings{}, apperrors.Wrap(err, apperrors.ErrTypeApp, "ENCODE_FAILED", "failed to encode settings")
	}
	if err := writeFileAtomic(s.path, data, 0644); err != nil {
		appErr := apperrors.WriteFailed(err, s.path)
		appErr.Log(s.log.SugaredLogger)
		return models.Settings{}, appErr
	}

	s.log.Infow("Background updated", "bg_url", raw[bgURLKey])
	return s.toSettings(raw)
}

func (s *SettingsStore) readLocked() (map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, apperrors.ReadFailed(err, s.path)
	}

	raw := map[string]any{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return raw, nil
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperrors.SettingsCorrupted(err, s.path)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

func (s *SettingsStore) toSettings(raw map[string]any) (models.Settings, error) {
	settings := models.Settings{BackgroundURL: s.defaultBGURL, Extra: map[string]any{}}

	for k, v := range raw {
		if k != bgURLKey {
			settings.Extra[k] = v
			continue
		}
		url, ok := v.(string)
		if !ok {
			return models.Settings{}, apperrors.SettingsCorrupted(fmt.Errorf("bg_url is %T, want string", v), s.path)
		}
		if strings.TrimSpace(url) != "" {
			settings.BackgroundURL = url
		}
	}
	return settings, nil
}
