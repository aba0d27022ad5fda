package storage

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/mohamedkhairy/signal-engine/internal/models"
)

// MemorySettingsStore keeps the user settings in memory
type MemorySettingsStore struct {
	mu       sync.RWMutex
	settings models.UserSettings
	validate *validator.Validate
}

// NewMemorySettingsStore starts from initial, which must be valid
func NewMemorySettingsStore(initial models.UserSettings) (*MemorySettingsStore, error) {
	s := &MemorySettingsStore{validate: validator.New()}
	if err := s.validate.Struct(initial); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidSettings, err)
	}
	s.settings = initial
	return s, nil
}

func (s *MemorySettingsStore) Get() models.UserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings after validation; on error nothing changes
func (s *MemorySettingsStore) Update(settings models.UserSettings) (models.UserSettings, error) {
	if err := s.validate.Struct(settings); err != nil {
		return s.Get(), fmt.Errorf("%w: %v", models.ErrInvalidSettings, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return s.settings, nil
}
