package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/repository"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"
	"github.com/anime-shed/olive-inspector-go/pkg/validation"

	"github.com/sirupsen/logrus"
)

// SupportedLanguages lists the UI languages a user may pick
var SupportedLanguages = []string{"fr", "en", "ar"}

// Service owns the user settings. Reads come from memory; every change is
// written through to the settings key.
type Service struct {
	mu        sync.Mutex
	current   models.Settings
	loaded    bool
	repo      repository.SettingsRepository
	queue     *storage.KeyedQueue
	validator *validation.AddressValidator
	log       *logrus.Entry
}

// NewService creates a settings service holding the defaults until Load runs
func NewService(repo repository.SettingsRepository, queue *storage.KeyedQueue) *Service {
	return &Service{
		current:   models.DefaultSettings(),
		repo:      repo,
		queue:     queue,
		validator: validation.NewAddressValidator(),
		log:       logger.ForComponent("settings"),
	}
}

// Load reads persisted settings. Missing or unreadable settings fall back to
// the defaults.
func (s *Service) Load(ctx context.Context) models.Settings {
	var loaded models.Settings
	err := s.queue.Do(ctx, storage.SettingsKey, func() error {
		var err error
		loaded, err = s.repo.Load(ctx)
		return err
	})
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			s.log.WithError(err).Warn("Could not load settings, using defaults")
		}
		loaded = models.DefaultSettings()
	}
	if !isSupportedLanguage(loaded.Language) {
		loaded.Language = models.DefaultSettings().Language
	}

	s.mu.Lock()
	s.current = loaded
	s.loaded = true
	s.mu.Unlock()
	return loaded
}

// Get returns the current settings, loading them on first use
func (s *Service) Get(ctx context.Context) models.Settings {
	s.mu.Lock()
	loaded, current := s.loaded, s.current
	s.mu.Unlock()

	if !loaded {
		return s.Load(ctx)
	}
	return current
}

// ServerAddress returns the configured detection server address
func (s *Service) ServerAddress(ctx context.Context) string {
	return s.Get(ctx).ServerAddress
}

// SetServerAddress validates and stores address. Invalid input is rejected
// and nothing is saved.
func (s *Service) SetServerAddress(ctx context.Context, address string) (models.Settings, error) {
	address = strings.TrimSpace(address)
	if err := s.validator.Validate(address); err != nil {
		return s.Get(ctx), err
	}
	return s.update(ctx, func(st *models.Settings) {
		st.ServerAddress = address
	})
}

// ToggleDarkMode flips the dark mode flag
func (s *Service) ToggleDarkMode(ctx context.Context) (models.Settings, error) {
	return s.update(ctx, func(st *models.Settings) {
		st.DarkMode = !st.DarkMode
	})
}

// SetDarkMode sets the dark mode flag
func (s *Service) SetDarkMode(ctx context.Context, enabled bool) (models.Settings, error) {
	return s.update(ctx, func(st *models.Settings) {
		st.DarkMode = enabled
	})
}

// ToggleNotifications flips the notifications flag
func (s *Service) ToggleNotifications(ctx context.Context) (models.Settings, error) {
	return s.update(ctx, func(st *models.Settings) {
		st.Notifications = !st.Notifications
	})
}

// SetNotifications sets the notifications flag
func (s *Service) SetNotifications(ctx context.Context, enabled bool) (models.Settings, error) {
	return s.update(ctx, func(st *models.Settings) {
		st.Notifications = enabled
	})
}

// SetLanguage switches the UI language
func (s *Service) SetLanguage(ctx context.Context, language string) (models.Settings, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if !isSupportedLanguage(language) {
		return s.Get(ctx), apperrors.NewValidationError(
			fmt.Sprintf("unsupported language %q, expected one of %s", language, strings.Join(SupportedLanguages, ", ")), nil)
	}
	return s.update(ctx, func(st *models.Settings) {
		st.Language = language
	})
}

// Apply updates every field set in patch with a single write. The patch is
// validated first, so an invalid field leaves the settings untouched.
func (s *Service) Apply(ctx context.Context, patch models.SettingsPatchRequest) (models.Settings, error) {
	var language string
	if patch.Language != nil {
		language = strings.ToLower(strings.TrimSpace(*patch.Language))
		if !isSupportedLanguage(language) {
			return s.Get(ctx), apperrors.NewValidationError(
				fmt.Sprintf("unsupported language %q, expected one of %s", language, strings.Join(SupportedLanguages, ", ")), nil)
		}
	}
	return s.update(ctx, func(st *models.Settings) {
		if patch.Language != nil {
			st.Language = language
		}
		if patch.DarkMode != nil {
			st.DarkMode = *patch.DarkMode
		}
		if patch.Notifications != nil {
			st.Notifications = *patch.Notifications
		}
	})
}

// update applies change and persists the result. The write is queued under
// the lock so concurrent updates are stored in the order they were applied.
func (s *Service) update(ctx context.Context, change func(*models.Settings)) (models.Settings, error) {
	s.Get(ctx)

	s.mu.Lock()
	change(&s.current)
	snapshot := s.current
	done := s.queue.Submit(storage.SettingsKey, func() error {
		return s.repo.Save(context.WithoutCancel(ctx), snapshot)
	})
	s.mu.Unlock()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		s.log.WithError(err).Error("Failed to persist settings")
		return snapshot, apperrors.NewPersistenceError("failed to save settings", err)
	}

	s.log.WithFields(logrus.Fields{
		"language":      snapshot.Language,
		"dark_mode":     snapshot.DarkMode,
		"notifications": snapshot.Notifications,
		"server":        snapshot.ServerAddress,
	}).Info("Settings updated")
	return snapshot, nil
}

func isSupportedLanguage(language string) bool {
	for _, l := range SupportedLanguages {
		if l == language {
			return true
		}
	}
	return false
}
