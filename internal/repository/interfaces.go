package repository

import (
	"context"

	"github.com/anime-shed/olive-inspector-go/pkg/models"
)

// HistoryRepository is the append-only local record of saved analyses
type HistoryRepository interface {
	// Append inserts entry at the head of the collection
	Append(ctx context.Context, entry models.HistoryEntry) error

	// List returns entries most-recent-first; unreadable storage yields an empty list
	List(ctx context.Context) []models.HistoryEntry

	// Get returns one entry or ErrEntryNotFound
	Get(ctx context.Context, id int64) (*models.HistoryEntry, error)

	// DeleteByID removes the entry with id; unknown ids are a no-op
	DeleteByID(ctx context.Context, id int64) error

	// Clear removes every entry
	Clear(ctx context.Context) error
}

// SessionRepository persists the current session state
type SessionRepository interface {
	// Load returns the stored state or an error when absent or unreadable
	Load(ctx context.Context) (models.SessionState, error)

	// Save replaces the stored state
	Save(ctx context.Context, state models.SessionState) error
}

// SettingsRepository persists user settings
type SettingsRepository interface {
	Load(ctx context.Context) (models.Settings, error)
	Save(ctx context.Context, settings models.Settings) error
}
