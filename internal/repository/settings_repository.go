package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"
)

// KVSettingsRepository stores settings under storage.SettingsKey
type KVSettingsRepository struct {
	store storage.KeyValueStore
}

// NewKVSettingsRepository creates a settings repository over store
func NewKVSettingsRepository(store storage.KeyValueStore) *KVSettingsRepository {
	return &KVSettingsRepository{store: store}
}

// Load overlays stored fields on the defaults, so older blobs missing a
// field keep the default value for it
func (r *KVSettingsRepository) Load(ctx context.Context) (models.Settings, error) {
	settings := models.DefaultSettings()

	data, err := r.store.Get(ctx, storage.SettingsKey)
	if err != nil {
		return settings, err
	}
	if err := json.Unmarshal(data, &settings); err != nil {
		return models.DefaultSettings(), fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return settings, nil
}

func (r *KVSettingsRepository) Save(ctx context.Context, settings models.Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	return r.store.Set(ctx, storage.SettingsKey, data)
}
