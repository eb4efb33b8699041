package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"
)

// KVSessionRepository stores the session state under storage.SessionStateKey
type KVSessionRepository struct {
	store storage.KeyValueStore
}

// NewKVSessionRepository creates a session repository over store
func NewKVSessionRepository(store storage.KeyValueStore) *KVSessionRepository {
	return &KVSessionRepository{store: store}
}

func (r *KVSessionRepository) Load(ctx context.Context) (models.SessionState, error) {
	data, err := r.store.Get(ctx, storage.SessionStateKey)
	if err != nil {
		return models.SessionState{}, err
	}

	var state models.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.SessionState{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	return state, nil
}

func (r *KVSessionRepository) Save(ctx context.Context, state models.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	return r.store.Set(ctx, storage.SessionStateKey, data)
}
