package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// KVHistoryRepository stores the whole history collection as one JSON array
// under storage.HistoryKey. Every read-modify-write cycle runs on the key's
// write queue, so concurrent appends are applied one after another.
type KVHistoryRepository struct {
	store storage.KeyValueStore
	queue *storage.KeyedQueue
	log   *logrus.Entry
}

// NewKVHistoryRepository creates a history repository over store
func NewKVHistoryRepository(store storage.KeyValueStore, queue *storage.KeyedQueue) *KVHistoryRepository {
	return &KVHistoryRepository{
		store: store,
		queue: queue,
		log:   logger.ForComponent("history"),
	}
}

// load reads the collection; a missing key is an empty collection
func (r *KVHistoryRepository) load(ctx context.Context) ([]models.HistoryEntry, error) {
	data, err := r.store.Get(ctx, storage.HistoryKey)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return []models.HistoryEntry{}, nil
		}
		return nil, err
	}

	var entries []models.HistoryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	return entries, nil
}

func (r *KVHistoryRepository) save(ctx context.Context, entries []models.HistoryEntry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	return r.store.Set(ctx, storage.HistoryKey, data)
}

// Append inserts entry at the head. Corrupt stored content is not
// overwritten; the append fails instead.
func (r *KVHistoryRepository) Append(ctx context.Context, entry models.HistoryEntry) error {
	err := r.queue.Do(ctx, storage.HistoryKey, func() error {
		entries, err := r.load(ctx)
		if err != nil {
			return err
		}
		entries = append([]models.HistoryEntry{entry}, entries...)
		return r.save(ctx, entries)
	})
	if err != nil {
		r.log.WithError(err).WithField("entry_id", entry.ID).Error("Failed to append history entry")
		return apperrors.NewPersistenceError("failed to save analysis to history", err)
	}

	r.log.WithField("entry_id", entry.ID).Info("History entry saved")
	return nil
}

// List never fails: unreadable or corrupt storage is logged and treated as empty
func (r *KVHistoryRepository) List(ctx context.Context) []models.HistoryEntry {
	var entries []models.HistoryEntry
	err := r.queue.Do(ctx, storage.HistoryKey, func() error {
		var err error
		entries, err = r.load(ctx)
		return err
	})
	if err != nil {
		r.log.WithError(err).Warn("History unreadable, treating as empty")
		return []models.HistoryEntry{}
	}
	return entries
}

func (r *KVHistoryRepository) Get(ctx context.Context, id int64) (*models.HistoryEntry, error) {
	for _, entry := range r.List(ctx) {
		if entry.ID == id {
			e := entry
			return &e, nil
		}
	}
	return nil, apperrors.NewNotFoundError(fmt.Sprintf("history entry %d not found", id), ErrEntryNotFound)
}

func (r *KVHistoryRepository) DeleteByID(ctx context.Context, id int64) error {
	removed := false
	err := r.queue.Do(ctx, storage.HistoryKey, func() error {
		entries, err := r.load(ctx)
		if err != nil {
			return err
		}

		kept := make([]models.HistoryEntry, 0, len(entries))
		for _, entry := range entries {
			if entry.ID == id {
				removed = true
				continue
			}
			kept = append(kept, entry)
		}
		if !removed {
			return nil
		}
		return r.save(ctx, kept)
	})
	if err != nil {
		r.log.WithError(err).WithField("entry_id", id).Error("Failed to delete history entry")
		return apperrors.NewPersistenceError("failed to delete history entry", err)
	}

	r.log.WithFields(logrus.Fields{"entry_id": id, "removed": removed}).Info("History delete processed")
	return nil
}

func (r *KVHistoryRepository) Clear(ctx context.Context) error {
	err := r.queue.Do(ctx, storage.HistoryKey, func() error {
		return r.store.Delete(ctx, storage.HistoryKey)
	})
	if err != nil {
		r.log.WithError(err).Error("Failed to clear history")
		return apperrors.NewPersistenceError("failed to clear history", err)
	}

	r.log.Info("History cleared")
	return nil
}
