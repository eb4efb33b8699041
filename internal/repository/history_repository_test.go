package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every operation with err
type failingStore struct {
	err error
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) { return nil, s.err }
func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	return s.err
}
func (s *failingStore) Delete(ctx context.Context, key string) error { return s.err }
func (s *failingStore) Close() error                                 { return nil }

func newHistory(t *testing.T, store storage.KeyValueStore) *KVHistoryRepository {
	t.Helper()
	queue := storage.NewKeyedQueue(0)
	t.Cleanup(queue.Close)
	return NewKVHistoryRepository(store, queue)
}

func entry(id int64, image string) models.HistoryEntry {
	result := &models.AnalysisResult{
		ProcessedImage: "b64-" + image,
		DetectionInfo: &models.DetectionInfo{
			LeafCount: 1,
			Leaves:    []models.LeafFinding{{ClassName: "psylle", Confidence: 80}},
		},
	}
	return models.NewHistoryEntry(id, image, result, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
}

func ids(entries []models.HistoryEntry) []int64 {
	out := make([]int64, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestHistoryAppendOrdersMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	repo := newHistory(t, storage.NewMemoryStore())

	require.NoError(t, repo.Append(ctx, entry(1, "a.jpg")))
	require.NoError(t, repo.Append(ctx, entry(2, "b.jpg")))

	got := repo.List(ctx)
	assert.Equal(t, []int64{2, 1}, ids(got))
	assert.Equal(t, "b.jpg", got[0].ImageURI)
	assert.Equal(t, 1, got[0].Result.Leaves[0].LeafNumber)
}

func TestHistoryListEmptyWhenMissing(t *testing.T) {
	repo := newHistory(t, storage.NewMemoryStore())

	got := repo.List(context.Background())
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestHistoryDeleteByID(t *testing.T) {
	ctx := context.Background()
	repo := newHistory(t, storage.NewMemoryStore())
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, repo.Append(ctx, entry(i, "img.jpg")))
	}

	require.NoError(t, repo.DeleteByID(ctx, 2))
	assert.Equal(t, []int64{3, 1}, ids(repo.List(ctx)))

	// unknown id leaves the collection unchanged
	require.NoError(t, repo.DeleteByID(ctx, 99))
	assert.Equal(t, []int64{3, 1}, ids(repo.List(ctx)))
}

func TestHistoryClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	repo := newHistory(t, store)
	require.NoError(t, repo.Append(ctx, entry(1, "a.jpg")))

	require.NoError(t, repo.Clear(ctx))
	assert.Empty(t, repo.List(ctx))

	_, err := store.Get(ctx, storage.HistoryKey)
	assert.ErrorIs(t, err, storage.ErrKeyNotFound)

	// clearing an empty history is fine
	assert.NoError(t, repo.Clear(ctx))
}

func TestHistoryGet(t *testing.T) {
	ctx := context.Background()
	repo := newHistory(t, storage.NewMemoryStore())
	require.NoError(t, repo.Append(ctx, entry(7, "seven.jpg")))

	got, err := repo.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "seven.jpg", got.ImageURI)

	_, err = repo.Get(ctx, 8)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestHistoryCorruptContent(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, storage.HistoryKey, []byte(`{not json`)))
	repo := newHistory(t, store)

	assert.Empty(t, repo.List(ctx))

	err := repo.Append(ctx, entry(1, "a.jpg"))
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
	assert.ErrorIs(t, err, ErrCorruptRecord)

	// corrupt content is left in place
	raw, err := store.Get(ctx, storage.HistoryKey)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(raw))
}

func TestHistoryStorageFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	repo := newHistory(t, &failingStore{err: boom})

	tests := []struct {
		name string
		op   func() error
	}{
		{"append", func() error { return repo.Append(ctx, entry(1, "a.jpg")) }},
		{"delete", func() error { return repo.DeleteByID(ctx, 1) }},
		{"clear", func() error { return repo.Clear(ctx) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.op()
			require.Error(t, err)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypePersistence))
			assert.ErrorIs(t, err, boom)
		})
	}

	assert.Empty(t, repo.List(ctx))
}

func TestHistoryConcurrentAppendsKeepEveryEntry(t *testing.T) {
	ctx := context.Background()
	repo := newHistory(t, storage.NewMemoryStore())

	const n = 50
	var wg sync.WaitGroup
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			assert.NoError(t, repo.Append(ctx, entry(id, "img.jpg")))
		}(int64(i))
	}
	wg.Wait()

	got := repo.List(ctx)
	require.Len(t, got, n)

	seen := make(map[int64]bool, n)
	for _, e := range got {
		assert.False(t, seen[e.ID], "duplicate id %d", e.ID)
		seen[e.ID] = true
	}
}
