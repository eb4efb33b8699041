package session

import (
	"context"
	"errors"
	"sync"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/repository"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/sirupsen/logrus"
)

var errImageChanged = errors.New("working image changed")

// Tracker holds the image and result currently being worked on and persists
// every mutation. Writes are queued while the lock is held, so they reach
// storage in the same order the mutations happened.
type Tracker struct {
	mu    sync.Mutex
	state models.SessionState
	repo  repository.SessionRepository
	queue *storage.KeyedQueue
	log   *logrus.Entry
}

// NewTracker creates a tracker with an empty state; call Restore to load the
// persisted one
func NewTracker(repo repository.SessionRepository, queue *storage.KeyedQueue) *Tracker {
	return &Tracker{
		repo:  repo,
		queue: queue,
		log:   logger.ForComponent("session"),
	}
}

// Restore loads the last persisted state. Missing or unreadable state is
// logged and yields an empty session.
func (t *Tracker) Restore(ctx context.Context) models.SessionState {
	var loaded models.SessionState
	err := t.queue.Do(ctx, storage.SessionStateKey, func() error {
		var err error
		loaded, err = t.repo.Load(ctx)
		return err
	})
	if err != nil {
		if !errors.Is(err, storage.ErrKeyNotFound) {
			t.log.WithError(err).Warn("Could not restore session state, starting empty")
		}
		loaded = models.SessionState{}
	}

	// a result without an image cannot be produced by the tracker
	if !loaded.HasImage() {
		loaded = models.SessionState{}
	}

	t.mu.Lock()
	t.state = loaded
	snapshot := t.state.Clone()
	t.mu.Unlock()

	t.log.WithFields(logrus.Fields{
		"has_image":  snapshot.HasImage(),
		"has_result": snapshot.Result != nil,
	}).Debug("Session state restored")
	return snapshot
}

// SelectImage makes ref the working image and clears any previous result
func (t *Tracker) SelectImage(ctx context.Context, ref string) error {
	if ref == "" {
		return apperrors.NewValidationError("image reference cannot be empty", nil)
	}

	return t.mutate(ctx, func(s *models.SessionState) error {
		image := ref
		s.Image = &image
		s.Result = nil
		return nil
	})
}

// SetResult attaches result to the current image. Without an image it fails
// and the state is left untouched.
func (t *Tracker) SetResult(ctx context.Context, result *models.AnalysisResult) error {
	return t.mutate(ctx, func(s *models.SessionState) error {
		if !s.HasImage() {
			return apperrors.NewPreconditionError("no image selected")
		}
		s.Result = result.Clone()
		return nil
	})
}

// ApplyResult sets result only while image is still the working image. It
// reports false, without touching state, when the image has changed.
func (t *Tracker) ApplyResult(ctx context.Context, image string, result *models.AnalysisResult) (bool, error) {
	err := t.mutate(ctx, func(s *models.SessionState) error {
		if !s.HasImage() || *s.Image != image {
			return errImageChanged
		}
		s.Result = result.Clone()
		return nil
	})
	if errors.Is(err, errImageChanged) {
		return false, nil
	}
	return err == nil, err
}

// Reset clears the image and the result
func (t *Tracker) Reset(ctx context.Context) error {
	return t.mutate(ctx, func(s *models.SessionState) error {
		*s = models.SessionState{}
		return nil
	})
}

// State returns a copy of the in-memory state
func (t *Tracker) State() models.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Clone()
}

// mutate applies change, then persists the resulting snapshot. The in-memory
// change is kept even if the write fails.
func (t *Tracker) mutate(ctx context.Context, change func(*models.SessionState) error) error {
	t.mu.Lock()
	if err := change(&t.state); err != nil {
		t.mu.Unlock()
		return err
	}
	snapshot := t.state.Clone()
	done := t.queue.Submit(storage.SessionStateKey, func() error {
		return t.repo.Save(context.WithoutCancel(ctx), snapshot)
	})
	t.mu.Unlock()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		t.log.WithError(err).Error("Failed to persist session state")
		return apperrors.NewPersistenceError("failed to persist session state", err)
	}
	return nil
}
