package service

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/anime-shed/olive-inspector-go/internal/errors"
	"github.com/anime-shed/olive-inspector-go/internal/gateway"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/observer"
	"github.com/anime-shed/olive-inspector-go/internal/repository"
	"github.com/anime-shed/olive-inspector-go/internal/session"
	"github.com/anime-shed/olive-inspector-go/pkg/models"

	"github.com/sirupsen/logrus"
)

// DetectionService defines the user-facing detection workflow: pick an image,
// analyze it, save the result and browse history
type DetectionService interface {
	// Start restores persisted session state and settings
	Start(ctx context.Context) models.SessionState

	// Session methods
	Session() models.SessionState
	PickImage(ctx context.Context, imageRef string) error
	Analyze(ctx context.Context) (*AnalyzeResult, error)
	SaveToHistory(ctx context.Context) (*models.HistoryEntry, error)
	ResetSession(ctx context.Context) error

	// History methods
	History(ctx context.Context) []models.HistoryEntry
	HistoryEntry(ctx context.Context, id int64) (*models.HistoryEntry, error)
	DeleteHistoryEntry(ctx context.Context, id int64) error
	ClearHistory(ctx context.Context) error
}

// ServerAddressSource supplies the detection server address
type ServerAddressSource interface {
	ServerAddress(ctx context.Context) string
	Load(ctx context.Context) models.Settings
}

// AnalyzeResult is the outcome of one analyze action
type AnalyzeResult struct {
	Outcome  *models.AnalysisOutcome
	ImageRef string
	// Discarded is set when a newer action superseded this call, so the
	// outcome was not applied to the session
	Discarded bool
}

// detectionService implements DetectionService
type detectionService struct {
	tracker  *session.Tracker
	gateway  gateway.Gateway
	history  repository.HistoryRepository
	settings ServerAddressSource
	events   observer.Subject
	ids      *IDGenerator
	now      func() time.Time
	log      *logrus.Entry

	// generation is bumped by every analyze, pick and reset; an analyze
	// call may only apply its outcome if it still holds the latest value
	mu         sync.Mutex
	generation uint64
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	tracker *session.Tracker,
	detectionGateway gateway.Gateway,
	historyRepository repository.HistoryRepository,
	settingsSource ServerAddressSource,
	events observer.Subject,
	ids *IDGenerator,
) DetectionService {
	if ids == nil {
		ids = NewIDGenerator(nil)
	}
	return &detectionService{
		tracker:  tracker,
		gateway:  detectionGateway,
		history:  historyRepository,
		settings: settingsSource,
		events:   events,
		ids:      ids,
		now:      time.Now,
		log:      logger.ForComponent("detection"),
	}
}

func (s *detectionService) Start(ctx context.Context) models.SessionState {
	s.settings.Load(ctx)
	for _, entry := range s.history.List(ctx) {
		s.ids.Observe(entry.ID)
	}
	return s.tracker.Restore(ctx)
}

func (s *detectionService) Session() models.SessionState {
	return s.tracker.State()
}

// PickImage selects a new working image. Any analyze call still in flight
// loses the right to apply its result.
func (s *detectionService) PickImage(ctx context.Context, imageRef string) error {
	s.bump()
	if err := s.tracker.SelectImage(ctx, imageRef); err != nil {
		return err
	}
	s.publish(ctx, observer.SessionEvent{EventType: observer.ImageSelected, ImageRef: imageRef, Success: true})
	return nil
}

// Analyze submits the working image to the detection server and applies the
// outcome to the session. Both success and no_detection outcomes are applied.
func (s *detectionService) Analyze(ctx context.Context) (*AnalyzeResult, error) {
	state := s.tracker.State()
	if !state.HasImage() {
		return nil, apperrors.NewPreconditionError("select an image before analyzing")
	}
	imageRef := *state.Image
	gen := s.bump()

	s.publish(ctx, observer.SessionEvent{EventType: observer.AnalysisStarted, ImageRef: imageRef})
	start := time.Now()

	outcome, err := s.gateway.Analyze(ctx, imageRef, s.settings.ServerAddress(ctx))
	elapsed := time.Since(start)
	if err != nil {
		event := observer.SessionEvent{
			EventType:      observer.AnalysisFailed,
			ImageRef:       imageRef,
			ProcessingTime: elapsed,
			ErrorMessage:   err.Error(),
		}
		if appErr, ok := apperrors.As(err); ok {
			event.ErrorType = string(appErr.Type)
		}
		s.publish(ctx, event)
		return nil, err
	}

	result := &AnalyzeResult{Outcome: outcome, ImageRef: imageRef}
	applied, err := s.apply(ctx, gen, imageRef, outcome.Result)
	if err != nil {
		return nil, err
	}
	if !applied {
		result.Discarded = true
		s.log.WithFields(logrus.Fields{
			"image_ref":  imageRef,
			"generation": gen,
		}).Info("Discarding stale analysis result")
		return result, nil
	}

	eventType := observer.AnalysisCompleted
	if outcome.Status == models.OutcomeNoDetection {
		eventType = observer.AnalysisNoDetection
	}
	event := observer.SessionEvent{
		EventType:      eventType,
		ImageRef:       imageRef,
		ProcessingTime: elapsed,
		Success:        true,
	}
	if info := outcome.Result.DetectionInfo; info != nil {
		event.Metadata = map[string]interface{}{"leaf_count": info.LeafCount}
	}
	s.publish(ctx, event)

	return result, nil
}

// apply stores result if gen is still the latest generation and imageRef is
// still the working image
func (s *detectionService) apply(ctx context.Context, gen uint64, imageRef string, result *models.AnalysisResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return false, nil
	}
	return s.tracker.ApplyResult(ctx, imageRef, result)
}

// SaveToHistory snapshots the current image and result into history. It
// requires both, and the result must carry detection info.
func (s *detectionService) SaveToHistory(ctx context.Context) (*models.HistoryEntry, error) {
	state := s.tracker.State()
	if !state.HasImage() {
		return nil, apperrors.NewPreconditionError("no image to save")
	}
	if state.Result == nil || state.Result.DetectionInfo == nil {
		return nil, apperrors.NewPreconditionError("no analysis result to save")
	}

	entry := models.NewHistoryEntry(s.ids.Next(), *state.Image, state.Result, s.now())
	if err := s.history.Append(ctx, entry); err != nil {
		return nil, err
	}

	s.publish(ctx, observer.SessionEvent{
		EventType: observer.HistorySaved,
		ImageRef:  entry.ImageURI,
		Success:   true,
		Metadata:  map[string]interface{}{"entry_id": entry.ID, "leaf_count": entry.Result.LeafCount},
	})
	return &entry, nil
}

func (s *detectionService) ResetSession(ctx context.Context) error {
	s.bump()
	if err := s.tracker.Reset(ctx); err != nil {
		return err
	}
	s.publish(ctx, observer.SessionEvent{EventType: observer.SessionReset, Success: true})
	return nil
}

func (s *detectionService) History(ctx context.Context) []models.HistoryEntry {
	return s.history.List(ctx)
}

func (s *detectionService) HistoryEntry(ctx context.Context, id int64) (*models.HistoryEntry, error) {
	return s.history.Get(ctx, id)
}

func (s *detectionService) DeleteHistoryEntry(ctx context.Context, id int64) error {
	if err := s.history.DeleteByID(ctx, id); err != nil {
		return err
	}
	s.publish(ctx, observer.SessionEvent{
		EventType: observer.HistoryDeleted,
		Success:   true,
		Metadata:  map[string]interface{}{"entry_id": id},
	})
	return nil
}

func (s *detectionService) ClearHistory(ctx context.Context) error {
	if err := s.history.Clear(ctx); err != nil {
		return err
	}
	s.publish(ctx, observer.SessionEvent{EventType: observer.HistoryCleared, Success: true})
	return nil
}

func (s *detectionService) bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.generation
}

func (s *detectionService) publish(ctx context.Context, event observer.SessionEvent) {
	if s.events == nil {
		return
	}
	event.Timestamp = s.now()
	s.events.NotifyObservers(ctx, event)
}
