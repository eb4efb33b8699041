package observer

import (
	"context"
	"sync"
	"time"

	"github.com/anime-shed/olive-inspector-go/internal/logger"

	"github.com/sirupsen/logrus"
)

// SessionEvent represents a detection session or history event
type SessionEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	ImageRef       string                 `json:"image_ref,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorType      string                 `json:"error_type,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of session event
type EventType string

const (
	// AnalysisStarted when an analyze request is sent
	AnalysisStarted EventType = "analysis_started"
	// AnalysisCompleted when the server found leaves
	AnalysisCompleted EventType = "analysis_completed"
	// AnalysisNoDetection when the server answered without leaves
	AnalysisNoDetection EventType = "analysis_no_detection"
	// AnalysisFailed when the analyze call failed
	AnalysisFailed EventType = "analysis_failed"
	// ImageSelected when a new working image is picked
	ImageSelected EventType = "image_selected"
	// SessionReset when the session is cleared
	SessionReset EventType = "session_reset"
	// HistorySaved when an entry is appended to history
	HistorySaved EventType = "history_saved"
	// HistoryDeleted when an entry is removed
	HistoryDeleted EventType = "history_deleted"
	// HistoryCleared when the whole history is removed
	HistoryCleared EventType = "history_cleared"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event SessionEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event SessionEvent)
}

// LoggingObserver logs session events
type LoggingObserver struct {
	log *logrus.Entry
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver() Observer {
	return &LoggingObserver{
		log: logger.ForComponent("events"),
	}
}

// OnEvent handles session events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event SessionEvent) {
	fields := logrus.Fields{
		"event_type":      event.EventType,
		"image_ref":       event.ImageRef,
		"processing_time": event.ProcessingTime,
		"success":         event.Success,
	}

	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
		fields["error_type"] = event.ErrorType
	}

	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.log.WithFields(fields)
	switch event.EventType {
	case AnalysisStarted:
		entry.Info("Leaf analysis started")
	case AnalysisCompleted:
		entry.Info("Leaf analysis completed")
	case AnalysisNoDetection:
		entry.Warn("No leaves detected")
	case AnalysisFailed:
		entry.Error("Leaf analysis failed")
	case ImageSelected, SessionReset:
		entry.Debug("Session changed")
	default:
		entry.Info("Session event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to each observer in subscription order.
// A panicking observer is logged and skipped.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event SessionEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event SessionEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(logrus.Fields{
				"observer":   obs.GetObserverName(),
				"event_type": event.EventType,
				"panic":      r,
			}).Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
