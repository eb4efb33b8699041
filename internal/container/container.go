package container

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anime-shed/olive-inspector-go/internal/config"
	"github.com/anime-shed/olive-inspector-go/internal/factory"
	"github.com/anime-shed/olive-inspector-go/internal/gateway"
	"github.com/anime-shed/olive-inspector-go/internal/logger"
	"github.com/anime-shed/olive-inspector-go/internal/observer"
	"github.com/anime-shed/olive-inspector-go/internal/repository"
	"github.com/anime-shed/olive-inspector-go/internal/service"
	"github.com/anime-shed/olive-inspector-go/internal/session"
	"github.com/anime-shed/olive-inspector-go/internal/settings"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
	"github.com/anime-shed/olive-inspector-go/internal/transport"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Container holds all application dependencies
type Container struct {
	config           *config.Config
	store            storage.KeyValueStore
	queue            *storage.KeyedQueue
	settingsService  *settings.Service
	detectionService service.DetectionService
	registry         *prometheus.Registry
	handler          http.Handler
}

// NewContainer builds the dependency graph for cfg and restores the persisted
// session and settings
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger.SetLevel(cfg.LogLevel)

	components := factory.NewComponentFactory(cfg)
	store, err := components.StorageFactory.CreateStorage(ctx, factory.StorageType(cfg.Storage.Type))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s storage: %w", cfg.Storage.Type, err)
	}
	return build(ctx, cfg, store, components.LoaderFactory)
}

// NewContainerWithStore builds the graph over an existing store
func NewContainerWithStore(ctx context.Context, cfg *config.Config, store storage.KeyValueStore) (*Container, error) {
	return build(ctx, cfg, store, factory.NewLoaderFactory(cfg.MaxImageBytes))
}

func build(ctx context.Context, cfg *config.Config, store storage.KeyValueStore, loaders factory.LoaderFactory) (*Container, error) {
	queue := storage.NewKeyedQueue(cfg.Storage.QueueDepth)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observer.NewMetricsObserver(registry)
	if err != nil {
		queue.Close()
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	publisher := observer.NewEventPublisher()
	publisher.Subscribe(observer.NewLoggingObserver())
	publisher.Subscribe(metrics)

	settingsService := settings.NewService(repository.NewKVSettingsRepository(store), queue)
	tracker := session.NewTracker(repository.NewKVSessionRepository(store), queue)
	history := repository.NewKVHistoryRepository(store, queue)
	detectionGateway := gateway.NewDetectionGateway(loaders.CreateLoader(), cfg.AnalysisTimeout)

	detectionService := service.NewDetectionService(
		tracker,
		detectionGateway,
		history,
		settingsService,
		publisher,
		service.NewIDGenerator(nil),
	)
	detectionService.Start(ctx)

	handler := transport.NewHandler(detectionService, settingsService, transport.Options{
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		Metrics:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	return &Container{
		config:           cfg,
		store:            store,
		queue:            queue,
		settingsService:  settingsService,
		detectionService: detectionService,
		registry:         registry,
		handler:          handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// DetectionService returns the session and history workflow
func (c *Container) DetectionService() service.DetectionService {
	return c.detectionService
}

// SettingsService returns the settings service
func (c *Container) SettingsService() *settings.Service {
	return c.settingsService
}

// Close drains pending writes and releases the store
func (c *Container) Close() error {
	c.queue.Close()
	return c.store.Close()
}
