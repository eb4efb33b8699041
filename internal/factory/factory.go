package factory

import (
	"context"
	"fmt"

	"github.com/anime-shed/olive-inspector-go/internal/config"
	"github.com/anime-shed/olive-inspector-go/internal/imagesource"
	"github.com/anime-shed/olive-inspector-go/internal/storage"
)

// StorageType represents different types of storage backends
type StorageType string

const (
	// MemoryStorage keeps everything in process
	MemoryStorage StorageType = config.StorageMemory
	// FileStorage writes one JSON file per key
	FileStorage StorageType = config.StorageFile
	// RedisStorage for a Redis server
	RedisStorage StorageType = config.StorageRedis
	// AzureStorage for Azure blob storage
	AzureStorage StorageType = config.StorageAzure
	// FirestoreStorage for Cloud Firestore
	FirestoreStorage StorageType = config.StorageFirestore
)

// StorageFactory creates key-value stores
type StorageFactory interface {
	CreateStorage(ctx context.Context, storageType StorageType) (storage.KeyValueStore, error)
}

// LoaderFactory creates image loaders
type LoaderFactory interface {
	CreateLoader() imagesource.Loader
}

// storageFactory implements StorageFactory
type storageFactory struct {
	cfg config.StorageConfig
}

// NewStorageFactory creates a new storage factory
func NewStorageFactory(cfg config.StorageConfig) StorageFactory {
	return &storageFactory{cfg: cfg}
}

// CreateStorage creates a storage implementation based on the specified type
func (f *storageFactory) CreateStorage(ctx context.Context, storageType StorageType) (storage.KeyValueStore, error) {
	switch storageType {
	case MemoryStorage:
		return storage.NewMemoryStore(), nil
	case FileStorage:
		return storage.NewFileStore(f.cfg.Dir)
	case RedisStorage:
		return storage.NewRedisStore(storage.RedisConfig{
			Addr:     f.cfg.Redis.Addr,
			Password: f.cfg.Redis.Password,
			DB:       f.cfg.Redis.DB,
			Prefix:   f.cfg.Redis.Prefix,
		})
	case AzureStorage:
		return storage.NewAzureStore(ctx, storage.AzureConfig{
			AccountName: f.cfg.Azure.AccountName,
			AccountKey:  f.cfg.Azure.AccountKey,
			Container:   f.cfg.Azure.Container,
			ServiceURL:  f.cfg.Azure.ServiceURL,
		})
	case FirestoreStorage:
		return storage.NewFirestoreStore(ctx, storage.FirestoreConfig{
			ProjectID:       f.cfg.Firestore.ProjectID,
			Collection:      f.cfg.Firestore.Collection,
			CredentialsFile: f.cfg.Firestore.CredentialsFile,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", storageType)
	}
}

// loaderFactory implements LoaderFactory
type loaderFactory struct {
	maxBytes int64
}

// NewLoaderFactory creates a loader factory capping images at maxBytes
func NewLoaderFactory(maxBytes int64) LoaderFactory {
	return &loaderFactory{maxBytes: maxBytes}
}

// CreateLoader returns a loader that reads local paths and fetches http(s) refs
func (f *loaderFactory) CreateLoader() imagesource.Loader {
	return imagesource.NewResolverWithLoaders(
		imagesource.NewFileLoader(f.maxBytes),
		imagesource.NewHTTPLoader(f.maxBytes),
	)
}

// ComponentFactory combines all factories
type ComponentFactory struct {
	StorageFactory StorageFactory
	LoaderFactory  LoaderFactory
}

// NewComponentFactory creates a new component factory
func NewComponentFactory(cfg *config.Config) *ComponentFactory {
	return &ComponentFactory{
		StorageFactory: NewStorageFactory(cfg.Storage),
		LoaderFactory:  NewLoaderFactory(cfg.MaxImageBytes),
	}
}
