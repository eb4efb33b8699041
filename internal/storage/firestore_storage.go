package storage

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig holds Cloud Firestore settings
type FirestoreConfig struct {
	ProjectID       string
	Collection      string
	CredentialsFile string
}

// FirestoreStore keeps each key as a document with a single value field
type FirestoreStore struct {
	client  *firestore.Client
	collRef *firestore.CollectionRef
}

type kvDocument struct {
	Value     string    `firestore:"value"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// NewFirestoreStore creates a Firestore-backed store.
// Without a credentials file, Application Default Credentials are used.
func NewFirestoreStore(ctx context.Context, cfg FirestoreConfig) (*FirestoreStore, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}
	if cfg.Collection == "" {
		cfg.Collection = "olive_inspector"
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	client, err := firestore.NewClient(ctx, cfg.ProjectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	return &FirestoreStore{
		client:  client,
		collRef: client.Collection(cfg.Collection),
	}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, key string) ([]byte, error) {
	snap, err := s.collRef.Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	if !snap.Exists() {
		return nil, ErrKeyNotFound
	}

	var doc kvDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", key, err)
	}
	return []byte(doc.Value), nil
}

func (s *FirestoreStore) Set(ctx context.Context, key string, value []byte) error {
	doc := kvDocument{Value: string(value), UpdatedAt: time.Now().UTC()}
	if _, err := s.collRef.Doc(key).Set(ctx, doc); err != nil {
		return fmt.Errorf("set document %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collRef.Doc(key).Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	return nil
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}
