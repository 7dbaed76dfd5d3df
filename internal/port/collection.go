package port

import (
	"context"

	"dedup/internal/domain"
)

// Backend is a vector database that manages named collections.
type Backend interface {
	// CreateCollection creates a new collection.
	// Returns domain.ErrCollectionExists if the name is taken.
	CreateCollection(ctx context.Context, name string) (CollectionStore, error)

	// GetCollection opens an existing collection.
	// Returns domain.ErrCollectionNotFound if it does not exist.
	GetCollection(ctx context.Context, name string) (CollectionStore, error)

	// Close releases the backend connection.
	Close() error
}

// CollectionLister is implemented by backends that can enumerate their
// collections without opening one.
type CollectionLister interface {
	Collections(ctx context.Context) ([]string, error)
}

// CollectionStore is a handle to one named collection of documents.
type CollectionStore interface {
	Name() string

	// Upsert stores or replaces documents by id. ids and documents are parallel.
	Upsert(ctx context.Context, ids []string, documents []string) error

	// QueryNearest returns, for each query text, up to n neighbours ordered
	// by ascending distance.
	QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error)

	// Get returns the stored documents for ids, skipping ids that are absent.
	Get(ctx context.Context, ids []string) ([]domain.Document, error)

	// Enumerate returns every stored document id.
	Enumerate(ctx context.Context) ([]string, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)
}
