package usecase

import (
	"context"
	"errors"
	"fmt"

	"dedup/internal/domain"
	"dedup/internal/port"
)

// DefaultMatchCandidates is how many nearest neighbours FindExactMatches
// inspects. Exact duplicates beyond this many are not reported.
const DefaultMatchCandidates = 10

// DocumentStore is the duplicate-aware view over one backend collection.
type DocumentStore struct {
	backend    port.Backend
	collection port.CollectionStore
	candidates int
}

// StoreOption configures a DocumentStore.
type StoreOption func(*DocumentStore)

// WithMatchCandidates sets the neighbour count used by FindExactMatches.
// n <= 0 searches the whole collection.
func WithMatchCandidates(n int) StoreOption {
	return func(s *DocumentStore) {
		s.candidates = n
	}
}

// NewDocumentStore creates the named collection, or opens it if it already exists.
func NewDocumentStore(ctx context.Context, backend port.Backend, name string, opts ...StoreOption) (*DocumentStore, error) {
	s := &DocumentStore{
		backend:    backend,
		candidates: DefaultMatchCandidates,
	}
	for _, opt := range opts {
		opt(s)
	}

	col, err := backend.CreateCollection(ctx, name)
	if errors.Is(err, domain.ErrCollectionExists) {
		col, err = backend.GetCollection(ctx, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open collection %q: %w", name, err)
	}
	s.collection = col
	return s, nil
}

// CollectionName returns the name of the underlying collection.
func (s *DocumentStore) CollectionName() string {
	return s.collection.Name()
}

// Upsert stores text under id, replacing any previous body.
func (s *DocumentStore) Upsert(ctx context.Context, id, text string) error {
	if id == "" {
		return domain.ErrEmptyID
	}
	if err := s.collection.Upsert(ctx, []string{id}, []string{text}); err != nil {
		return fmt.Errorf("failed to upsert %q: %w", id, err)
	}
	return nil
}

// FindExactMatches returns the ids of stored documents at distance exactly
// zero from text, in the order the backend ranked them.
func (s *DocumentStore) FindExactMatches(ctx context.Context, text string) ([]string, error) {
	n := s.candidates
	if n <= 0 {
		count, err := s.collection.Count(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count documents: %w", err)
		}
		n = count
	}

	matches := []string{}
	if n == 0 {
		return matches, nil
	}

	results, err := s.collection.QueryNearest(ctx, []string{text}, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query nearest documents: %w", err)
	}
	if len(results) == 0 {
		return matches, nil
	}

	for _, nb := range results[0] {
		if nb.Distance == 0.0 {
			matches = append(matches, nb.ID)
		}
	}
	return matches, nil
}

// Document returns the stored body for id. ok is false when id is absent.
func (s *DocumentStore) Document(ctx context.Context, id string) (doc domain.Document, ok bool, err error) {
	if id == "" {
		return doc, false, domain.ErrEmptyID
	}
	docs, err := s.collection.Get(ctx, []string{id})
	if err != nil {
		return doc, false, fmt.Errorf("failed to get %q: %w", id, err)
	}
	for _, d := range docs {
		if d.ID == id {
			return d, true, nil
		}
	}
	return doc, false, nil
}

// ListAllIDs returns every stored document id.
func (s *DocumentStore) ListAllIDs(ctx context.Context) ([]string, error) {
	ids, err := s.collection.Enumerate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate documents: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Close releases the backend.
func (s *DocumentStore) Close() error {
	return s.backend.Close()
}
