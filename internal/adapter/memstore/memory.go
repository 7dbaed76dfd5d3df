package memstore

import (
	"context"
	"fmt"
	"sync"

	"dedup/internal/adapter/vecmath"
	"dedup/internal/domain"
	"dedup/internal/port"
)

// MemoryBackend keeps collections in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu          sync.RWMutex
	embedder    port.Embedder
	collections map[string]*MemoryCollection
}

func NewMemoryBackend(embedder port.Embedder) *MemoryBackend {
	return &MemoryBackend{
		embedder:    embedder,
		collections: make(map[string]*MemoryCollection),
	}
}

func (b *MemoryBackend) CreateCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.collections[name]; ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
	}
	c := &MemoryCollection{
		name:     name,
		embedder: b.embedder,
		index:    make(map[string]int),
	}
	b.collections[name] = c
	return c, nil
}

func (b *MemoryBackend) GetCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	c, ok := b.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	return c, nil
}

func (b *MemoryBackend) Close() error {
	return nil
}

type memoryDoc struct {
	id     string
	text   string
	vector []float32
}

// MemoryCollection stores documents in insertion order; index maps id to slot.
type MemoryCollection struct {
	mu       sync.RWMutex
	name     string
	embedder port.Embedder
	docs     []memoryDoc
	index    map[string]int
}

func (c *MemoryCollection) Name() string {
	return c.name
}

func (c *MemoryCollection) Upsert(ctx context.Context, ids []string, documents []string) error {
	if len(ids) != len(documents) {
		return fmt.Errorf("ids and documents length mismatch: %d vs %d", len(ids), len(documents))
	}
	for _, id := range ids {
		if id == "" {
			return domain.ErrEmptyID
		}
	}

	vectors, err := c.embedder.Embed(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		doc := memoryDoc{id: id, text: documents[i], vector: vectors[i]}
		if slot, ok := c.index[id]; ok {
			c.docs[slot] = doc
			continue
		}
		c.index[id] = len(c.docs)
		c.docs = append(c.docs, doc)
	}
	return nil
}

func (c *MemoryCollection) QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error) {
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	c.mu.RLock()
	candidates := make([]vecmath.Candidate, len(c.docs))
	for i, d := range c.docs {
		candidates[i] = vecmath.Candidate{ID: d.id, Vector: d.vector}
	}
	c.mu.RUnlock()

	results := make([][]domain.Neighbor, len(vectors))
	for i, q := range vectors {
		results[i], err = vecmath.Nearest(q, candidates, n)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *MemoryCollection) Enumerate(ctx context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, len(c.docs))
	for i, d := range c.docs {
		ids[i] = d.id
	}
	return ids, nil
}

func (c *MemoryCollection) Count(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), nil
}

func (c *MemoryCollection) Get(ctx context.Context, ids []string) ([]domain.Document, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		if slot, ok := c.index[id]; ok {
			docs = append(docs, domain.Document{ID: id, Text: c.docs[slot].text})
		}
	}
	return docs, nil
}
