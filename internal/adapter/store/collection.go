package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"dedup/internal/adapter/vecmath"
	"dedup/internal/domain"
	"dedup/internal/port"
)

// BoltCollection is one collection inside a BoltBackend.
// Search is brute force over every stored vector.
type BoltCollection struct {
	db       *bbolt.DB
	name     string
	embedder port.Embedder
}

type storedDoc struct {
	Text   string    `json:"t"`
	Vector []float32 `json:"v"`
}

func newBoltCollection(db *bbolt.DB, name string, embedder port.Embedder) *BoltCollection {
	return &BoltCollection{db: db, name: name, embedder: embedder}
}

func (c *BoltCollection) Name() string {
	return c.name
}

func (c *BoltCollection) docs(tx *bbolt.Tx) (*bbolt.Bucket, error) {
	cb := tx.Bucket(bucketCollections).Bucket([]byte(c.name))
	if cb == nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, c.name)
	}
	b := cb.Bucket(bucketDocs)
	if b == nil {
		return nil, fmt.Errorf("docs bucket not found in collection %s", c.name)
	}
	return b, nil
}

func (c *BoltCollection) Upsert(ctx context.Context, ids []string, documents []string) error {
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

	return c.db.Update(func(tx *bbolt.Tx) error {
		b, err := c.docs(tx)
		if err != nil {
			return err
		}
		for i, id := range ids {
			data, err := json.Marshal(storedDoc{Text: documents[i], Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(id), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *BoltCollection) QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error) {
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var candidates []vecmath.Candidate
	err = c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.docs(tx)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			var doc storedDoc
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("corrupt document %s: %w", k, err)
			}
			candidates = append(candidates, vecmath.Candidate{ID: string(k), Vector: doc.Vector})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	results := make([][]domain.Neighbor, len(vectors))
	for i, q := range vectors {
		results[i], err = vecmath.Nearest(q, candidates, n)
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (c *BoltCollection) Get(ctx context.Context, ids []string) ([]domain.Document, error) {
	docs := make([]domain.Document, 0, len(ids))
	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.docs(tx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			data := b.Get([]byte(id))
			if data == nil {
				continue
			}
			var doc storedDoc
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("corrupt document %s: %w", id, err)
			}
			docs = append(docs, domain.Document{ID: id, Text: doc.Text})
		}
		return nil
	})
	return docs, err
}

func (c *BoltCollection) Enumerate(ctx context.Context) ([]string, error) {
	var ids []string
	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.docs(tx)
		if err != nil {
			return err
		}
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (c *BoltCollection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.View(func(tx *bbolt.Tx) error {
		b, err := c.docs(tx)
		if err != nil {
			return err
		}
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}
