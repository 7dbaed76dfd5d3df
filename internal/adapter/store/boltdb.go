package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"dedup/internal/domain"
	"dedup/internal/port"
)

var (
	bucketCollections = []byte("collections")
	bucketDocs        = []byte("docs")
	keyMeta           = []byte("meta")
)

// BoltBackend stores every collection in a single BoltDB file.
// Each collection is a nested bucket under "collections" holding a meta record
// and a "docs" bucket keyed by document id.
type BoltBackend struct {
	db       *bbolt.DB
	embedder port.Embedder
}

func NewBoltBackend(path string, embedder port.Embedder) (*BoltBackend, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCollections); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketCollections, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltBackend{db: db, embedder: embedder}, nil
}

func (b *BoltBackend) CreateCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketCollections)
		if root.Bucket([]byte(name)) != nil {
			return fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
		}
		cb, err := root.CreateBucket([]byte(name))
		if err != nil {
			return fmt.Errorf("failed to create collection bucket: %w", err)
		}
		if _, err := cb.CreateBucket(bucketDocs); err != nil {
			return fmt.Errorf("failed to create docs bucket: %w", err)
		}
		meta := newCollectionMeta(b.embedder)
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return cb.Put(keyMeta, data)
	})
	if err != nil {
		return nil, err
	}
	return newBoltCollection(b.db, name, b.embedder), nil
}

func (b *BoltBackend) GetCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	var meta collectionMeta
	err := b.db.View(func(tx *bbolt.Tx) error {
		cb := tx.Bucket(bucketCollections).Bucket([]byte(name))
		if cb == nil {
			return fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
		}
		data := cb.Get(keyMeta)
		if data == nil {
			return fmt.Errorf("collection %s has no metadata", name)
		}
		return json.Unmarshal(data, &meta)
	})
	if err != nil {
		return nil, err
	}

	if err := meta.checkCompatible(b.embedder); err != nil {
		return nil, fmt.Errorf("collection %s: %w", name, err)
	}
	return newBoltCollection(b.db, name, b.embedder), nil
}

// Collections lists collection names in key order.
func (b *BoltBackend) Collections(ctx context.Context) ([]string, error) {
	names := []string{}
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketCollections).ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}
