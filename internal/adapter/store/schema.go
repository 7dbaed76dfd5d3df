package store

import (
	"fmt"
	"time"

	"dedup/internal/domain"
	"dedup/internal/port"
)

// CurrentSchemaVersion is the current collection layout version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 1

// collectionMeta records how a collection's vectors were produced.
// Vectors from different models are not comparable, so a mismatch is fatal.
type collectionMeta struct {
	Version   int    `json:"version"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
	CreatedAt int64  `json:"created_at"`
}

func newCollectionMeta(embedder port.Embedder) collectionMeta {
	return collectionMeta{
		Version:   CurrentSchemaVersion,
		Model:     embedder.ModelName(),
		Dimension: embedder.Dimension(),
		CreatedAt: time.Now().Unix(),
	}
}

func (m collectionMeta) checkCompatible(embedder port.Embedder) error {
	if m.Version > CurrentSchemaVersion {
		return fmt.Errorf("created by newer version (v%d > v%d)", m.Version, CurrentSchemaVersion)
	}
	if m.Model != embedder.ModelName() {
		return fmt.Errorf("built with embedding model %q, configured model is %q", m.Model, embedder.ModelName())
	}
	if m.Dimension != embedder.Dimension() {
		return fmt.Errorf("%w: collection has %d, embedder produces %d", domain.ErrDimensionMismatch, m.Dimension, embedder.Dimension())
	}
	return nil
}
