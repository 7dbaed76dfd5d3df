// Package chroma is a port.Backend backed by a Chroma server.
package chroma

import (
	"context"
	"fmt"
	"strings"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/amikos-tech/chroma-go/pkg/embeddings"

	"dedup/internal/domain"
	"dedup/internal/port"
)

// Backend wraps a Chroma HTTP client.
type Backend struct {
	client chroma.Client
	ef     embeddings.EmbeddingFunction
}

// NewBackend connects to the Chroma server at url. Vectors are computed
// client side with embedder so every backend ranks the same vectors.
func NewBackend(url string, embedder port.Embedder) (*Backend, error) {
	client, err := chroma.NewHTTPClient(chroma.WithBaseURL(url))
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma client: %w", err)
	}
	return &Backend{client: client, ef: &embeddingFunc{embedder: embedder}}, nil
}

func (b *Backend) CreateCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	col, err := b.client.CreateCollection(ctx, name, chroma.WithEmbeddingFunctionCreate(b.ef))
	if err != nil {
		if isAlreadyExists(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
		}
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &Collection{col: col, pageSize: defaultPageSize}, nil
}

func (b *Backend) GetCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	col, err := b.client.GetCollection(ctx, name, chroma.WithEmbeddingFunctionGet(b.ef))
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
		}
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	return &Collection{col: col, pageSize: defaultPageSize}, nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}

// The client surfaces server errors as text only.
func isAlreadyExists(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "409")
}

func isNotFound(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "404")
}

// embeddingFunc adapts port.Embedder to Chroma's embedding function.
type embeddingFunc struct {
	embedder port.Embedder
}

func (e *embeddingFunc) EmbedDocuments(ctx context.Context, texts []string) ([]embeddings.Embedding, error) {
	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]embeddings.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = embeddings.NewEmbeddingFromFloat32(v)
	}
	return out, nil
}

func (e *embeddingFunc) EmbedQuery(ctx context.Context, text string) (embeddings.Embedding, error) {
	out, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
