package cli

import (
	"context"
	"fmt"
	"os"

	"dedup/config"
	"dedup/internal/adapter/chroma"
	"dedup/internal/adapter/embedding"
	"dedup/internal/adapter/memstore"
	"dedup/internal/adapter/qdrant"
	"dedup/internal/adapter/sqlite"
	"dedup/internal/adapter/store"
	"dedup/internal/port"
	"dedup/internal/usecase"
)

// newEmbedder builds the embedder named by the configuration.
func newEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "hash":
		return embedding.NewHashEmbedder(e.Dimension), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(e.APIKeyEnv, e.Model)
	case "ollama":
		return embedding.NewOllamaEmbedder(e.Model, e.BaseURL, e.Dimension)
	case "jina":
		return embedding.NewJinaEmbedder(e.APIKeyEnv, e.Model)
	case "deepseek":
		return embedding.NewDeepSeekEmbedder(e.APIKeyEnv, e.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

// openBackend connects to the configured vector database.
func openBackend(cfg *config.Config, dir string, embedder port.Embedder) (port.Backend, error) {
	s := cfg.Store
	switch s.Backend {
	case "memory":
		return memstore.NewMemoryBackend(embedder), nil
	case "bolt":
		if s.Path == "" {
			if err := config.EnsureDataDir(dir); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return store.NewBoltBackend(cfg.StorePath(dir), embedder)
	case "sqlite":
		if s.Path == "" {
			if err := config.EnsureDataDir(dir); err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		}
		return sqlite.Open(cfg.StorePath(dir), embedder)
	case "chroma":
		return chroma.NewBackend(s.URL, embedder)
	case "qdrant":
		return qdrant.NewBackend(qdrant.Config{
			URL:     s.URL,
			APIKey:  os.Getenv(s.APIKeyEnv),
			Timeout: s.Timeout,
		}, embedder), nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", s.Backend)
	}
}

// openConfiguredBackend builds the embedder and backend named by the configuration.
func openConfiguredBackend() (port.Backend, port.Embedder, error) {
	cfg := GetConfig()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	backend, err := openBackend(cfg, GetRootDir(), embedder)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s backend: %w", cfg.Store.Backend, err)
	}
	return backend, embedder, nil
}

// openDocumentStore wires embedder, backend and collection. Failures here are fatal.
func openDocumentStore(ctx context.Context) (*usecase.DocumentStore, error) {
	cfg := GetConfig()

	backend, embedder, err := openConfiguredBackend()
	if err != nil {
		return nil, err
	}

	docs, err := usecase.NewDocumentStore(ctx, backend, cfg.Store.Collection,
		usecase.WithMatchCandidates(cfg.Store.MatchCandidates))
	if err != nil {
		backend.Close()
		return nil, err
	}

	logger.Debug().
		Str("backend", cfg.Store.Backend).
		Str("collection", cfg.Store.Collection).
		Str("embedder", embedder.ModelName()).
		Int("dimension", embedder.Dimension()).
		Msg("document store ready")
	return docs, nil
}

func newUploadUseCase(docs *usecase.DocumentStore) *usecase.UploadUseCase {
	return usecase.NewUploadUseCase(docs, logger, GetConfig().Upload.Extensions)
}
