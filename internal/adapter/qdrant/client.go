// Package qdrant is a port.Backend over the Qdrant REST API.
// Vectors come from the configured embedder; Qdrant only stores and ranks them.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"dedup/internal/domain"
	"dedup/internal/port"
)

type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// Backend talks to one Qdrant server.
type Backend struct {
	url      string
	apiKey   string
	client   *http.Client
	embedder port.Embedder
}

type apiStatusError struct {
	Method string
	URL    string
	Status int
	Body   string
}

func (e *apiStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %d %s", e.Method, e.URL, e.Status, e.Body)
}

func NewBackend(cfg Config, embedder port.Embedder) *Backend {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Backend{
		url:      strings.TrimRight(cfg.URL, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		embedder: embedder,
	}
}

type collectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// CreateCollection checks for an existing collection first because Qdrant
// reports a duplicate create as a generic bad request.
func (b *Backend) CreateCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	exists, err := b.exists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     b.embedder.Dimension(),
			"distance": "Euclid",
		},
	}
	if err := b.do(ctx, http.MethodPut, collectionPath(name), body, nil); err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &Collection{backend: b, name: name}, nil
}

func (b *Backend) GetCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	var info collectionInfo
	err := b.do(ctx, http.MethodGet, collectionPath(name), nil, &info)
	if isNotFound(err) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if size := info.Result.Config.Params.Vectors.Size; size != b.embedder.Dimension() {
		return nil, fmt.Errorf("collection %s: %w: collection has %d, embedder produces %d", name, domain.ErrDimensionMismatch, size, b.embedder.Dimension())
	}
	return &Collection{backend: b, name: name}, nil
}

func (b *Backend) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

func (b *Backend) exists(ctx context.Context, name string) (bool, error) {
	err := b.do(ctx, http.MethodGet, collectionPath(name), nil, nil)
	if isNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return true, nil
}

// collectionPath escapes name so it stays a single path segment.
func collectionPath(name string) string {
	return "/collections/" + url.PathEscape(name)
}

func isNotFound(err error) bool {
	se, ok := err.(*apiStatusError)
	return ok && se.Status == http.StatusNotFound
}

func (b *Backend) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	endpoint := b.url + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.apiKey != "" {
		req.Header.Set("api-key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &apiStatusError{Method: method, URL: endpoint, Status: resp.StatusCode, Body: string(preview)}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
