package qdrant

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"dedup/internal/domain"
)

// Qdrant point ids must be integers or UUIDs, so document ids are mapped
// through a name-based UUID and kept verbatim in the payload.
var pointNamespace = uuid.MustParse("6f1c2b8e-4a8d-4a59-9c43-3b6a1f0e2d71")

const scrollPageSize = 256

func pointID(docID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(docID)).String()
}

type payload struct {
	DocID string `json:"doc_id"`
	Text  string `json:"text"`
}

type point struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score,omitempty"`
	Payload payload `json:"payload"`
}

// Collection is a handle to one Qdrant collection.
type Collection struct {
	backend *Backend
	name    string
}

func (c *Collection) Name() string {
	return c.name
}

func (c *Collection) path(suffix string) string {
	return collectionPath(c.name) + suffix
}

func (c *Collection) Upsert(ctx context.Context, ids []string, documents []string) error {
	if len(ids) != len(documents) {
		return fmt.Errorf("ids and documents length mismatch: %d vs %d", len(ids), len(documents))
	}
	for _, id := range ids {
		if id == "" {
			return domain.ErrEmptyID
		}
	}

	vectors, err := c.backend.embedder.Embed(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	points := make([]map[string]any, len(ids))
	for i, id := range ids {
		points[i] = map[string]any{
			"id":      pointID(id),
			"vector":  vectors[i],
			"payload": payload{DocID: id, Text: documents[i]},
		}
	}
	return c.backend.do(ctx, http.MethodPut, c.path("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (c *Collection) QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error) {
	vectors, err := c.backend.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	results := make([][]domain.Neighbor, len(vectors))
	for i, vec := range vectors {
		if n <= 0 {
			continue
		}
		req := map[string]any{
			"vector":       vec,
			"limit":        n,
			"with_payload": true,
		}
		var resp struct {
			Result []point `json:"result"`
		}
		if err := c.backend.do(ctx, http.MethodPost, c.path("/points/search"), req, &resp); err != nil {
			return nil, err
		}
		neighbors := make([]domain.Neighbor, 0, len(resp.Result))
		for _, p := range resp.Result {
			// With Euclid distance the score is the distance itself.
			neighbors = append(neighbors, domain.Neighbor{ID: p.Payload.DocID, Distance: p.Score})
		}
		results[i] = neighbors
	}
	return results, nil
}

func (c *Collection) Get(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	pids := make([]string, len(ids))
	for i, id := range ids {
		pids[i] = pointID(id)
	}
	var resp struct {
		Result []point `json:"result"`
	}
	req := map[string]any{"ids": pids, "with_payload": true}
	if err := c.backend.do(ctx, http.MethodPost, c.path("/points"), req, &resp); err != nil {
		return nil, err
	}
	docs := make([]domain.Document, 0, len(resp.Result))
	for _, p := range resp.Result {
		docs = append(docs, domain.Document{ID: p.Payload.DocID, Text: p.Payload.Text})
	}
	return docs, nil
}

func (c *Collection) Enumerate(ctx context.Context) ([]string, error) {
	var ids []string
	var offset any
	for {
		req := map[string]any{
			"limit":        scrollPageSize,
			"with_payload": []string{"doc_id"},
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points         []point `json:"points"`
				NextPageOffset any     `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := c.backend.do(ctx, http.MethodPost, c.path("/points/scroll"), req, &resp); err != nil {
			return nil, err
		}
		for _, p := range resp.Result.Points {
			ids = append(ids, p.Payload.DocID)
		}
		if resp.Result.NextPageOffset == nil {
			return ids, nil
		}
		offset = resp.Result.NextPageOffset
	}
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := c.backend.do(ctx, http.MethodPost, c.path("/points/count"), map[string]any{"exact": true}, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}
