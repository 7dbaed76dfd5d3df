package chroma

import (
	"context"
	"fmt"

	chroma "github.com/amikos-tech/chroma-go/pkg/api/v2"

	"dedup/internal/domain"
)

const defaultPageSize = 500

// includeDistances asks the query endpoint for distances only; ids are always returned.
var includeDistances = chroma.Include("distances")

// Collection is a handle to one Chroma collection.
type Collection struct {
	col      chroma.Collection
	pageSize int
}

func (c *Collection) Name() string {
	return c.col.Name()
}

func toDocumentIDs(ids []string) []chroma.DocumentID {
	out := make([]chroma.DocumentID, len(ids))
	for i, id := range ids {
		out[i] = chroma.DocumentID(id)
	}
	return out
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
	if err := c.col.Upsert(ctx, chroma.WithIDs(toDocumentIDs(ids)...), chroma.WithTexts(documents...)); err != nil {
		return fmt.Errorf("failed to upsert documents: %w", err)
	}
	return nil
}

func (c *Collection) QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error) {
	results := make([][]domain.Neighbor, len(texts))
	if n <= 0 || len(texts) == 0 {
		return results, nil
	}

	count, err := c.col.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count collection: %w", err)
	}
	if count == 0 {
		return results, nil
	}

	qr, err := c.col.Query(ctx,
		chroma.WithQueryTexts(texts...),
		chroma.WithNResults(min(n, count)),
		chroma.WithIncludeQuery(includeDistances),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	idGroups := qr.GetIDGroups()
	distGroups := qr.GetDistancesGroups()
	for i := range results {
		if i >= len(idGroups) {
			break
		}
		group := make([]domain.Neighbor, 0, len(idGroups[i]))
		for j, id := range idGroups[i] {
			var dist float64
			if i < len(distGroups) && j < len(distGroups[i]) {
				dist = float64(distGroups[i][j])
			}
			group = append(group, domain.Neighbor{ID: string(id), Distance: dist})
		}
		results[i] = group
	}
	return results, nil
}

func (c *Collection) Get(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	res, err := c.col.Get(ctx,
		chroma.WithIDsGet(toDocumentIDs(ids)...),
		chroma.WithIncludeGet(chroma.IncludeDocuments),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get documents: %w", err)
	}

	gotIDs := res.GetIDs()
	bodies := res.GetDocuments()
	docs := make([]domain.Document, 0, len(gotIDs))
	for i, id := range gotIDs {
		doc := domain.Document{ID: string(id)}
		if i < len(bodies) && bodies[i] != nil {
			doc.Text = bodies[i].ContentString()
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Collection) Enumerate(ctx context.Context) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += c.pageSize {
		res, err := c.col.Get(ctx,
			chroma.WithLimitGet(c.pageSize),
			chroma.WithOffsetGet(offset),
			chroma.WithIncludeGet(chroma.IncludeMetadatas),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to list documents: %w", err)
		}
		page := res.GetIDs()
		for _, id := range page {
			ids = append(ids, string(id))
		}
		if len(page) < c.pageSize {
			return ids, nil
		}
	}
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	n, err := c.col.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection: %w", err)
	}
	return n, nil
}
