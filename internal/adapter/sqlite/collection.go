package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"dedup/internal/adapter/vecmath"
	"dedup/internal/domain"
	"dedup/internal/port"
)

// Collection is one named collection. Rows keep their rowid on upsert, so
// enumeration follows first-insertion order.
type Collection struct {
	db       *sql.DB
	name     string
	embedder port.Embedder
}

func (c *Collection) Name() string {
	return c.name
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

	vectors, err := c.embedder.Embed(ctx, documents)
	if err != nil {
		return fmt.Errorf("failed to embed documents: %w", err)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO documents(collection, id, body, embedding) VALUES(?, ?, ?, ?)
ON CONFLICT(collection, id) DO UPDATE SET body = excluded.body, embedding = excluded.embedding`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, id := range ids {
		if _, err := stmt.ExecContext(ctx, c.name, id, documents[i], vecmath.EncodeFloat32s(vectors[i])); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (c *Collection) QueryNearest(ctx context.Context, texts []string, n int) ([][]domain.Neighbor, error) {
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, embedding FROM documents WHERE collection = ? ORDER BY rowid`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []vecmath.Candidate
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		vec, err := vecmath.DecodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("document %s: %w", id, err)
		}
		candidates = append(candidates, vecmath.Candidate{ID: id, Vector: vec})
	}
	if err := rows.Err(); err != nil {
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

func (c *Collection) Get(ctx context.Context, ids []string) ([]domain.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, c.name)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, body FROM documents WHERE collection = ? AND id IN (`+placeholders+`) ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Text); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

func (c *Collection) Enumerate(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id FROM documents WHERE collection = ? ORDER BY rowid`, c.name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (c *Collection) Count(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, c.name).Scan(&n)
	return n, err
}
