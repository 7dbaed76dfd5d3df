// Package sqlite is a port.Backend on a pure-Go SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // register pure-Go SQLite driver

	"dedup/internal/domain"
	"dedup/internal/port"
)

const schema = `
CREATE TABLE IF NOT EXISTS collections (
    name       TEXT PRIMARY KEY,
    model      TEXT NOT NULL,
    dimension  INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL REFERENCES collections(name),
    id         TEXT NOT NULL,
    body       TEXT NOT NULL,
    embedding  BLOB,
    PRIMARY KEY (collection, id)
);
`

// Backend stores collections as rows of a shared documents table.
type Backend struct {
	db       *sql.DB
	embedder port.Embedder
}

// Open opens or creates the database at dsn. Pass ":memory:" for a
// throwaway database.
func Open(dsn string, embedder port.Embedder) (*Backend, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	// One connection: an in-memory database is private to its connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &Backend{db: db, embedder: embedder}, nil
}

func (b *Backend) CreateCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	res, err := b.db.ExecContext(ctx,
		`INSERT INTO collections(name, model, dimension, created_at) VALUES(?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		name, b.embedder.ModelName(), b.embedder.Dimension(), time.Now().Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionExists, name)
	}
	return &Collection{db: b.db, name: name, embedder: b.embedder}, nil
}

func (b *Backend) GetCollection(ctx context.Context, name string) (port.CollectionStore, error) {
	var model string
	var dimension int
	err := b.db.QueryRowContext(ctx,
		`SELECT model, dimension FROM collections WHERE name = ?`, name).Scan(&model, &dimension)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", domain.ErrCollectionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}
	if model != b.embedder.ModelName() {
		return nil, fmt.Errorf("collection %s: built with embedding model %q, configured model is %q", name, model, b.embedder.ModelName())
	}
	if dimension != b.embedder.Dimension() {
		return nil, fmt.Errorf("collection %s: %w: collection has %d, embedder produces %d", name, domain.ErrDimensionMismatch, dimension, b.embedder.Dimension())
	}
	return &Collection{db: b.db, name: name, embedder: b.embedder}, nil
}

// Collections lists collection names alphabetically.
func (b *Backend) Collections(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (b *Backend) Close() error {
	return b.db.Close()
}
