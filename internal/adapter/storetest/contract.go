// Package storetest holds the behaviour every port.Backend implementation must share.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedup/internal/domain"
	"dedup/internal/port"
)

// Factory opens a fresh, empty backend for one subtest.
type Factory func(t *testing.T) port.Backend

// RunBackendContract runs the shared backend checks against newBackend.
func RunBackendContract(t *testing.T, newBackend Factory) {
	t.Run("CreateTwiceFails", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		_, err := b.CreateCollection(ctx, "files")
		require.NoError(t, err)

		_, err = b.CreateCollection(ctx, "files")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCollectionExists), "got %v", err)
	})

	t.Run("GetMissingFails", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.GetCollection(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCollectionNotFound), "got %v", err)
	})

	t.Run("GetSeesCreatedData", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		c, err := b.CreateCollection(ctx, "files")
		require.NoError(t, err)
		require.NoError(t, c.Upsert(ctx, []string{"a.txt"}, []string{"hello"}))

		again, err := b.GetCollection(ctx, "files")
		require.NoError(t, err)
		assert.Equal(t, "files", again.Name())

		ids, err := again.Enumerate(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, ids)
	})

	t.Run("UpsertOverwrites", func(t *testing.T) {
		ctx := context.Background()
		c := mustCreate(t, newBackend(t))

		require.NoError(t, c.Upsert(ctx, []string{"a.txt"}, []string{"first"}))
		require.NoError(t, c.Upsert(ctx, []string{"a.txt"}, []string{"second"}))

		ids, err := c.Enumerate(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a.txt"}, ids)

		n, err := c.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		docs, err := c.Get(ctx, []string{"a.txt", "absent.txt"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, domain.Document{ID: "a.txt", Text: "second"}, docs[0])

		got, err := c.QueryNearest(ctx, []string{"first"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		for _, nb := range got[0] {
			assert.NotEqual(t, 0.0, nb.Distance, "old body must not match exactly")
		}
	})

	t.Run("QueryEmptyCollection", func(t *testing.T) {
		c := mustCreate(t, newBackend(t))

		got, err := c.QueryNearest(context.Background(), []string{"hello"}, 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Empty(t, got[0])
	})

	t.Run("QueryIdenticalIsZeroDistance", func(t *testing.T) {
		ctx := context.Background()
		c := mustCreate(t, newBackend(t))

		require.NoError(t, c.Upsert(ctx,
			[]string{"a.txt", "b.txt", "c.txt"},
			[]string{"hello", "goodbye cruel world", "hello"},
		))

		got, err := c.QueryNearest(ctx, []string{"hello", "something else entirely"}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)

		require.Len(t, got[0], 2)
		assert.ElementsMatch(t, []string{"a.txt", "c.txt"}, []string{got[0][0].ID, got[0][1].ID})
		assert.Equal(t, 0.0, got[0][0].Distance)
		assert.Equal(t, 0.0, got[0][1].Distance)

		for _, nb := range got[1] {
			assert.Greater(t, nb.Distance, 0.0)
		}
	})

	t.Run("EmptyBodyAllowed", func(t *testing.T) {
		ctx := context.Background()
		c := mustCreate(t, newBackend(t))

		require.NoError(t, c.Upsert(ctx, []string{"empty.txt"}, []string{""}))
		docs, err := c.Get(ctx, []string{"empty.txt"})
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "", docs[0].Text)
	})

	t.Run("LengthMismatch", func(t *testing.T) {
		c := mustCreate(t, newBackend(t))
		err := c.Upsert(context.Background(), []string{"a", "b"}, []string{"x"})
		assert.Error(t, err)
	})

	t.Run("CollectionsAreIsolated", func(t *testing.T) {
		ctx := context.Background()
		b := newBackend(t)

		one, err := b.CreateCollection(ctx, "one")
		require.NoError(t, err)
		two, err := b.CreateCollection(ctx, "two")
		require.NoError(t, err)

		require.NoError(t, one.Upsert(ctx, []string{"a.txt"}, []string{"hello"}))

		ids, err := two.Enumerate(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)
	})
}

func mustCreate(t *testing.T, b port.Backend) port.CollectionStore {
	t.Helper()
	c, err := b.CreateCollection(context.Background(), "files")
	require.NoError(t, err)
	return c
}
