package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedup/internal/adapter/embedding"
	"dedup/internal/adapter/storetest"
	"dedup/internal/adapter/vecmath"
	"dedup/internal/domain"
	"dedup/internal/port"
)

type fakePoint struct {
	Vector  []float32 `json:"vector"`
	Payload payload   `json:"payload"`
}

type fakeCollection struct {
	size   int
	order  []string
	points map[string]fakePoint
}

// fakeQdrant implements the subset of the Qdrant REST API the backend uses.
type fakeQdrant struct {
	mu          sync.Mutex
	collections map[string]*fakeCollection
	pageSize    int
}

func newFakeQdrant(t *testing.T) (*fakeQdrant, *httptest.Server) {
	f := &fakeQdrant{collections: map[string]*fakeCollection{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/{name}", f.getCollection)
	mux.HandleFunc("PUT /collections/{name}", f.createCollection)
	mux.HandleFunc("PUT /collections/{name}/points", f.upsert)
	mux.HandleFunc("POST /collections/{name}/points", f.retrieve)
	mux.HandleFunc("POST /collections/{name}/points/search", f.search)
	mux.HandleFunc("POST /collections/{name}/points/scroll", f.scroll)
	mux.HandleFunc("POST /collections/{name}/points/count", f.count)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeQdrant) collection(w http.ResponseWriter, r *http.Request) *fakeCollection {
	c, ok := f.collections[r.PathValue("name")]
	if !ok {
		http.Error(w, `{"status":{"error":"Not found"}}`, http.StatusNotFound)
		return nil
	}
	return c
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result, "status": "ok"})
}

func (f *fakeQdrant) getCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	reply(w, map[string]any{"config": map[string]any{"params": map[string]any{
		"vectors": map[string]any{"size": c.size, "distance": "Euclid"},
	}}})
}

func (f *fakeQdrant) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vectors struct {
			Size int `json:"size"`
		} `json:"vectors"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name := r.PathValue("name")
	if _, ok := f.collections[name]; ok {
		http.Error(w, "already exists", http.StatusBadRequest)
		return
	}
	f.collections[name] = &fakeCollection{size: req.Vectors.Size, points: map[string]fakePoint{}}
	reply(w, true)
}

func (f *fakeQdrant) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Points []struct {
			ID      string    `json:"id"`
			Vector  []float32 `json:"vector"`
			Payload payload   `json:"payload"`
		} `json:"points"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	for _, p := range req.Points {
		if _, ok := c.points[p.ID]; !ok {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = fakePoint{Vector: p.Vector, Payload: p.Payload}
	}
	reply(w, map[string]any{"status": "completed"})
}

func (f *fakeQdrant) retrieve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	out := []point{}
	for _, id := range req.IDs {
		if p, ok := c.points[id]; ok {
			out = append(out, point{ID: id, Payload: p.Payload})
		}
	}
	reply(w, out)
}

func (f *fakeQdrant) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Vector []float32 `json:"vector"`
		Limit  int       `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	out := []point{}
	for _, id := range c.order {
		p := c.points[id]
		d, err := vecmath.SquaredL2(req.Vector, p.Vector)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		out = append(out, point{ID: id, Score: math.Sqrt(d), Payload: p.Payload})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score < out[j].Score })
	if len(out) > req.Limit {
		out = out[:req.Limit]
	}
	reply(w, out)
}

func (f *fakeQdrant) scroll(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Limit  int     `json:"limit"`
		Offset *string `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	limit := req.Limit
	if f.pageSize > 0 && f.pageSize < limit {
		limit = f.pageSize
	}
	start := 0
	if req.Offset != nil {
		for i, id := range c.order {
			if id == *req.Offset {
				start = i
				break
			}
		}
	}
	end := min(start+limit, len(c.order))
	out := []point{}
	for _, id := range c.order[start:end] {
		out = append(out, point{ID: id, Payload: c.points[id].Payload})
	}
	var next any
	if end < len(c.order) {
		next = c.order[end]
	}
	reply(w, map[string]any{"points": out, "next_page_offset": next})
}

func (f *fakeQdrant) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	reply(w, map[string]any{"count": len(c.points)})
}

func TestBackend_Contract(t *testing.T) {
	storetest.RunBackendContract(t, func(t *testing.T) port.Backend {
		_, srv := newFakeQdrant(t)
		return NewBackend(Config{URL: srv.URL}, embedding.NewHashEmbedder(64))
	})
}

func TestBackend_EnumeratePages(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeQdrant(t)
	fake.pageSize = 2
	b := NewBackend(Config{URL: srv.URL + "/"}, embedding.NewHashEmbedder(32))

	c, err := b.CreateCollection(ctx, "files")
	require.NoError(t, err)
	ids := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
	require.NoError(t, c.Upsert(ctx, ids, []string{"1", "2", "3", "4", "5"}))

	got, err := c.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, got)

	docs, err := c.Get(ctx, []string{"c.txt", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{{ID: "c.txt", Text: "3"}}, docs)
}

func TestBackend_EscapesCollectionName(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeQdrant(t)
	b := NewBackend(Config{URL: srv.URL}, embedding.NewHashEmbedder(32))

	const name = "team/shared notes"
	c, err := b.CreateCollection(ctx, name)
	require.NoError(t, err)
	require.NoError(t, c.Upsert(ctx, []string{"a.txt"}, []string{"hello"}))

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	again, err := b.GetCollection(ctx, name)
	require.NoError(t, err)
	ids, err := again.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, ids)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Contains(t, fake.collections, name)
	assert.NotContains(t, fake.collections, "team")
}

func TestBackend_GetRejectsOtherDimension(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeQdrant(t)

	_, err := NewBackend(Config{URL: srv.URL}, embedding.NewHashEmbedder(32)).CreateCollection(ctx, "files")
	require.NoError(t, err)

	_, err = NewBackend(Config{URL: srv.URL}, embedding.NewHashEmbedder(64)).GetCollection(ctx, "files")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrDimensionMismatch))
}

func TestBackend_SendsAPIKey(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("api-key")
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewBackend(Config{URL: srv.URL, APIKey: "secret"}, embedding.NewHashEmbedder(8))
	_, err := b.GetCollection(context.Background(), "files")
	assert.True(t, errors.Is(err, domain.ErrCollectionNotFound))
	assert.Equal(t, "secret", got)
}

func TestPointID_Stable(t *testing.T) {
	assert.Equal(t, pointID("a.txt"), pointID("a.txt"))
	assert.NotEqual(t, pointID("a.txt"), pointID("b.txt"))
}
