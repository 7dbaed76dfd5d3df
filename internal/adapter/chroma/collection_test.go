package chroma

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedup/internal/adapter/embedding"
	"dedup/internal/adapter/storetest"
	"dedup/internal/adapter/vecmath"
	"dedup/internal/domain"
	"dedup/internal/port"
)

type fakeRecord struct {
	document  string
	embedding []float32
}

type fakeCollection struct {
	id      string
	name    string
	order   []string
	records map[string]fakeRecord
}

// fakeChroma implements the subset of the Chroma v2 REST API the backend uses.
type fakeChroma struct {
	mu      sync.Mutex
	byName  map[string]*fakeCollection
	byID    map[string]*fakeCollection
	queries int
	gets    int
}

const collectionsPath = "/api/v2/tenants/{tenant}/databases/{database}/collections"

func newFakeChroma(t *testing.T) (*fakeChroma, *httptest.Server) {
	f := &fakeChroma{byName: map[string]*fakeCollection{}, byID: map[string]*fakeCollection{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v2/pre-flight-checks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"max_batch_size": 1000})
	})
	mux.HandleFunc("POST "+collectionsPath, f.createCollection)
	mux.HandleFunc("GET "+collectionsPath+"/{name}", f.getCollection)
	mux.HandleFunc("POST "+collectionsPath+"/{id}/upsert", f.upsert)
	mux.HandleFunc("POST "+collectionsPath+"/{id}/get", f.get)
	mux.HandleFunc("POST "+collectionsPath+"/{id}/query", f.query)
	mux.HandleFunc("GET "+collectionsPath+"/{id}/count", f.count)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeChroma) calls() (queries, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries, f.gets
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func chromaError(w http.ResponseWriter, status int, id, msg string) {
	writeJSON(w, status, map[string]any{"error": id, "message": msg})
}

func model(r *http.Request, c *fakeCollection) map[string]any {
	return map[string]any{
		"id":       c.id,
		"name":     c.name,
		"tenant":   r.PathValue("tenant"),
		"database": r.PathValue("database"),
	}
}

func (f *fakeChroma) collection(w http.ResponseWriter, r *http.Request) *fakeCollection {
	c, ok := f.byID[r.PathValue("id")]
	if !ok {
		chromaError(w, http.StatusNotFound, "NotFoundError", "Collection "+r.PathValue("id")+" does not exist.")
		return nil
	}
	return c
}

func (f *fakeChroma) createCollection(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byName[req.Name]; ok {
		chromaError(w, http.StatusConflict, "UniqueConstraintError", "Collection "+req.Name+" already exists")
		return
	}
	c := &fakeCollection{id: uuid.NewString(), name: req.Name, records: map[string]fakeRecord{}}
	f.byName[c.name] = c
	f.byID[c.id] = c
	writeJSON(w, http.StatusOK, model(r, c))
}

func (f *fakeChroma) getCollection(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byName[r.PathValue("name")]
	if !ok {
		chromaError(w, http.StatusNotFound, "NotFoundError", "Collection "+r.PathValue("name")+" does not exist.")
		return
	}
	writeJSON(w, http.StatusOK, model(r, c))
}

func (f *fakeChroma) upsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs        []string    `json:"ids"`
		Documents  []string    `json:"documents"`
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError", err.Error())
		return
	}
	if len(req.Documents) != len(req.IDs) || len(req.Embeddings) != len(req.IDs) {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError", "length mismatch")
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	for i, id := range req.IDs {
		if _, ok := c.records[id]; !ok {
			c.order = append(c.order, id)
		}
		c.records[id] = fakeRecord{document: req.Documents[i], embedding: req.Embeddings[i]}
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func includes(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func (f *fakeChroma) get(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs     []string `json:"ids"`
		Include []string `json:"include"`
		Limit   int      `json:"limit"`
		Offset  int      `json:"offset"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	c := f.collection(w, r)
	if c == nil {
		return
	}
	selected := c.order
	if len(req.IDs) > 0 {
		selected = nil
		for _, id := range req.IDs {
			if _, ok := c.records[id]; ok {
				selected = append(selected, id)
			}
		}
	}
	start := min(req.Offset, len(selected))
	end := len(selected)
	if req.Limit > 0 {
		end = min(start+req.Limit, end)
	}
	page := selected[start:end]

	ids := []string{}
	docs := []string{}
	metas := []any{}
	for _, id := range page {
		ids = append(ids, id)
		docs = append(docs, c.records[id].document)
		metas = append(metas, nil)
	}
	out := map[string]any{"ids": ids}
	if includes(req.Include, "documents") {
		out["documents"] = docs
	}
	if includes(req.Include, "metadatas") {
		out["metadatas"] = metas
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeChroma) query(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueryEmbeddings [][]float32 `json:"query_embeddings"`
		NResults        int         `json:"n_results"`
		Include         []string    `json:"include"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError", err.Error())
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	c := f.collection(w, r)
	if c == nil {
		return
	}
	// Chroma rejects asking for more neighbours than the collection holds.
	if req.NResults > len(c.records) {
		chromaError(w, http.StatusBadRequest, "InvalidArgumentError",
			fmt.Sprintf("Number of requested results %d is greater than number of elements in index %d", req.NResults, len(c.records)))
		return
	}

	idGroups := [][]string{}
	distGroups := [][]float64{}
	for _, q := range req.QueryEmbeddings {
		type hit struct {
			id   string
			dist float64
		}
		hits := make([]hit, 0, len(c.order))
		for _, id := range c.order {
			d, err := vecmath.SquaredL2(q, c.records[id].embedding)
			if err != nil {
				chromaError(w, http.StatusBadRequest, "InvalidDimensionError", err.Error())
				return
			}
			hits = append(hits, hit{id: id, dist: d})
		}
		sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
		hits = hits[:req.NResults]

		ids := make([]string, len(hits))
		dists := make([]float64, len(hits))
		for i, h := range hits {
			ids[i] = h.id
			dists[i] = h.dist
		}
		idGroups = append(idGroups, ids)
		distGroups = append(distGroups, dists)
	}
	out := map[string]any{"ids": idGroups}
	if includes(req.Include, "distances") {
		out["distances"] = distGroups
	}
	writeJSON(w, http.StatusOK, out)
}

func (f *fakeChroma) count(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.collection(w, r)
	if c == nil {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(strconv.Itoa(len(c.records))))
}

func newTestBackend(t *testing.T, url string, dim int) *Backend {
	b, err := NewBackend(url, embedding.NewHashEmbedder(dim))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend_Contract(t *testing.T) {
	storetest.RunBackendContract(t, func(t *testing.T) port.Backend {
		_, srv := newFakeChroma(t)
		return newTestBackend(t, srv.URL, 64)
	})
}

func TestCollection_QueryClampsToCount(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeChroma(t)
	c, err := newTestBackend(t, srv.URL, 64).CreateCollection(ctx, "files")
	require.NoError(t, err)

	require.NoError(t, c.Upsert(ctx, []string{"a.txt", "b.txt"}, []string{"hello", "hello world"}))

	got, err := c.QueryNearest(ctx, []string{"hello"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0], 2)
	assert.Equal(t, domain.Neighbor{ID: "a.txt", Distance: 0}, got[0][0])
	assert.Equal(t, "b.txt", got[0][1].ID)
	assert.Greater(t, got[0][1].Distance, 0.0)
	queries, _ := fake.calls()
	assert.Equal(t, 1, queries)
}

func TestCollection_QuerySkipsServerWhenEmpty(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeChroma(t)
	c, err := newTestBackend(t, srv.URL, 32).CreateCollection(ctx, "files")
	require.NoError(t, err)

	got, err := c.QueryNearest(ctx, []string{"a", "b"}, 5)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	queries, _ := fake.calls()
	assert.Equal(t, 0, queries)

	got, err = c.QueryNearest(ctx, []string{"a"}, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Empty(t, got[0])
}

func TestCollection_EnumeratePages(t *testing.T) {
	ctx := context.Background()
	fake, srv := newFakeChroma(t)
	c, err := newTestBackend(t, srv.URL, 32).CreateCollection(ctx, "files")
	require.NoError(t, err)
	c.(*Collection).pageSize = 2

	ids := []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"}
	require.NoError(t, c.Upsert(ctx, ids, []string{"1", "2", "3", "4", "5"}))

	got, err := c.Enumerate(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids, got)
	_, gets := fake.calls()
	assert.Equal(t, 3, gets)

	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	docs, err := c.Get(ctx, []string{"c.txt", "zzz"})
	require.NoError(t, err)
	assert.Equal(t, []domain.Document{{ID: "c.txt", Text: "3"}}, docs)
}

func TestBackend_CreateOrGet(t *testing.T) {
	ctx := context.Background()
	_, srv := newFakeChroma(t)

	first := newTestBackend(t, srv.URL, 32)
	c, err := first.CreateCollection(ctx, "files")
	require.NoError(t, err)
	require.NoError(t, c.Upsert(ctx, []string{"a.txt"}, []string{"hello"}))

	second := newTestBackend(t, srv.URL, 32)
	_, err = second.CreateCollection(ctx, "files")
	require.ErrorIs(t, err, domain.ErrCollectionExists)

	again, err := second.GetCollection(ctx, "files")
	require.NoError(t, err)
	n, err := again.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
