package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer ollama", r.Header.Get("Authorization"))

		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "all-minilm", req.Model)

		resp := embeddingResponse{}
		// Reverse order to check results are placed by index.
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, embeddingData{
				Embedding: []float32{float32(i), 1, 2},
				Index:     i,
			})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder("all-minilm", srv.URL, 3)
	require.NoError(t, err)

	vecs, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0, 1, 2}, vecs[0])
	assert.Equal(t, []float32{1, 1, 2}, vecs[1])
}

func TestOpenAIEmbedder_DimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(embeddingResponse{
			Data: []embeddingData{{Embedding: []float32{1}, Index: 0}},
		})
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder("all-minilm", srv.URL, 3)
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestOpenAIEmbedder_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	e, err := NewOllamaEmbedder("nomic-embed-text", srv.URL, 0)
	require.NoError(t, err)
	assert.Equal(t, 768, e.Dimension())

	_, err = e.Embed(context.Background(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewOpenAIEmbedder_MissingKey(t *testing.T) {
	t.Setenv("DEDUP_TEST_MISSING_KEY", "")
	_, err := NewOpenAIEmbedder("DEDUP_TEST_MISSING_KEY", "text-embedding-3-small")
	assert.Error(t, err)
}
