package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	c := NewClient(url, "test-key")
	c.retryDelay = time.Millisecond
	return c
}

// testVector builds a 1536-dim vector whose first component identifies it.
func testVector(seed float32) []float32 {
	v := make([]float32, EmbeddingDim)
	v[0] = seed
	return v
}

func writeEmbeddings(w http.ResponseWriter, vecs ...[]float32) {
	type datum struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	var resp struct {
		Data []datum `json:"data"`
	}
	for i, v := range vecs {
		resp.Data = append(resp.Data, datum{Index: i, Embedding: v})
	}
	_ = json.NewEncoder(w).Encode(resp)
}

func TestEmbedBatchSingleCall(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultEmbedModel, req.Model)
		assert.Equal(t, []string{"alpha", "beta"}, req.Input)
		writeEmbeddings(w, testVector(1), testVector(2))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(newTestClient(srv.URL), "")
	vecs, err := e.EmbedBatch(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, 1, calls)
}

func TestEmbedBatchContextLengthFallback(t *testing.T) {
	var singleCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if len(req.Input) > 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"This model's maximum context length is 8192 tokens"}}`))
			return
		}

		singleCalls++
		switch req.Input[0] {
		case "one":
			writeEmbeddings(w, testVector(1))
		case "two":
			// Persistent per-item failure degrades to a zero vector.
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid input"}}`))
		case "three":
			writeEmbeddings(w, testVector(3))
		}
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(newTestClient(srv.URL), "")
	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3, singleCalls)

	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(3), vecs[2][0])

	require.Len(t, vecs[1], EmbeddingDim)
	assert.True(t, IsZeroVector(vecs[1]))
	assert.False(t, IsZeroVector(vecs[0]))
}

func TestEmbedBatchOtherErrorSurfaces(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid api key"}}`))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(newTestClient(srv.URL), "")
	_, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "non-context-length errors must not trigger the per-item fallback")
}

func TestEmbedBatchEmptyInput(t *testing.T) {
	e := NewOpenAIEmbedder(newTestClient("http://unused"), "")
	vecs, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
