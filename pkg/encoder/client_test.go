package encoder_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uncia/histoflow/internal/models"
	"github.com/uncia/histoflow/pkg/encoder"
)

func testBatch(n, side int) []models.LoadedTile {
	batch := make([]models.LoadedTile, n)
	for i := range batch {
		batch[i] = models.LoadedTile{
			Tile:   models.Tile{Path: "tile.jpg"},
			Tensor: make([]float32, 3*side*side),
		}
	}
	return batch
}

func TestEncodeBatch(t *testing.T) {
	const dim = 8

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embed", r.URL.Path)

		var req struct {
			Model  string      `json:"model"`
			Shape  [3]int      `json:"shape"`
			Inputs [][]float32 `json:"inputs"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "uni2-h", req.Model)
		assert.Equal(t, [3]int{3, 4, 4}, req.Shape)

		embeddings := make([][]float32, len(req.Inputs))
		for i := range embeddings {
			vec := make([]float32, dim)
			vec[0] = float32(i)
			embeddings[i] = vec
		}

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":      req.Model,
			"dim":        dim,
			"embeddings": embeddings,
		})
	}))
	defer server.Close()

	c := encoder.NewWithConfig(encoder.ClientConfig{
		BaseURL:   server.URL,
		VectorDim: dim,
		RateLimit: 100,
	})

	rows, err := c.EncodeBatch(context.Background(), testBatch(3, 4))
	require.NoError(t, err)
	require.Len(t, rows, 3)

	// Order preserved: vector i carries marker i
	for i, row := range rows {
		assert.Len(t, row.Vector, dim)
		assert.Equal(t, float32(i), row.Vector[0])
	}
}

func TestEncodeBatchDimensionMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"dim":        4,
			"embeddings": [][]float32{{1, 2, 3, 4}},
		})
	}))
	defer server.Close()

	c := encoder.NewWithConfig(encoder.ClientConfig{
		BaseURL:   server.URL,
		VectorDim: 1536,
		RateLimit: 100,
	})

	_, err := c.EncodeBatch(context.Background(), testBatch(1, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEncodeBatchServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := encoder.NewWithConfig(encoder.ClientConfig{
		BaseURL:   server.URL,
		RateLimit: 100,
	})

	_, err := c.EncodeBatch(context.Background(), testBatch(1, 4))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestEnsureModelSendsToken(t *testing.T) {
	var gotAuth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/models/pull", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := encoder.NewWithConfig(encoder.ClientConfig{
		BaseURL:   server.URL,
		AuthToken: "hf_test_token",
		RateLimit: 100,
	})

	require.NoError(t, c.EnsureModel(context.Background()))
	assert.Equal(t, "Bearer hf_test_token", gotAuth)
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	c := encoder.NewWithConfig(encoder.ClientConfig{BaseURL: server.URL, RateLimit: 100})
	assert.NoError(t, c.Ping(context.Background()))

	server.Close()
	assert.Error(t, c.Ping(context.Background()))
}
