package store_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uncia/histoflow/internal/models"
	"github.com/uncia/histoflow/pkg/store"
)

func getTestConfig() store.TileStoreConfig {
	return store.TileStoreConfig{
		ConnString: os.Getenv("DATABASE_URL"),
		TableName:  "test_tiles",
		VectorDim:  8,
		BatchSize:  2,
	}
}

func TestTileStore(t *testing.T) {
	// Requires a running Postgres with the pgvector extension.
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(getTestConfig())
	require.NoError(t, err)
	defer s.Close()

	rows := []models.Embedding{
		{Path: "tiles/a.jpg", Vector: []float32{1, 0, 0, 0, 0, 0, 0, 0}},
		{Path: "tiles/b.jpg", Vector: []float32{0, 1, 0, 0, 0, 0, 0, 0}},
		{Path: "tiles/c.jpg", Vector: []float32{0.9, 0.1, 0, 0, 0, 0, 0, 0}},
	}

	require.NoError(t, s.Store(rows))

	// Storing again must not duplicate: upsert is keyed by path
	require.NoError(t, s.Store(rows))

	nearest, err := s.NearestTiles([]float32{1, 0, 0, 0, 0, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, nearest, 2)
	assert.Equal(t, "tiles/a.jpg", nearest[0].Path)
	assert.Equal(t, "tiles/c.jpg", nearest[1].Path)
}

func TestStoreRejectsWrongDimension(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set")
	}

	s, err := store.NewWithConfig(getTestConfig())
	require.NoError(t, err)
	defer s.Close()

	err = s.Store([]models.Embedding{
		{Path: "tiles/short.jpg", Vector: []float32{1, 2}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}
