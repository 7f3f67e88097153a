package export_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uncia/histoflow/internal/models"
	"github.com/uncia/histoflow/pkg/export"
)

func TestWriteAndReadEmbeddings(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "out", "embeddings.csv")

	table := &models.EmbeddingTable{
		Dim: 3,
		Rows: []models.Embedding{
			{Path: "tiles/a.jpg", Vector: []float32{0.1, 0.2, 0.3}},
			{Path: "tiles/b.jpg", Vector: []float32{1, 2, 3}},
		},
	}

	require.NoError(t, export.WriteEmbeddings(path, table))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "filename,dim_0,dim_1,dim_2", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "tiles/a.jpg,"))

	ids, matrix, err := export.ReadMatrix(path)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.Equal(t, "tiles/a.jpg", ids[0])
	assert.Equal(t, "tiles/b.jpg", ids[1])
	require.Len(t, matrix, 2)
	assert.InDelta(t, 0.2, float64(matrix[0][1]), 1e-6)
	assert.InDelta(t, 3.0, float64(matrix[1][2]), 1e-6)
}

func TestWriteEmbeddingsRejectsEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.csv")

	err := export.WriteEmbeddings(path, &models.EmbeddingTable{Dim: 4})
	require.Error(t, err)

	// No malformed output file left behind
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteEmbeddingsRejectsRaggedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.csv")

	table := &models.EmbeddingTable{
		Dim: 2,
		Rows: []models.Embedding{
			{Path: "a.jpg", Vector: []float32{1, 2}},
			{Path: "b.jpg", Vector: []float32{1}},
		},
	}

	err := export.WriteEmbeddings(path, table)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestReadMatrixDropsNonNumericColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "embeddings.csv")

	data := "filename,element,dim_0,dim_1\nx.jpg,foo,0.5,0.6\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	ids, matrix, err := export.ReadMatrix(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"x.jpg"}, ids)
	require.Len(t, matrix[0], 2)
}

func TestWriteClusters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clusters.csv")

	points := []models.ClusterPoint{
		{Path: "a.jpg", X: 1.5, Y: -2, Z: 0.25, Cluster: 7},
	}
	require.NoError(t, export.WriteClusters(path, points))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "filename,x,y,z,cluster", lines[0])
	assert.Equal(t, "a.jpg,1.5,-2,0.25,7", lines[1])
}
