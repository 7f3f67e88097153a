package types

import (
	"context"

	"github.com/uncia/histoflow/internal/models"
)

// Core interfaces
type Enumerator interface {
	Enumerate(root string) ([]models.Tile, error)
}

type Loader interface {
	LoadBatch(tiles []models.Tile) ([]models.LoadedTile, []models.LoadError)
}

type Encoder interface {
	Ping(ctx context.Context) error
	EnsureModel(ctx context.Context) error
	EncodeBatch(ctx context.Context, batch []models.LoadedTile) ([]models.Embedding, error)
	Dimension() int
}

type Exporter interface {
	WriteEmbeddings(path string, table *models.EmbeddingTable) error
}

type TileStore interface {
	Store(rows []models.Embedding) error
	NearestTiles(vector []float32, limit int) ([]models.Embedding, error)
	Close()
}

type Reducer interface {
	Reduce(ctx context.Context, embeddingsCSV string) ([]models.ClusterPoint, error)
}
