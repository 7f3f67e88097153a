package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/uncia/histoflow/internal/models"
)

type TileStoreConfig struct {
	ConnString string
	TableName  string
	VectorDim  int
	BatchSize  int
}

// TileStore is an optional secondary sink: extracted embeddings are upserted
// into a pgvector table so tiles can be queried by similarity later.
type TileStore struct {
	config TileStoreConfig
	pool   *pgxpool.Pool
}

func NewWithConfig(config TileStoreConfig) (*TileStore, error) {
	if config.TableName == "" {
		config.TableName = "tiles"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536
	}
	if config.BatchSize == 0 {
		config.BatchSize = 100
	}

	pool, err := pgxpool.New(context.Background(), config.ConnString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %v", err)
	}

	ts := &TileStore{
		config: config,
		pool:   pool,
	}

	if err := ts.initialize(); err != nil {
		pool.Close()
		return nil, err
	}

	return ts, nil
}

func (ts *TileStore) initialize() error {
	ctx := context.Background()

	// Enable pgvector extension
	_, err := ts.pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("failed to create vector extension: %v", err)
	}

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE,
			embedding vector(%d)
		)`, ts.config.TableName, ts.config.VectorDim)

	_, err = ts.pool.Exec(ctx, createTable)
	if err != nil {
		return fmt.Errorf("failed to create table: %v", err)
	}

	createIndex := fmt.Sprintf(`
		CREATE INDEX IF NOT EXISTS %s_embedding_idx
		ON %s
		USING ivfflat (embedding vector_cosine_ops)
		WITH (lists = 100)`,
		ts.config.TableName, ts.config.TableName)

	_, err = ts.pool.Exec(ctx, createIndex)
	if err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	return nil
}

// Store upserts embeddings in batched transactions, keyed by tile path so a
// re-run replaces the previous vectors.
func (ts *TileStore) Store(rows []models.Embedding) error {
	ctx := context.Background()

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, path, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (path) DO UPDATE SET
			embedding = EXCLUDED.embedding`,
		ts.config.TableName)

	batchSize := ts.config.BatchSize
	for start := 0; start < len(rows); start += batchSize {
		end := start + batchSize
		if end > len(rows) {
			end = len(rows)
		}

		tx, err := ts.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %v", err)
		}

		for _, row := range rows[start:end] {
			if len(row.Vector) != ts.config.VectorDim {
				tx.Rollback(ctx)
				return fmt.Errorf("tile %s has dimension %d, expected %d",
					row.Path, len(row.Vector), ts.config.VectorDim)
			}

			_, err = tx.Exec(ctx, stmt,
				uuid.NewString(),
				row.Path,
				pgvector.NewVector(row.Vector),
			)
			if err != nil {
				tx.Rollback(ctx)
				return fmt.Errorf("failed to insert tile %s: %v", row.Path, err)
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("failed to commit transaction: %v", err)
		}
	}

	return nil
}

// NearestTiles returns the tiles closest to the query vector by cosine
// distance.
func (ts *TileStore) NearestTiles(vector []float32, limit int) ([]models.Embedding, error) {
	ctx := context.Background()

	if limit == 0 {
		limit = 5
	}

	query := fmt.Sprintf(`
		SELECT path, embedding
		FROM %s
		ORDER BY embedding <=> $1
		LIMIT $2`,
		ts.config.TableName)

	rows, err := ts.pool.Query(ctx, query, pgvector.NewVector(vector), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %v", err)
	}
	defer rows.Close()

	var result []models.Embedding
	for rows.Next() {
		var path string
		var embedding pgvector.Vector
		if err := rows.Scan(&path, &embedding); err != nil {
			return nil, fmt.Errorf("failed to scan row: %v", err)
		}
		result = append(result, models.Embedding{
			Path:   path,
			Vector: embedding.Slice(),
		})
	}

	return result, nil
}

func (ts *TileStore) Close() {
	if ts.pool != nil {
		ts.pool.Close()
	}
}
