package extract

import (
	"context"
	"fmt"
	"os"

	"github.com/uncia/histoflow/internal/models"
	"github.com/uncia/histoflow/internal/types"
)

type PipelineConfig struct {
	InputDir  string
	BatchSize int
	OnBatch   func(done, total int) // progress callback
}

// Pipeline drives the batch feature-extraction loop: enumerate, batch, load,
// encode, collect. No retries, no resumption; a run either produces a table
// or fails.
type Pipeline struct {
	config     PipelineConfig
	enumerator types.Enumerator
	loader     types.Loader
	encoder    types.Encoder
}

type Result struct {
	Table      *models.EmbeddingTable
	Enumerated int
	Skipped    []models.LoadError
	Encodes    int
}

func NewWithConfig(config PipelineConfig, enumerator types.Enumerator, loader types.Loader, encoder types.Encoder) *Pipeline {
	if config.BatchSize == 0 {
		config.BatchSize = 32
	}

	return &Pipeline{
		config:     config,
		enumerator: enumerator,
		loader:     loader,
		encoder:    encoder,
	}
}

func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	tiles, err := p.enumerator.Enumerate(p.config.InputDir)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Table:      &models.EmbeddingTable{Dim: p.encoder.Dimension()},
		Enumerated: len(tiles),
	}

	batchSize := p.config.BatchSize
	totalBatches := (len(tiles) + batchSize - 1) / batchSize

	for i := 0; i < len(tiles); i += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		end := i + batchSize
		if end > len(tiles) {
			end = len(tiles)
		}
		batch := tiles[i:end]

		loaded, failed := p.loader.LoadBatch(batch)
		for _, f := range failed {
			fmt.Fprintf(os.Stderr, "Warning: skipping tile %s\n", f.Error())
		}
		result.Skipped = append(result.Skipped, failed...)

		if len(loaded) == 0 {
			p.reportBatch(i/batchSize+1, totalBatches)
			continue
		}

		rows, err := p.encoder.EncodeBatch(ctx, loaded)
		result.Encodes++
		if err != nil {
			// A failed inference call drops the whole batch; the run only
			// fails if nothing at all was collected at the end.
			fmt.Fprintf(os.Stderr, "Warning: encode failed for batch %d/%d: %v\n",
				i/batchSize+1, totalBatches, err)
			for _, tile := range loaded {
				result.Skipped = append(result.Skipped, models.LoadError{Path: tile.Path, Err: err})
			}
			p.reportBatch(i/batchSize+1, totalBatches)
			continue
		}

		result.Table.Append(rows...)
		p.reportBatch(i/batchSize+1, totalBatches)
	}

	if result.Table.Len() == 0 {
		return nil, fmt.Errorf("no embeddings were extracted from %d enumerated tiles", result.Enumerated)
	}

	return result, nil
}

func (p *Pipeline) reportBatch(done, total int) {
	if p.config.OnBatch != nil {
		p.config.OnBatch(done, total)
	}
}
