package loader

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/nfnt/resize"

	// Register decoders for the non-stdlib formats in the allow-list.
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/uncia/histoflow/internal/models"
)

type LoaderConfig struct {
	Workers  int
	TileSize int
}

type Loader struct {
	config LoaderConfig
}

func NewWithConfig(config LoaderConfig) *Loader {
	if config.Workers == 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.TileSize == 0 {
		config.TileSize = 224
	}

	return &Loader{config: config}
}

type indexedResult struct {
	index int
	tile  models.LoadedTile
	err   error
}

// LoadBatch decodes and preprocesses one batch of tiles using a worker pool.
// The returned slice keeps the input order; tiles that fail to decode are
// returned as LoadErrors and omitted from the loaded slice.
func (l *Loader) LoadBatch(batch []models.Tile) ([]models.LoadedTile, []models.LoadError) {
	tileChan := make(chan indexedResult, len(batch))
	resultChan := make(chan indexedResult, len(batch))
	var wg sync.WaitGroup

	workers := l.config.Workers
	if workers > len(batch) {
		workers = len(batch)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range tileChan {
				loaded, err := l.loadTile(job.tile.Tile)
				if err != nil {
					resultChan <- indexedResult{index: job.index, err: err, tile: job.tile}
					continue
				}
				resultChan <- indexedResult{index: job.index, tile: *loaded}
			}
		}()
	}

	go func() {
		defer close(tileChan)
		for i, tile := range batch {
			tileChan <- indexedResult{index: i, tile: models.LoadedTile{Tile: tile}}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	// Reassemble by index so batch order matches enumeration order.
	ordered := make([]*indexedResult, len(batch))
	for result := range resultChan {
		r := result
		ordered[r.index] = &r
	}

	var loaded []models.LoadedTile
	var failed []models.LoadError
	for _, r := range ordered {
		if r == nil {
			continue
		}
		if r.err != nil {
			failed = append(failed, models.LoadError{Path: r.tile.Path, Err: r.err})
			continue
		}
		loaded = append(loaded, r.tile)
	}

	return loaded, failed
}

func (l *Loader) loadTile(tile models.Tile) (*models.LoadedTile, error) {
	file, err := os.Open(tile.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var img image.Image
	ext := strings.ToLower(filepath.Ext(tile.Path))

	switch ext {
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(file)
	case ".png":
		img, err = png.Decode(file)
	default:
		img, _, err = image.Decode(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	tile.Width = bounds.Dx()
	tile.Height = bounds.Dy()

	size := l.config.TileSize
	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	// CHW float32 in [0,1]; RGBA channels come back 16-bit, shift to 8.
	tensor := make([]float32, 3*size*size)
	plane := size * size
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			idx := y*size + x
			tensor[idx] = float32(r>>8) / 255.0
			tensor[plane+idx] = float32(g>>8) / 255.0
			tensor[2*plane+idx] = float32(b>>8) / 255.0
		}
	}

	return &models.LoadedTile{
		Tile:   tile,
		Tensor: tensor,
	}, nil
}

// TensorShape reports the per-tile tensor dimensions (channels, height, width).
func (l *Loader) TensorShape() [3]int {
	return [3]int{3, l.config.TileSize, l.config.TileSize}
}
