package loader_test

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uncia/histoflow/internal/models"
	"github.com/uncia/histoflow/pkg/loader"
)

func writeTestImage(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(path) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	default:
		require.NoError(t, jpeg.Encode(f, img, nil))
	}
}

func TestLoadBatch(t *testing.T) {
	tmpDir := t.TempDir()

	paths := []string{
		filepath.Join(tmpDir, "a.jpg"),
		filepath.Join(tmpDir, "b.png"),
		filepath.Join(tmpDir, "c.jpg"),
	}
	writeTestImage(t, paths[0], 64, 48, color.RGBA{R: 255, A: 255})
	writeTestImage(t, paths[1], 100, 100, color.RGBA{G: 255, A: 255})
	writeTestImage(t, paths[2], 32, 32, color.RGBA{B: 255, A: 255})

	l := loader.NewWithConfig(loader.LoaderConfig{Workers: 2, TileSize: 8})

	batch := make([]models.Tile, len(paths))
	for i, p := range paths {
		batch[i] = models.Tile{Path: p}
	}

	loaded, failed := l.LoadBatch(batch)
	require.Empty(t, failed)
	require.Len(t, loaded, 3)

	// Order matches the input batch regardless of worker scheduling
	for i, p := range paths {
		assert.Equal(t, p, loaded[i].Path)
	}

	// Uniform tensor shape: 3 channels x 8 x 8
	for _, lt := range loaded {
		assert.Len(t, lt.Tensor, 3*8*8)
	}

	// First image is pure red: R plane ~1, G and B planes ~0
	red := loaded[0].Tensor
	assert.InDelta(t, 1.0, float64(red[0]), 0.05)
	assert.InDelta(t, 0.0, float64(red[8*8]), 0.05)
	assert.InDelta(t, 0.0, float64(red[2*8*8]), 0.05)

	// Original dimensions recorded before resizing
	assert.Equal(t, 64, loaded[0].Width)
	assert.Equal(t, 48, loaded[0].Height)
}

func TestLoadBatchSkipsCorruptImages(t *testing.T) {
	tmpDir := t.TempDir()

	good := filepath.Join(tmpDir, "good.jpg")
	bad := filepath.Join(tmpDir, "bad.jpg")
	writeTestImage(t, good, 16, 16, color.RGBA{R: 128, A: 255})
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0644))

	l := loader.NewWithConfig(loader.LoaderConfig{Workers: 2, TileSize: 8})

	loaded, failed := l.LoadBatch([]models.Tile{
		{Path: bad},
		{Path: good},
	})

	require.Len(t, loaded, 1)
	assert.Equal(t, good, loaded[0].Path)

	require.Len(t, failed, 1)
	assert.Equal(t, bad, failed[0].Path)
	assert.Contains(t, failed[0].Error(), "decode")
}

func TestLoadBatchMissingFile(t *testing.T) {
	l := loader.NewWithConfig(loader.LoaderConfig{Workers: 1, TileSize: 8})

	loaded, failed := l.LoadBatch([]models.Tile{
		{Path: filepath.Join(t.TempDir(), "nope.jpg")},
	})

	assert.Empty(t, loaded)
	require.Len(t, failed, 1)
}
