package plot

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sort"

	"github.com/nfnt/resize"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	_ "image/jpeg"

	"github.com/uncia/histoflow/internal/models"
)

type ContactSheetConfig struct {
	TilesPerCluster int // rendered as a 2-column grid per cluster
	TileSize        int
	Seed            int64
}

const (
	sheetBorder  = 2
	sheetSpacing = 10
	captionH     = 24
)

// WriteContactSheet samples tiles from each cluster and composes them into a
// grid image, one bordered block of tiles per cluster, so clusters can be
// inspected visually against the scatter plot.
func WriteContactSheet(path string, points []models.ClusterPoint, config ContactSheetConfig) error {
	if len(points) == 0 {
		return fmt.Errorf("refusing to render empty point set")
	}
	if config.TilesPerCluster == 0 {
		config.TilesPerCluster = 4
	}
	if config.TileSize == 0 {
		config.TileSize = 224
	}

	byCluster := map[int][]string{}
	for _, p := range points {
		byCluster[p.Cluster] = append(byCluster[p.Cluster], p.Path)
	}

	clusters := make([]int, 0, len(byCluster))
	for id := range byCluster {
		clusters = append(clusters, id)
	}
	sort.Ints(clusters)

	rng := rand.New(rand.NewSource(config.Seed))

	cols := 2
	rows := (config.TilesPerCluster + cols - 1) / cols
	cell := config.TileSize + 2*sheetBorder
	blockW := cols*cell + (cols-1)*sheetSpacing
	blockH := rows*cell + (rows-1)*sheetSpacing + captionH

	// Two cluster blocks per sheet row, like the source layout
	sheetCols := 2
	sheetRows := (len(clusters) + sheetCols - 1) / sheetCols
	sheet := image.NewRGBA(image.Rect(0, 0,
		sheetCols*blockW+(sheetCols+1)*sheetSpacing,
		sheetRows*blockH+(sheetRows+1)*sheetSpacing))
	draw.Draw(sheet, sheet.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	for i, id := range clusters {
		paths := sample(rng, byCluster[id], config.TilesPerCluster)

		bx := sheetSpacing + (i%sheetCols)*(blockW+sheetSpacing)
		by := sheetSpacing + (i/sheetCols)*(blockH+sheetSpacing)

		drawCaption(sheet, bx, by, fmt.Sprintf("Cluster %d", id))

		for j, tilePath := range paths {
			x := bx + (j%cols)*(cell+sheetSpacing)
			y := by + captionH + (j/cols)*(cell+sheetSpacing)
			if err := drawTile(sheet, tilePath, x, y, config.TileSize); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: contact sheet tile %s: %v\n", tilePath, err)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return png.Encode(file, sheet)
}

func sample(rng *rand.Rand, paths []string, n int) []string {
	if len(paths) <= n {
		return paths
	}
	picked := rng.Perm(len(paths))[:n]
	out := make([]string, n)
	for i, idx := range picked {
		out[i] = paths[idx]
	}
	return out
}

func drawTile(dst *image.RGBA, path string, x, y, size int) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return err
	}

	resized := resize.Resize(uint(size), uint(size), img, resize.Lanczos3)

	// Black border around each tile
	cell := image.Rect(x, y, x+size+2*sheetBorder, y+size+2*sheetBorder)
	draw.Draw(dst, cell, image.NewUniform(color.Black), image.Point{}, draw.Src)
	inner := image.Rect(x+sheetBorder, y+sheetBorder, x+sheetBorder+size, y+sheetBorder+size)
	draw.Draw(dst, inner, resized, image.Point{}, draw.Src)

	return nil
}

func drawCaption(dst *image.RGBA, x, y int, text string) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+13),
	}
	d.DrawString(text)
}
