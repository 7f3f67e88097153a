package tiles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/uncia/histoflow/internal/models"
)

type EnumeratorConfig struct {
	Extensions []string
	Sorted     bool
}

type Enumerator struct {
	config EnumeratorConfig
	exts   map[string]bool
}

func NewWithConfig(config EnumeratorConfig) *Enumerator {
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}
	}

	exts := make(map[string]bool, len(config.Extensions))
	for _, ext := range config.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Enumerator{
		config: config,
		exts:   exts,
	}
}

func New() *Enumerator {
	return NewWithConfig(EnumeratorConfig{Sorted: true})
}

// Enumerate walks root recursively and returns every file whose extension is
// in the allow-list. With Sorted set, paths are ordered lexicographically;
// otherwise the filesystem traversal order is kept as-is.
func (e *Enumerator) Enumerate(root string) ([]models.Tile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("input directory not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", root)
	}

	var found []models.Tile
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: error accessing %s: %v\n", path, err)
			return nil // continue walking
		}
		if info.IsDir() {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(info.Name()))
		if e.exts[ext] {
			found = append(found, models.Tile{
				Path:   path,
				Format: strings.TrimPrefix(ext, "."),
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan input directory: %w", err)
	}

	if len(found) == 0 {
		return nil, fmt.Errorf("no supported image files found in %s (supported: %s)",
			root, strings.Join(e.config.Extensions, ", "))
	}

	if e.config.Sorted {
		sort.Slice(found, func(i, j int) bool {
			return found[i].Path < found[j].Path
		})
	}

	return found, nil
}
