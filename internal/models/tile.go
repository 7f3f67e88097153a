package models

// Tile identifies a single image patch on disk. Tiles are read-only input;
// nothing in the pipeline mutates the file it points at.
type Tile struct {
	Path   string
	Format string
	Width  int
	Height int
}

// LoadedTile is a decoded, preprocessed tile ready for inference: a
// tile_size x tile_size RGB image flattened to CHW float32 in [0,1].
type LoadedTile struct {
	Tile
	Tensor []float32
}

// LoadError records a tile that could not be decoded. The tile is skipped,
// not fatal, and never appears in the output table.
type LoadError struct {
	Path string
	Err  error
}

func (e LoadError) Error() string {
	return e.Path + ": " + e.Err.Error()
}

// Embedding is one fixed-length feature vector for one tile.
type Embedding struct {
	Path   string
	Vector []float32
}

// EmbeddingTable accumulates embeddings in enumeration order. Every vector
// has the same length; row order matches the order tiles were enumerated.
type EmbeddingTable struct {
	Dim  int
	Rows []Embedding
}

// Append adds a block of embeddings, preserving relative order.
func (t *EmbeddingTable) Append(rows ...Embedding) {
	t.Rows = append(t.Rows, rows...)
}

func (t *EmbeddingTable) Len() int {
	return len(t.Rows)
}

// ClusterPoint is a tile projected into the reduced space with its assigned
// cluster label. Derived data, recomputed each run.
type ClusterPoint struct {
	Path    string
	X, Y, Z float32
	Cluster int
}
