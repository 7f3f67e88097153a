package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/uncia/histoflow/internal/models"
)

// WriteEmbeddings serializes the table as delimited text: a filename column
// followed by one dim_i column per embedding dimension, one row per tile.
func WriteEmbeddings(path string, table *models.EmbeddingTable) error {
	if table.Len() == 0 {
		return fmt.Errorf("refusing to write empty embedding table")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)

	header := make([]string, 0, table.Dim+1)
	header = append(header, "filename")
	for i := 0; i < table.Dim; i++ {
		header = append(header, fmt.Sprintf("dim_%d", i))
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, table.Dim+1)
	for _, row := range table.Rows {
		if len(row.Vector) != table.Dim {
			return fmt.Errorf("row %s has dimension %d, expected %d", row.Path, len(row.Vector), table.Dim)
		}
		record[0] = row.Path
		for i, v := range row.Vector {
			record[i+1] = strconv.FormatFloat(float64(v), 'g', -1, 32)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}

// ReadMatrix loads a delimited table back into memory, dropping the known
// non-numeric identifier columns and returning identifiers alongside the
// numeric matrix.
func ReadMatrix(path string) ([]string, [][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open embeddings file: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse embeddings file: %w", err)
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("embeddings file %s has no data rows", path)
	}

	header := records[0]
	nonNumeric := map[string]bool{"filename": true, "path": true, "element": true}

	var idCol = -1
	var numericCols []int
	for i, name := range header {
		if nonNumeric[name] {
			if idCol < 0 {
				idCol = i
			}
			continue
		}
		numericCols = append(numericCols, i)
	}
	if len(numericCols) == 0 {
		return nil, nil, fmt.Errorf("embeddings file %s has no numeric columns", path)
	}

	ids := make([]string, 0, len(records)-1)
	matrix := make([][]float32, 0, len(records)-1)
	for rowIdx, record := range records[1:] {
		vec := make([]float32, len(numericCols))
		for j, col := range numericCols {
			v, err := strconv.ParseFloat(record[col], 32)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %s: %w", rowIdx+1, header[col], err)
			}
			vec[j] = float32(v)
		}
		matrix = append(matrix, vec)

		if idCol >= 0 {
			ids = append(ids, record[idCol])
		} else {
			ids = append(ids, strconv.Itoa(rowIdx))
		}
	}

	return ids, matrix, nil
}

// WriteClusters serializes reduced coordinates plus cluster labels.
func WriteClusters(path string, points []models.ClusterPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("refusing to write empty cluster table")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)

	if err := w.Write([]string{"filename", "x", "y", "z", "cluster"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, p := range points {
		record := []string{
			p.Path,
			strconv.FormatFloat(float64(p.X), 'g', -1, 32),
			strconv.FormatFloat(float64(p.Y), 'g', -1, 32),
			strconv.FormatFloat(float64(p.Z), 'g', -1, 32),
			strconv.Itoa(p.Cluster),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	w.Flush()
	return w.Error()
}
