package segment

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type SegmenterConfig struct {
	Python     string
	Script     string   // path to the external tool's per-slide entry point
	Extensions []string // whole-slide image allow-list
	BatchMode  bool     // abort the run on the first failed slide
}

// Segmenter wraps the external tissue-segmentation tool. It owns no
// segmentation logic: it builds argument lists, launches the tool per slide,
// checks exit codes and verifies the expected output file appears.
type Segmenter struct {
	config SegmenterConfig
	exts   map[string]bool
}

type SlideResult struct {
	Slide    string
	JobDir   string
	GeoJSON  string
	Verified bool
	Err      error
}

type Summary struct {
	Processed int
	Failed    int
	Results   []SlideResult
}

func NewWithConfig(config SegmenterConfig) (*Segmenter, error) {
	if config.Python == "" {
		config.Python = "python"
	}
	if len(config.Extensions) == 0 {
		config.Extensions = []string{".svs", ".ndpi", ".tiff", ".tif", ".vsi", ".mrxs", ".scn"}
	}

	if config.Script == "" {
		return nil, fmt.Errorf("segmentation script path is required")
	}
	if _, err := os.Stat(config.Script); err != nil {
		return nil, fmt.Errorf("segmentation script not accessible: %w", err)
	}

	exts := make(map[string]bool, len(config.Extensions))
	for _, ext := range config.Extensions {
		exts[strings.ToLower(ext)] = true
	}

	return &Segmenter{
		config: config,
		exts:   exts,
	}, nil
}

// Run segments every whole-slide image directly under imageDir, one job
// directory per slide under outputDir.
func (s *Segmenter) Run(ctx context.Context, imageDir, outputDir string) (*Summary, error) {
	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, fmt.Errorf("image directory not accessible: %w", err)
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	summary := &Summary{}
	for _, entry := range entries {
		if entry.IsDir() || !s.exts[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}

		slidePath := filepath.Join(imageDir, entry.Name())
		result := s.runSlide(ctx, slidePath, outputDir)
		summary.Results = append(summary.Results, result)

		if result.Err != nil {
			summary.Failed++
			fmt.Fprintf(os.Stderr, "Error: segmentation failed for %s: %v\n", entry.Name(), result.Err)
			if s.config.BatchMode {
				return summary, fmt.Errorf("aborting batch run after %s: %w", entry.Name(), result.Err)
			}
			continue
		}

		summary.Processed++
		if !result.Verified {
			fmt.Fprintf(os.Stderr, "Warning: GeoJSON not found for %s at %s\n", entry.Name(), result.GeoJSON)
		}
	}

	if len(summary.Results) == 0 {
		return nil, fmt.Errorf("no whole-slide images found in %s", imageDir)
	}

	return summary, nil
}

func (s *Segmenter) runSlide(ctx context.Context, slidePath, outputDir string) SlideResult {
	stem := strings.TrimSuffix(filepath.Base(slidePath), filepath.Ext(slidePath))
	jobDir := filepath.Join(outputDir, stem)

	result := SlideResult{
		Slide:   slidePath,
		JobDir:  jobDir,
		GeoJSON: filepath.Join(jobDir, "segmentations", stem+".geojson"),
	}

	cmd := exec.CommandContext(ctx, s.config.Python, s.config.Script,
		"--slide_path", slidePath,
		"--job_dir", jobDir,
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	fmt.Fprintf(os.Stderr, "Executing: %s\n", strings.Join(cmd.Args, " "))
	if err := cmd.Run(); err != nil {
		if output.Len() > 0 {
			fmt.Fprintf(os.Stderr, "%s\n", output.String())
		}
		result.Err = fmt.Errorf("segmentation tool: %w", err)
		return result
	}

	if _, err := os.Stat(result.GeoJSON); err == nil {
		result.Verified = true
	}

	return result
}
