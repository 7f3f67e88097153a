package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgPkg "github.com/uncia/histoflow/pkg/config"
	"github.com/uncia/histoflow/pkg/segment"
)

var (
	segInput      string
	segOutput     string
	segConfigPath string
	segScript     string
	segPython     string
	segBatch      bool
)

var segmentCmd = &cobra.Command{
	Use:   "segment [flags]",
	Short: "Segment whole-slide images with the external tool",
	Long: `Run the external tissue-segmentation tool over every whole-slide image
in a directory, one job directory per slide.

Each slide is handed to the tool's per-slide entry point and its GeoJSON
contour output is verified afterwards. A failing slide is reported and
skipped unless --batch is set, in which case the run aborts.`,
	Example: `  # Segment every slide under ./slides into ./jobs
  histoflow segment -i ./slides -o ./jobs --script /opt/trident/run_single_slide.py

  # Abort on the first failure
  histoflow segment -i ./slides -o ./jobs --script run_single_slide.py --batch`,
	PreRunE: validateSegmentFlags,
	RunE:    runSegment,
}

func init() {
	segmentCmd.Flags().StringVarP(&segInput, "input", "i", "", "Directory containing whole-slide images")
	segmentCmd.Flags().StringVarP(&segOutput, "output", "o", "jobs", "Directory for per-slide job outputs")
	segmentCmd.Flags().StringVarP(&segConfigPath, "config", "c", "", "Path to config file")
	segmentCmd.Flags().StringVar(&segScript, "script", "", "Path to the segmentation tool's per-slide script")
	segmentCmd.Flags().StringVar(&segPython, "python", "", "Python interpreter running the tool")
	segmentCmd.Flags().BoolVar(&segBatch, "batch", false, "Abort the run on the first failed slide")

	segmentCmd.MarkFlagRequired("input")
}

func validateSegmentFlags(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(segInput); os.IsNotExist(err) {
		return fmt.Errorf("image directory does not exist: %s", segInput)
	}
	return nil
}

func runSegment(cmd *cobra.Command, args []string) error {
	config, err := cfgPkg.LoadConfig(segConfigPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("script") {
		config.Segmenter.Script = segScript
	}
	if cmd.Flags().Changed("python") {
		config.Segmenter.Python = segPython
	}

	s, err := segment.NewWithConfig(segment.SegmenterConfig{
		Python:     config.Segmenter.Python,
		Script:     config.Segmenter.Script,
		Extensions: config.Segmenter.Extensions,
		BatchMode:  segBatch,
	})
	if err != nil {
		return err
	}

	color.Blue("Segmenting slides in %s\n", segInput)

	summary, err := s.Run(context.Background(), segInput, segOutput)
	if err != nil {
		return err
	}

	fmt.Println()
	for _, r := range summary.Results {
		name := filepath.Base(r.Slide)
		switch {
		case r.Err != nil:
			color.Red("  ✗ %s: %v", name, r.Err)
		case !r.Verified:
			color.Yellow("  ? %s: finished but no GeoJSON at %s", name, r.GeoJSON)
		default:
			color.Green("  ✓ %s → %s", name, r.GeoJSON)
		}
	}

	color.Green("\n✓ Segmented %d slides (%d failed), outputs under %s\n",
		summary.Processed, summary.Failed, segOutput)

	if summary.Failed > 0 {
		return fmt.Errorf("%d slides failed segmentation", summary.Failed)
	}
	return nil
}
