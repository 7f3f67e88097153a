package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgPkg "github.com/uncia/histoflow/pkg/config"
	"github.com/uncia/histoflow/pkg/export"
	"github.com/uncia/histoflow/pkg/plot"
	"github.com/uncia/histoflow/pkg/reduce"
)

var (
	vizInput           string
	vizOutput          string
	vizConfigPath      string
	vizClusters        int
	vizPython          string
	vizNeighbors       int
	vizMinDist         float64
	vizComponents      int
	vizNoHTML          bool
	vizNoSheet         bool
	vizTilesPerCluster int
)

var visualizeCmd = &cobra.Command{
	Use:   "visualize [flags]",
	Short: "Project, cluster and plot an embeddings table",
	Long: `Project an embeddings CSV into three dimensions with UMAP, cluster the
projection with K-means and render the results.

Outputs written to the output directory:
  umap_3d_kmeans.csv         projected coordinates and cluster labels
  umap_3d_visualization.png  static 3-D scatter render
  umap_3d_interactive.html   browsable 3-D scatter page
  cluster_tiles_grid.png     sampled tiles from each cluster`,
	Example: `  # Visualize a previously extracted table
  histoflow visualize -i output/embeddings.csv -o output

  # Fewer clusters, skip the contact sheet
  histoflow visualize -i emb.csv -o out -k 10 --no-sheet`,
	PreRunE: validateVisualizeFlags,
	RunE:    runVisualize,
}

func init() {
	visualizeCmd.Flags().StringVarP(&vizInput, "input", "i", "", "Embeddings CSV produced by extract")
	visualizeCmd.Flags().StringVarP(&vizOutput, "output", "o", "output", "Output directory for plots and tables")
	visualizeCmd.Flags().StringVarP(&vizConfigPath, "config", "c", "", "Path to config file")
	visualizeCmd.Flags().IntVarP(&vizClusters, "clusters", "k", 0, "Number of K-means clusters")
	visualizeCmd.Flags().StringVar(&vizPython, "python", "", "Python interpreter for the reduction script")
	visualizeCmd.Flags().IntVar(&vizNeighbors, "neighbors", 0, "UMAP n_neighbors")
	visualizeCmd.Flags().Float64Var(&vizMinDist, "min-dist", 0, "UMAP min_dist")
	visualizeCmd.Flags().IntVar(&vizComponents, "components", 0, "UMAP output dimensionality")
	visualizeCmd.Flags().BoolVar(&vizNoHTML, "no-html", false, "Skip the interactive HTML plot")
	visualizeCmd.Flags().BoolVar(&vizNoSheet, "no-sheet", false, "Skip the cluster tile contact sheet")
	visualizeCmd.Flags().IntVar(&vizTilesPerCluster, "tiles-per-cluster", 4, "Tiles sampled per cluster on the contact sheet")

	visualizeCmd.MarkFlagRequired("input")
}

func validateVisualizeFlags(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(vizInput); os.IsNotExist(err) {
		return fmt.Errorf("embeddings file does not exist: %s", vizInput)
	}
	if vizClusters < 0 {
		return fmt.Errorf("cluster count must be positive, got %d", vizClusters)
	}
	return nil
}

func runVisualize(cmd *cobra.Command, args []string) error {
	config, err := cfgPkg.LoadConfig(vizConfigPath)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("clusters") {
		config.Cluster.K = vizClusters
	}
	if cmd.Flags().Changed("python") {
		config.Segmenter.Python = vizPython
	}
	if cmd.Flags().Changed("neighbors") {
		config.Projection.Neighbors = vizNeighbors
	}
	if cmd.Flags().Changed("min-dist") {
		config.Projection.MinDist = vizMinDist
	}
	if cmd.Flags().Changed("components") {
		config.Projection.Components = vizComponents
	}

	if err := os.MkdirAll(vizOutput, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	color.Blue("Projecting %s with UMAP (%d components, %d neighbors) and K-means (k=%d)\n",
		vizInput, config.Projection.Components, config.Projection.Neighbors, config.Cluster.K)

	runner := reduce.NewWithConfig(reduce.RunnerConfig{
		Python:     config.Segmenter.Python,
		Components: config.Projection.Components,
		Neighbors:  config.Projection.Neighbors,
		MinDist:    config.Projection.MinDist,
		Seed:       config.Projection.Seed,
		Clusters:   config.Cluster.K,
		StaticPlot: filepath.Join(vizOutput, "umap_3d_visualization.png"),
	})

	points, err := runner.Reduce(context.Background(), vizInput)
	if err != nil {
		return err
	}

	clustersCSV := filepath.Join(vizOutput, "umap_3d_kmeans.csv")
	if err := export.WriteClusters(clustersCSV, points); err != nil {
		return err
	}
	color.Green("✓ Cluster assignments saved to %s\n", clustersCSV)
	color.Green("✓ Static plot saved to %s\n", filepath.Join(vizOutput, "umap_3d_visualization.png"))

	if !vizNoHTML {
		htmlPath := filepath.Join(vizOutput, "umap_3d_interactive.html")
		if err := plot.WriteInteractiveHTML(htmlPath, points); err != nil {
			return err
		}
		color.Green("✓ Interactive plot saved to %s\n", htmlPath)
	}

	if !vizNoSheet {
		sheetPath := filepath.Join(vizOutput, "cluster_tiles_grid.png")
		err := plot.WriteContactSheet(sheetPath, points, plot.ContactSheetConfig{
			TilesPerCluster: vizTilesPerCluster,
			Seed:            int64(config.Cluster.Seed),
		})
		if err != nil {
			return err
		}
		color.Green("✓ Cluster tile grid saved to %s\n", sheetPath)
	}

	color.Green("\n✓ Visualized %d points in %d clusters\n", len(points), config.Cluster.K)
	return nil
}
