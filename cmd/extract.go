package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cfgPkg "github.com/uncia/histoflow/pkg/config"
	"github.com/uncia/histoflow/pkg/encoder"
	"github.com/uncia/histoflow/pkg/export"
	"github.com/uncia/histoflow/pkg/extract"
	"github.com/uncia/histoflow/pkg/loader"
	"github.com/uncia/histoflow/pkg/store"
	"github.com/uncia/histoflow/pkg/tiles"
)

var (
	extractInput      string
	extractOutput     string
	extractConfigPath string
	extractBatchSize  int
	extractWorkers    int
	extractEncoderURL string
	extractModel      string
	extractToken      string
	extractDim        int
	extractStore      bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [flags]",
	Short: "Extract feature embeddings from tile images",
	Long: `Extract one fixed-length embedding per tile image using the pretrained
encoder and write the table to a delimited text file.

Tiles are enumerated recursively, partitioned into batches, decoded and
preprocessed by a worker pool, and encoded in inference mode. Tiles that
fail to decode are skipped with a logged error; the run fails only if no
embedding at all could be extracted.`,
	Example: `  # Extract embeddings for every tile under ./patches
  histoflow extract -i ./patches -o ./output/embeddings.csv

  # Larger batches, explicit encoder endpoint
  histoflow extract -i ./patches -o emb.csv -b 64 --encoder-url http://gpu01:8500

  # Mirror the table into the pgvector sink configured in histoflow.yaml
  histoflow extract -i ./patches -o emb.csv --store`,
	PreRunE: validateExtractFlags,
	RunE:    runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractInput, "input", "i", "", "Input directory containing tile images")
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "embeddings.csv", "Output CSV path")
	extractCmd.Flags().StringVarP(&extractConfigPath, "config", "c", "", "Path to config file")
	extractCmd.Flags().IntVarP(&extractBatchSize, "batch-size", "b", 0, "Batch size for inference")
	extractCmd.Flags().IntVarP(&extractWorkers, "workers", "w", 0, "Number of parallel decode workers")
	extractCmd.Flags().StringVar(&extractEncoderURL, "encoder-url", "", "Encoder server URL")
	extractCmd.Flags().StringVar(&extractModel, "model", "", "Pretrained encoder model name")
	extractCmd.Flags().StringVar(&extractToken, "hf-token", "", "Model hub token for the weight download")
	extractCmd.Flags().IntVar(&extractDim, "vector-dim", 0, "Expected embedding dimensionality")
	extractCmd.Flags().BoolVar(&extractStore, "store", false, "Also upsert embeddings into the pgvector sink")

	extractCmd.MarkFlagRequired("input")
}

func validateExtractFlags(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(extractInput); os.IsNotExist(err) {
		return fmt.Errorf("input directory does not exist: %s", extractInput)
	}
	if extractBatchSize < 0 {
		return fmt.Errorf("batch size must be positive, got %d", extractBatchSize)
	}
	return nil
}

func extractConfig(cmd *cobra.Command) (*cfgPkg.Config, error) {
	config, err := cfgPkg.LoadConfig(extractConfigPath)
	if err != nil {
		return nil, err
	}

	// Command line flags override config file values
	if cmd.Flags().Changed("batch-size") {
		config.Extractor.BatchSize = extractBatchSize
	}
	if cmd.Flags().Changed("workers") {
		config.Extractor.Workers = extractWorkers
	}
	if cmd.Flags().Changed("encoder-url") {
		config.Encoder.BaseURL = extractEncoderURL
	}
	if cmd.Flags().Changed("model") {
		config.Encoder.Model = extractModel
	}
	if cmd.Flags().Changed("hf-token") {
		config.Encoder.AuthToken = extractToken
	}
	if cmd.Flags().Changed("vector-dim") {
		config.Encoder.VectorDim = extractDim
	}

	if errs := config.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("config: %v", e)
		}
		return nil, fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	return config, nil
}

func runExtract(cmd *cobra.Command, args []string) error {
	config, err := extractConfig(cmd)
	if err != nil {
		return err
	}

	ctx := context.Background()

	enc := encoder.NewWithConfig(encoder.ClientConfig{
		BaseURL:   config.Encoder.BaseURL,
		Model:     config.Encoder.Model,
		AuthToken: config.Encoder.AuthToken,
		VectorDim: config.Encoder.VectorDim,
		Timeout:   time.Duration(config.Encoder.TimeoutS) * time.Second,
		RateLimit: config.Encoder.RateLimit,
	})

	if err := enc.Ping(ctx); err != nil {
		return err
	}

	pullSpinner := getSpinner(fmt.Sprintf("Preparing encoder %s...", config.Encoder.Model))
	err = enc.EnsureModel(ctx)
	pullSpinner.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	color.Blue("Extracting embeddings from %s (batch %d, %d workers)\n",
		extractInput, config.Extractor.BatchSize, config.Extractor.Workers)

	var bar interface{ Set(int) error }
	pipeline := extract.NewWithConfig(
		extract.PipelineConfig{
			InputDir:  extractInput,
			BatchSize: config.Extractor.BatchSize,
			OnBatch: func(done, total int) {
				if bar == nil {
					bar = getProgressBar(total, "Encoding batches...")
				}
				bar.Set(done)
			},
		},
		tiles.NewWithConfig(tiles.EnumeratorConfig{
			Extensions: config.Extractor.Extensions,
			Sorted:     config.Extractor.Sorted == nil || *config.Extractor.Sorted,
		}),
		loader.NewWithConfig(loader.LoaderConfig{
			Workers:  config.Extractor.Workers,
			TileSize: config.Extractor.TileSize,
		}),
		enc,
	)

	result, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	if err := export.WriteEmbeddings(extractOutput, result.Table); err != nil {
		return err
	}

	color.Green("\n✓ Extracted %d embeddings from %d tiles (%d skipped, %d inference calls)\n",
		result.Table.Len(), result.Enumerated, len(result.Skipped), result.Encodes)
	color.Green("✓ Embeddings saved to %s\n", extractOutput)

	if extractStore {
		if config.Database.URL == "" {
			return fmt.Errorf("--store requires database.url in the config or DATABASE_URL")
		}

		ts, err := store.NewWithConfig(store.TileStoreConfig{
			ConnString: config.Database.URL,
			TableName:  config.Database.TableName,
			VectorDim:  config.Encoder.VectorDim,
			BatchSize:  config.Database.BatchSize,
		})
		if err != nil {
			return err
		}
		defer ts.Close()

		storeSpinner := getSpinner("Storing in vector database...")
		err = ts.Store(result.Table.Rows)
		storeSpinner.Finish()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to store embeddings: %w", err)
		}
		color.Green("✓ Stored %d embeddings in %s\n", result.Table.Len(), config.Database.TableName)
	}

	return nil
}
