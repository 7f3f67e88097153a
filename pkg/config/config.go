package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Encoder struct {
		BaseURL   string  `yaml:"base_url"`
		Model     string  `yaml:"model"`
		AuthToken string  `yaml:"auth_token"`
		VectorDim int     `yaml:"vector_dim"`
		TimeoutS  int     `yaml:"timeout_seconds"`
		RateLimit float64 `yaml:"rate_limit"`
	} `yaml:"encoder"`

	Extractor struct {
		BatchSize  int      `yaml:"batch_size"`
		Workers    int      `yaml:"workers"`
		TileSize   int      `yaml:"tile_size"`
		Extensions []string `yaml:"extensions"`
		Sorted     *bool    `yaml:"sorted"`
	} `yaml:"extractor"`

	Projection struct {
		Components int     `yaml:"components"`
		Neighbors  int     `yaml:"neighbors"`
		MinDist    float64 `yaml:"min_dist"`
		Seed       int     `yaml:"seed"`
	} `yaml:"projection"`

	Cluster struct {
		K    int `yaml:"k"`
		Seed int `yaml:"seed"`
	} `yaml:"cluster"`

	Database struct {
		URL       string `yaml:"url"`
		TableName string `yaml:"table_name"`
		BatchSize int    `yaml:"batch_size"`
	} `yaml:"database"`

	Segmenter struct {
		Python     string   `yaml:"python"`
		Script     string   `yaml:"script"`
		Extensions []string `yaml:"extensions"`
	} `yaml:"segmenter"`
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		locations := []string{
			"histoflow.yaml",
			"histoflow.yml",
			filepath.Join(os.Getenv("HOME"), ".config/histoflow/config.yaml"),
			"/etc/histoflow/config.yaml",
		}

		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %v", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %v", err)
	}

	// Merge with environment variables
	mergeWithEnv(&config)

	// Apply defaults for unset values
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	applyDefaults(config)
	mergeWithEnv(config)
	return config, nil
}

func applyDefaults(config *Config) {
	if config.Encoder.BaseURL == "" {
		config.Encoder.BaseURL = "http://localhost:8500"
	}
	if config.Encoder.Model == "" {
		config.Encoder.Model = "uni2-h"
	}
	if config.Encoder.VectorDim == 0 {
		config.Encoder.VectorDim = 1536
	}
	if config.Encoder.TimeoutS == 0 {
		config.Encoder.TimeoutS = 120
	}
	if config.Encoder.RateLimit == 0 {
		config.Encoder.RateLimit = 4.0
	}

	if config.Extractor.BatchSize == 0 {
		config.Extractor.BatchSize = 32
	}
	if config.Extractor.Workers == 0 {
		config.Extractor.Workers = 4
	}
	if config.Extractor.TileSize == 0 {
		config.Extractor.TileSize = 224
	}
	if len(config.Extractor.Extensions) == 0 {
		config.Extractor.Extensions = []string{".jpg", ".jpeg", ".png", ".tif", ".tiff"}
	}
	if config.Extractor.Sorted == nil {
		sorted := true
		config.Extractor.Sorted = &sorted
	}

	if config.Projection.Components == 0 {
		config.Projection.Components = 3
	}
	if config.Projection.Neighbors == 0 {
		config.Projection.Neighbors = 15
	}
	if config.Projection.MinDist == 0 {
		config.Projection.MinDist = 0.1
	}
	if config.Projection.Seed == 0 {
		config.Projection.Seed = 42
	}

	if config.Cluster.K == 0 {
		config.Cluster.K = 30
	}
	if config.Cluster.Seed == 0 {
		config.Cluster.Seed = 42
	}

	if config.Database.TableName == "" {
		config.Database.TableName = "tiles"
	}
	if config.Database.BatchSize == 0 {
		config.Database.BatchSize = 100
	}

	if config.Segmenter.Python == "" {
		config.Segmenter.Python = "python"
	}
	if len(config.Segmenter.Extensions) == 0 {
		config.Segmenter.Extensions = []string{".svs", ".ndpi", ".tiff", ".tif", ".vsi", ".mrxs", ".scn"}
	}
}

func mergeWithEnv(config *Config) {
	if baseURL := os.Getenv("HISTOFLOW_ENCODER_URL"); baseURL != "" {
		config.Encoder.BaseURL = baseURL
	}
	if token := os.Getenv("HF_TOKEN"); token != "" {
		config.Encoder.AuthToken = token
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Database.URL = dbURL
	}
}
