package config

import (
	"fmt"
	"net/url"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	// Validate encoder config
	if c.Encoder.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "encoder.base_url",
			Message: "encoder base URL is required",
		})
	}

	if _, err := url.Parse(c.Encoder.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "encoder.base_url",
			Message: "invalid encoder base URL",
		})
	}

	if c.Encoder.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "encoder.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Encoder.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "encoder.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	// Validate extractor config
	if c.Extractor.BatchSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.batch_size",
			Message: "batch_size must be positive",
		})
	}

	if c.Extractor.Workers < 1 || c.Extractor.Workers > 64 {
		errors = append(errors, ValidationError{
			Field:   "extractor.workers",
			Message: "workers must be between 1 and 64",
		})
	}

	if c.Extractor.TileSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "extractor.tile_size",
			Message: "tile_size must be positive",
		})
	}

	// Validate extensions format
	for _, ext := range c.Extractor.Extensions {
		if !strings.HasPrefix(ext, ".") {
			errors = append(errors, ValidationError{
				Field:   "extractor.extensions",
				Message: fmt.Sprintf("invalid extension format: %s", ext),
			})
		}
	}

	// Validate projection config
	if c.Projection.Components < 2 || c.Projection.Components > 3 {
		errors = append(errors, ValidationError{
			Field:   "projection.components",
			Message: "components must be 2 or 3",
		})
	}

	if c.Projection.Neighbors < 2 {
		errors = append(errors, ValidationError{
			Field:   "projection.neighbors",
			Message: "neighbors must be at least 2",
		})
	}

	if c.Projection.MinDist < 0 || c.Projection.MinDist >= 1 {
		errors = append(errors, ValidationError{
			Field:   "projection.min_dist",
			Message: "min_dist must be in [0, 1)",
		})
	}

	// Validate cluster config
	if c.Cluster.K < 1 || c.Cluster.K > 256 {
		errors = append(errors, ValidationError{
			Field:   "cluster.k",
			Message: "k must be between 1 and 256",
		})
	}

	// Validate database config
	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}

		if c.Database.BatchSize < 1 {
			errors = append(errors, ValidationError{
				Field:   "database.batch_size",
				Message: "batch_size must be positive",
			})
		}
	}

	return errors
}
