package encoder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/uncia/histoflow/internal/models"
)

// Client talks to a model-serving endpoint that hosts the pretrained tissue
// encoder. The encoder itself is opaque: the server pulls the named
// checkpoint from its model hub on demand and runs inference only.
type Client struct {
	config  ClientConfig
	client  *http.Client
	limiter *rate.Limiter
}

type ClientConfig struct {
	BaseURL   string
	Model     string
	AuthToken string // hub token forwarded for the one-time weight download
	VectorDim int
	Timeout   time.Duration
	RateLimit float64 // requests per second
}

type embedRequest struct {
	Model  string      `json:"model"`
	Shape  [3]int      `json:"shape"`
	Inputs [][]float32 `json:"inputs"`
}

type embedResponse struct {
	Model      string      `json:"model"`
	Dim        int         `json:"dim"`
	Embeddings [][]float32 `json:"embeddings"`
}

type pullRequest struct {
	Model string `json:"model"`
}

func NewWithConfig(config ClientConfig) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:8500"
	}
	if config.Model == "" {
		config.Model = "uni2-h"
	}
	if config.VectorDim == 0 {
		config.VectorDim = 1536
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 4
	}

	return &Client{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}
}

// Ping verifies that the encoder server is reachable before any batch work
// starts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("encoder server not reachable at %s: %w", c.config.BaseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("encoder server responded with status %d", resp.StatusCode)
	}

	return nil
}

// EnsureModel asks the server to fetch the pretrained checkpoint if it is not
// already cached locally. The hub token travels as a bearer credential; the
// download happens once per server, not once per run.
func (c *Client) EnsureModel(ctx context.Context) error {
	body, err := json.Marshal(pullRequest{Model: c.config.Model})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/models/pull", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.AuthToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AuthToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to pull model %s: %w", c.config.Model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("model pull for %s returned status %d: %s", c.config.Model, resp.StatusCode, string(msg))
	}

	return nil
}

// EncodeBatch runs one inference call over a preprocessed batch and returns
// one fixed-length vector per input tile, in input order.
func (c *Client) EncodeBatch(ctx context.Context, batch []models.LoadedTile) ([]models.Embedding, error) {
	if len(batch) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	side := tensorSide(len(batch[0].Tensor))
	reqBody := embedRequest{
		Model: c.config.Model,
		Shape: [3]int{3, side, side},
	}
	reqBody.Inputs = make([][]float32, len(batch))
	for i, tile := range batch {
		reqBody.Inputs[i] = tile.Tensor
	}

	data, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/embed", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call encoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("encoder returned status %d: %s", resp.StatusCode, string(msg))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Embeddings) != len(batch) {
		return nil, fmt.Errorf("encoder returned %d vectors for %d inputs",
			len(result.Embeddings), len(batch))
	}

	rows := make([]models.Embedding, len(batch))
	for i, vec := range result.Embeddings {
		if len(vec) != c.config.VectorDim {
			return nil, fmt.Errorf("vector %d has dimension %d, expected %d",
				i, len(vec), c.config.VectorDim)
		}
		rows[i] = models.Embedding{
			Path:   batch[i].Path,
			Vector: vec,
		}
	}

	return rows, nil
}

func (c *Client) Dimension() int {
	return c.config.VectorDim
}

func tensorSide(n int) int {
	// CHW tensor with 3 channels; side is sqrt(n/3).
	side := 0
	for side*side*3 < n {
		side++
	}
	return side
}
