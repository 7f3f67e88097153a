package reduce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/uncia/histoflow/internal/models"
)

// The numerical work (UMAP, K-means, the static render) stays in the
// statistical libraries; this runner only materializes the script, feeds it
// the embeddings CSV and collects its JSON summary from stdout.
const reduceScript = `# reduce_cluster.py - embedded version
import argparse
import json
import sys

import numpy as np
import pandas as pd
from sklearn.cluster import KMeans
import umap


def main():
    parser = argparse.ArgumentParser()
    parser.add_argument("--input", required=True)
    parser.add_argument("--components", type=int, default=3)
    parser.add_argument("--neighbors", type=int, default=15)
    parser.add_argument("--min-dist", type=float, default=0.1)
    parser.add_argument("--seed", type=int, default=42)
    parser.add_argument("--clusters", type=int, default=30)
    parser.add_argument("--plot", default="")
    args = parser.parse_args()

    df = pd.read_csv(args.input)
    for col in ("filename", "path", "element"):
        if col in df.columns:
            ids = df[col].tolist()
            df = df.drop(columns=[col])
            break
    else:
        ids = [str(i) for i in range(len(df))]

    embeddings = df.to_numpy(dtype=np.float32)

    reducer = umap.UMAP(
        n_components=args.components,
        n_neighbors=args.neighbors,
        min_dist=args.min_dist,
        random_state=args.seed,
    )
    projected = reducer.fit_transform(embeddings)
    if projected.shape[1] == 2:
        projected = np.column_stack([projected, np.zeros(len(projected))])

    kmeans = KMeans(n_clusters=args.clusters, random_state=args.seed, n_init=10)
    labels = kmeans.fit_predict(projected)

    if args.plot:
        import matplotlib
        matplotlib.use("Agg")
        import matplotlib.pyplot as plt

        fig = plt.figure(figsize=(16, 12))
        ax = fig.add_subplot(projection="3d")
        ax.scatter3D(projected[:, 0], projected[:, 1], projected[:, 2],
                     c=labels, cmap="tab20", s=20, alpha=0.7, depthshade=True)
        ax.set_title("3D UMAP Projection (%d clusters)" % args.clusters)
        ax.set_xlabel("UMAP 1")
        ax.set_ylabel("UMAP 2")
        ax.set_zlabel("UMAP 3")
        ax.view_init(elev=20, azim=45)
        fig.savefig(args.plot, dpi=350, bbox_inches="tight")

    out = {
        "n_clusters": args.clusters,
        "points": [
            {
                "filename": ids[i],
                "x": float(projected[i, 0]),
                "y": float(projected[i, 1]),
                "z": float(projected[i, 2]),
                "cluster": int(labels[i]),
            }
            for i in range(len(ids))
        ],
    }
    json.dump(out, sys.stdout)


if __name__ == "__main__":
    main()
`

type RunnerConfig struct {
	Python     string
	Components int
	Neighbors  int
	MinDist    float64
	Seed       int
	Clusters   int
	StaticPlot string // optional PNG path rendered by the script
	Timeout    time.Duration
}

type Runner struct {
	config RunnerConfig
}

type runnerOutput struct {
	NClusters int `json:"n_clusters"`
	Points    []struct {
		Filename string  `json:"filename"`
		X        float32 `json:"x"`
		Y        float32 `json:"y"`
		Z        float32 `json:"z"`
		Cluster  int     `json:"cluster"`
	} `json:"points"`
}

func NewWithConfig(config RunnerConfig) *Runner {
	if config.Python == "" {
		config.Python = "python"
	}
	if config.Components == 0 {
		config.Components = 3
	}
	if config.Neighbors == 0 {
		config.Neighbors = 15
	}
	if config.MinDist == 0 {
		config.MinDist = 0.1
	}
	if config.Seed == 0 {
		config.Seed = 42
	}
	if config.Clusters == 0 {
		config.Clusters = 30
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Minute
	}

	return &Runner{config: config}
}

// Reduce projects the embeddings CSV into the configured low-dimensional
// space and assigns cluster labels, returning one point per input row in row
// order.
func (r *Runner) Reduce(ctx context.Context, embeddingsCSV string) ([]models.ClusterPoint, error) {
	if _, err := os.Stat(embeddingsCSV); err != nil {
		return nil, fmt.Errorf("embeddings file not accessible: %w", err)
	}

	scriptDir, err := os.MkdirTemp("", "histoflow-reduce")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(scriptDir)

	scriptPath := filepath.Join(scriptDir, "reduce_cluster.py")
	if err := os.WriteFile(scriptPath, []byte(reduceScript), 0644); err != nil {
		return nil, fmt.Errorf("failed to write script: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	args := []string{
		scriptPath,
		"--input", embeddingsCSV,
		"--components", strconv.Itoa(r.config.Components),
		"--neighbors", strconv.Itoa(r.config.Neighbors),
		"--min-dist", strconv.FormatFloat(r.config.MinDist, 'g', -1, 64),
		"--seed", strconv.Itoa(r.config.Seed),
		"--clusters", strconv.Itoa(r.config.Clusters),
	}
	if r.config.StaticPlot != "" {
		args = append(args, "--plot", r.config.StaticPlot)
	}

	cmd := exec.CommandContext(ctx, r.config.Python, args...)

	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = os.Stderr // progress from the libraries streams through

	fmt.Fprintf(os.Stderr, "Executing: %s %s\n", r.config.Python, embeddingsCSV)
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("reduction script failed: %w", err)
	}

	var out runnerOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse script output as JSON: %w", err)
	}
	if len(out.Points) == 0 {
		return nil, fmt.Errorf("reduction script produced no points")
	}

	points := make([]models.ClusterPoint, len(out.Points))
	for i, p := range out.Points {
		points[i] = models.ClusterPoint{
			Path:    p.Filename,
			X:       p.X,
			Y:       p.Y,
			Z:       p.Z,
			Cluster: p.Cluster,
		}
	}

	return points, nil
}
