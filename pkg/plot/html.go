package plot

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"

	"github.com/uncia/histoflow/internal/models"
)

const scatterTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="https://cdn.plot.ly/plotly-2.32.0.min.js"></script>
</head>
<body>
<div id="plot" style="width:100%;height:95vh;"></div>
<script>
var points = {{.Points}};
Plotly.newPlot("plot", [{
    type: "scatter3d",
    mode: "markers",
    x: points.x,
    y: points.y,
    z: points.z,
    text: points.labels,
    marker: {
        size: 3,
        opacity: 0.7,
        color: points.cluster,
        colorscale: "Portland",
        colorbar: {title: "Cluster ID"}
    }
}], {
    title: {{.Title}},
    scene: {
        xaxis: {title: "UMAP 1"},
        yaxis: {title: "UMAP 2"},
        zaxis: {title: "UMAP 3"}
    }
});
</script>
</body>
</html>
`

type scatterData struct {
	X       []float32 `json:"x"`
	Y       []float32 `json:"y"`
	Z       []float32 `json:"z"`
	Cluster []int     `json:"cluster"`
	Labels  []string  `json:"labels"`
}

// WriteInteractiveHTML renders the projected points as a self-contained 3-D
// scatter page, colored by cluster label.
func WriteInteractiveHTML(path string, points []models.ClusterPoint) error {
	if len(points) == 0 {
		return fmt.Errorf("refusing to render empty point set")
	}

	data := scatterData{
		X:       make([]float32, len(points)),
		Y:       make([]float32, len(points)),
		Z:       make([]float32, len(points)),
		Cluster: make([]int, len(points)),
		Labels:  make([]string, len(points)),
	}
	clusters := map[int]bool{}
	for i, p := range points {
		data.X[i] = p.X
		data.Y[i] = p.Y
		data.Z[i] = p.Z
		data.Cluster[i] = p.Cluster
		data.Labels[i] = filepath.Base(p.Path)
		clusters[p.Cluster] = true
	}

	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode points: %w", err)
	}

	tmpl, err := template.New("scatter").Parse(scatterTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer file.Close()

	return tmpl.Execute(file, map[string]interface{}{
		"Title":  fmt.Sprintf("Interactive 3D UMAP Projection (%d Clusters)", len(clusters)),
		"Points": template.JS(encoded),
	})
}
