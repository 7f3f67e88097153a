package reduce_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uncia/histoflow/pkg/reduce"
)

// writeStub creates an executable that ignores the generated script and
// prints canned output, standing in for the python interpreter.
func writeStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python-stub")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0755))
	return path
}

func writeEmbeddings(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "embeddings.csv")
	data := "filename,dim_0,dim_1\na.jpg,0.1,0.2\nb.jpg,0.3,0.4\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	return path
}

func TestReduceParsesRunnerOutput(t *testing.T) {
	stub := writeStub(t, `echo '{"n_clusters":2,"points":[`+
		`{"filename":"a.jpg","x":1.5,"y":2.5,"z":0.5,"cluster":0},`+
		`{"filename":"b.jpg","x":-1,"y":0,"z":3,"cluster":1}]}'`)

	r := reduce.NewWithConfig(reduce.RunnerConfig{Python: stub})

	points, err := r.Reduce(context.Background(), writeEmbeddings(t))
	require.NoError(t, err)
	require.Len(t, points, 2)

	assert.Equal(t, "a.jpg", points[0].Path)
	assert.Equal(t, float32(1.5), points[0].X)
	assert.Equal(t, 0, points[0].Cluster)
	assert.Equal(t, "b.jpg", points[1].Path)
	assert.Equal(t, 1, points[1].Cluster)
}

func TestReduceFailsOnNonzeroExit(t *testing.T) {
	stub := writeStub(t, `echo "boom" >&2; exit 3`)

	r := reduce.NewWithConfig(reduce.RunnerConfig{Python: stub})

	_, err := r.Reduce(context.Background(), writeEmbeddings(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reduction script failed")
}

func TestReduceFailsOnMalformedJSON(t *testing.T) {
	stub := writeStub(t, `echo 'not json at all'`)

	r := reduce.NewWithConfig(reduce.RunnerConfig{Python: stub})

	_, err := r.Reduce(context.Background(), writeEmbeddings(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JSON")
}

func TestReduceFailsOnMissingInput(t *testing.T) {
	r := reduce.NewWithConfig(reduce.RunnerConfig{Python: "python"})

	_, err := r.Reduce(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}
