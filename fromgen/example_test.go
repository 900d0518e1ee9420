package fromgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/donutnomad/derivegen/buildergen"
	"github.com/donutnomad/derivegen/plugin"
)

func TestGenerate_Example(t *testing.T) {
	dir := t.TempDir()
	data, err := os.ReadFile(filepath.Join("example", "shape.go"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shape.go"), data, 0o644))

	registry := plugin.NewRegistry()
	registry.MustRegister(NewFromGenerator())
	registry.MustRegister(buildergen.NewBuilderGenerator())

	// 统一输出到一个文件，验证多个生成器的合并
	stats, err := plugin.RunWithOptionsAndStats(context.Background(), &plugin.RunOptions{
		Registry: registry,
		Patterns: []string{dir},
		Output:   "derive_gen.go",
	})
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TargetCount)
	assert.Equal(t, 2, stats.FileCount)

	data, err = os.ReadFile(filepath.Join(dir, "derive_gen.go"))
	require.NoError(t, err)
	got := string(data)

	assert.Contains(t, got, "func ShapeFromCircle(v float64) Shape {")
	assert.Contains(t, got, "func ShapeFromRect(w float64, h float64) Shape {")
	assert.Contains(t, got, "func ShapeFromOrigin() Shape {")
	assert.NotContains(t, got, "shapeInternal")
	assert.Contains(t, got, "func SpanFrom(v0 time.Time, v1 time.Time) Span {")
	assert.Contains(t, got, "func EndpointFrom(host string, port int) Endpoint {")
	assert.Contains(t, got, "func (e Endpoint) WithHost(host string) Endpoint {")
	assert.Contains(t, got, "// ================ builder ================")
	assert.Contains(t, got, "// ================ from ================")

	data, err = os.ReadFile(filepath.Join(dir, "shape_units.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "func CelsiusFrom(v float64) Celsius {\n\treturn Celsius(v)\n}")
}
