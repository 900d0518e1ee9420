package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pointModel = `package model

// @Builder
// @From
type Point struct {
	x int
	y int
}
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_GenerateAndCheck(t *testing.T) {
	color.NoColor = true

	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "derivegen.toml")
	writeFile(t, cfgPath, "output = \"derive_gen.go\"\nasync = false\n")
	writeFile(t, filepath.Join(dir, "model.go"), pointModel)

	stdout, _, err := execute(t, "--config", cfgPath, "--check=false", dir)
	require.NoError(t, err)
	assert.Contains(t, stdout, "统计: 扫描 1 个目标, 生成 1 个文件")

	data, err := os.ReadFile(filepath.Join(dir, "derive_gen.go"))
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, "DO NOT EDIT")
	assert.Contains(t, got, "// ================ builder ================")
	assert.Contains(t, got, "func (p Point) X(x int) Point {")
	assert.Contains(t, got, "func (p Point) Y(y int) Point {")
	assert.Contains(t, got, "// ================ from ================")
	assert.Contains(t, got, "func PointFrom(x int, y int) Point {")

	// 未修改时 check 通过
	_, _, err = execute(t, "--config", cfgPath, "gen", "--check", dir)
	require.NoError(t, err)

	// 新增字段后 check 失败并输出 diff
	writeFile(t, filepath.Join(dir, "model.go"), pointModel[:len(pointModel)-2]+"\tz int\n}\n")
	_, stderr, err := execute(t, "--config", cfgPath, "gen", "--check", dir)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, "需要重新生成")
	assert.Contains(t, stderr, "+func (p Point) Z(z int) Point {")

	data, err = os.ReadFile(filepath.Join(dir, "derive_gen.go"))
	require.NoError(t, err)
	assert.Equal(t, got, string(data), "check 模式不写入文件")
}

func TestRootCommand_JSONDiagnostics(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(t.TempDir(), "derivegen.toml")
	writeFile(t, cfgPath, "format = \"text\"\n")
	writeFile(t, filepath.Join(dir, "bad.go"), "package bad\n\n// @Builder\ntype Unit struct{}\n")

	_, stderr, err := execute(t, "--config", cfgPath, "--check=false", "--format", "json", dir)
	require.ErrorIs(t, err, errReported)
	assert.Contains(t, stderr, `"msg": "deriving builder pattern not supported for unit structs"`)
	assert.Contains(t, stderr, `"Line": 4`)
	assert.NoFileExists(t, filepath.Join(dir, "derive_gen.go"))
}

func TestRootCommand_BadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "derivegen.toml")
	writeFile(t, cfgPath, "format = \"xml\"\n")

	_, _, err := execute(t, "--config", cfgPath, "--check=false", "--format", "text", t.TempDir())
	require.Error(t, err)
	assert.NotErrorIs(t, err, errReported)
}

func TestLongHelp(t *testing.T) {
	help := longHelp()
	assert.Contains(t, help, "@Builder - builder")
	assert.Contains(t, help, "@From - from")
	assert.Contains(t, help, "@from(skip)")
}
