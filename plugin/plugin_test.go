package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/donutnomad/gg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestParseAnnotations(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{
			name:     "simple annotation",
			input:    "// @Builder",
			expected: 1,
		},
		{
			name:     "annotation with params",
			input:    "// @Builder(output=`builders.go`)",
			expected: 1,
		},
		{
			name:     "multiple annotations",
			input:    "// @Builder @From",
			expected: 2,
		},
		{
			name:     "multiline annotations",
			input:    "// @Builder(output=`a.go`)\n// @From(output=`b.go`)",
			expected: 2,
		},
		{
			name:     "no annotation",
			input:    "// This is a comment",
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			annotations := ParseAnnotations(tt.input)
			if len(annotations) != tt.expected {
				t.Errorf("expected %d annotations, got %d", tt.expected, len(annotations))
			}
		})
	}
}

func TestAnnotationParams(t *testing.T) {
	input := "// @Builder(output=`$FILE_builder.go`, Mode=\"fast\", level=3)"
	annotations := ParseAnnotations(input)

	if len(annotations) != 1 {
		t.Fatalf("expected 1 annotation, got %d", len(annotations))
	}

	ann := annotations[0]
	if ann.Name != "Builder" {
		t.Errorf("expected name 'Builder', got '%s'", ann.Name)
	}
	if ann.GetParam("output") != "$FILE_builder.go" {
		t.Errorf("expected output '$FILE_builder.go', got '%s'", ann.GetParam("output"))
	}
	// 参数名统一为小写
	if ann.GetParam("mode") != "fast" {
		t.Errorf("expected mode 'fast', got '%s'", ann.GetParam("mode"))
	}
	if ann.GetParamOr("level", "1") != "3" {
		t.Errorf("expected level '3', got '%s'", ann.GetParam("level"))
	}
	if ann.GetParamOr("missing", "x") != "x" {
		t.Error("expected default value for missing param")
	}
	if !ann.HasParam("output") || ann.HasParam("missing") {
		t.Error("HasParam mismatch")
	}

	var nilAnn *Annotation
	if nilAnn.GetParam("output") != "" {
		t.Error("nil annotation should return empty param")
	}
}

func TestFilterAndFind(t *testing.T) {
	annotations := ParseAnnotations("// @Builder @builder(prefix = \"With\") @From")

	filtered := FilterByNames(annotations, "Builder", "From")
	assert.Len(t, filtered, 2)
	assert.True(t, HasAnnotation(annotations, "From"))
	assert.False(t, HasAnnotation(annotations, "Setter"))
	assert.Nil(t, GetAnnotation(annotations, "Setter"))

	gen := &testGenerator{BaseGenerator: *NewBaseGenerator("from", []string{"From"}, nil)}
	ann := FindAnnotation(gen, &AnnotatedTarget{Annotations: annotations})
	require.NotNil(t, ann)
	assert.Equal(t, "From", ann.Name)
}

func TestRegistry(t *testing.T) {
	registry := NewRegistry()

	gen1 := &testGenerator{
		BaseGenerator: *NewBaseGenerator("builder", []string{"Builder"}, []TargetKind{TargetStruct}),
	}
	gen2 := &testGenerator{
		BaseGenerator: *NewBaseGenerator("from", []string{"From"}, []TargetKind{TargetStruct, TargetEnum}),
	}
	gen2.SetPriority(10)

	if err := registry.Register(gen1); err != nil {
		t.Fatalf("failed to register gen1: %v", err)
	}
	if err := registry.Register(gen2); err != nil {
		t.Fatalf("failed to register gen2: %v", err)
	}

	if !registry.IsRegistered("Builder") || !registry.IsRegistered("From") {
		t.Error("Builder and From should be registered")
	}

	// 注解已被绑定
	gen3 := &testGenerator{
		BaseGenerator: *NewBaseGenerator("builder2", []string{"Builder"}, []TargetKind{TargetStruct}),
	}
	if err := registry.Register(gen3); err == nil {
		t.Error("should fail when registering duplicate annotation")
	}

	// 生成器重名
	gen4 := &testGenerator{
		BaseGenerator: *NewBaseGenerator("builder", []string{"Other"}, nil),
	}
	if err := registry.Register(gen4); err == nil {
		t.Error("should fail when registering duplicate generator name")
	}

	if gen, ok := registry.GetByAnnotation("Builder"); !ok || gen.Name() != "builder" {
		t.Error("should get builder by annotation Builder")
	}
	if _, ok := registry.GetByName("from"); !ok {
		t.Error("should get generator by name")
	}

	names := []string{}
	for _, g := range registry.Generators() {
		names = append(names, g.Name())
	}
	assert.Equal(t, []string{"from", "builder"}, names)
	assert.Equal(t, []string{"Builder", "From"}, registry.Annotations())

	assert.Panics(t, func() { registry.MustRegister(gen3) })
}

func TestRegistry_DispatchTargets(t *testing.T) {
	ctrl := gomock.NewController(t)

	gen := NewMockGenerator(ctrl)
	gen.EXPECT().Name().Return("builder").AnyTimes()
	gen.EXPECT().Annotations().Return([]string{"Builder", "B"}).AnyTimes()
	gen.EXPECT().SupportedTargets().Return([]TargetKind{TargetStruct, TargetType}).AnyTimes()

	registry := NewRegistry()
	require.NoError(t, registry.Register(gen))

	target := func(kind TargetKind, anns ...string) *AnnotatedTarget {
		at := &AnnotatedTarget{Target: &Target{Kind: kind}}
		for _, a := range anns {
			at.Annotations = append(at.Annotations, &Annotation{Name: a})
		}
		return at
	}
	result := &ScanResult{
		Structs: []*AnnotatedTarget{target(TargetStruct, "Builder", "B")},
		Types:   []*AnnotatedTarget{target(TargetType, "Unknown")},
		Enums:   []*AnnotatedTarget{target(TargetEnum, "Builder")},
	}

	dispatch := registry.DispatchTargets(result)
	require.Len(t, dispatch, 1)
	// 同一目标的两个注解只分发一次，不支持的目标类型不分发
	assert.Equal(t, []*AnnotatedTarget{result.Structs[0]}, dispatch["builder"])
}

func TestRunWithMockGenerator(t *testing.T) {
	tmpDir := t.TempDir()
	src := "package demo\n\n// @Demo\ntype A struct{}\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte(src), 0o644))

	ctrl := gomock.NewController(t)
	gen := NewMockGenerator(ctrl)
	gen.EXPECT().Name().Return("demo").AnyTimes()
	gen.EXPECT().Annotations().Return([]string{"Demo"}).AnyTimes()
	gen.EXPECT().SupportedTargets().Return([]TargetKind{TargetStruct}).AnyTimes()
	gen.EXPECT().Priority().Return(100).AnyTimes()
	gen.EXPECT().ParamDefs().Return(nil).AnyTimes()
	gen.EXPECT().NewParams().Return(nil).AnyTimes()
	gen.EXPECT().Generate(gomock.Any()).DoAndReturn(func(ctx *GenerateContext) (*GenerateResult, error) {
		if len(ctx.Targets) != 1 || ctx.Targets[0].Target.Name != "A" {
			t.Errorf("unexpected targets: %v", ctx.Targets)
		}
		return nil, errors.New("boom")
	})

	registry := NewRegistry()
	registry.MustRegister(gen)

	err := Run(context.Background(), registry, tmpDir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "生成器 demo 执行失败: boom")
}

func TestScanner(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.go")
	content := `package test

// @Builder(output=` + "`b.go`" + `)
type User struct {
	ID   uint
	Name string
}

// @From
type Celsius float64

// @From
type Number interface{ ~int | ~float64 }

// Shape 图形
// @From
type (
	Shape interface{ isShape() }
	Circle float64
	Rect   struct{ W, H float64 }
)

// @From
type Alias = User

// @Builder
func NotAType() {}
`
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	scanner := NewScanner()
	result, err := scanner.Scan(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if len(result.Structs) != 1 {
		t.Errorf("expected 1 struct, got %d", len(result.Structs))
	}
	if len(result.Types) != 2 {
		t.Errorf("expected 2 types (Celsius, Alias), got %d", len(result.Types))
	}
	if len(result.Unions) != 1 {
		t.Errorf("expected 1 union, got %d", len(result.Unions))
	}
	if len(result.Enums) != 1 {
		t.Errorf("expected 1 enum, got %d", len(result.Enums))
	}

	if len(result.Structs) > 0 {
		s := result.Structs[0]
		if s.Target.Name != "User" {
			t.Errorf("expected struct name 'User', got '%s'", s.Target.Name)
		}
		if s.Target.Kind != TargetStruct {
			t.Errorf("expected kind TargetStruct, got %v", s.Target.Kind)
		}
		if s.Target.Position.Line != 4 {
			t.Errorf("expected position line 4, got %d", s.Target.Position.Line)
		}
		ann := GetAnnotation(s.Annotations, "Builder")
		if ann == nil {
			t.Error("expected Builder annotation")
		} else if ann.GetParam("output") != "b.go" {
			t.Errorf("expected output 'b.go', got '%s'", ann.GetParam("output"))
		}
	}

	if len(result.Enums) > 0 {
		e := result.Enums[0]
		if e.Target.Name != "Shape" || len(e.Target.Item.Variants) != 2 {
			t.Errorf("expected enum Shape with 2 variants, got %s", e.Target.Name)
		}
	}

	if len(result.ByAnnotation("From")) != 4 {
		t.Errorf("expected 4 From targets, got %d", len(result.ByAnnotation("From")))
	}
}

func TestScannerWithFilter(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "test.go")
	content := `package test

// @Builder
type User struct {}

// @Mapper
type Order struct {}
`
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "plain.go"), []byte("package test\n"), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	scanner := NewScanner(WithAnnotationFilter("Builder"), WithWorkers(2))
	result, err := scanner.Scan(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}

	if len(result.Structs) != 1 {
		t.Errorf("expected 1 struct with Builder annotation, got %d", len(result.Structs))
	}

	matched, err := scanner.QuickMatchFile(filepath.Join(tmpDir, "plain.go"))
	if err != nil || matched {
		t.Errorf("plain.go should not match: %v %v", matched, err)
	}
}

func TestScannerRecursive(t *testing.T) {
	tmpDir := t.TempDir()
	for _, dir := range []string{"sub", "testdata", "_skip", ".hidden", "vendor"} {
		if err := os.MkdirAll(filepath.Join(tmpDir, dir), 0755); err != nil {
			t.Fatalf("failed to create subdir: %v", err)
		}
		src := "package sub\n// @Builder\ntype SubModel struct {}\n"
		if err := os.WriteFile(filepath.Join(tmpDir, dir, "sub.go"), []byte(src), 0644); err != nil {
			t.Fatalf("failed to write sub file: %v", err)
		}
	}

	rootContent := "package root\n// @Builder\ntype RootModel struct {}\n"
	if err := os.WriteFile(filepath.Join(tmpDir, "root.go"), []byte(rootContent), 0644); err != nil {
		t.Fatalf("failed to write root file: %v", err)
	}
	// 测试文件与生成文件不参与扫描
	if err := os.WriteFile(filepath.Join(tmpDir, "root_test.go"), []byte(rootContent), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
	generated := "// Code generated by derivegen. DO NOT EDIT.\n\n" + strings.Replace(rootContent, "RootModel", "GenModel", 1)
	if err := os.WriteFile(filepath.Join(tmpDir, "gen.go"), []byte(generated), 0644); err != nil {
		t.Fatalf("failed to write generated file: %v", err)
	}

	scanner := NewScanner()
	result, err := scanner.Scan(context.Background(), tmpDir+"/...")
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Structs) != 2 {
		t.Errorf("expected 2 structs, got %d", len(result.Structs))
	}

	// 非递归只扫描根目录
	result, err = scanner.Scan(context.Background(), tmpDir)
	if err != nil {
		t.Fatalf("scan failed: %v", err)
	}
	if len(result.Structs) != 1 {
		t.Errorf("expected 1 struct, got %d", len(result.Structs))
	}
}

func TestScanner_Cancelled(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte("package a\n// @Builder\ntype A struct{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner().Scan(ctx, tmpDir)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_ResolvesPackageNames(t *testing.T) {
	root := t.TempDir()
	files := map[string]string{
		"go.mod":               "module example.com/app\n\ngo 1.22\n",
		"internal/gg/gg.go":    "package g2\n\ntype Thing struct{}\n",
		"model/model.go":       "package model\n\nimport \"example.com/app/internal/gg\"\n\n// @Builder\ntype Box struct {\n\tthing g2.Thing\n}\n",
		"model/model_other.go": "package model\n",
	}
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	result, err := NewScanner().Scan(context.Background(), filepath.Join(root, "model"))
	require.NoError(t, err)
	require.Len(t, result.Structs, 1)

	item := result.Structs[0].Target.Item
	imp, ok := item.Imports().Lookup("g2")
	require.True(t, ok)
	assert.Equal(t, "example.com/app/internal/gg", imp.Path)

	// 不读取磁盘时按路径推断为 gg
	result, err = NewScanner(WithPackageResolver(nil)).Scan(context.Background(), filepath.Join(root, "model"))
	require.NoError(t, err)
	_, ok = result.Structs[0].Target.Item.Imports().Lookup("g2")
	assert.False(t, ok)
}

func TestPackageConfig(t *testing.T) {
	tmpDir := t.TempDir()
	a := "// go:derive: -output `derive_gen.go` plugin:from -output `$TYPE_from.go`\npackage demo\n\n// @Demo\ntype HTTPServer struct{}\n"
	b := "package demo\n\n// @Demo(output=`explicit.go`)\ntype Other struct{}\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.go"), []byte(a), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.go"), []byte(b), 0o644))

	result, err := NewScanner().Scan(context.Background(), tmpDir)
	require.NoError(t, err)
	require.Len(t, result.Structs, 2)

	ctx := &GenerateContext{PackageConfigs: result.PackageConfigs}
	server, other := result.Structs[0], result.Structs[1]
	cfg := ctx.GetPackageConfig(server.Target)
	require.NotNil(t, cfg)
	assert.Equal(t, "derive_gen.go", cfg.DefaultOutput)
	assert.Equal(t, "$TYPE_from.go", cfg.GetPluginOutput("from"))
	assert.Equal(t, "derive_gen.go", cfg.GetPluginOutput("builder"))

	ann := GetAnnotation(server.Annotations, "Demo")
	assert.Equal(t, filepath.Join(tmpDir, "http_server_from.go"),
		GetOutputPath(server.Target, ann, "$FILE_x.go", cfg, "From", ""))
	assert.Equal(t, filepath.Join(tmpDir, "derive_gen.go"),
		GetOutputPath(server.Target, ann, "$FILE_x.go", cfg, "builder", "cmd.go"))
	assert.Equal(t, filepath.Join(tmpDir, "a_x.go"),
		GetOutputPath(server.Target, ann, "$FILE_x.go", nil, "builder", ""))
	assert.Equal(t, filepath.Join(tmpDir, "cmd.go"),
		GetOutputPath(server.Target, ann, "$FILE_x.go", nil, "builder", "cmd"))

	ann = GetAnnotation(other.Annotations, "Demo")
	assert.Equal(t, filepath.Join(tmpDir, "explicit.go"),
		GetOutputPath(other.Target, ann, "$FILE_x.go", cfg, "from", ""))
}

func TestParseDirectiveLine(t *testing.T) {
	cfg := parseDirectiveLine("plugin:Builder -output \"my builders.go\" plugin:from -output 'f.go'", "/x/y.go")
	require.NotNil(t, cfg)
	assert.Equal(t, "", cfg.DefaultOutput)
	assert.Equal(t, map[string]string{"builder": "my builders.go", "from": "f.go"}, cfg.PluginOutputs)

	assert.Nil(t, parseDirectiveLine("plugin:builder", "/x/y.go"))
}

// testGenerator 测试用生成器
type testGenerator struct {
	BaseGenerator
}

func (g *testGenerator) Generate(ctx *GenerateContext) (*GenerateResult, error) {
	return NewGenerateResult(), nil
}

// ggTestGenerator 测试 gg 定义返回的生成器
type ggTestGenerator struct {
	BaseGenerator
}

func (g *ggTestGenerator) Generate(ctx *GenerateContext) (*GenerateResult, error) {
	result := NewGenerateResult()

	for _, target := range ctx.Targets {
		gen := gg.New()
		gen.SetPackage(target.Target.PackageName)

		gen.Body().NewFunction("Describe"+target.Target.Name).
			AddResult("", "string").
			AddBody(gg.Return(gg.Lit("describing " + target.Target.Name)))

		dir := filepath.Dir(target.Target.FilePath)
		outputPath := filepath.Join(dir, strings.ToLower(target.Target.Name)+"_describe.go")
		result.AddDefinition(outputPath, gen)
	}

	return result, nil
}

func TestGeneratorWithGGDefinition(t *testing.T) {
	tmpDir := t.TempDir()

	testFile := filepath.Join(tmpDir, "model.go")
	content := `package test

// @Describe
type User struct {
	ID   uint
	Name string
}

// @Describe
type Order struct {
	ID     uint
	Amount float64
}
`
	if err := os.WriteFile(testFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	registry := NewRegistry()
	gen := &ggTestGenerator{
		BaseGenerator: *NewBaseGenerator("describe", []string{"Describe"}, []TargetKind{TargetStruct}),
	}
	if err := registry.Register(gen); err != nil {
		t.Fatalf("failed to register generator: %v", err)
	}

	stats, err := RunWithOptionsAndStats(context.Background(), &RunOptions{
		Registry: registry,
		Patterns: []string{tmpDir},
		Async:    true,
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if stats.TargetCount != 2 || stats.FileCount != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	userFile := filepath.Join(tmpDir, "user_describe.go")
	if _, err := os.Stat(userFile); os.IsNotExist(err) {
		t.Errorf("expected file %s to exist", userFile)
	} else {
		content, _ := os.ReadFile(userFile)
		if !strings.Contains(string(content), "DescribeUser") {
			t.Errorf("expected DescribeUser function in generated file")
		}
		if !strings.Contains(string(content), "Code generated by derivegen") {
			t.Errorf("expected header comment in generated file")
		}
	}

	// check 模式: 修改磁盘内容后应报告差异
	if err := os.WriteFile(userFile, []byte("package test\n"), 0644); err != nil {
		t.Fatal(err)
	}
	stats, err = RunWithOptionsAndStats(context.Background(), &RunOptions{
		Registry: registry,
		Patterns: []string{tmpDir},
		Check:    true,
	})
	if !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
	if diff := stats.Diffs[userFile]; !strings.Contains(diff, "+func DescribeUser() string {") {
		t.Errorf("unexpected diff:\n%s", diff)
	}
	if len(stats.Diffs) != 1 {
		t.Errorf("expected 1 stale file, got %d", len(stats.Diffs))
	}
}
