package plugin

import (
	"bufio"
	"cmp"
	"context"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/logging"
	"github.com/donutnomad/derivegen/internal/logging/logfields"
	"github.com/donutnomad/derivegen/internal/pkgresolver"
)

var log = logging.Subsys("plugin")

// Scanner 两阶段并行注解扫描器
// 第一阶段：快速文本匹配，找出可能包含注解的文件
// 第二阶段：对匹配的文件进行 AST 解析
type Scanner struct {
	workers int

	// 注解过滤器（可选）
	annotationFilter []string

	// 解析 import 的真实包名，nil 时按路径推断
	resolver *pkgresolver.Resolver
}

// ScannerOption 扫描器选项
type ScannerOption func(*Scanner)

func WithWorkers(n int) ScannerOption {
	return func(s *Scanner) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithAnnotationFilter(annotations ...string) ScannerOption {
	return func(s *Scanner) {
		s.annotationFilter = annotations
	}
}

// WithPackageResolver 替换默认的包名解析器，传入 nil 时不读取磁盘
func WithPackageResolver(r *pkgresolver.Resolver) ScannerOption {
	return func(s *Scanner) {
		s.resolver = r
	}
}

func NewScanner(opts ...ScannerOption) *Scanner {
	s := &Scanner{
		workers:  runtime.NumCPU(),
		resolver: pkgresolver.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// quickMatchRegex 匹配 @Name
var quickMatchRegex = regexp.MustCompile(`@(\w+)`)

// Scan 扫描指定路径
// 支持: ./... ./pkg/... ./pkg /abs/path/... 以及单个 .go 文件
func (s *Scanner) Scan(ctx context.Context, patterns ...string) (*ScanResult, error) {
	allFiles, err := s.collectFiles(patterns)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{PackageConfigs: make(map[string]*PackageConfig)}

	// 第一阶段：快速匹配
	type matchResult struct {
		file    string
		matched bool
		err     error
	}
	matches := parallel(ctx, s.workers, allFiles, func(file string) matchResult {
		ok, err := s.QuickMatchFile(file)
		return matchResult{file: file, matched: ok, err: err}
	})
	var matchedFiles []string
	for _, m := range matches {
		if m.err != nil {
			log.WithError(m.err).WithField(logfields.File, m.file).Warn("读取文件失败，已跳过")
			continue
		}
		if m.matched {
			matchedFiles = append(matchedFiles, m.file)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// 第二阶段：AST 解析
	parsed := parallel(ctx, s.workers, matchedFiles, s.parseFile)
	for _, r := range parsed {
		if r.err != nil {
			log.WithError(r.err).WithField(logfields.File, r.file).Warn("解析文件失败，已跳过")
			continue
		}
		for _, t := range r.targets {
			result.add(t)
		}
		if r.pkgConfig != nil {
			mergePackageConfig(result.PackageConfigs, r.pkgConfig)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, list := range [][]*AnnotatedTarget{result.Structs, result.Types, result.Unions, result.Enums} {
		sortTargets(list)
	}

	log.WithFields(logrus.Fields{
		"files":           len(allFiles),
		"matched":         len(matchedFiles),
		logfields.Targets: len(result.All()),
	}).Debug("扫描完成")

	return result, nil
}

// parallel 使用 workers 个 goroutine 并行处理 inputs，结果顺序与输入一致
// ctx 取消后未开始的任务被跳过，对应结果为零值
func parallel[T, R any](ctx context.Context, workers int, inputs []T, fn func(T) R) []R {
	results := make([]R, len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = 1
	}

	idxCh := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < min(workers, len(inputs)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range idxCh {
				results[idx] = fn(inputs[idx])
			}
		}()
	}

send:
	for i := range inputs {
		select {
		case <-ctx.Done():
			break send
		case idxCh <- i:
		}
	}
	close(idxCh)
	wg.Wait()

	return results
}

func sortTargets(list []*AnnotatedTarget) {
	slices.SortFunc(list, func(a, b *AnnotatedTarget) int {
		if c := cmp.Compare(a.Target.FilePath, b.Target.FilePath); c != 0 {
			return c
		}
		return cmp.Compare(a.Target.Position.Offset, b.Target.Position.Offset)
	})
}

// QuickMatchFile 快速检查文件是否包含注解或 go:derive 指令
// dev 模式也用它判断文件变更是否需要触发生成
func (s *Scanner) QuickMatchFile(filePath string) (bool, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "//") && !strings.HasPrefix(line, "/*") {
			continue
		}
		if strings.Contains(line, directivePrefix) {
			return true, nil
		}
		for _, match := range quickMatchRegex.FindAllStringSubmatch(line, -1) {
			if len(s.annotationFilter) == 0 || slices.Contains(s.annotationFilter, match[1]) {
				return true, nil
			}
		}
	}
	return false, sc.Err()
}

type fileResult struct {
	file      string
	targets   []*AnnotatedTarget
	pkgConfig *PackageConfig
	err       error
}

// parseFile AST 解析单个文件，已生成的文件被忽略
func (s *Scanner) parseFile(filePath string) fileResult {
	r := fileResult{file: filePath}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		r.err = err
		return r
	}
	if ast.IsGenerated(file) {
		return r
	}

	r.pkgConfig = parsePackageConfig(file, filePath)

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, item := range derive.ItemsFromDecl(fset, file, gen) {
			if s.resolver != nil {
				item.PackageName = s.resolver.Func(filepath.Dir(filePath), derive.ImportName)
			}
			annotations := ParseAnnotationsFromDoc(item.Doc()...)
			if len(s.annotationFilter) > 0 {
				annotations = FilterByNames(annotations, s.annotationFilter...)
			}
			if len(annotations) == 0 {
				continue
			}
			r.targets = append(r.targets, &AnnotatedTarget{
				Target: &Target{
					Kind:        KindOf(item),
					Name:        item.Name(),
					PackageName: file.Name.Name,
					FilePath:    filePath,
					Position:    fset.Position(item.Pos()),
					Item:        item,
				},
				Annotations: annotations,
			})
		}
	}
	return r
}

// collectFiles 收集所有需要扫描的文件
func (s *Scanner) collectFiles(patterns []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(path string) {
		if !seen[path] {
			seen[path] = true
			files = append(files, path)
		}
	}

	for _, pattern := range patterns {
		recursive := strings.HasSuffix(pattern, "/...")
		if recursive {
			pattern = strings.TrimSuffix(pattern, "/...")
		}
		if pattern == "" {
			pattern = "."
		}

		absPath, err := filepath.Abs(pattern)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			if strings.HasSuffix(absPath, ".go") {
				add(absPath)
			}
			continue
		}

		err = filepath.WalkDir(absPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path == absPath {
					return nil
				}
				name := d.Name()
				if !recursive || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
					name == "vendor" || name == "testdata" {
					return filepath.SkipDir
				}
				return nil
			}
			if strings.HasSuffix(path, ".go") && !strings.HasSuffix(path, "_test.go") {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

func packageDir(filePath string) string {
	dir := filepath.Dir(filePath)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

// 默认扫描器
var defaultScanner = NewScanner()

func Scan(ctx context.Context, patterns ...string) (*ScanResult, error) {
	return defaultScanner.Scan(ctx, patterns...)
}

const directivePrefix = "go:derive:"

// directiveRegex 匹配 //go:derive: 和 // go:derive:
var directiveRegex = regexp.MustCompile(`go:derive:\s*(.*)`)

// parsePackageConfig 解析包级 go:derive: 配置
//
//	//go:derive: -output `$FILE_derive`
//	// go:derive: plugin:builder -output `builders` plugin:from -output `conversions`
func parsePackageConfig(file *ast.File, filePath string) *PackageConfig {
	var lines []string
	for _, cg := range file.Comments {
		for _, c := range cg.List {
			text := strings.TrimPrefix(c.Text, "//")
			text = strings.TrimPrefix(text, "/*")
			text = strings.TrimSuffix(text, "*/")
			text = strings.TrimSpace(text)
			if m := directiveRegex.FindStringSubmatch(text); len(m) > 1 {
				lines = append(lines, m[1])
			}
		}
	}

	switch len(lines) {
	case 0:
		return nil
	case 1:
		return parseDirectiveLine(lines[0], filePath)
	default:
		log.WithField(logfields.File, filePath).Warn("文件定义了多个 go:derive: 指令，将被忽略")
		return nil
	}
}

// mergePackageConfig 同一包的多个文件各自声明时合并，冲突时后发现的生效
func mergePackageConfig(configs map[string]*PackageConfig, cfg *PackageConfig) {
	existing, ok := configs[cfg.PackageDir]
	if !ok {
		configs[cfg.PackageDir] = cfg
		return
	}
	scoped := log.WithField(logfields.Package, cfg.PackageDir)
	if cfg.DefaultOutput != "" {
		if existing.DefaultOutput != "" && existing.DefaultOutput != cfg.DefaultOutput {
			scoped.Warn("包中存在多个不同的 go:derive 默认输出配置，使用后发现的配置")
		}
		existing.DefaultOutput = cfg.DefaultOutput
	}
	for k, v := range cfg.PluginOutputs {
		if old, ok := existing.PluginOutputs[k]; ok && old != v {
			scoped.WithField(logfields.Generator, k).Warn("插件存在多个不同的输出配置，使用后发现的配置")
		}
		existing.PluginOutputs[k] = v
	}
}

// parseDirectiveLine 解析单行 go:derive: 配置
//
//	-output `xxx`                                         // 默认输出
//	plugin:builder -output `xxx` plugin:from -output `yyy` // 插件特定输出
func parseDirectiveLine(line string, filePath string) *PackageConfig {
	config := &PackageConfig{
		PackageDir:    packageDir(filePath),
		PluginOutputs: make(map[string]string),
	}

	parts := splitDirectiveArgs(strings.TrimSpace(line))
	var currentPlugin string
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		switch {
		case strings.HasPrefix(part, "plugin:"):
			currentPlugin = strings.ToLower(strings.TrimPrefix(part, "plugin:"))
		case part == "-output" && i+1 < len(parts):
			i++
			output := trimQuotes(parts[i])
			if currentPlugin == "" {
				config.DefaultOutput = output
			} else {
				config.PluginOutputs[currentPlugin] = output
			}
		}
	}

	if config.DefaultOutput == "" && len(config.PluginOutputs) == 0 {
		return nil
	}
	return config
}

// splitDirectiveArgs 按空白分割参数，引号内的空白保留
func splitDirectiveArgs(line string) []string {
	var parts []string
	var current strings.Builder
	var quote byte

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote == 0 && (c == '`' || c == '"' || c == '\''):
			quote = c
			current.WriteByte(c)
		case quote != 0 && c == quote:
			quote = 0
			current.WriteByte(c)
		case quote == 0 && (c == ' ' || c == '\t'):
			if current.Len() > 0 {
				parts = append(parts, current.String())
				current.Reset()
			}
		default:
			current.WriteByte(c)
		}
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}
	return parts
}

func trimQuotes(s string) string {
	if len(s) >= 2 {
		switch first, last := s[0], s[len(s)-1]; {
		case first == '`' && last == '`', first == '"' && last == '"', first == '\'' && last == '\'':
			return s[1 : len(s)-1]
		}
	}
	return s
}
