package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/donutnomad/gg"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/sirupsen/logrus"

	"github.com/donutnomad/derivegen/internal/logging/logfields"
	"github.com/donutnomad/derivegen/internal/utils"
)

// Header 所有生成文件的文件头
const Header = "Code generated by derivegen. DO NOT EDIT."

// ErrStale check 模式下磁盘上的文件与生成结果不一致
var ErrStale = errors.New("生成的文件已过期")

// RunOptions 运行选项
type RunOptions struct {
	Registry *Registry
	Patterns []string
	Output   string // 命令行指定的默认输出路径（最低优先级）
	Async    bool   // 是否并发执行生成器
	Check    bool   // 只比较不写入，差异记录在 RunStats.Diffs
	NoOutput bool   // 只执行生成，不写入也不比较
}

// RunStats 运行统计信息
type RunStats struct {
	ScanDuration     time.Duration
	GenerateDuration time.Duration
	TotalDuration    time.Duration
	TargetCount      int
	FileCount        int
	Files            []string          // 写入（或在 check 模式下检查）的文件
	Diffs            map[string]string // check 模式: 路径 -> unified diff
}

// Run 使用默认选项运行
func Run(ctx context.Context, registry *Registry, patterns ...string) error {
	_, err := RunWithOptionsAndStats(ctx, &RunOptions{
		Registry: registry,
		Patterns: patterns,
	})
	return err
}

// RunWithOptionsAndStats 运行代码生成并返回统计信息
// 1. 扫描指定路径的注解
// 2. 将目标分发给对应的生成器
// 3. 执行生成器
// 4. 合并同一文件的输出并写入（或比较）
//
// 返回的错误由 errors.Join 合并，调用方可以逐条展开
func RunWithOptionsAndStats(ctx context.Context, opts *RunOptions) (*RunStats, error) {
	totalStart := time.Now()
	stats := &RunStats{Diffs: make(map[string]string)}

	registry := opts.Registry
	if registry == nil {
		registry = globalRegistry
	}

	annotations := registry.Annotations()
	if len(annotations) == 0 {
		return nil, fmt.Errorf("没有已注册的生成器")
	}

	scanStart := time.Now()
	scanner := NewScanner(WithAnnotationFilter(annotations...))
	result, err := scanner.Scan(ctx, opts.Patterns...)
	if err != nil {
		return nil, fmt.Errorf("扫描失败: %w", err)
	}
	stats.ScanDuration = time.Since(scanStart)
	stats.TargetCount = len(result.All())

	if stats.TargetCount == 0 {
		log.Debug("没有找到任何带注解的目标")
		stats.TotalDuration = time.Since(totalStart)
		return stats, nil
	}
	log.WithFields(logrus.Fields{
		logfields.Targets:  stats.TargetCount,
		logfields.Duration: stats.ScanDuration,
	}).Debug("找到带注解的目标")

	generateStart := time.Now()
	dispatch := registry.DispatchTargets(result)

	// 按优先级排序生成器名称
	genNames := make([]string, 0, len(dispatch))
	for name := range dispatch {
		genNames = append(genNames, name)
	}
	slices.SortFunc(genNames, func(a, b string) int {
		genA, _ := registry.GetByName(a)
		genB, _ := registry.GetByName(b)
		if genA.Priority() != genB.Priority() {
			return genA.Priority() - genB.Priority()
		}
		return strings.Compare(a, b)
	})

	var allErrors []error

	// 先串行解析所有目标的参数，生成器只读取 ParsedParams
	for _, genName := range genNames {
		gen, _ := registry.GetByName(genName)
		allErrors = append(allErrors, parseTargetParams(gen, dispatch[genName])...)
	}

	type genResultItem struct {
		genName string
		result  *GenerateResult
		err     error
	}

	execute := func(genName string) genResultItem {
		gen, _ := registry.GetByName(genName)
		targets := dispatch[genName]
		scoped := log.WithField(logfields.Generator, genName)
		scoped.WithField(logfields.Targets, len(targets)).Debug("执行生成器")

		start := time.Now()
		genResult, err := gen.Generate(&GenerateContext{
			Targets:        targets,
			PackageConfigs: result.PackageConfigs,
			DefaultOutput:  opts.Output,
			Verbose:        log.Logger.IsLevelEnabled(logrus.DebugLevel),
		})
		scoped.WithField(logfields.Duration, time.Since(start)).Debug("生成器执行完成")
		return genResultItem{genName: genName, result: genResult, err: err}
	}

	genResults := make(map[string]*GenerateResult)
	collect := func(item genResultItem) {
		if item.err != nil {
			allErrors = append(allErrors, fmt.Errorf("生成器 %s 执行失败: %w", item.genName, item.err))
			return
		}
		if item.result != nil {
			genResults[item.genName] = item.result
		}
	}

	if opts.Async {
		items := make([]genResultItem, len(genNames))
		var wg sync.WaitGroup
		for i, genName := range genNames {
			i, genName := i, genName
			wg.Add(1)
			go func() {
				defer wg.Done()
				items[i] = execute(genName)
			}()
		}
		wg.Wait()
		for _, item := range items {
			collect(item)
		}
	} else {
		for _, genName := range genNames {
			collect(execute(genName))
		}
	}

	// 按优先级顺序收集输出，按文件分组
	fileDefinitions := make(map[string][]*gg.Generator)
	fileGenNames := make(map[string][]string)
	for _, genName := range genNames {
		genResult, ok := genResults[genName]
		if !ok {
			continue
		}
		for path, def := range genResult.Definitions {
			fileDefinitions[path] = append(fileDefinitions[path], def)
			fileGenNames[path] = append(fileGenNames[path], genName)
		}
		for path, data := range genResult.RawOutputs {
			data, err := renameConflictingImports(data, importNames(fileDefinitions[path]))
			if err != nil {
				allErrors = append(allErrors, fmt.Errorf("解析生成器 %s 的输出 %s 失败: %w", genName, path, err))
				continue
			}
			parsed, err := ParseSourceToGG(data)
			if err != nil {
				allErrors = append(allErrors, fmt.Errorf("解析生成器 %s 的输出 %s 失败: %w", genName, path, err))
				continue
			}
			fileDefinitions[path] = append(fileDefinitions[path], parsed)
			fileGenNames[path] = append(fileGenNames[path], genName)
		}
		allErrors = append(allErrors, genResult.Errors...)
	}

	paths := make([]string, 0, len(fileDefinitions))
	for path := range fileDefinitions {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		merged, err := mergeDefinitionsWithSeparator(fileDefinitions[path], fileGenNames[path])
		if err != nil {
			allErrors = append(allErrors, fmt.Errorf("合并文件 %s 的定义失败: %w", path, err))
			continue
		}
		if err := emit(path, merged.Bytes(), opts, stats); err != nil {
			allErrors = append(allErrors, err)
		}
	}

	if n := len(stats.Diffs); n > 0 {
		allErrors = append(allErrors, fmt.Errorf("%w: %d 个文件需要重新生成", ErrStale, n))
	}

	stats.GenerateDuration = time.Since(generateStart)
	stats.TotalDuration = time.Since(totalStart)

	return stats, errors.Join(allErrors...)
}

// parseTargetParams 将每个目标上属于 gen 的注解参数解析到参数结构体
func parseTargetParams(gen Generator, targets []*AnnotatedTarget) []error {
	var errs []error
	paramDefs := gen.ParamDefs()
	for _, target := range targets {
		params := gen.NewParams()
		if params == nil {
			continue
		}
		if reflect.ValueOf(params).Kind() != reflect.Ptr {
			errs = append(errs, fmt.Errorf("%s: NewParams() 必须返回指针类型, 得到: %T", gen.Name(), params))
			continue
		}
		ann := FindAnnotation(gen, target)
		if ann == nil {
			continue
		}
		if err := ParseAnnotationParams(ann, params, paramDefs); err != nil {
			errs = append(errs, fmt.Errorf("%s: 解析 @%s 参数失败: %w", target.Target.Position, ann.Name, err))
			continue
		}
		target.ParsedParams = reflect.ValueOf(params).Elem().Interface()
	}
	return errs
}

// emit 格式化并写入文件；check 模式只与磁盘内容比较
func emit(path string, src []byte, opts *RunOptions, stats *RunStats) error {
	if opts.NoOutput {
		return nil
	}

	formatted, err := utils.Format(path, src)
	if err != nil {
		if !opts.Check {
			// 仍然写入未格式化的内容，方便定位语法问题
			_ = utils.WriteFormat(path, src)
		}
		return fmt.Errorf("格式化文件 %s 失败: %w", path, err)
	}

	stats.Files = append(stats.Files, path)
	stats.FileCount++

	if opts.Check {
		existing, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("读取文件 %s 失败: %w", path, err)
		}
		if !bytes.Equal(existing, formatted) {
			stats.Diffs[path] = unifiedDiff(path, existing, formatted)
		}
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("创建目录失败: %w", err)
	}
	if err := os.WriteFile(path, formatted, 0o644); err != nil {
		return fmt.Errorf("写入文件 %s 失败: %w", path, err)
	}
	log.WithField(logfields.Output, path).Info("生成文件")
	return nil
}

// unifiedDiff 磁盘内容 -> 生成内容
func unifiedDiff(path string, existing, generated []byte) string {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(existing)),
		B:        difflib.SplitLines(string(generated)),
		FromFile: path,
		ToFile:   path + " (generated)",
		Context:  3,
	})
	if err != nil {
		return err.Error()
	}
	return diff
}

// mergeDefinitionsWithSeparator 合并多个 gg.Generator 定义到一个文件，生成器之间添加分隔符
func mergeDefinitionsWithSeparator(definitions []*gg.Generator, genNames []string) (*gg.Generator, error) {
	if len(definitions) == 0 {
		return nil, fmt.Errorf("没有定义需要合并")
	}

	merged := gg.New()
	merged.SetHeader(Header)

	var pkgName string
	for _, def := range definitions {
		name := def.PackageName()
		if name == "" {
			continue
		}
		if pkgName == "" {
			pkgName = name
		} else if pkgName != name {
			return nil, fmt.Errorf("包名不一致: %s vs %s", pkgName, name)
		}
	}
	if pkgName != "" {
		merged.SetPackage(pkgName)
	}

	// imports 与别名交给 Merge 处理
	for i, def := range definitions {
		if len(definitions) > 1 {
			genName := "unknown"
			if i < len(genNames) {
				genName = genNames[i]
			}
			merged.Body().AddLine()
			merged.Body().AddString(fmt.Sprintf("// ================ %s ================", genName))
			merged.Body().AddLine()
		}
		merged.Merge(def)
	}

	return merged, nil
}

// GetOutputPath 根据注解参数和默认规则计算输出路径
// 优先级：注解参数 > 包级插件配置 > 包级默认配置 > 命令行参数 > 默认文件名
// 模板变量：
//   - $FILE: 源文件名（不含 .go 后缀）
//   - $PACKAGE: 包名
//   - $TYPE: 类型名的蛇形命名
func GetOutputPath(target *Target, ann *Annotation, defaultFileName string, pkgConfig *PackageConfig, pluginName string, cmdOutput string) string {
	output := ann.GetParam("output")
	if output == "" && pkgConfig != nil {
		output = pkgConfig.GetPluginOutput(strings.ToLower(pluginName))
	}
	if output == "" {
		output = cmdOutput
	}
	if output == "" {
		output = defaultFileName
	}
	if output == "" {
		output = "derive_gen.go"
	}

	output = replaceTemplateVars(output, target)
	if !strings.HasSuffix(output, ".go") {
		output += ".go"
	}
	if filepath.IsAbs(output) {
		return output
	}
	return filepath.Join(filepath.Dir(target.FilePath), output)
}

func replaceTemplateVars(template string, target *Target) string {
	fileName := strings.TrimSuffix(filepath.Base(target.FilePath), ".go")
	return strings.NewReplacer(
		"$FILE", fileName,
		"$PACKAGE", target.PackageName,
		"$TYPE", utils.ToSnakeCase(target.Name),
	).Replace(template)
}
