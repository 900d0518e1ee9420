package main

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/tools/imports"

	"github.com/donutnomad/derivegen/internal/config"
	"github.com/donutnomad/derivegen/internal/logging"
	"github.com/donutnomad/derivegen/internal/logging/logfields"
	"github.com/donutnomad/derivegen/internal/report"
	"github.com/donutnomad/derivegen/plugin"
)

var devLog = logging.Subsys("dev")

// devRunner 处理文件变动的核心逻辑
type devRunner struct {
	cfg      config.Config
	registry *plugin.Registry
	watcher  *fsnotify.Watcher
	scanner  *plugin.Scanner
	ctx      context.Context

	// 防抖动相关
	mu          sync.Mutex
	pendingDirs map[string]*time.Timer // key: 包目录路径

	// onDone 每次生成结束后调用
	onDone func(pkgDir string, stats *plugin.RunStats, err error)
}

func newDevRunner(ctx context.Context, cfg config.Config, registry *plugin.Registry) *devRunner {
	return &devRunner{
		cfg:         cfg,
		registry:    registry,
		scanner:     plugin.NewScanner(plugin.WithAnnotationFilter(registry.Annotations()...)),
		ctx:         ctx,
		pendingDirs: make(map[string]*time.Timer),
	}
}

func runDev(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	patterns := args
	if len(patterns) == 0 {
		patterns = cfg.Patterns
	}

	registry := plugin.Global()
	if len(registry.Generators()) == 0 {
		return fmt.Errorf("没有已注册的生成器")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	defer watcher.Close()

	runner := newDevRunner(ctx, cfg, registry)
	runner.watcher = watcher
	runner.onDone = func(pkgDir string, stats *plugin.RunStats, err error) {
		if err != nil {
			var diffs map[string]string
			if stats != nil {
				diffs = stats.Diffs
			}
			_ = report.New(err, diffs).Write(cmd.ErrOrStderr(), cfg.Format)
			return
		}
		if stats != nil && stats.FileCount > 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "生成完成: %s, %d 个文件 (耗时: %v)\n", pkgDir, stats.FileCount, stats.TotalDuration)
		}
	}
	defer runner.stopPending()

	dirs, err := collectWatchDirs(patterns)
	if err != nil {
		return fmt.Errorf("收集监听目录失败: %w", err)
	}
	if len(dirs) == 0 {
		return fmt.Errorf("没有找到需要监听的目录")
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("添加监听目录失败 %s: %w", dir, err)
		}
		devLog.WithField(logfields.Package, dir).Debug("监听目录")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "开发模式已启动，监听 %d 个目录\n按 Ctrl+C 退出\n\n", len(dirs))
	return runner.watchLoop(ctx)
}

// watchLoop 事件处理循环
func (r *devRunner) watchLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			r.handleEvent(event)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			devLog.WithError(err).Warn("监听错误")
		}
	}
}

// handleEvent 处理文件事件，返回是否触发了生成
func (r *devRunner) handleEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return false
	}
	filePath := event.Name
	if !strings.HasSuffix(filePath, ".go") || strings.HasSuffix(filePath, "_test.go") {
		return false
	}

	entry := devLog.WithField(logfields.File, filePath)
	if isGeneratedFile(filePath) {
		return false
	}

	hasAnnotation, err := r.scanner.QuickMatchFile(filePath)
	if err != nil {
		entry.WithError(err).Debug("检查注解失败")
		return false
	}
	if !hasAnnotation {
		entry.Debug("跳过文件（无注解）")
		return false
	}

	if err := checkSyntax(filePath); err != nil {
		entry.WithError(err).Warn("语法错误")
		return false
	}

	r.scheduleGenerate(filepath.Dir(filePath))
	return true
}

// scheduleGenerate 防抖动调度生成
func (r *devRunner) scheduleGenerate(pkgDir string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, exists := r.pendingDirs[pkgDir]; exists {
		timer.Stop()
	}

	r.pendingDirs[pkgDir] = time.AfterFunc(r.cfg.Dev.Debounce, func() {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		r.runGenerate(pkgDir)

		r.mu.Lock()
		delete(r.pendingDirs, pkgDir)
		r.mu.Unlock()
	})
}

func (r *devRunner) stopPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, timer := range r.pendingDirs {
		timer.Stop()
	}
}

// runGenerate 只重新生成变动的包
func (r *devRunner) runGenerate(pkgDir string) {
	devLog.WithField(logfields.Package, pkgDir).Debug("触发代码生成")

	stats, err := plugin.RunWithOptionsAndStats(r.ctx, &plugin.RunOptions{
		Registry: r.registry,
		Patterns: []string{pkgDir},
		Output:   r.cfg.OutputPath(),
		Async:    r.cfg.Async,
	})
	if stats != nil {
		devLog.WithFields(logrus.Fields{
			logfields.Package:  pkgDir,
			logfields.Duration: stats.TotalDuration,
		}).Debug("生成结束")
	}
	if r.onDone != nil {
		r.onDone(pkgDir, stats, err)
	}
}

// checkSyntax 检查文件语法
func checkSyntax(filePath string) error {
	content, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	_, err = imports.Process(filePath, content, &imports.Options{
		Fragment:   true,
		AllErrors:  true,
		Comments:   true,
		FormatOnly: true,
	})
	return err
}

// collectWatchDirs 收集所有需要监听的目录
func collectWatchDirs(patterns []string) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, pattern := range patterns {
		recursive := strings.HasSuffix(pattern, "/...")
		baseDir := strings.TrimSuffix(pattern, "/...")
		if baseDir == "" || baseDir == "." {
			baseDir = "."
		}

		absDir, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(absDir)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			continue
		}
		if !recursive {
			add(absDir)
			continue
		}

		err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			// 跳过隐藏目录、vendor、testdata 以及 _ 开头的目录
			name := d.Name()
			if path != absDir && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") ||
				name == "vendor" || name == "testdata") {
				return filepath.SkipDir
			}
			add(path)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return dirs, nil
}

// isGeneratedFile 文件头带有 "Code generated ... DO NOT EDIT." 标记
func isGeneratedFile(filePath string) bool {
	file, err := parser.ParseFile(token.NewFileSet(), filePath, nil, parser.PackageClauseOnly|parser.ParseComments)
	if err != nil {
		return false
	}
	return ast.IsGenerated(file)
}
