// Package pkgresolver 根据 import 路径找到包的源码目录并读取真实包名
//
// 包名与目录名不一致时（例如目录 gg 中声明 package g2），源文件以 g2.X 引用，
// 生成的代码也必须使用 g2。查找顺序:
//
//   - 标准库: $GOROOT/src
//   - 当前模块内的包，以及 go.mod 中 replace 到本地目录的模块
//   - go.mod require 的模块: $GOMODCACHE/<escaped path>@<version>
package pkgresolver

import (
	"fmt"
	"go/build"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Resolver 并发安全，结果按 (模块根目录, import 路径) 缓存
type Resolver struct {
	goroot   string
	modCache string

	mu      sync.Mutex
	names   map[string]string
	modules map[string]*moduleInfo // key: 源码目录
}

func New() *Resolver {
	return &Resolver{
		goroot:   build.Default.GOROOT,
		modCache: moduleCacheDir(),
		names:    make(map[string]string),
		modules:  make(map[string]*moduleInfo),
	}
}

// PackageName 返回 fromDir 中的源文件以 importPath 导入时的包名
func (r *Resolver) PackageName(fromDir, importPath string) (string, error) {
	if importPath == "" {
		return "", fmt.Errorf("import 路径为空")
	}

	mod := r.module(fromDir)
	key := mod.root + "\x00" + importPath

	r.mu.Lock()
	name, ok := r.names[key]
	r.mu.Unlock()
	if ok {
		return name, nil
	}

	dir, err := r.packageDir(mod, importPath)
	if err != nil {
		return "", err
	}
	name, err = readPackageName(dir)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.names[key] = name
	r.mu.Unlock()
	return name, nil
}

// Func 绑定 fromDir，解析失败时退回 fallback
func (r *Resolver) Func(fromDir string, fallback func(string) string) func(string) string {
	return func(importPath string) string {
		name, err := r.PackageName(fromDir, importPath)
		if err != nil {
			return fallback(importPath)
		}
		return name
	}
}

func (r *Resolver) packageDir(mod *moduleInfo, importPath string) (string, error) {
	if isStdPath(importPath) && r.goroot != "" {
		dir := filepath.Join(r.goroot, "src", filepath.FromSlash(importPath))
		if isDir(dir) {
			return dir, nil
		}
	}
	if dir, ok := mod.localDir(importPath); ok {
		return dir, nil
	}
	if dir, ok := mod.cacheDir(r.modCache, importPath); ok {
		return dir, nil
	}
	return "", fmt.Errorf("找不到包 %s", importPath)
}

// module 返回 dir 所属的模块，没有 go.mod 时返回空模块
func (r *Resolver) module(dir string) *moduleInfo {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if mod, ok := r.modules[abs]; ok {
		return mod
	}
	mod := loadModule(abs)
	r.modules[abs] = mod
	return mod
}

// isStdPath 第一段路径不含点的视为标准库
func isStdPath(importPath string) bool {
	first, _, _ := strings.Cut(importPath, "/")
	return !strings.Contains(first, ".")
}

// readPackageName 读取目录中第一个非测试 Go 文件的 package 声明
func readPackageName(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("读取目录 %s 失败: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(token.NewFileSet(), filepath.Join(dir, name), nil, parser.PackageClauseOnly)
		if err != nil {
			continue
		}
		// 忽略 package documentation 之类的辅助文件
		if f.Name.Name == "main" || f.Name.Name == "documentation" {
			continue
		}
		return f.Name.Name, nil
	}
	return "", fmt.Errorf("目录 %s 中没有 Go 源文件", dir)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func moduleCacheDir() string {
	if dir := os.Getenv("GOMODCACHE"); dir != "" {
		return dir
	}
	gopath := os.Getenv("GOPATH")
	if gopath == "" {
		gopath = build.Default.GOPATH
	}
	if gopath == "" {
		return ""
	}
	return filepath.Join(filepath.SplitList(gopath)[0], "pkg", "mod")
}
