package pkgresolver

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/module"
)

type moduleInfo struct {
	root     string // 包含 go.mod 的目录，找不到时为空
	path     string
	requires map[string]string // 模块路径 -> 版本
	replaces map[string]module.Version
}

// loadModule 从 dir 向上查找 go.mod
func loadModule(dir string) *moduleInfo {
	for d := dir; ; {
		data, err := os.ReadFile(filepath.Join(d, "go.mod"))
		if err == nil {
			return parseModule(d, data)
		}
		parent := filepath.Dir(d)
		if parent == d {
			return &moduleInfo{}
		}
		d = parent
	}
}

func parseModule(root string, data []byte) *moduleInfo {
	mod := &moduleInfo{
		root:     root,
		requires: make(map[string]string),
		replaces: make(map[string]module.Version),
	}
	name := filepath.Join(root, "go.mod")
	// ParseLax 不保留 replace，只在严格解析失败时使用
	f, err := modfile.Parse(name, data, nil)
	if err != nil {
		f, err = modfile.ParseLax(name, data, nil)
	}
	if err != nil {
		mod.path = modfile.ModulePath(data)
		return mod
	}
	if f.Module != nil {
		mod.path = f.Module.Mod.Path
	}
	for _, req := range f.Require {
		mod.requires[req.Mod.Path] = req.Mod.Version
	}
	for _, rep := range f.Replace {
		mod.replaces[rep.Old.Path] = rep.New
	}
	return mod
}

// localDir 当前模块内的包，或 replace 到本地目录的模块
func (m *moduleInfo) localDir(importPath string) (string, bool) {
	if m.root == "" {
		return "", false
	}
	if sub, ok := within(m.path, importPath); ok {
		dir := filepath.Join(m.root, filepath.FromSlash(sub))
		return dir, isDir(dir)
	}
	modPath, sub, ok := owner(importPath, m.replaces)
	if !ok {
		return "", false
	}
	rep := m.replaces[modPath]
	if rep.Version != "" {
		return "", false
	}
	base := rep.Path
	if !filepath.IsAbs(base) {
		base = filepath.Join(m.root, base)
	}
	dir := filepath.Join(base, filepath.FromSlash(sub))
	return dir, isDir(dir)
}

// cacheDir require 的模块在模块缓存中的目录
func (m *moduleInfo) cacheDir(cache, importPath string) (string, bool) {
	if cache == "" || m.root == "" {
		return "", false
	}
	modPath, sub, ok := owner(importPath, m.requires)
	if !ok {
		return "", false
	}
	path, version := modPath, m.requires[modPath]
	if rep, ok := m.replaces[modPath]; ok && rep.Version != "" {
		path, version = rep.Path, rep.Version
	}

	escPath, err := module.EscapePath(path)
	if err != nil {
		return "", false
	}
	escVersion, err := module.EscapeVersion(version)
	if err != nil {
		return "", false
	}
	dir := filepath.Join(cache, filepath.FromSlash(escPath)+"@"+escVersion, filepath.FromSlash(sub))
	return dir, isDir(dir)
}

// owner 找出 importPath 所属的最长模块路径
func owner[V any](importPath string, mods map[string]V) (string, string, bool) {
	best, bestSub := "", ""
	for modPath := range mods {
		if sub, ok := within(modPath, importPath); ok && len(modPath) > len(best) {
			best, bestSub = modPath, sub
		}
	}
	return best, bestSub, best != ""
}

// within importPath 位于 modPath 之下时返回相对路径
func within(modPath, importPath string) (string, bool) {
	if modPath == "" {
		return "", false
	}
	if importPath == modPath {
		return "", true
	}
	if strings.HasPrefix(importPath, modPath+"/") {
		return importPath[len(modPath)+1:], true
	}
	return "", false
}
