package plugin

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"strconv"
	"strings"

	"github.com/donutnomad/gg"
)

// ParseSourceToGG 将完整的 Go 源文件转换为 gg.Generator
// 不使用 gg 构造代码的生成器（例如基于 jennifer 渲染的）借此与其他输出合并。
// imports（含别名）被提取出来交给 gg 去重，其余内容原样保留，包括声明之间的注释。
func ParseSourceToGG(source []byte) (*gg.Generator, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("解析源代码失败: %w", err)
	}

	gen := gg.New()
	gen.SetPackage(file.Name.Name)

	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("import 路径 %s 无效: %w", imp.Path.Value, err)
		}
		switch {
		case imp.Name == nil:
			gen.P(path)
		case imp.Name.Name == "_" || imp.Name.Name == ".":
			// 空白导入与点导入不参与合并
		default:
			gen.PAlias(path, imp.Name.Name)
		}
	}

	if body := extractBody(fset, file, source); body != "" {
		gen.Body().Append(gg.String("%s", body))
	}

	return gen, nil
}

// extractBody 返回 package 子句与 import 声明之后的全部源码
func extractBody(fset *token.FileSet, file *ast.File, source []byte) string {
	end := file.Name.End()
	for _, decl := range file.Decls {
		if gen, ok := decl.(*ast.GenDecl); ok && gen.Tok == token.IMPORT {
			end = gen.End()
		}
	}
	offset := fset.Position(end).Offset
	if offset >= len(source) {
		return ""
	}
	return strings.TrimSpace(string(source[offset:]))
}

// importNames 已合并定义中 包名 -> import 路径
func importNames(defs []*gg.Generator) map[string]string {
	names := make(map[string]string)
	for _, def := range defs {
		for _, path := range def.Imports() {
			names[def.P(path).Alias()] = path
		}
	}
	return names
}

// renameConflictingImports 源码中的包名已被其他路径占用时，为该 import 换一个别名并改写引用
// 源码以字符串形式并入 gg，gg 无法改写其中的包引用，只能在解析前处理。
func renameConflictingImports(source []byte, taken map[string]string) ([]byte, error) {
	if len(taken) == 0 {
		return source, nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, parser.ParseComments|parser.SkipObjectResolution)
	if err != nil {
		return nil, fmt.Errorf("解析源代码失败: %w", err)
	}

	used := make(map[string]bool)
	ast.Inspect(file, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok {
			used[id.Name] = true
		}
		return true
	})

	renames := make(map[string]string)
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, fmt.Errorf("import 路径 %s 无效: %w", imp.Path.Value, err)
		}
		name := gg.New().P(path).Alias()
		if imp.Name != nil {
			name = imp.Name.Name
		}
		if owner, ok := taken[name]; !ok || owner == path {
			continue
		}
		alias := name
		for i := 2; taken[alias] != "" || used[alias]; i++ {
			alias = fmt.Sprintf("%s%d", name, i)
		}
		used[alias] = true
		renames[name] = alias
		imp.Name = ast.NewIdent(alias)
	}
	if len(renames) == 0 {
		return source, nil
	}

	ast.Inspect(file, func(n ast.Node) bool {
		if sel, ok := n.(*ast.SelectorExpr); ok {
			if id, ok := sel.X.(*ast.Ident); ok {
				if alias, ok := renames[id.Name]; ok {
					id.Name = alias
				}
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := format.Node(&buf, fset, file); err != nil {
		return nil, fmt.Errorf("输出改写后的源代码失败: %w", err)
	}
	return buf.Bytes(), nil
}
