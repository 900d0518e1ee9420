// Package derivetest 生成器测试用的辅助函数
package derivetest

import (
	"bytes"
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/dave/jennifer/jen"
	"github.com/stretchr/testify/require"

	"github.com/donutnomad/derivegen/internal/derive"
)

// Item 解析源码并返回名为 name 的条目
func Item(t testing.TB, src, name string) *derive.Item {
	t.Helper()

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "input.go", src, parser.ParseComments|parser.SkipObjectResolution)
	require.NoError(t, err)

	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		for _, item := range derive.ItemsFromDecl(fset, file, gen) {
			if item.Name() == name {
				return item
			}
		}
	}
	require.FailNowf(t, "item not found", "%s", name)
	return nil
}

// Render 将代码放入 package example 渲染为格式化后的源码，并登记 item 所在文件的 import
func Render(t testing.TB, item *derive.Item, code jen.Code) string {
	t.Helper()

	f := jen.NewFile("example")
	if item != nil {
		item.Imports().Register(f)
	}
	f.Add(code)
	var buf bytes.Buffer
	require.NoError(t, f.Render(&buf))
	return buf.String()
}

// Messages 取出 derive.Diagnostics 中的全部消息
func Messages(t testing.TB, err error) []string {
	t.Helper()

	var diags derive.Diagnostics
	require.True(t, errors.As(err, &diags), "want derive.Diagnostics, got %T", err)
	msgs := make([]string, len(diags))
	for i, d := range diags {
		msgs[i] = d.Msg
	}
	return msgs
}
