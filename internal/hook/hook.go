// Package hook 将 derive 的展开函数接入 plugin.Generator
package hook

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/dave/jennifer/jen"
	"github.com/davecgh/go-spew/spew"
	"github.com/sirupsen/logrus"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/logging"
	"github.com/donutnomad/derivegen/internal/logging/logfields"
	"github.com/donutnomad/derivegen/plugin"
)

var log = logging.Subsys("hook")

// ExpandFunc 展开单个声明
// 返回 nil 代码表示没有可生成的内容；错误通常为 derive.Diagnostics
type ExpandFunc func(item *derive.Item) (jen.Code, error)

// Generate 按输出路径分组展开所有目标，每个输出路径渲染为一个完整的源文件
// defaultFile 为没有任何 output 配置时的文件名模板，例如 "$FILE_builder.go"
func Generate(ctx *plugin.GenerateContext, gen plugin.Generator, defaultFile string, expand ExpandFunc) (*plugin.GenerateResult, error) {
	result := plugin.NewGenerateResult()
	if len(ctx.Targets) == 0 {
		return result, nil
	}

	// key: 输出路径
	files := make(map[string]*jen.File)

	for _, at := range ctx.Targets {
		ann := plugin.FindAnnotation(gen, at)
		if ann == nil || at.Target.Item == nil {
			continue
		}

		path := plugin.GetOutputPath(at.Target, ann, defaultFile, ctx.GetPackageConfig(at.Target), gen.Name(), ctx.DefaultOutput)
		entry := log.WithFields(logrus.Fields{
			logfields.Generator: gen.Name(),
			logfields.Type:      at.Target.Name,
			logfields.Output:    path,
		})
		if ctx.Verbose {
			entry.Debugf("注解参数: %s", spew.Sdump(ann.Params))
		}

		code, err := expand(at.Target.Item)
		if err != nil {
			result.AddError(err)
			continue
		}
		if code == nil {
			entry.Debug("没有可生成的成员，跳过")
			result.Skipped++
			continue
		}

		f, ok := files[path]
		if !ok {
			f = jen.NewFile(at.Target.PackageName)
			files[path] = f
		}
		at.Target.Item.Imports().Register(f)
		f.Add(code)
		f.Line()
		entry.Debug("展开完成")
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	for _, path := range paths {
		var buf bytes.Buffer
		if err := files[path].Render(&buf); err != nil {
			result.AddError(fmt.Errorf("渲染 %s 失败: %w", path, err))
			continue
		}
		result.AddRawOutput(path, buf.Bytes())
	}
	return result, nil
}
