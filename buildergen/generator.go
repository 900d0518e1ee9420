package buildergen

import (
	"github.com/dave/jennifer/jen"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/hook"
	"github.com/donutnomad/derivegen/plugin"
)

const generatorName = "builder"

// BuilderParams 定义 @Builder 注解支持的参数
type BuilderParams struct {
	Output string `param:"name=output,required=false,default=$FILE_builder.go,description=输出文件路径"`
}

// BuilderGenerator 为结构体生成链式 setter
type BuilderGenerator struct {
	plugin.BaseGenerator
}

func NewBuilderGenerator() *BuilderGenerator {
	gen := &BuilderGenerator{
		BaseGenerator: *plugin.NewBaseGeneratorWithParamsStruct(
			generatorName,
			[]string{"Builder"},
			[]plugin.TargetKind{plugin.TargetStruct, plugin.TargetType, plugin.TargetUnion, plugin.TargetEnum},
			BuilderParams{},
		),
	}
	gen.SetPriority(10)
	return gen
}

// Generate 执行代码生成
func (g *BuilderGenerator) Generate(ctx *plugin.GenerateContext) (*plugin.GenerateResult, error) {
	return hook.Generate(ctx, g, "$FILE_builder.go", Expand)
}

type container = derive.Container[containerAttrs, fieldAttrs, variantAttrs]

// Expand 为单个声明生成 builder 方法
func Expand(item *derive.Item) (jen.Code, error) {
	cx := derive.NewContext(item.Fset)
	defer cx.Close()

	var code jen.Code
	if cont := derive.FromAST(cx, item, schema{}); cont != nil {
		code = expand(cx, cont)
	}
	if err := cx.Check(); err != nil {
		return nil, err
	}
	return code, nil
}

func expand(cx *derive.Context, cont *container) jen.Code {
	if what := unsupported(cont); what != "" {
		cx.Errorf(cont.Name, "deriving builder pattern not supported for %s", what)
		return nil
	}
	return newBuilder(cont).methods(cx)
}

func unsupported(cont *container) string {
	switch cont.Data.Kind {
	case derive.KindEnum:
		return "enums"
	case derive.KindUnion:
		return "unions"
	}
	switch cont.Data.Style {
	case derive.StyleUnit:
		return "unit structs"
	case derive.StyleNewtype:
		return "newtype structs"
	case derive.StyleTuple:
		return "tuple structs"
	}
	return ""
}
