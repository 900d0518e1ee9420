package fromgen

import (
	"github.com/dave/jennifer/jen"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/hook"
	"github.com/donutnomad/derivegen/plugin"
)

const generatorName = "from"

// FromParams 定义 @From 注解支持的参数
type FromParams struct {
	Output string `param:"name=output,required=false,default=$FILE_from.go,description=输出文件路径"`
}

// FromGenerator 为结构体与枚举分支生成转换构造函数
type FromGenerator struct {
	plugin.BaseGenerator
}

func NewFromGenerator() *FromGenerator {
	gen := &FromGenerator{
		BaseGenerator: *plugin.NewBaseGeneratorWithParamsStruct(
			generatorName,
			[]string{"From"},
			[]plugin.TargetKind{plugin.TargetStruct, plugin.TargetType, plugin.TargetUnion, plugin.TargetEnum},
			FromParams{},
		),
	}
	gen.SetPriority(20)
	return gen
}

// Generate 执行代码生成
func (g *FromGenerator) Generate(ctx *plugin.GenerateContext) (*plugin.GenerateResult, error) {
	return hook.Generate(ctx, g, "$FILE_from.go", Expand)
}

type (
	container = derive.Container[containerAttrs, fieldAttrs, variantAttrs]
	variant   = derive.Variant[fieldAttrs, variantAttrs]
	field     = derive.Field[fieldAttrs]
)

// Expand 为单个声明生成 From 构造函数
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
	r := newRenderer(cont)
	switch cont.Data.Kind {
	case derive.KindUnion:
		cx.ErrorAt(cont.Name, "deriving from not supported for unions")
		return nil
	case derive.KindEnum:
		return r.enum(cx)
	default:
		return derive.Decls([]jen.Code{r.structFunc()})
	}
}
