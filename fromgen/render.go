package fromgen

import (
	"fmt"
	"go/ast"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/utils"
)

// shape 被构造的类型：结构体本身或枚举的一个分支
type shape struct {
	name       string
	typeParams *ast.FieldList
	style      derive.Style
	layout     derive.Layout
	fields     []*field
}

type renderer struct {
	cont    *container
	imports *derive.Imports
}

func newRenderer(cont *container) *renderer {
	return &renderer{
		cont:    cont,
		imports: cont.Original.Imports(),
	}
}

func (r *renderer) structFunc() jen.Code {
	s := shape{
		name:       r.cont.Name.Name,
		typeParams: r.cont.TypeParams,
		style:      r.cont.Data.Style,
		layout:     r.cont.Data.Layout,
		fields:     r.cont.Data.Fields,
	}
	result := derive.Instance(s.name, s.typeParams)
	return r.function(s.name+"From", s.typeParams, result, s)
}

func (r *renderer) enum(cx *derive.Context) jen.Code {
	enum := r.cont.Name.Name
	seen := make(map[string]bool)

	var decls []jen.Code
	for _, v := range r.cont.Data.Variants {
		if v.Attrs.Skip.Get() {
			continue
		}
		name := enum + "From" + variantSuffix(enum, v.Name.Name)
		if seen[name] {
			cx.Errorf(v.Name, "duplicate generated member `%s`", name)
			continue
		}
		seen[name] = true

		s := shape{
			name:       v.Name.Name,
			typeParams: v.Original.TypeParams,
			style:      v.Style,
			layout:     v.Layout,
			fields:     v.Fields,
		}
		typeParams := mergeTypeParams(v.Original.TypeParams, r.cont.TypeParams)
		decls = append(decls, r.function(name, typeParams, derive.Instance(enum, r.cont.TypeParams), s))
	}
	return derive.Decls(decls)
}

// variantSuffix 去掉分支名中与枚举名相同的前缀: Shape/ShapeCircle -> Circle
func variantSuffix(enum, name string) string {
	upper := utils.UpperFirst(name)
	if trimmed := strings.TrimPrefix(upper, utils.UpperFirst(enum)); trimmed != "" {
		return utils.UpperFirst(trimmed)
	}
	return upper
}

// mergeTypeParams 分支的泛型参数在前，枚举中同名的参数只保留分支的声明
func mergeTypeParams(variant, enum *ast.FieldList) *ast.FieldList {
	if enum == nil || len(enum.List) == 0 {
		return variant
	}
	merged := &ast.FieldList{}
	names := make(map[string]bool)
	if variant != nil {
		for _, f := range variant.List {
			merged.List = append(merged.List, f)
			for _, n := range f.Names {
				names[n.Name] = true
			}
		}
	}
	for _, f := range enum.List {
		for _, n := range f.Names {
			if names[n.Name] {
				continue
			}
			names[n.Name] = true
			merged.List = append(merged.List, &ast.Field{Names: []*ast.Ident{n}, Type: f.Type})
		}
	}
	return merged
}

func (r *renderer) function(name string, typeParams *ast.FieldList, result *jen.Statement, s shape) jen.Code {
	params := paramNames(s)

	sig := make([]jen.Code, 0, len(s.fields))
	for i, f := range s.fields {
		sig = append(sig, jen.Id(params[i]).Add(r.imports.Type(f.Type)))
	}

	fn := jen.Commentf("%s 由 %s 的字段构造 %s", name, s.name, s.name).Line().Func().Id(name)
	if tp := r.imports.TypeParams(typeParams); len(tp) > 0 {
		fn = fn.Types(tp...)
	}
	return fn.Params(sig...).Add(result).Block(jen.Return(construct(s, params)))
}

// construct 按声明的底层写法构造值
//
//	type T U          -> T(v)
//	type T [N]E       -> T{v0, v1}
//	type T struct{..} -> T{A: a, B: b}
func construct(s shape, params []string) jen.Code {
	target := derive.Instance(s.name, s.typeParams)
	switch s.layout {
	case derive.LayoutDefined:
		return target.Call(jen.Id(params[0]))
	case derive.LayoutArray:
		values := make([]jen.Code, len(params))
		for i, p := range params {
			values[i] = jen.Id(p)
		}
		return target.Values(values...)
	}
	if s.style == derive.StyleUnit {
		return target.Values()
	}
	values := make([]jen.Code, len(s.fields))
	for i, f := range s.fields {
		values[i] = jen.Id(f.Member.Name).Op(":").Id(params[i])
	}
	return target.Values(values...)
}

// paramNames 具名字段使用小写的字段名，位置字段使用 v 或 v0, v1...
// 与类型名、泛型参数名冲突时追加 Val
func paramNames(s shape) []string {
	reserved := map[string]bool{s.name: true}
	if s.typeParams != nil {
		for _, f := range s.typeParams.List {
			for _, n := range f.Names {
				reserved[n.Name] = true
			}
		}
	}

	names := make([]string, len(s.fields))
	for i, f := range s.fields {
		var p string
		switch {
		case f.Member.Named():
			p = utils.SafeParamName(f.Member.Name)
		case len(s.fields) == 1:
			p = "v"
		default:
			p = fmt.Sprintf("v%d", f.Member.Index)
		}
		for reserved[p] {
			p += "Val"
		}
		reserved[p] = true
		names[i] = p
	}
	return names
}
