package buildergen

import (
	"go/ast"
	"go/token"

	"github.com/dave/jennifer/jen"
	"github.com/samber/lo"

	"github.com/donutnomad/derivegen/internal/derive"
	"github.com/donutnomad/derivegen/internal/utils"
)

type field = derive.Field[fieldAttrs]

type builder struct {
	cont     *container
	imports  *derive.Imports
	recv     string
	prefix   string
	suffix   string
	exported bool
}

func newBuilder(cont *container) *builder {
	return &builder{
		cont:     cont,
		imports:  cont.Original.Imports(),
		recv:     derive.Receiver(cont.Name.Name),
		prefix:   cont.Attrs.Prefix.GetOr(""),
		suffix:   cont.Attrs.Suffix.GetOr(""),
		exported: cont.Original.Exported(),
	}
}

func (b *builder) methods(cx *derive.Context) jen.Code {
	fields := b.cont.Data.Fields
	taken := lo.SliceToMap(fields, func(f *field) (string, bool) { return f.Member.Name, true })

	var decls []jen.Code
	for _, f := range fields {
		if f.Attrs.Skip.Get() {
			continue
		}
		name := b.methodName(f)
		if !token.IsIdentifier(name) {
			cx.Errorf(f.Node(), "invalid builder method name `%s`", name)
			continue
		}
		if name != utils.MatchExport(name, b.exported) {
			cx.Errorf(f.Node(), "builder method `%s` must be %s like `%s`", name, visibility(b.exported), b.cont.Name.Name)
			continue
		}
		if taken[name] {
			cx.Errorf(f.Node(), "duplicate generated member `%s`", name)
			continue
		}
		taken[name] = true
		decls = append(decls, b.method(name, f))
	}
	return derive.Decls(decls)
}

// methodName rename 原样使用，否则为 prefix + 字段名 + suffix，首字母与类型的可见性一致
func (b *builder) methodName(f *field) string {
	if name, ok := f.Attrs.Rename.Get(); ok {
		return name
	}
	name := f.Member.Name
	if b.prefix != "" {
		name = b.prefix + utils.UpperFirst(name)
	}
	return utils.MatchExport(name+b.suffix, b.exported)
}

func visibility(exported bool) string {
	if exported {
		return "exported"
	}
	return "unexported"
}

func (b *builder) method(name string, f *field) jen.Code {
	param := utils.SafeParamName(f.Member.Name)
	if param == b.recv {
		param += "Val"
	}
	paramType, value := b.into(f, param)

	self := func() *jen.Statement { return derive.Instance(b.cont.Name.Name, b.cont.TypeParams) }
	return jen.Commentf("%s 设置 %s 并返回修改后的副本", name, f.Member.Name).Line().
		Func().
		Params(jen.Id(b.recv).Add(self())).
		Id(name).
		Params(jen.Id(param).Add(paramType)).
		Add(self()).
		Block(
			jen.Id(b.recv).Dot(f.Member.Name).Op("=").Add(value),
			jen.Return(jen.Id(b.recv)),
		)
}

// into 参数类型与赋值表达式
//
//	*T  -> (v T)    r.f = &v
//	[]T -> (v ...T) r.f = v
func (b *builder) into(f *field, param string) (jen.Code, jen.Code) {
	if !f.Attrs.NoInto.Get() {
		switch t := f.Type.(type) {
		case *ast.StarExpr:
			return b.imports.Type(t.X), jen.Op("&").Id(param)
		case *ast.ArrayType:
			if t.Len == nil {
				return jen.Op("...").Add(b.imports.Type(t.Elt)), jen.Id(param)
			}
		}
	}
	return b.imports.Type(f.Type), jen.Id(param)
}
