package fromgen

import (
	"go/ast"

	"github.com/donutnomad/derivegen/internal/derive"
)

// containerAttrs 容器级不读取任何 key
type containerAttrs struct{}

// variantAttrs @from(skip)
type variantAttrs struct {
	Skip derive.BoolAttr
}

type fieldAttrs struct{}

type schema struct{}

func (schema) Container(*derive.Context, *derive.Item) containerAttrs {
	return containerAttrs{}
}

func (schema) Variant(cx *derive.Context, spec *ast.TypeSpec) variantAttrs {
	attrs := variantAttrs{Skip: derive.NoneBoolAttr(cx, derive.Skip)}
	derive.ParseNested(cx, derive.ParseAttributes(cx.Fset(), spec.Doc, spec.Comment), derive.From, func(meta *derive.Meta) error {
		if !meta.Is(derive.Skip) {
			return meta.Unknown(derive.From, "variant")
		}
		if err := meta.Flag(derive.Skip); err != nil {
			return err
		}
		attrs.Skip.SetTrue(meta)
		return nil
	})
	return attrs
}

func (schema) Field(cx *derive.Context, _ int, field *ast.Field) fieldAttrs {
	derive.ParseNested(cx, derive.ParseAttributes(cx.Fset(), field.Doc, field.Comment), derive.From, func(meta *derive.Meta) error {
		return meta.Unknown(derive.From, "field")
	})
	return fieldAttrs{}
}
