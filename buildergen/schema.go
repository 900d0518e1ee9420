package buildergen

import (
	"go/ast"

	"github.com/donutnomad/derivegen/internal/derive"
)

// containerAttrs @builder(prefix = "...", suffix = "...")
type containerAttrs struct {
	Prefix derive.Attr[string]
	Suffix derive.Attr[string]
}

// variantAttrs 分支上没有可用的 key
type variantAttrs struct{}

// fieldAttrs @builder(skip, no_into, rename = "...")
type fieldAttrs struct {
	Skip   derive.BoolAttr
	NoInto derive.BoolAttr
	Rename derive.Attr[string]
}

type schema struct{}

func (schema) Container(cx *derive.Context, item *derive.Item) containerAttrs {
	attrs := containerAttrs{
		Prefix: derive.NoneAttr[string](cx, derive.Prefix),
		Suffix: derive.NoneAttr[string](cx, derive.Suffix),
	}
	derive.ParseNested(cx, item.Attributes(), derive.Builder, func(meta *derive.Meta) error {
		switch {
		case meta.Is(derive.Prefix):
			s, err := meta.String(derive.Prefix)
			if err != nil {
				return err
			}
			attrs.Prefix.Set(meta, s)
		case meta.Is(derive.Suffix):
			s, err := meta.String(derive.Suffix)
			if err != nil {
				return err
			}
			attrs.Suffix.Set(meta, s)
		default:
			return meta.Unknown(derive.Builder, "container")
		}
		return nil
	})
	return attrs
}

func (schema) Variant(cx *derive.Context, spec *ast.TypeSpec) variantAttrs {
	derive.ParseNested(cx, derive.ParseAttributes(cx.Fset(), spec.Doc, spec.Comment), derive.Builder, func(meta *derive.Meta) error {
		return meta.Unknown(derive.Builder, "variant")
	})
	return variantAttrs{}
}

func (schema) Field(cx *derive.Context, _ int, field *ast.Field) fieldAttrs {
	attrs := fieldAttrs{
		Skip:   derive.NoneBoolAttr(cx, derive.Skip),
		NoInto: derive.NoneBoolAttr(cx, derive.NoInto),
		Rename: derive.NoneAttr[string](cx, derive.Rename),
	}
	derive.ParseNested(cx, derive.ParseAttributes(cx.Fset(), field.Doc, field.Comment), derive.Builder, func(meta *derive.Meta) error {
		switch {
		case meta.Is(derive.Skip):
			if err := meta.Flag(derive.Skip); err != nil {
				return err
			}
			attrs.Skip.SetTrue(meta)
		case meta.Is(derive.NoInto):
			if err := meta.Flag(derive.NoInto); err != nil {
				return err
			}
			attrs.NoInto.SetTrue(meta)
		case meta.Is(derive.Rename):
			s, err := meta.String(derive.Rename)
			if err != nil {
				return err
			}
			attrs.Rename.Set(meta, s)
		default:
			return meta.Unknown(derive.Builder, "field")
		}
		return nil
	})
	return attrs
}
