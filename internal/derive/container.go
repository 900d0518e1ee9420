package derive

import (
	"go/ast"
	"go/token"
	"strconv"
	"unicode"

	"golang.org/x/tools/go/ast/astutil"
)

// Item 一个待派生的类型声明
//
// 普通声明对应一个 TypeSpec；枚举对应一个类型声明组，
// 组内第一个 TypeSpec 为接口（枚举本身），其余为各个分支:
//
//	// @From
//	type (
//		Shape interface{ isShape() }
//
//		Circle float64
//		Rect   struct{ W, H float64 }
//	)
type Item struct {
	Fset     *token.FileSet
	File     *ast.File
	Decl     *ast.GenDecl
	Spec     *ast.TypeSpec
	Variants []*ast.TypeSpec
	Enum     bool

	// PackageName 解析 import 路径对应的包名，为空时按路径推断
	PackageName func(importPath string) string
}

func (it *Item) Name() string {
	return it.Spec.Name.Name
}

func (it *Item) Exported() bool {
	return it.Spec.Name.IsExported()
}

// Doc 容器级注释组
func (it *Item) Doc() []*ast.CommentGroup {
	var groups []*ast.CommentGroup
	if it.Decl != nil && it.Decl.Doc != nil {
		groups = append(groups, it.Decl.Doc)
	}
	if it.Spec.Doc != nil && (it.Decl == nil || it.Spec.Doc != it.Decl.Doc) {
		groups = append(groups, it.Spec.Doc)
	}
	return groups
}

// Attributes 容器级注解
func (it *Item) Attributes() []*Attribute {
	return ParseAttributes(it.Fset, it.Doc()...)
}

func (it *Item) Pos() token.Pos { return it.Spec.Pos() }
func (it *Item) End() token.Pos { return it.Spec.End() }

// ItemsFromDecl 将一个 type 声明拆分为可派生的条目
// 分组文档带有触发注解（如 @From）且第一个类型为非联合接口的声明组视为枚举，
// 其余每个 TypeSpec 各自成为一个条目。
func ItemsFromDecl(fset *token.FileSet, file *ast.File, decl *ast.GenDecl) []*Item {
	if decl.Tok != token.TYPE || len(decl.Specs) == 0 {
		return nil
	}

	head, _ := decl.Specs[0].(*ast.TypeSpec)
	if head != nil && decl.Lparen.IsValid() && hasTriggerDoc(fset, decl.Doc) && isEnumHead(head) {
		item := &Item{Fset: fset, File: file, Decl: decl, Spec: head, Enum: true}
		for _, spec := range decl.Specs[1:] {
			if ts, ok := spec.(*ast.TypeSpec); ok {
				item.Variants = append(item.Variants, ts)
			}
		}
		return []*Item{item}
	}

	var items []*Item
	for _, spec := range decl.Specs {
		ts, ok := spec.(*ast.TypeSpec)
		if !ok {
			continue
		}
		items = append(items, &Item{
			Fset: fset,
			File: file,
			Decl: decl,
			Spec: ts,
			Enum: isEnumHead(ts),
		})
	}
	return items
}

// hasTriggerDoc 注释中是否有生成器注解，生成器注解以大写字母开头，例如 @Builder
func hasTriggerDoc(fset *token.FileSet, doc *ast.CommentGroup) bool {
	if doc == nil {
		return false
	}
	for _, attr := range ParseAttributes(fset, doc) {
		if attr.Path != "" && unicode.IsUpper(rune(attr.Path[0])) {
			return true
		}
	}
	return false
}

func isEnumHead(spec *ast.TypeSpec) bool {
	iface, ok := spec.Type.(*ast.InterfaceType)
	return ok && !spec.Assign.IsValid() && !IsUnion(iface)
}

// IsUnion 判断接口是否为类型集合联合，例如 interface{ ~int | string }
func IsUnion(iface *ast.InterfaceType) bool {
	if iface.Methods == nil {
		return false
	}
	for _, elem := range iface.Methods.List {
		switch elem.Type.(type) {
		case *ast.BinaryExpr, *ast.UnaryExpr:
			return true
		}
	}
	return false
}

// Schema 各生成器提供的注解提取实现，每个层级一个方法
type Schema[C, V, F any] interface {
	Container(cx *Context, item *Item) C
	Variant(cx *Context, spec *ast.TypeSpec) V
	Field(cx *Context, index int, field *ast.Field) F
}

// FromAST 解析声明并构造 Container
// 声明形式不受支持时记录诊断并返回 nil。无论返回什么，调用方都必须 Check。
func FromAST[C, V, F any](cx *Context, item *Item, schema Schema[C, V, F]) *Container[C, F, V] {
	attrs := schema.Container(cx, item)

	spec := item.Spec
	if spec.Assign.IsValid() {
		cx.ErrorAt(spec, "deriving for type aliases is not supported")
		return nil
	}

	cont := &Container[C, F, V]{
		Name:       spec.Name,
		Attrs:      attrs,
		TypeParams: spec.TypeParams,
		Original:   item,
	}

	switch {
	case item.Enum:
		variants, ok := enumFromAST(cx, item.Variants, schema)
		if !ok {
			return nil
		}
		cont.Data = Data[F, V]{Kind: KindEnum, Variants: variants}
	case IsUnionSpec(spec):
		terms := unionTerms(spec.Type.(*ast.InterfaceType))
		cont.Data = Data[F, V]{
			Kind:   KindUnion,
			Fields: positionalFields(cx, terms, schema),
		}
	default:
		style, layout, fields, ok := structFromAST(cx, spec, schema)
		if !ok {
			return nil
		}
		cont.Data = Data[F, V]{Kind: KindStruct, Style: style, Layout: layout, Fields: fields}
	}
	return cont
}

// IsUnionSpec 声明是否为类型集合联合
func IsUnionSpec(spec *ast.TypeSpec) bool {
	iface, ok := spec.Type.(*ast.InterfaceType)
	return ok && IsUnion(iface)
}

func enumFromAST[C, V, F any](cx *Context, specs []*ast.TypeSpec, schema Schema[C, V, F]) ([]*Variant[F, V], bool) {
	ok := true
	variants := make([]*Variant[F, V], 0, len(specs))
	for _, spec := range specs {
		attrs := schema.Variant(cx, spec)
		if spec.Assign.IsValid() {
			cx.ErrorAt(spec, "deriving for type aliases is not supported")
			ok = false
			continue
		}
		style, layout, fields, fieldsOK := structFromAST(cx, spec, schema)
		if !fieldsOK {
			ok = false
			continue
		}
		variants = append(variants, &Variant[F, V]{
			Name:     spec.Name,
			Attrs:    attrs,
			Style:    style,
			Layout:   layout,
			Fields:   fields,
			Original: spec,
		})
	}
	return variants, ok
}

// MaxArrayElems 数组类型按元素展开为位置字段的最大长度，更长的数组视为 newtype
const MaxArrayElems = 16

// structFromAST 根据字段数量与是否具名确定 Style
func structFromAST[C, V, F any](cx *Context, spec *ast.TypeSpec, schema Schema[C, V, F]) (Style, Layout, []*Field[F], bool) {
	expr := astutil.Unparen(spec.Type)

	switch t := expr.(type) {
	case *ast.StructType:
		fields := namedFields(cx, t.Fields, schema)
		if len(fields) == 0 {
			return StyleUnit, LayoutStruct, fields, true
		}
		return StyleStruct, LayoutStruct, fields, true

	case *ast.ArrayType:
		if t.Len == nil {
			break // 切片
		}
		n, ok := arrayLen(t.Len)
		if !ok {
			cx.Errorf(t.Len, "array length of `%s` must be an integer literal", spec.Name.Name)
			return 0, 0, nil, false
		}
		if n > MaxArrayElems {
			break // 整体作为一个字段
		}
		terms := make([]ast.Expr, n)
		for i := range terms {
			terms[i] = t.Elt
		}
		fields := positionalFields(cx, terms, schema)
		switch n {
		case 0:
			return StyleUnit, LayoutArray, fields, true
		case 1:
			return StyleNewtype, LayoutArray, fields, true
		default:
			return StyleTuple, LayoutArray, fields, true
		}
	}

	return StyleNewtype, LayoutDefined, positionalFields(cx, []ast.Expr{spec.Type}, schema), true
}

func arrayLen(expr ast.Expr) (int, bool) {
	lit, ok := astutil.Unparen(expr).(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	n, err := strconv.ParseInt(lit.Value, 0, 0)
	if err != nil || n < 0 {
		return 0, false
	}
	return int(n), true
}

// namedFields 展开 struct 字段；一个 ast.Field 可能声明多个名字，注解只提取一次
func namedFields[C, V, F any](cx *Context, list *ast.FieldList, schema Schema[C, V, F]) []*Field[F] {
	var fields []*Field[F]
	if list == nil {
		return fields
	}
	index := 0
	for _, f := range list.List {
		names := fieldNames(f)
		if len(names) == 0 {
			continue
		}
		attrs := schema.Field(cx, index, f)
		for _, name := range names {
			fields = append(fields, &Field[F]{
				Member:   Member{Name: name, Index: index},
				Attrs:    attrs,
				Type:     f.Type,
				Original: f,
			})
			index++
		}
	}
	return fields
}

// fieldNames 字段名；嵌入字段以类型名为字段名，空白标识符被忽略
func fieldNames(f *ast.Field) []string {
	if len(f.Names) == 0 {
		if name := EmbeddedName(f.Type); name != "" {
			return []string{name}
		}
		return nil
	}
	names := make([]string, 0, len(f.Names))
	for _, n := range f.Names {
		if n.Name != "_" {
			names = append(names, n.Name)
		}
	}
	return names
}

// EmbeddedName 嵌入字段的隐式字段名
func EmbeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return EmbeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return EmbeddedName(t.X)
	case *ast.IndexListExpr:
		return EmbeddedName(t.X)
	case *ast.ParenExpr:
		return EmbeddedName(t.X)
	default:
		return ""
	}
}

func positionalFields[C, V, F any](cx *Context, types []ast.Expr, schema Schema[C, V, F]) []*Field[F] {
	fields := make([]*Field[F], 0, len(types))
	for i, typ := range types {
		f := &ast.Field{Type: typ}
		fields = append(fields, &Field[F]{
			Member:   Member{Index: i},
			Attrs:    schema.Field(cx, i, f),
			Type:     typ,
			Original: f,
		})
	}
	return fields
}

// unionTerms 展开 A | ~B | C
func unionTerms(iface *ast.InterfaceType) []ast.Expr {
	var terms []ast.Expr
	var walk func(expr ast.Expr)
	walk = func(expr ast.Expr) {
		if bin, ok := expr.(*ast.BinaryExpr); ok && bin.Op == token.OR {
			walk(bin.X)
			walk(bin.Y)
			return
		}
		terms = append(terms, expr)
	}
	for _, elem := range iface.Methods.List {
		if len(elem.Names) > 0 {
			continue
		}
		walk(elem.Type)
	}
	return terms
}

// ItemsFromFile 返回文件中带有任一触发注解（如 @Builder）的条目
func ItemsFromFile(fset *token.FileSet, file *ast.File, triggers ...string) []*Item {
	var items []*Item
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok {
			continue
		}
		for _, item := range ItemsFromDecl(fset, file, gen) {
			if item.HasTrigger(triggers...) {
				items = append(items, item)
			}
		}
	}
	return items
}

// HasTrigger 容器注释中是否存在指定名称的注解
func (it *Item) HasTrigger(names ...string) bool {
	for _, attr := range it.Attributes() {
		for _, name := range names {
			if attr.Path == name {
				return true
			}
		}
	}
	return false
}
