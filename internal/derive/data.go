package derive

import (
	"go/ast"
	"strconv"
)

// Style 字段列表的结构分类
type Style int

const (
	StyleStruct  Style = iota + 1 // 具名字段
	StyleTuple                    // 2 个及以上的位置字段
	StyleNewtype                  // 恰好 1 个位置字段
	StyleUnit                     // 没有字段
)

func (s Style) String() string {
	switch s {
	case StyleStruct:
		return "struct"
	case StyleTuple:
		return "tuple"
	case StyleNewtype:
		return "newtype"
	case StyleUnit:
		return "unit"
	default:
		return "unknown"
	}
}

// Layout 声明在 Go 中的底层写法，决定构造表达式的形式
type Layout int

const (
	LayoutStruct  Layout = iota + 1 // struct{...}，构造: T{A: a}
	LayoutArray                     // [N]E，构造: T{a, b}
	LayoutDefined                   // 其他定义类型，构造: T(v)
)

// Member 字段标识：名称或位置下标
type Member struct {
	Name  string
	Index int
}

func (m Member) Named() bool {
	return m.Name != ""
}

func (m Member) String() string {
	if m.Named() {
		return m.Name
	}
	return strconv.Itoa(m.Index)
}

// Field 字段，F 为具体生成器的字段注解类型
type Field[F any] struct {
	Member   Member
	Attrs    F
	Type     ast.Expr
	Original *ast.Field
}

// Variant 枚举的一个分支
type Variant[F, V any] struct {
	Name     *ast.Ident
	Attrs    V
	Style    Style
	Layout   Layout
	Fields   []*Field[F]
	Original *ast.TypeSpec
}

// Kind Data 的种类
type Kind int

const (
	KindStruct Kind = iota + 1
	KindEnum
	KindUnion
)

func (k Kind) String() string {
	switch k {
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindUnion:
		return "union"
	default:
		return "unknown"
	}
}

// Data 声明的结构：Struct(Style, Fields) | Enum(Variants) | Union(Fields)
type Data[F, V any] struct {
	Kind     Kind
	Style    Style  // 仅 KindStruct
	Layout   Layout // 仅 KindStruct
	Fields   []*Field[F]
	Variants []*Variant[F, V]
}

// AllFields 返回所有字段，枚举按分支顺序展开
func (d *Data[F, V]) AllFields() []*Field[F] {
	if d.Kind != KindEnum {
		return d.Fields
	}
	var fields []*Field[F]
	for _, v := range d.Variants {
		fields = append(fields, v.Fields...)
	}
	return fields
}

// Container 解析后的顶层声明，C 为容器级注解类型
type Container[C, F, V any] struct {
	Name       *ast.Ident
	Attrs      C
	Data       Data[F, V]
	TypeParams *ast.FieldList
	Original   *Item
}

// Node 诊断定位用的节点：具名字段指向字段名，其余指向整个字段或类型表达式
func (f *Field[F]) Node() Node {
	if f.Original != nil {
		for _, n := range f.Original.Names {
			if n.Name == f.Member.Name {
				return n
			}
		}
		if f.Original.Pos().IsValid() {
			return f.Original
		}
	}
	return f.Type
}
