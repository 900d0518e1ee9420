package derive

// Symbol 注解关键字
type Symbol string

const (
	Builder Symbol = "builder"
	From    Symbol = "from"
	Skip    Symbol = "skip"
	NoInto  Symbol = "no_into"
	Rename  Symbol = "rename"
	Prefix  Symbol = "prefix"
	Suffix  Symbol = "suffix"
)

func (s Symbol) String() string {
	return string(s)
}

// Attr 至多被赋值一次的注解值，重复赋值记录 duplicate attribute 错误并保留第一次的值
type Attr[T any] struct {
	cx    *Context
	name  Symbol
	node  Node
	value T
	set   bool
}

func NoneAttr[T any](cx *Context, name Symbol) Attr[T] {
	return Attr[T]{cx: cx, name: name}
}

func (a *Attr[T]) Set(node Node, value T) {
	if a.set {
		a.cx.Errorf(node, "duplicate attribute `%s`", a.name)
		return
	}
	a.node = node
	a.value = value
	a.set = true
}

func (a *Attr[T]) SetOpt(node Node, value *T) {
	if value != nil {
		a.Set(node, *value)
	}
}

func (a *Attr[T]) Get() (T, bool) {
	return a.value, a.set
}

func (a *Attr[T]) GetOr(def T) T {
	if !a.set {
		return def
	}
	return a.value
}

// Node 第一次赋值所在的位置
func (a *Attr[T]) Node() Node {
	return a.node
}

// BoolAttr 开关型注解，例如 skip、no_into
type BoolAttr struct {
	Attr[struct{}]
}

func NoneBoolAttr(cx *Context, name Symbol) BoolAttr {
	return BoolAttr{NoneAttr[struct{}](cx, name)}
}

func (b *BoolAttr) SetTrue(node Node) {
	b.Attr.Set(node, struct{}{})
}

func (b *BoolAttr) Get() bool {
	return b.set
}
