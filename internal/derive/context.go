package derive

import (
	"fmt"
	"go/token"
	"strings"
)

// Diagnostic 单条带源码位置的诊断信息
type Diagnostic struct {
	Pos token.Position `json:"pos"`
	End token.Position `json:"end"`
	Msg string         `json:"msg"`
}

func (d *Diagnostic) Error() string {
	if !d.Pos.IsValid() {
		return d.Msg
	}
	return fmt.Sprintf("%s: %s", d.Pos, d.Msg)
}

// Diagnostics 一次派生调用中收集的全部诊断，合并为一个错误返回
type Diagnostics []*Diagnostic

func (l Diagnostics) Error() string {
	switch len(l) {
	case 0:
		return "no errors"
	case 1:
		return l[0].Error()
	}
	msgs := make([]string, len(l))
	for i, d := range l {
		msgs[i] = d.Error()
	}
	return strings.Join(msgs, "\n")
}

// Unwrap 支持 errors.Is / errors.As 逐条匹配
func (l Diagnostics) Unwrap() []error {
	errs := make([]error, len(l))
	for i, d := range l {
		errs[i] = d
	}
	return errs
}

// Context 收集一次派生调用中的所有错误
//
// 用法:
//
//	cx := derive.NewContext(fset)
//	defer cx.Close()
//	...
//	if err := cx.Check(); err != nil {
//	    return err
//	}
//
// Check 必须且只能调用一次。
type Context struct {
	fset    *token.FileSet
	errs    []*Diagnostic
	checked bool
}

func NewContext(fset *token.FileSet) *Context {
	return &Context{
		fset: fset,
		errs: make([]*Diagnostic, 0),
	}
}

// Fset 位置信息所属的 FileSet
func (cx *Context) Fset() *token.FileSet {
	return cx.fset
}

// ErrorAt 记录一条位于 node 处的错误
func (cx *Context) ErrorAt(node Node, msg string) {
	cx.push(cx.newDiagnostic(node, msg))
}

// Errorf 与 ErrorAt 相同，支持格式化
func (cx *Context) Errorf(node Node, format string, args ...any) {
	cx.ErrorAt(node, fmt.Sprintf(format, args...))
}

// AddError 记录一个已经构造好的错误
func (cx *Context) AddError(err error) {
	if err == nil {
		return
	}
	switch e := err.(type) {
	case *Diagnostic:
		cx.push(e)
	case Diagnostics:
		for _, d := range e {
			cx.push(d)
		}
	default:
		cx.push(&Diagnostic{Msg: err.Error()})
	}
}

// Errors 当前已记录的错误数量
func (cx *Context) Errors() int {
	return len(cx.errs)
}

// Check 消费错误列表：没有错误返回 nil，否则返回合并后的 Diagnostics
func (cx *Context) Check() error {
	if cx.checked {
		panic("derive: context checked twice")
	}
	cx.checked = true

	errs := cx.errs
	cx.errs = nil
	if len(errs) == 0 {
		return nil
	}
	return Diagnostics(errs)
}

// Close 必须在 NewContext 之后 defer 调用。
// 未调用 Check 就丢弃 Context 属于使用错误，直接 panic；
// 如果当前已经在 panic 中，则原样继续抛出。
func (cx *Context) Close() {
	if cx.checked {
		return
	}
	if r := recover(); r != nil {
		panic(r)
	}
	panic("derive: forgot to check for errors")
}

func (cx *Context) push(d *Diagnostic) {
	if cx.checked {
		panic("derive: error recorded after check")
	}
	cx.errs = append(cx.errs, d)
}

// Node 可以定位到源码的对象，ast.Node 满足该接口
type Node interface {
	Pos() token.Pos
	End() token.Pos
}

// Span 手动构造的源码区间
type Span struct {
	From, To token.Pos
}

func (s Span) Pos() token.Pos { return s.From }
func (s Span) End() token.Pos { return s.To }

func (cx *Context) newDiagnostic(node Node, msg string) *Diagnostic {
	d := &Diagnostic{Msg: msg}
	if node == nil || cx.fset == nil {
		return d
	}
	if pos := node.Pos(); pos.IsValid() {
		d.Pos = cx.fset.Position(pos)
	}
	if end := node.End(); end.IsValid() {
		d.End = cx.fset.Position(end)
	}
	return d
}
