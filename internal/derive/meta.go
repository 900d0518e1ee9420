package derive

import (
	"fmt"
	"go/ast"
	"go/scanner"
	"go/token"
	"strconv"
	"strings"
)

// Attribute 注释中的一个 @name 或 @name(...) 注解
//
//	// @builder(skip, rename = "Value")
type Attribute struct {
	Path    string
	HasArgs bool
	Args    string // 括号内的原始文本

	pos     token.Pos // '@' 的位置
	end     token.Pos
	argsPos token.Pos // 括号内第一个字符的位置
	fset    *token.FileSet
	err     string // 未闭合的括号等结构性问题，只有在命名空间匹配时才报告
}

func (a *Attribute) Pos() token.Pos { return a.pos }
func (a *Attribute) End() token.Pos { return a.end }

// Value 注解值字面量
type Value struct {
	Kind token.Token // STRING, INT, FLOAT, IMAG, CHAR, IDENT
	Text string      // 源码中的原文
	pos  token.Pos
}

func (v *Value) Pos() token.Pos { return v.pos }
func (v *Value) End() token.Pos { return v.pos + token.Pos(len(v.Text)) }

// Meta 注解列表中的一项: key 或 key = literal
type Meta struct {
	Path  string
	Value *Value

	pos  token.Pos
	fset *token.FileSet
}

func (m *Meta) Pos() token.Pos { return m.pos }

func (m *Meta) End() token.Pos {
	if m.Value != nil {
		return m.Value.End()
	}
	return m.pos + token.Pos(len(m.Path))
}

// Is 判断 key 是否为指定关键字（区分大小写）
func (m *Meta) Is(sym Symbol) bool {
	return m.Path == string(sym)
}

// Errorf 构造一条位于 node 处的诊断
func (m *Meta) Errorf(node Node, format string, args ...any) error {
	d := &Diagnostic{Msg: fmt.Sprintf(format, args...)}
	if m.fset != nil && node != nil {
		d.Pos = m.fset.Position(node.Pos())
		d.End = m.fset.Position(node.End())
	}
	return d
}

// String 读取字符串值
func (m *Meta) String(sym Symbol) (string, error) {
	if m.Value == nil {
		return "", m.Errorf(m, "`%s` requires a value", sym)
	}
	if m.Value.Kind != token.STRING {
		return "", m.Errorf(m.Value, "%s must be a string not `%s`", sym, m.Value.Text)
	}
	s, err := strconv.Unquote(m.Value.Text)
	if err != nil {
		return "", m.Errorf(m.Value, "invalid string literal %s", m.Value.Text)
	}
	return s, nil
}

// Flag 开关型关键字不能带值
func (m *Meta) Flag(sym Symbol) error {
	if m.Value != nil {
		return m.Errorf(m, "`%s` does not take a value", sym)
	}
	return nil
}

// Unknown 构造 unknown <ns> <level> attribute 错误
func (m *Meta) Unknown(ns Symbol, level string) error {
	return m.Errorf(m, "unknown %s %s attribute: `%s`", ns, level, m.Path)
}

// ParseAttributes 从注释组中提取所有 @name(...) 注解
func ParseAttributes(fset *token.FileSet, groups ...*ast.CommentGroup) []*Attribute {
	var attrs []*Attribute
	for _, group := range groups {
		if group == nil {
			continue
		}
		for _, c := range group.List {
			attrs = append(attrs, scanComment(fset, c)...)
		}
	}
	return attrs
}

func scanComment(fset *token.FileSet, c *ast.Comment) []*Attribute {
	var attrs []*Attribute
	text := c.Text
	for i := 0; i < len(text); i++ {
		if text[i] != '@' || (i > 0 && isWordByte(text[i-1])) {
			continue
		}
		j := i + 1
		for j < len(text) && isWordByte(text[j]) {
			j++
		}
		if j == i+1 {
			continue
		}

		attr := &Attribute{
			Path: text[i+1 : j],
			pos:  c.Slash + token.Pos(i),
			end:  c.Slash + token.Pos(j),
			fset: fset,
		}
		if j < len(text) && text[j] == '(' {
			attr.HasArgs = true
			attr.argsPos = c.Slash + token.Pos(j+1)
			closing := matchParen(text, j)
			if closing < 0 {
				attr.Args = strings.TrimSuffix(text[j+1:], "*/")
				attr.end = c.Slash + token.Pos(len(text))
				attr.err = fmt.Sprintf("unterminated attribute list `@%s(`", attr.Path)
				j = len(text)
			} else {
				attr.Args = text[j+1 : closing]
				attr.end = c.Slash + token.Pos(closing+1)
				j = closing + 1
			}
		}
		attrs = append(attrs, attr)
		i = j - 1
	}
	return attrs
}

// matchParen 返回与 open 处 '(' 匹配的 ')' 下标，跳过字符串字面量
func matchParen(text string, open int) int {
	depth := 0
	for i := open; i < len(text); i++ {
		switch ch := text[i]; ch {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		case '"', '\'':
			for i++; i < len(text) && text[i] != ch; i++ {
				if text[i] == '\\' {
					i++
				}
			}
		case '`':
			for i++; i < len(text) && text[i] != '`'; i++ {
			}
		}
	}
	return -1
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// ParseNested 所有 schema 共用的扫描循环
// 只处理命名空间为 ns 的注解，其余注解直接忽略（不做语法检查）。
// fn 返回的错误（未知 key、值类型错误）会被记录，随后继续扫描剩余项；
// 语法错误会终止当前注解的扫描。
func ParseNested(cx *Context, attrs []*Attribute, ns Symbol, fn func(meta *Meta) error) {
	for _, attr := range attrs {
		if attr.Path != string(ns) {
			continue
		}
		if attr.err != "" {
			cx.ErrorAt(attr, attr.err)
			continue
		}
		if !attr.HasArgs || strings.TrimSpace(attr.Args) == "" {
			continue
		}

		metas, err := attr.parseList()
		for _, meta := range metas {
			if err := fn(meta); err != nil {
				cx.AddError(err)
			}
		}
		if err != nil {
			cx.AddError(err)
		}
	}
}

// parseList 使用 go/scanner 解析括号内的 key[=literal] 列表
func (a *Attribute) parseList() ([]*Meta, error) {
	src := []byte(a.Args)
	fs := token.NewFileSet()
	file := fs.AddFile("", -1, len(src))

	var s scanner.Scanner
	var scanErr error
	s.Init(file, src, func(pos token.Position, msg string) {
		if scanErr == nil {
			scanErr = a.errorAt(a.argsPos+token.Pos(pos.Offset), msg)
		}
	}, 0)

	toPos := func(p token.Pos) token.Pos {
		return a.argsPos + token.Pos(file.Offset(p))
	}
	next := func() (token.Pos, token.Token, string) {
		pos, tok, lit := s.Scan()
		// 行尾自动插入的分号视为结束
		if tok == token.SEMICOLON && lit == "\n" {
			tok = token.EOF
		}
		return toPos(pos), tok, lit
	}

	var metas []*Meta
	pos, tok, lit := next()
	for tok != token.EOF {
		if scanErr != nil {
			return metas, scanErr
		}
		if tok != token.IDENT {
			return metas, a.errorAt(pos, fmt.Sprintf("expected attribute name, found `%s`", tokenText(tok, lit)))
		}
		meta := &Meta{Path: lit, pos: pos, fset: a.fset}
		metas = append(metas, meta)

		pos, tok, lit = next()
		if tok == token.ASSIGN {
			vpos, vtok, vlit := next()
			sign := ""
			if vtok == token.SUB || vtok == token.ADD {
				sign = vtok.String()
				_, vtok, vlit = next()
			}
			switch vtok {
			case token.STRING, token.INT, token.FLOAT, token.IMAG, token.CHAR, token.IDENT:
				meta.Value = &Value{Kind: vtok, Text: sign + vlit, pos: vpos}
				if sign != "" && (vtok == token.STRING || vtok == token.IDENT) {
					meta.Value.Kind = token.ILLEGAL
				}
			default:
				return metas[:len(metas)-1], a.errorAt(vpos, fmt.Sprintf("expected value after `%s =`", meta.Path))
			}
			pos, tok, lit = next()
		}

		switch tok {
		case token.COMMA:
			pos, tok, lit = next()
		case token.EOF:
		default:
			return metas, a.errorAt(pos, fmt.Sprintf("expected `,`, found `%s`", tokenText(tok, lit)))
		}
	}
	return metas, scanErr
}

func (a *Attribute) errorAt(pos token.Pos, msg string) error {
	d := &Diagnostic{Msg: msg}
	if a.fset != nil {
		d.Pos = a.fset.Position(pos)
		d.End = d.Pos
	}
	return d
}

func tokenText(tok token.Token, lit string) string {
	if lit != "" {
		return lit
	}
	return tok.String()
}
