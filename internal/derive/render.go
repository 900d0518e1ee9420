package derive

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strconv"
	"strings"

	"github.com/dave/jennifer/jen"

	"github.com/donutnomad/derivegen/internal/utils"
)

// Import 源文件中的一条 import
type Import struct {
	Name  string // 包内引用名
	Path  string
	Alias bool // 是否显式指定了别名
}

// Imports 源文件的 import 表，按引用名索引
type Imports struct {
	byName map[string]*Import
	list   []*Import
}

// FileImports 读取源文件的 import 声明
func FileImports(file *ast.File) *Imports {
	return fileImports(file, ImportName)
}

// Imports 与 FileImports 相同，未写别名的包名由 PackageName 解析
func (it *Item) Imports() *Imports {
	if it.PackageName == nil {
		return FileImports(it.File)
	}
	return fileImports(it.File, it.PackageName)
}

func fileImports(file *ast.File, packageName func(string) string) *Imports {
	im := &Imports{byName: make(map[string]*Import)}
	if file == nil {
		return im
	}
	for _, spec := range file.Imports {
		path, err := strconv.Unquote(spec.Path.Value)
		if err != nil {
			continue
		}
		imp := &Import{Path: path}
		if spec.Name != nil {
			switch spec.Name.Name {
			case "_", ".":
				continue
			}
			imp.Name = spec.Name.Name
			imp.Alias = true
		} else {
			imp.Name = packageName(path)
		}
		im.byName[imp.Name] = imp
		im.list = append(im.list, imp)
	}
	return im
}

// Lookup 根据引用名查找 import
func (im *Imports) Lookup(name string) (*Import, bool) {
	imp, ok := im.byName[name]
	return imp, ok
}

// Register 将源文件的包名与别名登记到生成文件，未使用的包不会出现在输出中
// 包名与路径推断的名字不一致时（目录 gg 中的 package g2）以别名导入，否则格式化时会被当作未使用而删除。
func (im *Imports) Register(f *jen.File) {
	for _, imp := range im.list {
		if imp.Alias || imp.Name != ImportName(imp.Path) {
			f.ImportAlias(imp.Path, imp.Name)
		} else {
			f.ImportName(imp.Path, imp.Name)
		}
	}
}

// ImportName 根据 import 路径推断默认包名
//
//	gopkg.in/yaml.v3             -> yaml
//	github.com/foo/bar/v2        -> bar
//	github.com/mattn/go-runewidth -> runewidth
func ImportName(path string) string {
	parts := strings.Split(path, "/")
	name := parts[len(parts)-1]
	if len(parts) > 1 && isMajorVersion(name) {
		name = parts[len(parts)-2]
	}
	if i := strings.Index(name, ".v"); i > 0 && isMajorVersion(name[i+1:]) {
		name = name[:i]
	}
	name = strings.TrimPrefix(name, "go-")
	name = strings.TrimSuffix(name, "-go")
	name = strings.NewReplacer("-", "", ".", "").Replace(name)
	return name
}

func isMajorVersion(s string) bool {
	if len(s) < 2 || s[0] != 'v' {
		return false
	}
	_, err := strconv.Atoi(s[1:])
	return err == nil
}

// TypeCode 将字段类型表达式转换为 jennifer 代码
// 包限定类型使用源文件中的 import 路径生成 jen.Qual，生成文件因此带上正确的 import。
func TypeCode(file *ast.File, expr ast.Expr) jen.Code {
	return FileImports(file).Type(expr)
}

// Type 见 TypeCode
func (im *Imports) Type(expr ast.Expr) *jen.Statement {
	switch t := expr.(type) {
	case *ast.Ident:
		return jen.Id(t.Name)
	case *ast.SelectorExpr:
		if x, ok := t.X.(*ast.Ident); ok {
			if imp, ok := im.Lookup(x.Name); ok {
				return jen.Qual(imp.Path, t.Sel.Name)
			}
		}
		return im.Type(t.X).Dot(t.Sel.Name)
	case *ast.StarExpr:
		return jen.Op("*").Add(im.Type(t.X))
	case *ast.ParenExpr:
		return jen.Parens(im.Type(t.X))
	case *ast.ArrayType:
		if t.Len == nil {
			return jen.Index().Add(im.Type(t.Elt))
		}
		if _, ok := t.Len.(*ast.Ellipsis); ok {
			return jen.Index(jen.Op("...")).Add(im.Type(t.Elt))
		}
		return jen.Index(im.Type(t.Len)).Add(im.Type(t.Elt))
	case *ast.Ellipsis:
		return jen.Op("...").Add(im.Type(t.Elt))
	case *ast.MapType:
		return jen.Map(im.Type(t.Key)).Add(im.Type(t.Value))
	case *ast.ChanType:
		switch t.Dir {
		case ast.SEND:
			return jen.Chan().Op("<-").Add(im.Type(t.Value))
		case ast.RECV:
			return jen.Op("<-").Chan().Add(im.Type(t.Value))
		default:
			return jen.Chan().Add(im.Type(t.Value))
		}
	case *ast.FuncType:
		return im.signature(jen.Func(), t)
	case *ast.InterfaceType:
		var methods []jen.Code
		if t.Methods != nil {
			for _, m := range t.Methods.List {
				if fn, ok := m.Type.(*ast.FuncType); ok && len(m.Names) > 0 {
					methods = append(methods, im.signature(jen.Id(m.Names[0].Name), fn))
					continue
				}
				methods = append(methods, im.Type(m.Type))
			}
		}
		return jen.Interface(methods...)
	case *ast.StructType:
		var fields []jen.Code
		if t.Fields != nil {
			for _, f := range t.Fields.List {
				tag := ""
				if f.Tag != nil {
					tag = " " + f.Tag.Value
				}
				if len(f.Names) == 0 {
					fields = append(fields, im.Type(f.Type).Id(tag))
					continue
				}
				for _, n := range f.Names {
					fields = append(fields, jen.Id(n.Name).Add(im.Type(f.Type)).Id(tag))
				}
			}
		}
		return jen.Struct(fields...)
	case *ast.IndexExpr:
		return im.Type(t.X).Types(im.Type(t.Index))
	case *ast.IndexListExpr:
		args := make([]jen.Code, len(t.Indices))
		for i, idx := range t.Indices {
			args[i] = im.Type(idx)
		}
		return im.Type(t.X).Types(args...)
	case *ast.UnaryExpr:
		return jen.Op(t.Op.String()).Add(im.Type(t.X))
	case *ast.BinaryExpr:
		return im.Type(t.X).Op(t.Op.String()).Add(im.Type(t.Y))
	case *ast.BasicLit:
		return jen.Id(t.Value)
	default:
		return jen.Id(exprString(expr))
	}
}

func (im *Imports) signature(s *jen.Statement, fn *ast.FuncType) *jen.Statement {
	s = s.Params(im.fieldList(fn.Params)...)
	if fn.Results == nil || len(fn.Results.List) == 0 {
		return s
	}
	if len(fn.Results.List) == 1 && len(fn.Results.List[0].Names) == 0 {
		return s.Add(im.Type(fn.Results.List[0].Type))
	}
	return s.Params(im.fieldList(fn.Results)...)
}

func (im *Imports) fieldList(list *ast.FieldList) []jen.Code {
	var out []jen.Code
	if list == nil {
		return out
	}
	for _, f := range list.List {
		if len(f.Names) == 0 {
			out = append(out, im.Type(f.Type))
			continue
		}
		for _, n := range f.Names {
			out = append(out, jen.Id(n.Name).Add(im.Type(f.Type)))
		}
	}
	return out
}

// TypeParams 泛型参数声明列表，例如 [K comparable, V any]
func (im *Imports) TypeParams(list *ast.FieldList) []jen.Code {
	return im.fieldList(list)
}

// TypeArgs 泛型实例化参数列表，例如 [K, V]
func TypeArgs(list *ast.FieldList) []jen.Code {
	var out []jen.Code
	if list == nil {
		return out
	}
	for _, f := range list.List {
		for _, n := range f.Names {
			out = append(out, jen.Id(n.Name))
		}
	}
	return out
}

// Instance 类型名加上自身的泛型参数: Foo 或 Foo[K, V]
func Instance(name string, list *ast.FieldList) *jen.Statement {
	s := jen.Id(name)
	if args := TypeArgs(list); len(args) > 0 {
		s = s.Types(args...)
	}
	return s
}

// Receiver 由类型名得到接收者变量名: Request -> r
func Receiver(name string) string {
	for _, r := range name {
		if r == '_' {
			break
		}
		return utils.LowerFirst(string(r))
	}
	return "v"
}

func exprString(expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, token.NewFileSet(), expr); err != nil {
		return ""
	}
	return buf.String()
}

// Decls 将多个顶层声明连接为一段代码，声明之间空一行；没有声明时返回 nil
func Decls(decls []jen.Code) jen.Code {
	if len(decls) == 0 {
		return nil
	}
	s := jen.Null()
	for i, d := range decls {
		if i > 0 {
			s.Line().Line()
		}
		s.Add(d)
	}
	return s
}
