package derive

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseDoc(t *testing.T, doc string) (*token.FileSet, *ast.CommentGroup) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "doc.go", "package p\n\n"+doc+"\ntype T struct{}\n", parser.ParseComments)
	require.NoError(t, err)
	return fset, file.Decls[0].(*ast.GenDecl).Doc
}

func TestParseAttributes(t *testing.T) {
	fset, doc := parseDoc(t, `// T 描述 user@example.com
// @Builder
// @builder(prefix = "With", suffix = ")") @from(skip)
/* @builder(rename = "X") */`)

	attrs := ParseAttributes(fset, doc)
	require.Len(t, attrs, 4)

	assert.Equal(t, "Builder", attrs[0].Path)
	assert.False(t, attrs[0].HasArgs)

	assert.Equal(t, "builder", attrs[1].Path)
	assert.True(t, attrs[1].HasArgs)
	assert.Equal(t, `prefix = "With", suffix = ")"`, attrs[1].Args)

	assert.Equal(t, "from", attrs[2].Path)
	assert.Equal(t, "skip", attrs[2].Args)

	assert.Equal(t, "builder", attrs[3].Path)
	assert.Equal(t, `rename = "X"`, attrs[3].Args)

	assert.Equal(t, "doc.go:5:4", fset.Position(attrs[1].Pos()).String())
}

func TestParseAttributes_NilGroups(t *testing.T) {
	assert.Empty(t, ParseAttributes(token.NewFileSet(), nil, nil))
}

func collectMetas(t *testing.T, doc string, ns Symbol) ([]*Meta, []string) {
	t.Helper()
	fset, group := parseDoc(t, doc)

	cx := NewContext(fset)
	defer cx.Close()

	var metas []*Meta
	ParseNested(cx, ParseAttributes(fset, group), ns, func(meta *Meta) error {
		metas = append(metas, meta)
		if meta.Is("bad") {
			return meta.Unknown(ns, "field")
		}
		return nil
	})

	var msgs []string
	if err := cx.Check(); err != nil {
		for _, d := range err.(Diagnostics) {
			msgs = append(msgs, d.Msg)
		}
	}
	return metas, msgs
}

func TestParseNested(t *testing.T) {
	metas, msgs := collectMetas(t, `// @builder(skip, rename = "A", limit = -3, bad)
// @other(!!! not parsed)
// @builder
// @builder()`, Builder)

	assert.Equal(t, []string{"unknown builder field attribute: `bad`"}, msgs)
	require.Len(t, metas, 4)
	assert.Equal(t, "skip", metas[0].Path)
	assert.Nil(t, metas[0].Value)
	assert.Equal(t, `"A"`, metas[1].Value.Text)
	assert.Equal(t, token.STRING, metas[1].Value.Kind)
	assert.Equal(t, "-3", metas[2].Value.Text)
	assert.Equal(t, token.INT, metas[2].Value.Kind)
}

func TestParseNested_SyntaxErrors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		metas int
		want  string
	}{
		{"missing comma", `// @builder(skip rename)`, 1, "expected `,`, found `rename`"},
		{"missing value", `// @builder(rename = )`, 0, "expected value after `rename =`"},
		{"bad name", `// @builder("skip")`, 0, "expected attribute name, found `\"skip\"`"},
		{"unterminated", `// @builder(skip`, 0, "unterminated attribute list `@builder(`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metas, msgs := collectMetas(t, tt.doc, Builder)
			assert.Len(t, metas, tt.metas)
			assert.Equal(t, []string{tt.want}, msgs)
		})
	}
}

func TestMeta_Values(t *testing.T) {
	metas, _ := collectMetas(t, `// @builder(flag, name = "x", num = 1, id = -ident)`, Builder)
	require.Len(t, metas, 4)

	assert.NoError(t, metas[0].Flag(Skip))
	_, err := metas[0].String(Rename)
	assert.EqualError(t, err, "doc.go:3:13: `rename` requires a value")

	s, err := metas[1].String(Rename)
	require.NoError(t, err)
	assert.Equal(t, "x", s)
	assert.EqualError(t, metas[1].Flag(Skip), "doc.go:3:19: `skip` does not take a value")

	_, err = metas[2].String(Rename)
	assert.EqualError(t, err, "doc.go:3:37: rename must be a string not `1`")

	// 带符号的标识符不是合法的值
	assert.Equal(t, token.ILLEGAL, metas[3].Value.Kind)
	_, err = metas[3].String(Rename)
	assert.EqualError(t, err, "doc.go:3:45: rename must be a string not `-ident`")
}
