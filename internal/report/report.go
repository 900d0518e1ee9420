// Package report 将生成流程返回的错误展开并输出到终端
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"

	"github.com/donutnomad/derivegen/internal/derive"
)

var (
	errorLabel = color.New(color.FgRed, color.Bold)
	posLabel   = color.New(color.Bold)
	diffAdd    = color.New(color.FgGreen)
	diffDel    = color.New(color.FgRed)
)

// Report 一次运行中的全部问题
type Report struct {
	Diagnostics []*derive.Diagnostic `json:"diagnostics"`
	Errors      []string             `json:"errors,omitempty"`
	Stale       map[string]string    `json:"stale,omitempty"`
}

// New 展开 err（errors.Join 与 %w 包装），带位置的诊断按位置排序
func New(err error, diffs map[string]string) *Report {
	r := &Report{Diagnostics: []*derive.Diagnostic{}}
	r.collect(err)
	slices.SortStableFunc(r.Diagnostics, func(a, b *derive.Diagnostic) int {
		if c := strings.Compare(a.Pos.Filename, b.Pos.Filename); c != 0 {
			return c
		}
		if a.Pos.Line != b.Pos.Line {
			return a.Pos.Line - b.Pos.Line
		}
		return a.Pos.Column - b.Pos.Column
	})
	if len(diffs) > 0 {
		r.Stale = diffs
	}
	return r
}

func (r *Report) collect(err error) {
	if err == nil {
		return
	}
	switch e := err.(type) {
	case derive.Diagnostics:
		r.Diagnostics = append(r.Diagnostics, e...)
		return
	case *derive.Diagnostic:
		r.Diagnostics = append(r.Diagnostics, e)
		return
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			r.collect(inner)
		}
		return
	}

	var diags derive.Diagnostics
	if errors.As(err, &diags) {
		r.Diagnostics = append(r.Diagnostics, diags...)
		return
	}
	r.Errors = append(r.Errors, err.Error())
}

// Empty 没有任何需要报告的内容
func (r *Report) Empty() bool {
	return len(r.Diagnostics) == 0 && len(r.Errors) == 0 && len(r.Stale) == 0
}

// Write 按 format 输出，format 为 json 时输出单个 JSON 对象
func (r *Report) Write(w io.Writer, format string) error {
	if format == "json" {
		data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
		if err != nil {
			return fmt.Errorf("序列化诊断失败: %w", err)
		}
		_, err = fmt.Fprintf(w, "%s\n", data)
		return err
	}
	r.writeText(w)
	return nil
}

func (r *Report) writeText(w io.Writer) {
	for _, d := range r.Diagnostics {
		if d.Pos.IsValid() {
			posLabel.Fprintf(w, "%s: ", d.Pos)
		}
		errorLabel.Fprint(w, "error: ")
		fmt.Fprintln(w, d.Msg)
	}
	for _, msg := range r.Errors {
		errorLabel.Fprint(w, "error: ")
		fmt.Fprintln(w, msg)
	}

	paths := make([]string, 0, len(r.Stale))
	for path := range r.Stale {
		paths = append(paths, path)
	}
	slices.Sort(paths)
	for _, path := range paths {
		posLabel.Fprintf(w, "%s: ", path)
		fmt.Fprintln(w, "需要重新生成")
		for _, line := range strings.SplitAfter(r.Stale[path], "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				diffAdd.Fprint(w, line)
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				diffDel.Fprint(w, line)
			default:
				fmt.Fprint(w, line)
			}
		}
	}

	if n := len(r.Diagnostics) + len(r.Errors); n > 0 {
		fmt.Fprintf(w, "共 %d 个错误\n", n)
	}
}
