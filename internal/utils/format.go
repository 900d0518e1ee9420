package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/tools/imports"
)

// Format 格式化 Go 源码并整理 import
func Format(path string, src []byte) ([]byte, error) {
	out, err := imports.Process(path, src, &imports.Options{
		Comments:  true,
		TabIndent: true,
		TabWidth:  8,
	})
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", path, err)
	}
	return out, nil
}

// WriteFormat 格式化后写入文件，格式化失败时仍写入原始内容便于排查
func WriteFormat(path string, src []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, fmtErr := Format(path, src)
	if fmtErr != nil {
		out = src
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return err
	}
	return fmtErr
}
