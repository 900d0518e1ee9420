// Package config 读取项目根目录的 derivegen.toml
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName 配置文件名，从工作目录向上查找
const FileName = "derivegen.toml"

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config 命令行默认值，命令行显式指定的标志优先
type Config struct {
	Output   string   `toml:"output"`
	NoOutput bool     `toml:"no_output"`
	Async    bool     `toml:"async"`
	Verbose  bool     `toml:"verbose"`
	Format   string   `toml:"format"`
	Patterns []string `toml:"patterns"`
	Dev      Dev      `toml:"dev"`

	// Path 加载的配置文件，未找到时为空
	Path string `toml:"-"`
}

type Dev struct {
	Debounce time.Duration `toml:"debounce"`
}

// Default 没有配置文件时使用的值
func Default() Config {
	return Config{
		Output:   "derive_gen.go",
		Async:    true,
		Format:   FormatText,
		Patterns: []string{"./..."},
		Dev:      Dev{Debounce: 2 * time.Second},
	}
}

// Find 从 startDir 开始逐级向上查找配置文件
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("解析目录失败: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("读取 %q 失败: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load 查找并加载配置，找不到文件时返回 Default()
func Load(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil || !ok {
		return Default(), err
	}
	return LoadFile(path)
}

// LoadFile 以 Default() 为底加载指定文件
func LoadFile(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: 解析 TOML 失败: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: 未知配置项 %s", path, undecoded[0])
	}
	cfg.Path = path
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("format 只能是 %s 或 %s, 得到 %q", FormatText, FormatJSON, c.Format)
	}
	if c.Dev.Debounce < 0 {
		return fmt.Errorf("dev.debounce 不能为负数")
	}
	return nil
}

// OutputPath 传给 plugin.RunOptions 的默认输出，no_output 时为空
func (c Config) OutputPath() string {
	if c.NoOutput {
		return ""
	}
	return c.Output
}
