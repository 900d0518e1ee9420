package plugin

import (
	"go/ast"
	"go/token"

	"github.com/donutnomad/gg"

	"github.com/donutnomad/derivegen/internal/derive"
)

// TargetKind 表示注解目标的类型
type TargetKind int

const (
	TargetStruct TargetKind = iota + 1 // 结构体
	TargetType                         // 其他定义类型: type T float64, type P [2]int, 别名
	TargetUnion                        // 类型集合接口: interface{ A | B }
	TargetEnum                         // 接口开头的声明组，或单独的普通接口
)

func (k TargetKind) String() string {
	switch k {
	case TargetStruct:
		return "struct"
	case TargetType:
		return "type"
	case TargetUnion:
		return "union"
	case TargetEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// KindOf 根据条目的声明形式确定目标类型
func KindOf(item *derive.Item) TargetKind {
	if item.Enum {
		return TargetEnum
	}
	if item.Spec.Assign.IsValid() {
		return TargetType
	}
	switch item.Spec.Type.(type) {
	case *ast.StructType:
		return TargetStruct
	}
	if derive.IsUnionSpec(item.Spec) {
		return TargetUnion
	}
	return TargetType
}

// ParamDef 定义注解参数的元信息
type ParamDef struct {
	Name        string // 参数名称
	Required    bool   // 是否必填
	Default     string // 默认值（如果不是必填）
	Description string // 参数描述
}

// Annotation 表示解析后的注解
type Annotation struct {
	Name   string            // 注解名称，如 "Builder", "From"
	Params map[string]string // 注解参数，如 output=`xxx`
	Raw    string            // 原始注解文本
}

// Target 表示注解的目标
type Target struct {
	Kind        TargetKind
	Name        string
	PackageName string
	FilePath    string
	Position    token.Position

	// Item 声明本身，枚举时包含全部分支
	Item *derive.Item
}

// AnnotatedTarget 表示带注解的目标
type AnnotatedTarget struct {
	Target       *Target
	Annotations  []*Annotation
	ParsedParams any // 解析后的参数结构体
}

// ScanResult 表示扫描结果
type ScanResult struct {
	Structs []*AnnotatedTarget
	Types   []*AnnotatedTarget
	Unions  []*AnnotatedTarget
	Enums   []*AnnotatedTarget

	// PackageConfigs 包级配置
	// key: 包目录
	PackageConfigs map[string]*PackageConfig
}

// All 返回所有带注解的目标
func (r *ScanResult) All() []*AnnotatedTarget {
	result := make([]*AnnotatedTarget, 0, len(r.Structs)+len(r.Types)+len(r.Unions)+len(r.Enums))
	result = append(result, r.Structs...)
	result = append(result, r.Types...)
	result = append(result, r.Unions...)
	result = append(result, r.Enums...)
	return result
}

func (r *ScanResult) add(t *AnnotatedTarget) {
	switch t.Target.Kind {
	case TargetStruct:
		r.Structs = append(r.Structs, t)
	case TargetUnion:
		r.Unions = append(r.Unions, t)
	case TargetEnum:
		r.Enums = append(r.Enums, t)
	default:
		r.Types = append(r.Types, t)
	}
}

// ByAnnotation 按注解名称过滤
func (r *ScanResult) ByAnnotation(name string) []*AnnotatedTarget {
	var result []*AnnotatedTarget
	for _, t := range r.All() {
		if HasAnnotation(t.Annotations, name) {
			result = append(result, t)
		}
	}
	return result
}

// GenerateContext 生成上下文，传递给 Generator
type GenerateContext struct {
	Targets        []*AnnotatedTarget
	PackageConfigs map[string]*PackageConfig // key: 包目录
	DefaultOutput  string                    // 命令行指定的默认输出路径（最低优先级）
	Verbose        bool
}

// GetPackageConfig 获取目标所在包的配置
func (c *GenerateContext) GetPackageConfig(target *Target) *PackageConfig {
	if c.PackageConfigs == nil || target == nil {
		return nil
	}
	return c.PackageConfigs[packageDir(target.FilePath)]
}

// GenerateResult 生成结果
// 生成器可以返回 gg 定义，也可以返回完整的 Go 源码字节，由聚合器统一合并
type GenerateResult struct {
	// Definitions key: 输出文件路径
	Definitions map[string]*gg.Generator

	// RawOutputs key: 输出文件路径, value: 完整的 Go 源文件
	RawOutputs map[string][]byte

	Errors  []error
	Skipped int
}

// NewGenerateResult 创建新的生成结果
func NewGenerateResult() *GenerateResult {
	return &GenerateResult{
		Definitions: make(map[string]*gg.Generator),
		RawOutputs:  make(map[string][]byte),
	}
}

// AddDefinition 添加 gg 定义
func (r *GenerateResult) AddDefinition(path string, gen *gg.Generator) {
	if r.Definitions == nil {
		r.Definitions = make(map[string]*gg.Generator)
	}
	r.Definitions[path] = gen
}

// AddRawOutput 添加完整的源文件输出，同一路径只保留最后一次
func (r *GenerateResult) AddRawOutput(path string, data []byte) {
	if r.RawOutputs == nil {
		r.RawOutputs = make(map[string][]byte)
	}
	r.RawOutputs[path] = data
}

func (r *GenerateResult) AddError(err error) {
	r.Errors = append(r.Errors, err)
}

func (r *GenerateResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// PackageConfig 包级生成配置
// 通过 // go:derive: 注释定义，对整个包生效
// 示例:
//
//	// go:derive: -output `$FILE_derive`
//	// go:derive: plugin:builder -output `builders` plugin:from -output `conversions`
type PackageConfig struct {
	PackageDir string

	// DefaultOutput 对所有插件生效
	DefaultOutput string

	// PluginOutputs key: 插件名（小写）
	PluginOutputs map[string]string
}

// GetPluginOutput 优先返回插件特定配置，其次返回默认配置
func (c *PackageConfig) GetPluginOutput(pluginName string) string {
	if c == nil {
		return ""
	}
	if output, ok := c.PluginOutputs[pluginName]; ok {
		return output
	}
	return c.DefaultOutput
}
