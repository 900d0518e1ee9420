package plugin

import "reflect"

//go:generate mockgen -destination=mock_generator_test.go -package=plugin . Generator

// Generator 是代码生成器接口
// 每个派生（如 buildergen、fromgen）实现此接口
type Generator interface {
	// Name 生成器名称，同时用作 go:derive 指令中的 plugin:<name>
	Name() string

	// Annotations 触发注解列表，一个注解只能绑定一个生成器
	Annotations() []string

	// SupportedTargets 支持的目标类型
	// 不支持的声明形式应当也列出，由生成器报告具体的诊断信息
	SupportedTargets() []TargetKind

	// ParamDefs 触发注解支持的参数定义
	ParamDefs() []ParamDef

	// NewParams 创建参数结构体实例（指针），返回 nil 表示不需要参数
	NewParams() any

	// Priority 数字越小优先级越高，输出合并时优先级高的在前面，默认 100
	Priority() int

	// Generate 执行代码生成
	Generate(ctx *GenerateContext) (*GenerateResult, error)
}

// BaseGenerator 提供基础实现，可嵌入
type BaseGenerator struct {
	name        string
	annotations []string
	targets     []TargetKind
	paramDefs   []ParamDef
	paramsProto any
	priority    int
}

func NewBaseGenerator(name string, annotations []string, targets []TargetKind) *BaseGenerator {
	return &BaseGenerator{
		name:        name,
		annotations: annotations,
		targets:     targets,
		priority:    100,
	}
}

// NewBaseGeneratorWithParamsStruct 创建带参数结构体的基础生成器
// paramsProto: 参数结构体的零值实例，例如 BuilderParams{}
func NewBaseGeneratorWithParamsStruct(name string, annotations []string, targets []TargetKind, paramsProto any) *BaseGenerator {
	g := NewBaseGenerator(name, annotations, targets)
	g.paramDefs = ParseParamsFromStruct(paramsProto)
	g.paramsProto = paramsProto
	return g
}

func (g *BaseGenerator) Name() string                   { return g.name }
func (g *BaseGenerator) Annotations() []string          { return g.annotations }
func (g *BaseGenerator) SupportedTargets() []TargetKind { return g.targets }
func (g *BaseGenerator) ParamDefs() []ParamDef          { return g.paramDefs }
func (g *BaseGenerator) Priority() int                  { return g.priority }

// NewParams 使用反射创建参数结构体的新实例，返回指针
func (g *BaseGenerator) NewParams() any {
	if g.paramsProto == nil {
		return nil
	}
	typ := reflect.TypeOf(g.paramsProto)
	if typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return reflect.New(typ).Interface()
}

// SetPriority 设置生成器优先级，数字越小优先级越高
func (g *BaseGenerator) SetPriority(priority int) *BaseGenerator {
	g.priority = priority
	return g
}

// FindAnnotation 在目标的注解中找到属于该生成器的那一个
func FindAnnotation(gen Generator, target *AnnotatedTarget) *Annotation {
	for _, name := range gen.Annotations() {
		if ann := GetAnnotation(target.Annotations, name); ann != nil {
			return ann
		}
	}
	return nil
}
