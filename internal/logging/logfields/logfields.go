// Package logfields 日志字段名
package logfields

const (
	// LogSubsys 子系统
	LogSubsys = "subsys"

	Generator  = "generator"
	Annotation = "annotation"
	File       = "file"
	Package    = "package"
	Type       = "type"
	Output     = "output"
	Targets    = "targets"
	Duration   = "duration"
)
