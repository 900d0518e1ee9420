package plugin

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/samber/lo"
)

// FormatHelpText 为所有注册的生成器生成帮助文本
func FormatHelpText(registry *Registry) string {
	generators := registry.Generators()
	if len(generators) == 0 {
		return "  (暂无已注册的生成器)\n"
	}

	var sb strings.Builder
	for _, gen := range generators {
		annotations := gen.Annotations()
		if len(annotations) == 0 {
			continue
		}
		primary := annotations[0]

		targets := lo.Map(gen.SupportedTargets(), func(k TargetKind, _ int) string { return k.String() })
		fmt.Fprintf(&sb, "  @%s - %s (%s)\n", primary, gen.Name(), strings.Join(targets, ", "))

		rows := [][2]string{{"output", "输出文件路径（支持 $FILE $PACKAGE $TYPE）"}}
		for _, param := range gen.ParamDefs() {
			if param.Name == "output" {
				continue
			}
			rows = append(rows, [2]string{FormatParamName(param), param.Description})
		}

		sb.WriteString("    参数:\n")
		width := lo.Max(lo.Map(rows, func(r [2]string, _ int) int { return runewidth.StringWidth(r[0]) }))
		for _, r := range rows {
			fmt.Fprintf(&sb, "      %s  %s\n", runewidth.FillRight(r[0], width), r[1])
		}

		sb.WriteString("    示例:\n")
		fmt.Fprintf(&sb, "      // @%s\n", primary)
		fmt.Fprintf(&sb, "      // @%s(output=`$FILE_%s`)\n", primary, strings.ToLower(gen.Name()))
		sb.WriteString("\n")
	}

	return sb.String()
}

// FormatParamName 参数名加上必填与默认值标记
func FormatParamName(param ParamDef) string {
	s := param.Name
	if param.Required {
		s += " (必填)"
	}
	if param.Default != "" {
		s += fmt.Sprintf(" [默认: %s]", param.Default)
	}
	return s
}

// FormatParamDef 格式化单个参数定义
func FormatParamDef(param ParamDef) string {
	parts := []string{param.Name}
	if param.Required {
		parts = append(parts, "required")
	} else {
		parts = append(parts, "optional")
	}
	if param.Default != "" {
		parts = append(parts, "default="+param.Default)
	}
	if param.Description != "" {
		parts = append(parts, param.Description)
	}
	return strings.Join(parts, ", ")
}
