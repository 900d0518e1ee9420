package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/donutnomad/derivegen/buildergen"
	"github.com/donutnomad/derivegen/fromgen"
	"github.com/donutnomad/derivegen/internal/config"
	"github.com/donutnomad/derivegen/internal/logging"
	"github.com/donutnomad/derivegen/internal/logging/logfields"
	"github.com/donutnomad/derivegen/internal/report"
	"github.com/donutnomad/derivegen/plugin"
)

var log = logging.Subsys("cli")

// errReported 诊断已经输出，main 只设置退出码
var errReported = errors.New("生成失败")

type cliOptions struct {
	configPath string
	verbose    bool
	output     string
	noOutput   bool
	async      bool
	format     string
	check      bool
	debounce   time.Duration
}

var opts cliOptions

var rootCmd = &cobra.Command{
	Use:           "derivegen [路径...]",
	Short:         "根据 @Builder / @From 注解生成 Go 代码",
	Args:          cobra.ArbitraryArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runGen,
}

var genCmd = &cobra.Command{
	Use:   "gen [路径...]",
	Short: "执行代码生成（默认）",
	RunE:  runGen,
}

var devCmd = &cobra.Command{
	Use:   "dev [路径...]",
	Short: "开发模式，监听文件变动自动生成",
	RunE:  runDev,
}

func init() {
	// 集中注册所有生成器
	plugin.MustRegister(buildergen.NewBuilderGenerator())
	plugin.MustRegister(fromgen.NewFromGenerator())

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "配置文件路径（默认向上查找 "+config.FileName+"）")
	pf.BoolVarP(&opts.verbose, "verbose", "v", false, "详细输出")
	pf.StringVar(&opts.output, "output", "derive_gen.go", "默认输出路径（支持模板变量 $FILE, $PACKAGE, $TYPE）")
	pf.BoolVar(&opts.noOutput, "no-output", false, "禁用默认输出（每个生成器输出到独立文件）")
	pf.BoolVar(&opts.async, "async", true, "并发执行生成器")
	pf.StringVar(&opts.format, "format", config.FormatText, "诊断输出格式 (text|json)")

	for _, c := range []*cobra.Command{rootCmd, genCmd} {
		c.Flags().BoolVar(&opts.check, "check", false, "只检查生成的文件是否最新，不写入")
	}
	devCmd.Flags().DurationVar(&opts.debounce, "debounce", 2*time.Second, "文件变动后的防抖时间")

	rootCmd.AddCommand(genCmd, devCmd)
	rootCmd.Long = longHelp()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		}
		os.Exit(1)
	}
}

// resolveConfig 先读配置文件，再用显式指定的标志覆盖
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(".")
	}
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("verbose") {
		cfg.Verbose = opts.verbose
	}
	if flags.Changed("output") {
		cfg.Output = opts.output
	}
	if flags.Changed("no-output") {
		cfg.NoOutput = opts.noOutput
	}
	if flags.Changed("async") {
		cfg.Async = opts.async
	}
	if flags.Changed("format") {
		cfg.Format = opts.format
	}
	if flags.Changed("debounce") {
		cfg.Dev.Debounce = opts.debounce
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	logging.SetVerbose(cfg.Verbose)
	if cfg.Path != "" {
		log.WithField(logfields.File, cfg.Path).Debug("已加载配置")
	}
	return cfg, nil
}

func runGen(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	patterns := args
	if len(patterns) == 0 {
		patterns = cfg.Patterns
	}

	registry := plugin.Global()
	if len(registry.Generators()) == 0 {
		return errors.New("没有已注册的生成器")
	}
	if cfg.Verbose {
		for _, gen := range registry.Generators() {
			anns := lo.Map(gen.Annotations(), func(item string, _ int) string { return "@" + item })
			log.WithFields(logrus.Fields{
				logfields.Generator:  gen.Name(),
				logfields.Annotation: strings.Join(anns, ","),
			}).Debug("已注册生成器")
		}
	}

	stats, err := plugin.RunWithOptionsAndStats(cmd.Context(), &plugin.RunOptions{
		Registry: registry,
		Patterns: patterns,
		Output:   cfg.OutputPath(),
		Async:    cfg.Async,
		Check:    opts.check,
	})
	if err != nil {
		var diffs map[string]string
		if stats != nil {
			diffs = stats.Diffs
		}
		if werr := report.New(err, diffs).Write(cmd.ErrOrStderr(), cfg.Format); werr != nil {
			return werr
		}
		return errReported
	}

	if stats != nil && (stats.FileCount > 0 || cfg.Verbose) {
		out := cmd.OutOrStdout()
		verb := "生成"
		if opts.check {
			verb = "检查"
		}
		fmt.Fprintf(out, "统计: 扫描 %d 个目标, %s %d 个文件\n", stats.TargetCount, verb, stats.FileCount)
		fmt.Fprintf(out, "耗时: 扫描 %v, 生成 %v, 总计 %v\n", stats.ScanDuration, stats.GenerateDuration, stats.TotalDuration)
	}
	return nil
}

func longHelp() string {
	var sb strings.Builder
	sb.WriteString(`derivegen - 根据类型上的注解生成 Builder 方法与 From 构造函数

路径:
  支持 Go 包路径模式，如:
    ./...          递归扫描当前目录及子目录（默认）
    ./pkg/...      递归扫描指定目录

支持的注解:
`)
	sb.WriteString(plugin.FormatHelpText(plugin.Global()))
	sb.WriteString(`属性:
  // @builder(prefix = "With", suffix = "Opt")    类型上
  // @builder(skip) / @builder(rename = "X", no_into)    字段上
  // @from(skip)    enum 的变体上

模板变量:
  $FILE     - 源文件名（不含 .go 后缀）
  $PACKAGE  - 包名
  $TYPE     - 类型名（snake_case）

示例:
  derivegen                        扫描当前目录（默认 ./...）
  derivegen -v ./models/...        详细模式扫描 models 目录
  derivegen gen --check ./...      检查生成的文件是否最新
  derivegen --format json ./...    以 JSON 输出诊断
  derivegen dev ./...              开发模式，监听文件变动`)
	return sb.String()
}
