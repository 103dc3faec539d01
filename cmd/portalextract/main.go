package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/core"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

// exitInterrupted 被中断时的退出码
const exitInterrupted = 130

// 命令行参数
var (
	// 全局参数
	configFile string
	verbose    bool
	logLevel   string
	headers    []string // 自定义HTTP请求头

	// 提取参数
	portalURL    string
	queryURL     string
	user         string
	password     string
	inputPath    string
	idColumn     string
	outputPath   string
	selectors    string
	checkpoint   string
	controlURL   string
	resume       bool
	headless     bool
	timeout      time.Duration
	retries      int
	noProgress   bool
	force        bool
	probeTimeout time.Duration
)

var (
	appConfig *core.Config
	exitCode  int
)

var rootCmd = &cobra.Command{
	Use:   "portalextract",
	Short: "门户记录批量提取工具",
	Long: `PortalExtract - 从需要登录的Web门户批量提取记录 (Go版本)

按输入文件中的标识(CPF)逐条查询门户,支持:
  • 选择器映射文件与候选定位器
  • 有界等待与超时重试
  • 会话丢失后自动重新登录
  • 逐条落盘的检查点与断点续跑
  • 合并输出为 CSV 或 XLSX

示例:
  # 生成选择器映射模板
  portalextract init-selectors

  # 执行提取
  portalextract run -i cpfs.xlsx -o resultados.csv --user operador

  # 中断后继续
  portalextract run -i cpfs.xlsx --resume

版本: ` + Version + `
构建时间: ` + BuildTime,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 加载配置
		cfg, err := core.LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("加载配置失败: %w", err)
		}
		appConfig = cfg

		// 初始化日志系统
		logConfig := cfg.LogConfig()

		// 命令行参数覆盖配置文件
		if logLevel != "" {
			logConfig.Level = logLevel
		}
		if verbose && logLevel == "" {
			logConfig.Level = "debug"
		}
		// 进度条模式下控制台只保留进度条,日志仍写入文件
		logConfig.Quiet = cmd == runCmd && !noProgress && !verbose

		if err := utils.InitLogger(logConfig); err != nil {
			return fmt.Errorf("初始化日志系统失败: %w", err)
		}

		if verbose {
			utils.Info("详细模式已启用")
		}

		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "执行提取任务",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig.ExtractionConfig()
		applyRunFlags(cmd, &cfg)

		if err := ValidateRunConfig(cfg); err != nil {
			return err
		}

		// 设置信号处理(Ctrl+C在当前记录完成后停止)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		headerManager, err := core.NewHeaderManager(appConfig.Browser.HeadersFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		pipeline, err := core.NewPipeline(cfg,
			core.WithHeaderProvider(headerManager),
			core.WithReportDir(appConfig.Output.ReportDir),
			core.WithProgress(!noProgress),
		)
		if err != nil {
			return err
		}

		report, err := pipeline.Run(ctx)
		fmt.Println()
		utils.PrintSummary(os.Stdout, report)
		if err != nil {
			return err
		}

		if report.Status == models.RunStatusInterrupted {
			fmt.Printf("⏹️  已中断,检查点: %s (使用 --resume 继续)\n", cfg.CheckpointPath)
			exitCode = exitInterrupted
			return nil
		}
		fmt.Printf("✨ 输出文件: %s\n", cfg.OutputPath)
		return nil
	},
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate",
	Short: "将检查点合并为最终输出",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := appConfig.ExtractionConfig()
		applyRunFlags(cmd, &cfg)

		if err := ValidateOutputPath(cfg.OutputPath); err != nil {
			return err
		}

		summary, err := core.Consolidate(cfg.CheckpointPath, cfg.OutputPath)
		if err != nil {
			return err
		}

		fmt.Printf("✅ 已写入 %s: %d 行 (成功 %d, 失败 %d)\n",
			cfg.OutputPath, summary.Entries, summary.Succeeded, summary.Failed)
		if summary.Structural > 0 {
			fmt.Printf("⚠️  跳过 %d 个损坏的检查点条目\n", summary.Structural)
		}
		return nil
	},
}

var validateSelectorsCmd = &cobra.Command{
	Use:   "validate-selectors",
	Short: "验证选择器映射文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := selectorsPath(cmd)
		registry, err := config.LoadRegistry(path)
		if err != nil {
			return err
		}

		t := utils.NewTable(os.Stdout)
		t.SetTitle("选择器映射 " + registry.Path())
		t.AppendHeader(table.Row{"字段", "候选定位器"})
		for _, field := range registry.Fields() {
			chain, _ := registry.Resolve(field)
			locs := make([]string, len(chain))
			for i, l := range chain {
				locs[i] = l.String()
			}
			t.AppendRow(table.Row{field, strings.Join(locs, "\n")})
		}
		t.AppendSeparator()
		t.AppendRow(table.Row{"结果字段", strings.Join(registry.Schema().Fields(), ", ")})
		t.Render()

		fmt.Println("✅ 选择器映射有效")
		return nil
	},
}

var initSelectorsCmd = &cobra.Command{
	Use:   "init-selectors",
	Short: "生成选择器映射模板",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := selectorsPath(cmd)
		if err := config.WriteTemplate(path, config.SelectorsTemplate(), force); err != nil {
			return err
		}
		fmt.Printf("✅ 已生成选择器映射模板: %s\n", path)
		return nil
	},
}

var probeCmd = &cobra.Command{
	Use:   "probe [url]",
	Short: "不启动浏览器探测门户与选择器",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		target := appConfig.Portal.URL
		if cmd.Flags().Changed("portal-url") {
			target = portalURL
		}
		if len(args) == 1 {
			target = args[0]
		}
		if err := models.ValidateURL(target); err != nil {
			return fmt.Errorf("无效的门户地址: %w", err)
		}

		registry, err := config.LoadRegistry(selectorsPath(cmd))
		if err != nil {
			return err
		}

		headerManager, err := core.NewHeaderManager(appConfig.Browser.HeadersFile, headers)
		if err != nil {
			return fmt.Errorf("创建HTTP头部管理器失败: %w", err)
		}

		result, err := core.NewProber(headerManager, probeTimeout).Probe(target, registry)
		if err != nil {
			return err
		}

		t := utils.NewTable(os.Stdout)
		t.SetTitle(fmt.Sprintf("%s (HTTP %d, %d 字节, %s)",
			result.URL, result.StatusCode, result.Size, utils.FormatDuration(result.Duration)))
		t.AppendHeader(table.Row{"字段", "静态页面", "命中定位器"})
		for _, f := range result.Fields {
			mark := "-"
			if f.Found {
				mark = "✅"
			}
			t.AppendRow(table.Row{f.Field, mark, f.Locator})
		}
		t.AppendFooter(table.Row{"合计", fmt.Sprintf("%d/%d", result.Found(), len(result.Fields)), ""})
		t.Render()
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "显示版本信息",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("PortalExtract %s\n", Version)
		fmt.Printf("构建时间: %s\n", BuildTime)
	},
}

// applyRunFlags 命令行参数覆盖配置文件和环境变量
func applyRunFlags(cmd *cobra.Command, cfg *models.ExtractionConfig) {
	flags := cmd.Flags()
	if flags.Changed("portal-url") {
		cfg.PortalURL = portalURL
	}
	if flags.Changed("query-url") {
		cfg.QueryURL = queryURL
	}
	if flags.Changed("user") {
		cfg.User = user
	}
	if flags.Changed("password") {
		cfg.Password = password
	}
	if flags.Changed("input") {
		cfg.InputPath = inputPath
	}
	if flags.Changed("column") {
		cfg.IdentifierColumn = idColumn
	}
	if flags.Changed("output") {
		cfg.OutputPath = outputPath
	}
	if flags.Changed("selectors") {
		cfg.SelectorsPath = selectors
	}
	if flags.Changed("checkpoint") {
		cfg.CheckpointPath = checkpoint
	}
	if flags.Changed("control-url") {
		cfg.ControlURL = controlURL
	}
	if flags.Changed("resume") {
		cfg.Resume = resume
	}
	if flags.Changed("headless") {
		cfg.Headless = headless
	}
	if flags.Changed("timeout") {
		cfg.WaitTimeout = timeout
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = retries
	}
}

// selectorsPath 命令行优先,其次配置文件
func selectorsPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("selectors") {
		return selectors
	}
	return appConfig.Files.Selectors
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "详细输出模式")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "日志级别 (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().StringSliceVarP(&headers, "header", "H", []string{}, "自定义HTTP头部,格式: 'Name: Value',可多次指定")
	rootCmd.PersistentFlags().StringVarP(&selectors, "selectors", "s", "", "选择器映射文件")

	// 提取参数
	runCmd.Flags().StringVar(&portalURL, "portal-url", "", "门户登录地址")
	runCmd.Flags().StringVar(&queryURL, "query-url", "", "查询模块地址(未设置时通过菜单进入)")
	runCmd.Flags().StringVarP(&user, "user", "u", "", "登录用户")
	runCmd.Flags().StringVarP(&password, "password", "p", "", "登录密码(建议使用 PORTAL_PASSWORD 环境变量)")
	runCmd.Flags().StringVarP(&inputPath, "input", "i", "", "输入文件 (xlsx|csv|txt)")
	runCmd.Flags().StringVar(&idColumn, "column", "", "标识列名称")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件 (csv|xlsx)")
	runCmd.Flags().StringVar(&checkpoint, "checkpoint", "", "检查点文件")
	runCmd.Flags().StringVar(&controlURL, "control-url", "", "远程浏览器调试地址")
	runCmd.Flags().BoolVar(&resume, "resume", false, "从检查点恢复")
	runCmd.Flags().BoolVar(&headless, "headless", true, "无头浏览器模式")
	runCmd.Flags().DurationVarP(&timeout, "timeout", "t", 30*time.Second, "单次等待超时")
	runCmd.Flags().IntVarP(&retries, "retries", "r", 2, "超时后的额外尝试次数")
	runCmd.Flags().BoolVar(&noProgress, "no-progress", false, "不显示进度条")

	consolidateCmd.Flags().StringVar(&checkpoint, "checkpoint", "", "检查点文件")
	consolidateCmd.Flags().StringVarP(&outputPath, "output", "o", "", "输出文件 (csv|xlsx)")

	initSelectorsCmd.Flags().BoolVarP(&force, "force", "f", false, "覆盖已存在的文件")

	probeCmd.Flags().StringVar(&portalURL, "portal-url", "", "门户登录地址")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 0, "探测请求超时")

	// 添加子命令
	rootCmd.AddCommand(runCmd, consolidateCmd, validateSelectorsCmd, initSelectorsCmd, probeCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
	os.Exit(exitCode)
}
