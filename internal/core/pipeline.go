package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/checkpoint"
	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/source"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/schollz/progressbar/v3"
)

// monitorInterval 记录之间两次资源采样的最小间隔
const monitorInterval = 5 * time.Second

// AutomationFactory 创建页面自动化实例
// 只有在确实有记录需要处理时才会被调用
type AutomationFactory func(ctx context.Context, cfg models.ExtractionConfig, headers models.HeaderProvider) (automation.PageAutomation, error)

// RodFactory 默认工厂: 本地启动或连接远程浏览器
func RodFactory(_ context.Context, cfg models.ExtractionConfig, headers models.HeaderProvider) (automation.PageAutomation, error) {
	opts := automation.RodOptions{
		ControlURL:    cfg.ControlURL,
		BrowserBin:    cfg.BrowserBin,
		Headless:      cfg.Headless,
		Stealth:       cfg.Stealth,
		PollInterval:  cfg.PollInterval,
		ActionTimeout: cfg.WaitTimeout,
	}
	if headers != nil {
		h, err := BrowserHeaders(headers)
		if err != nil {
			return nil, err
		}
		opts.Headers = h
	}
	return automation.NewRodAutomation(opts)
}

// Pipeline 记录处理流水线
// 输入 → 状态机 → 检查点 → 合并输出;CLI和其他前端都通过 Run 调用
type Pipeline struct {
	cfg       models.ExtractionConfig
	headers   models.HeaderProvider
	factory   AutomationFactory
	monitor   *automation.ResourceMonitor
	reportDir string
	progress  bool
}

// Option 流水线选项
type Option func(*Pipeline)

// WithAutomationFactory 替换页面自动化工厂
func WithAutomationFactory(f AutomationFactory) Option {
	return func(p *Pipeline) { p.factory = f }
}

// WithHeaderProvider 设置浏览器页面的额外头部
func WithHeaderProvider(h models.HeaderProvider) Option {
	return func(p *Pipeline) { p.headers = h }
}

// WithResourceMonitor 设置资源监控器,nil 表示不做预检
func WithResourceMonitor(m *automation.ResourceMonitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithReportDir 设置运行报告目录,空字符串表示不生成报告
func WithReportDir(dir string) Option {
	return func(p *Pipeline) { p.reportDir = dir }
}

// WithProgress 是否显示进度条
func WithProgress(enabled bool) Option {
	return func(p *Pipeline) { p.progress = enabled }
}

// NewPipeline 创建流水线
func NewPipeline(cfg models.ExtractionConfig, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &models.ConfigError{Cause: err}
	}

	p := &Pipeline{
		cfg:     cfg,
		factory: RodFactory,
		monitor: automation.NewResourceMonitor(automation.ResourceMonitorConfig{
			MinFreeMemory: uint64(cfg.MinFreeMemoryMB) * 1024 * 1024,
		}),
		reportDir: "reports",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run 执行完整流水线
// 执行流程:
//  1. 加载选择器映射(失败时不创建检查点)
//  2. 读取输入记录
//  3. 创建或续写检查点
//  4. 资源预检并启动浏览器
//  5. 逐条处理,每条结果立即落盘;取消只在记录之间生效
//  6. 合并输出并生成运行报告
//
// 返回: 运行报告和致命错误(配置错误、登录失败、检查点写入失败)
func (p *Pipeline) Run(ctx context.Context) (*models.RunReport, error) {
	report := models.NewRunReport(p.cfg)
	report.Status = models.RunStatusRunning

	utils.Infof("🚀 开始提取任务 [%s]", report.RunID)
	utils.Infof("门户: %s", p.cfg.PortalURL)
	utils.Infof("用户: %s (密码: %s)", p.cfg.User, utils.MaskSecret(p.cfg.Password))
	utils.Infof("输入: %s", p.cfg.InputPath)

	status, err := p.run(ctx, report)
	report.Finish(status, err)

	if p.reportDir != "" {
		if _, rerr := utils.NewReporter(p.reportDir).GenerateReport(report); rerr != nil {
			utils.Warnf("生成运行报告失败: %v", rerr)
		}
	}

	switch status {
	case models.RunStatusCompleted:
		utils.Infof("✅ 提取完成: 成功 %d, 失败 %d, 耗时 %s",
			report.Stats.Succeeded, report.Stats.Failed, utils.FormatDuration(report.EndTime.Sub(report.StartTime)))
	case models.RunStatusInterrupted:
		utils.Warnf("⏹️  提取被中断: 已处理 %d 条, 使用 --resume 继续", report.Stats.Processed)
	default:
		utils.Errorf("❌ 提取失败: %v", err)
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *models.RunReport) (models.RunStatus, error) {
	stats := &report.Stats

	registry, err := config.LoadRegistry(p.cfg.SelectorsPath)
	if err != nil {
		return models.RunStatusFailed, err
	}

	input, err := source.Read(p.cfg.InputPath, p.cfg.IdentifierColumn)
	if err != nil {
		return models.RunStatusFailed, err
	}
	stats.Total = len(input.Records)
	stats.InvalidRows = input.Invalid

	writer, skip, err := p.openCheckpoint(registry.Schema())
	if err != nil {
		return models.RunStatusFailed, err
	}
	if skip > len(input.Records) {
		utils.Warnf("检查点序号 %d 超过输入记录数 %d,输入文件可能已变更", skip, len(input.Records))
		skip = len(input.Records)
	}
	stats.Skipped = skip
	utils.Infof("检查点: %s (已完成 %d 条)", writer.Path(), skip)
	pending := input.Records[skip:]

	status, runErr := p.process(ctx, registry, pending, writer, stats)

	if err := writer.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("关闭检查点失败: %w", err)
		status = models.RunStatusFailed
	}

	// 致命错误时保留检查点供续跑,不生成最终输出
	if status == models.RunStatusFailed {
		return status, runErr
	}

	if _, err := checkpoint.Consolidate(p.cfg.CheckpointPath, p.cfg.OutputPath); err != nil {
		return models.RunStatusFailed, fmt.Errorf("合并输出失败: %w", err)
	}
	return status, nil
}

// openCheckpoint 续跑时打开已有检查点,否则新建
// 返回已完成的记录数
func (p *Pipeline) openCheckpoint(schema models.Schema) (*checkpoint.Writer, int, error) {
	if p.cfg.Resume {
		if utils.FileExists(p.cfg.CheckpointPath) {
			return checkpoint.OpenAppend(p.cfg.CheckpointPath, schema)
		}
		utils.Warnf("检查点不存在,从头开始: %s", p.cfg.CheckpointPath)
	}
	w, err := checkpoint.Create(p.cfg.CheckpointPath, schema)
	return w, 0, err
}

// process 启动浏览器并逐条处理待处理记录
func (p *Pipeline) process(ctx context.Context, registry *config.Registry, pending []models.Record,
	writer *checkpoint.Writer, stats *models.RunStats) (models.RunStatus, error) {
	if len(pending) == 0 {
		utils.Infof("没有待处理的记录")
		return models.RunStatusCompleted, nil
	}
	if ctx.Err() != nil {
		return models.RunStatusInterrupted, nil
	}

	if p.monitor != nil {
		if err := p.monitor.Preflight(); err != nil {
			return models.RunStatusFailed, err
		}
	}

	pa, err := p.factory(ctx, p.cfg, p.headers)
	if err != nil {
		return models.RunStatusFailed, fmt.Errorf("启动浏览器失败: %w", err)
	}
	defer func() {
		if err := pa.Close(); err != nil {
			utils.Warnf("关闭浏览器失败: %v", err)
		}
	}()

	machine := NewMachine(pa, registry, p.cfg)
	defer func() { stats.ReAuths = machine.Session().ReAuths }()

	var bar *progressbar.ProgressBar
	if p.progress {
		bar = utils.NewProgressBar(len(pending), "提取中")
		defer bar.Finish()
	}

	// 记录处理中不响应取消,只在记录之间检查
	work := context.WithoutCancel(ctx)

	for i, rec := range pending {
		if ctx.Err() != nil {
			utils.Warnf("收到中断信号,停止于第 %d 条之前", rec.Position)
			return models.RunStatusInterrupted, nil
		}
		if p.monitor != nil {
			p.monitor.Check(monitorInterval)
		}

		log := utils.WithRecord(rec.Position, rec.Identifier)
		log.Debug().Int("row", rec.Row).Msg("开始处理记录")

		outcome, err := machine.Process(work, rec, log)
		if err != nil {
			var authErr *models.AuthError
			if errors.As(err, &authErr) {
				log.Error().Err(err).Msg("无法建立门户会话,中止运行")
			}
			return models.RunStatusFailed, err
		}

		if err := writer.Append(rec.Position, outcome); err != nil {
			return models.RunStatusFailed, fmt.Errorf("写入检查点失败: %w", err)
		}
		stats.Observe(outcome)

		if bar != nil {
			_ = bar.Add(1)
		}
		log.Info().
			Str("status", string(outcome.Status)).
			Int("attempts", outcome.Attempts).
			Dur("duration", outcome.Duration).
			Msgf("[%d/%d] %s", i+1, len(pending), outcomeSummary(outcome))
	}

	return models.RunStatusCompleted, nil
}

func outcomeSummary(o models.RecordOutcome) string {
	if o.Status == models.StatusOK {
		return "✅ 成功"
	}
	return "❌ " + o.Detail
}

// Consolidate 只执行合并阶段
func Consolidate(checkpointPath, outputPath string) (models.ConsolidationSummary, error) {
	if !utils.FileExists(checkpointPath) {
		return models.ConsolidationSummary{}, &models.ConfigError{FilePath: checkpointPath, Cause: fmt.Errorf("检查点不存在")}
	}
	return checkpoint.Consolidate(checkpointPath, outputPath)
}
