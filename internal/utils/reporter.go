package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
)

// RunReportFile 运行报告文件名
const RunReportFile = "run_report.json"

// Reporter 报告生成器
type Reporter struct {
	outputDir string
}

// NewReporter 创建报告生成器
func NewReporter(outputDir string) *Reporter {
	if outputDir == "" {
		outputDir = "reports"
	}
	return &Reporter{
		outputDir: outputDir,
	}
}

// GenerateReport 写入运行报告
// 返回报告文件路径
func (r *Reporter) GenerateReport(report *models.RunReport) (string, error) {
	if err := os.MkdirAll(r.outputDir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	path := filepath.Join(r.outputDir, RunReportFile)
	if err := r.saveJSONReport(path, report); err != nil {
		return "", err
	}

	Infof("✅ 报告已生成: %s", path)
	return path, nil
}

// saveJSONReport 保存JSON报告
func (r *Reporter) saveJSONReport(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入报告文件失败: %w", err)
	}

	Debugf("保存报告: %s", path)
	return nil
}

// NewTable 创建统一风格的表格
func NewTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return t
}

// PrintSummary 以表格形式输出运行摘要
func PrintSummary(out io.Writer, report *models.RunReport) {
	t := NewTable(out)
	t.SetTitle("运行摘要 " + report.RunID)
	t.AppendHeader(table.Row{"项目", "数值"})

	stats := report.Stats
	t.AppendRows([]table.Row{
		{"状态", report.Status},
		{"有效记录", stats.Total},
		{"续跑跳过", stats.Skipped},
		{"本次处理", stats.Processed},
		{"成功", stats.Succeeded},
		{"失败", stats.Failed},
		{"额外尝试", stats.Retries},
		{"重新登录", stats.ReAuths},
		{"无效输入行", stats.InvalidRows},
		{"耗时", FormatDuration(time.Duration(stats.Duration * float64(time.Second)))},
	})

	if len(stats.ErrorsByKind) > 0 {
		t.AppendSeparator()
		kinds := make([]string, 0, len(stats.ErrorsByKind))
		for k := range stats.ErrorsByKind {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			t.AppendRow(table.Row{k, stats.ErrorsByKind[models.ErrorKind(k)]})
		}
	}

	t.Render()
}

// NewProgressBar 创建进度条
func NewProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}
