package models

import (
	"encoding/json"
	"time"
)

// RunStats 运行统计
type RunStats struct {
	Total        int               `json:"total"`         // 输入中的有效记录数
	Skipped      int               `json:"skipped"`       // 续跑时跳过的记录数
	Processed    int               `json:"processed"`     // 本次写入检查点的记录数
	Succeeded    int               `json:"succeeded"`     // status=ok
	Failed       int               `json:"failed"`        // status=error
	Retries      int               `json:"retries"`       // 额外尝试总数
	ReAuths      int               `json:"re_auths"`      // 重新登录次数
	InvalidRows  int               `json:"invalid_rows"`  // 输入中被跳过的空行/格式错误行
	ErrorsByKind map[ErrorKind]int `json:"errors_by_kind"`
	Duration     float64           `json:"duration"` // 总耗时(秒)
}

// Observe 记录一条结果
func (s *RunStats) Observe(o RecordOutcome) {
	s.Processed++
	if o.Attempts > 1 {
		s.Retries += o.Attempts - 1
	}
	if o.Status == StatusOK {
		s.Succeeded++
		return
	}
	s.Failed++
	if s.ErrorsByKind == nil {
		s.ErrorsByKind = make(map[ErrorKind]int)
	}
	s.ErrorsByKind[o.Kind]++
}

// RunReport 运行报告
type RunReport struct {
	RunID  string    `json:"run_id"`
	Status RunStatus `json:"status"`

	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	Stats RunStats `json:"stats"`

	// 失败原因(仅致命错误)
	ErrorMessage string `json:"error_message,omitempty"`

	// 配置快照(密码不会被序列化)
	Config ExtractionConfig `json:"config"`
}

// NewRunReport 创建运行报告
func NewRunReport(config ExtractionConfig) *RunReport {
	return &RunReport{
		RunID:     generateID(),
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Config:    config,
	}
}

// Finish 结束运行并计算耗时
func (r *RunReport) Finish(status RunStatus, err error) {
	r.Status = status
	r.EndTime = time.Now()
	r.Stats.Duration = r.EndTime.Sub(r.StartTime).Seconds()
	if err != nil {
		r.ErrorMessage = err.Error()
	}
}

// ToJSON 序列化为JSON
func (r *RunReport) ToJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// FromJSON 从JSON反序列化
func (r *RunReport) FromJSON(data []byte) error {
	return json.Unmarshal(data, r)
}

// ConsolidationSummary 合并结果摘要
type ConsolidationSummary struct {
	Entries    int `json:"entries"`    // 写入输出的行数
	Succeeded  int `json:"succeeded"`  // status=ok
	Failed     int `json:"failed"`     // status=error
	Structural int `json:"structural"` // 被跳过的损坏条目
}
