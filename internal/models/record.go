package models

import (
	"fmt"
	"time"
)

// RecordStatus 记录处理状态
type RecordStatus string

const (
	StatusOK      RecordStatus = "ok"      // 提取成功
	StatusError   RecordStatus = "error"   // 提取失败
	StatusPending RecordStatus = "pending" // 尚未完成(不会写入检查点)
)

// ParseRecordStatus 解析检查点中的状态列
func ParseRecordStatus(s string) (RecordStatus, error) {
	switch RecordStatus(s) {
	case StatusOK, StatusError, StatusPending:
		return RecordStatus(s), nil
	}
	return "", fmt.Errorf("未知的记录状态: %q", s)
}

// Placeholder 输出中缺失值的占位符
const Placeholder = "-"

// Record 输入中的一条待查询记录
type Record struct {
	// Position 在有效记录序列中的位置(从1开始),即检查点序号
	Position int

	// Row 输入文件中的原始行号(从1开始,含表头),用于日志定位
	Row int

	// Identifier 查询标识(如CPF),读入后不可变
	Identifier string
}

// RecordOutcome 单条记录的处理结果
// 每个标识只创建一次,写入检查点后不再修改
type RecordOutcome struct {
	Identifier string            `json:"identifier"`
	Status     RecordStatus      `json:"status"`
	Fields     map[string]string `json:"fields,omitempty"` // 仅 status=ok 时存在
	Detail     string            `json:"detail,omitempty"` // 仅 status=error 时存在
	Kind       ErrorKind         `json:"kind,omitempty"`
	Attempts   int               `json:"attempts"`
	Duration   time.Duration     `json:"duration"`
}

// NewSuccessOutcome 创建成功结果
func NewSuccessOutcome(identifier string, fields map[string]string, attempts int) RecordOutcome {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return RecordOutcome{
		Identifier: identifier,
		Status:     StatusOK,
		Fields:     copied,
		Attempts:   attempts,
	}
}

// NewErrorOutcome 根据记录级错误创建失败结果
func NewErrorOutcome(identifier string, err error, attempts int) RecordOutcome {
	outcome := RecordOutcome{
		Identifier: identifier,
		Status:     StatusError,
		Kind:       KindOf(err),
		Attempts:   attempts,
	}
	if recErr, ok := err.(*RecordError); ok {
		outcome.Detail = recErr.Detail()
	} else if err != nil {
		outcome.Detail = fmt.Sprintf("%s: %v", outcome.Kind, err)
	}
	return outcome
}

// Value 返回字段值,缺失时返回占位符
func (o RecordOutcome) Value(field string) string {
	if o.Status != StatusOK {
		return Placeholder
	}
	v, ok := o.Fields[field]
	if !ok || v == "" {
		return Placeholder
	}
	return v
}

// CheckpointEntry 检查点中的一条持久化结果
type CheckpointEntry struct {
	Seq     int           `json:"seq"` // 单调递增的位置标记
	Outcome RecordOutcome `json:"outcome"`
}

// OutputRow 最终输出的一行(不含运行内部的序号)
type OutputRow struct {
	Identifier string
	Status     RecordStatus
	Values     []string // 与结果模式字段顺序一致
	Detail     string
}
