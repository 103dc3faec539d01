package automation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// ConditionKind 等待条件类型
type ConditionKind string

const (
	// Present 元素存在于DOM中
	Present ConditionKind = "present"

	// Clickable 元素可见且未禁用
	Clickable ConditionKind = "clickable"

	// Populated 表格至少有一行数据
	Populated ConditionKind = "populated"
)

// Condition 一个可轮询的等待条件
type Condition struct {
	Field   string         // 逻辑字段名,用于日志和错误
	Locator models.Locator // 定位描述
	Kind    ConditionKind
}

// String 日志输出
func (c Condition) String() string {
	return fmt.Sprintf("%s(%s=%s)", c.Kind, c.Field, c.Locator)
}

// Conditions 将候选定位器列表展开为同类型的条件列表(保持顺序)
func Conditions(field string, chain []models.Locator, kind ConditionKind) []Condition {
	conds := make([]Condition, len(chain))
	for i, loc := range chain {
		conds[i] = Condition{Field: field, Locator: loc, Kind: kind}
	}
	return conds
}

// Element 页面元素句柄
// 句柄只在产生它的页面内有效
type Element interface {
	// Text 元素可见文本
	Text() (string, error)
}

// Table 解析后的结果表格
type Table struct {
	Header []string   // 列标题(已规范化空白)
	Rows   [][]string // 数据行(不含标题行)
}

// Column 按标题查找列下标,忽略大小写和多余空白
// 未找到时返回 -1
func (t Table) Column(name string) int {
	want := normalizeText(name)
	for i, h := range t.Header {
		if strings.EqualFold(h, want) {
			return i
		}
	}
	return -1
}

// Empty 是否没有数据行
func (t Table) Empty() bool {
	return len(t.Rows) == 0
}

// PageAutomation 页面自动化能力
// 所有等待都是有界轮询,超时返回 models.ErrElementTimeout
type PageAutomation interface {
	// Navigate 打开URL并等待页面加载
	Navigate(ctx context.Context, url string) error

	// WaitAny 轮询直到任一条件满足或超时
	// 同一轮中多个条件满足时返回下标最小者
	WaitAny(ctx context.Context, conds []Condition, timeout time.Duration) (int, Element, error)

	// Fill 清空输入框并输入文本
	Fill(ctx context.Context, el Element, text string) error

	// Click 点击元素
	Click(ctx context.Context, el Element) error

	// Blur 使元素失去焦点(触发change/blur事件)
	Blur(ctx context.Context, el Element) error

	// ReadTable 读取表格元素
	ReadTable(ctx context.Context, el Element) (Table, error)

	// Close 释放页面和浏览器
	Close() error
}

// normalizeText 去除首尾空白并将连续空白折叠为单个空格
func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
