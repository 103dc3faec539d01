package models

import (
	"fmt"
	"net/http"
	"strings"
)

// HeaderConfig 配置文件中的HTTP头部段
// 这些头部会被设置到浏览器页面和门户探测请求上
type HeaderConfig struct {
	// Headers 存储所有自定义HTTP头部 (键值对)
	// 键: 头部名称 (如 "Accept-Language")
	// 值: 头部值 (如 "pt-BR,pt;q=0.9")
	Headers map[string]string `mapstructure:"headers" yaml:"headers"`
}

// CliHeaders 表示命令行传递的头部列表
// 每个字符串格式为 "Name: Value"
type CliHeaders []string

// Parse 将字符串列表解析为 http.Header
// 返回解析后的头部和错误信息
func (ch CliHeaders) Parse() (http.Header, error) {
	result := make(http.Header)
	for i, s := range ch {
		name, value, err := parseHeaderString(s)
		if err != nil {
			return nil, fmt.Errorf("参数 --header 第%d项格式错误: %w", i+1, err)
		}
		result.Set(name, value)
	}
	return result, nil
}

// parseHeaderString 解析单个头部字符串 "Name: Value"
func parseHeaderString(s string) (name, value string, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("格式错误: 缺少冒号分隔符,应为 'Name: Value'")
	}

	name = strings.TrimSpace(parts[0])
	value = strings.TrimSpace(parts[1])

	if name == "" {
		return "", "", fmt.Errorf("头部名称不能为空")
	}

	return name, value, nil
}

// HeaderProvider 定义HTTP头部提供者接口
type HeaderProvider interface {
	// GetHeaders 返回当前有效的HTTP请求头部
	// 返回的http.Header已按优先级合并(默认 < 配置 < 命令行)
	GetHeaders() (http.Header, error)
}

// ValidationError 校验错误
// 用于HTTP头部和命令行参数的校验失败
type ValidationError struct {
	// Field 出错的字段 ("name"、"value" 或参数名)
	Field string

	// HeaderName 头部名称 (仅头部校验时设置)
	HeaderName string

	// Layer 头部来源 (默认、配置文件、命令行),仅头部校验时设置
	Layer string

	// Reason 错误原因
	Reason string

	// Suggestion 修复建议 (可选)
	Suggestion string
}

// Error 实现error接口
func (e *ValidationError) Error() string {
	var msg string
	switch {
	case e.HeaderName != "" && e.Layer != "":
		msg = fmt.Sprintf("%s头部验证失败 [%s]: %s", e.Layer, e.HeaderName, e.Reason)
	case e.HeaderName != "":
		msg = fmt.Sprintf("头部验证失败 [%s]: %s", e.HeaderName, e.Reason)
	default:
		msg = fmt.Sprintf("参数验证失败 [%s]: %s", e.Field, e.Reason)
	}
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (建议: %s)", e.Suggestion)
	}
	return msg
}
