package models

import (
	"errors"
	"fmt"
)

// ErrorKind 记录级/运行级错误分类
type ErrorKind string

const (
	KindConfig               ErrorKind = "ConfigError"               // 配置错误(启动期,致命)
	KindAuth                 ErrorKind = "AuthError"                 // 无法建立会话(整个运行致命)
	KindElementTimeout       ErrorKind = "ElementTimeout"            // 等待超时(瞬时,可重试)
	KindSelectorNotFound     ErrorKind = "SelectorNotFound"          // 所有候选定位器均失败(不可重试)
	KindParse                ErrorKind = "ParseError"                // 结果结构不符(不可重试)
	KindNotFound             ErrorKind = "NotFound"                  // 门户明确提示无数据
	KindPortal               ErrorKind = "PortalError"               // 门户显示错误提示
	KindStructuralCheckpoint ErrorKind = "StructuralCheckpointError" // 检查点条目损坏(警告)
)

// Retryable 是否为可重试的瞬时错误
// 仅超时类错误会在同一会话内重试
func (k ErrorKind) Retryable() bool {
	return k == KindElementTimeout
}

// Fatal 是否为致命错误(中止整个运行)
func (k ErrorKind) Fatal() bool {
	return k == KindConfig || k == KindAuth
}

// NotFoundDetail 门户"无数据"结果写入检查点的固定描述
const NotFoundDetail = "not found"

var (
	// ErrElementTimeout 有界等待在期限内未满足条件
	ErrElementTimeout = errors.New("等待元素超时")

	// ErrSessionLost 检测到会话丢失(被重定向回登录页)
	ErrSessionLost = errors.New("会话已丢失")

	// ErrStructuralCheckpoint 检查点中存在无法解析的条目
	ErrStructuralCheckpoint = errors.New("检查点条目结构错误")
)

// ConfigError 配置文件错误
// 表示选择器映射、输入文件或运行配置在启动阶段不可用
type ConfigError struct {
	// FilePath 配置文件路径
	FilePath string

	// Cause 底层错误
	Cause error
}

// Error 实现error接口
func (e *ConfigError) Error() string {
	if e.FilePath == "" {
		return fmt.Sprintf("配置错误: %v", e.Cause)
	}
	return fmt.Sprintf("配置文件错误 [%s]: %v", e.FilePath, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// AuthError 登录失败,在有限次尝试后仍无法建立会话
type AuthError struct {
	Attempts int
	Cause    error
}

// Error 实现error接口
func (e *AuthError) Error() string {
	return fmt.Sprintf("登录失败(已尝试%d次): %v", e.Attempts, e.Cause)
}

// Unwrap 支持errors.Unwrap
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// RecordError 单条记录处理失败
// 由状态机捕获并转换为 Done(error) 结果,不中断运行
type RecordError struct {
	Kind  ErrorKind
	Field string // 相关的逻辑字段(可选)
	Cause error
}

// Error 实现error接口
func (e *RecordError) Error() string {
	switch {
	case e.Field != "" && e.Cause != nil:
		return fmt.Sprintf("%s [%s]: %v", e.Kind, e.Field, e.Cause)
	case e.Field != "":
		return fmt.Sprintf("%s [%s]", e.Kind, e.Field)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// Unwrap 支持errors.Unwrap
func (e *RecordError) Unwrap() error {
	return e.Cause
}

// Detail 写入检查点的错误描述
func (e *RecordError) Detail() string {
	if e.Kind == KindNotFound {
		return NotFoundDetail
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
	return string(e.Kind)
}

// NewRecordError 创建记录级错误
func NewRecordError(kind ErrorKind, field string, cause error) *RecordError {
	return &RecordError{Kind: kind, Field: field, Cause: cause}
}

// KindOf 提取错误分类
// 未分类的错误(导航失败、页面断开等)按瞬时超时处理,以便获得有限重试
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var cfgErr *ConfigError
	if errors.As(err, &cfgErr) {
		return KindConfig
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return KindAuth
	}
	var recErr *RecordError
	if errors.As(err, &recErr) {
		return recErr.Kind
	}
	if errors.Is(err, ErrStructuralCheckpoint) {
		return KindStructuralCheckpoint
	}
	return KindElementTimeout
}
