package models

import (
	"fmt"
	"time"
)

// RunStatus 运行状态
type RunStatus string

const (
	RunStatusPending     RunStatus = "pending"     // 待执行
	RunStatusRunning     RunStatus = "running"     // 执行中
	RunStatusCompleted   RunStatus = "completed"   // 已完成
	RunStatusFailed      RunStatus = "failed"      // 失败(致命错误)
	RunStatusInterrupted RunStatus = "interrupted" // 被信号中断
)

// ExtractionConfig 提取运行配置
type ExtractionConfig struct {
	// 门户
	PortalURL string `json:"portal_url"`          // 门户登录地址
	QueryURL  string `json:"query_url,omitempty"` // 查询模块地址(可选,未配置时通过菜单进入)
	User      string `json:"user"`                // 登录用户
	Password  string `json:"-"`                   // 登录密码,不序列化

	// 浏览器
	ControlURL string `json:"control_url,omitempty"` // 远程浏览器调试地址
	BrowserBin string `json:"browser_bin,omitempty"` // 本地浏览器路径
	Headless   bool   `json:"headless"`              // 无头模式
	Stealth    bool   `json:"stealth"`               // 注入反检测脚本

	// 文件
	SelectorsPath    string `json:"selectors_path"`    // 选择器映射文件
	InputPath        string `json:"input_path"`        // 输入文件(xlsx/csv/txt)
	IdentifierColumn string `json:"identifier_column"` // 标识列名称
	CheckpointPath   string `json:"checkpoint_path"`   // 检查点文件
	OutputPath       string `json:"output_path"`       // 最终输出文件
	Resume           bool   `json:"resume"`            // 从已有检查点继续

	// 等待与重试
	WaitTimeout  time.Duration `json:"wait_timeout"`  // 单次有界等待上限
	PollInterval time.Duration `json:"poll_interval"` // 条件轮询间隔
	MaxRetries   int           `json:"max_retries"`   // 超时类错误的额外尝试次数
	AuthAttempts int           `json:"auth_attempts"` // 登录尝试次数

	// 资源
	MinFreeMemoryMB int `json:"min_free_memory_mb"` // 启动浏览器所需的最小可用内存
}

// DefaultExtractionConfig 默认运行配置
func DefaultExtractionConfig() ExtractionConfig {
	return ExtractionConfig{
		Headless:         true,
		Stealth:          true,
		SelectorsPath:    "configs/selectors.yaml",
		IdentifierColumn: "CPF",
		CheckpointPath:   "output/checkpoint.csv",
		OutputPath:       "output/resultados.csv",
		WaitTimeout:      30 * time.Second,
		PollInterval:     250 * time.Millisecond,
		MaxRetries:       2,
		AuthAttempts:     3,
		MinFreeMemoryMB:  512,
	}
}

// Validate 验证配置
func (c *ExtractionConfig) Validate() error {
	if err := ValidateURL(c.PortalURL); err != nil {
		return fmt.Errorf("门户地址无效: %w", err)
	}
	if c.QueryURL != "" {
		if err := ValidateURL(c.QueryURL); err != nil {
			return fmt.Errorf("查询地址无效: %w", err)
		}
	}
	if c.User == "" || c.Password == "" {
		return fmt.Errorf("必须提供登录用户和密码")
	}
	if c.InputPath == "" {
		return fmt.Errorf("必须指定输入文件")
	}
	if c.CheckpointPath == "" || c.OutputPath == "" {
		return fmt.Errorf("必须指定检查点文件和输出文件")
	}
	if c.WaitTimeout < time.Second || c.WaitTimeout > 10*time.Minute {
		return fmt.Errorf("等待超时必须在1秒-10分钟之间")
	}
	if c.PollInterval < 10*time.Millisecond || c.PollInterval > c.WaitTimeout {
		return fmt.Errorf("轮询间隔必须在10毫秒和等待超时之间")
	}
	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("重试次数必须在0-10之间")
	}
	if c.AuthAttempts < 1 || c.AuthAttempts > 10 {
		return fmt.Errorf("登录尝试次数必须在1-10之间")
	}
	if c.MinFreeMemoryMB < 0 {
		return fmt.Errorf("最小可用内存不能为负数")
	}
	return nil
}

// SessionState 门户会话状态,由状态机独占
type SessionState struct {
	Authenticated bool `json:"authenticated"`
	Logins        int  `json:"logins"`   // 成功登录次数
	ReAuths       int  `json:"re_auths"` // 因会话丢失的重新登录次数
}

// Invalidate 标记会话丢失
func (s *SessionState) Invalidate() {
	s.Authenticated = false
}
