package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// MaxConfigFileSize 配置文件最大大小 (1MB)
const MaxConfigFileSize = 1 * 1024 * 1024

//go:embed headers_template.yaml
var defaultHeaderTemplate string

//go:embed selectors_template.yaml
var defaultSelectorsTemplate string

// SelectorsTemplate 返回内置的选择器映射模板
func SelectorsTemplate() string {
	return defaultSelectorsTemplate
}

// WriteTemplate 将模板写入指定路径
// overwrite 为 false 且文件已存在时返回错误
func WriteTemplate(path, content string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("文件已存在: %s (使用 --force 覆盖)", path)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("无法创建配置目录 [%s]: %w", dir, err)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("无法生成配置文件 [%s]: %w", path, err)
	}
	return nil
}

// ensureFile 文件不存在时写入模板
func ensureFile(path, template string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return WriteTemplate(path, template, true)
	}
	return nil
}

// validateFileSize 验证配置文件大小是否在限制内
func validateFileSize(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &models.ConfigError{FilePath: path, Cause: err}
	}

	if info.Size() > MaxConfigFileSize {
		return &models.ConfigError{
			FilePath: path,
			Cause: fmt.Errorf("配置文件过大: %d 字节 (最大 %d 字节)",
				info.Size(), MaxConfigFileSize),
		}
	}

	return nil
}
