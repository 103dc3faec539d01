package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
)

var (
	inputExtensions  = map[string]bool{".xlsx": true, ".xlsm": true, ".csv": true, ".txt": true, "": true}
	outputExtensions = map[string]bool{".csv": true, ".xlsx": true}
)

// ValidateRunConfig 验证合并命令行参数后的运行配置
func ValidateRunConfig(cfg models.ExtractionConfig) error {
	if err := ValidateInputPath(cfg.InputPath); err != nil {
		return err
	}
	if err := ValidateOutputPath(cfg.OutputPath); err != nil {
		return err
	}
	if cfg.CheckpointPath != "" && filepath.Clean(cfg.CheckpointPath) == filepath.Clean(cfg.OutputPath) {
		return fmt.Errorf("检查点文件不能与输出文件相同: %s", cfg.OutputPath)
	}
	if err := cfg.Validate(); err != nil {
		return &models.ConfigError{Cause: err}
	}
	return nil
}

// ValidateInputPath 验证输入文件
func ValidateInputPath(path string) error {
	if path == "" {
		return fmt.Errorf("必须指定输入文件 (--input)")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !inputExtensions[ext] {
		return fmt.Errorf("不支持的输入格式: %s (有效值: xlsx, csv, txt)", ext)
	}
	if !utils.FileExists(path) {
		return fmt.Errorf("输入文件不存在: %s", path)
	}
	return nil
}

// ValidateOutputPath 验证输出文件扩展名
func ValidateOutputPath(path string) error {
	if path == "" {
		return fmt.Errorf("必须指定输出文件 (--output)")
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !outputExtensions[ext] {
		return fmt.Errorf("不支持的输出格式: %s (有效值: csv, xlsx)", ext)
	}
	return nil
}
