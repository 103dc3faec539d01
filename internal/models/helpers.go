package models

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// identifierPattern 标识允许的字符: 数字、字母及常见分隔符(CPF/CNPJ格式)
var identifierPattern = regexp.MustCompile(`^[0-9A-Za-z.\-/]+$`)

// ValidateURL 验证URL
func ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("无效的URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL必须是HTTP或HTTPS协议")
	}
	if parsed.Host == "" {
		return fmt.Errorf("URL必须包含主机名")
	}
	return nil
}

// NormalizeIdentifier 去除首尾空白并校验标识格式
// 不做CPF校验位检查,标识对系统是不透明的
func NormalizeIdentifier(raw string) (string, error) {
	id := strings.TrimSpace(raw)
	if id == "" {
		return "", fmt.Errorf("标识为空")
	}
	if !identifierPattern.MatchString(id) {
		return "", fmt.Errorf("标识包含非法字符: %q", id)
	}
	return id, nil
}

// generateID 生成唯一ID
func generateID() string {
	return uuid.New().String()
}
