package core

import (
	"net/http"

	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
)

const (
	// DefaultUserAgent 默认User-Agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"

	// DefaultAcceptLanguage 门户为巴西葡语界面
	DefaultAcceptLanguage = "pt-BR,pt;q=0.9,en;q=0.8"
)

// HeaderManager 管理HTTP请求头部的生命周期
// 实现 HeaderProvider 接口
type HeaderManager struct {
	// defaults 系统默认头部 (硬编码)
	defaults http.Header

	// config 从配置文件加载的头部
	config http.Header

	// cli 从命令行参数解析的头部
	cli http.Header

	validator    *utils.HeaderValidator
	redactor     *utils.HeaderRedactor
	configLoader *config.HeaderConfigLoader

	// loaded 标记配置是否已加载
	loaded bool
}

// NewHeaderManager 创建头部管理器
// 参数:
//   - configFile: 头部配置文件路径 (如为空则使用默认路径)
//   - cliHeaders: 命令行传递的头部字符串列表 ("Name: Value")
func NewHeaderManager(configFile string, cliHeaders []string) (*HeaderManager, error) {
	hm := &HeaderManager{
		defaults:     getDefaultHeaders(),
		cli:          make(http.Header),
		validator:    utils.NewHeaderValidator(),
		redactor:     utils.NewHeaderRedactor(),
		configLoader: config.NewHeaderConfigLoader(configFile),
	}

	if len(cliHeaders) > 0 {
		parsed, err := models.CliHeaders(cliHeaders).Parse()
		if err != nil {
			return nil, err
		}
		hm.cli = parsed
	}

	return hm, nil
}

// getDefaultHeaders 返回系统默认头部
func getDefaultHeaders() http.Header {
	return http.Header{
		"User-Agent":      []string{DefaultUserAgent},
		"Accept":          []string{"text/html,application/xhtml+xml,*/*;q=0.8"},
		"Accept-Language": []string{DefaultAcceptLanguage},
		"Accept-Encoding": []string{"gzip, deflate, br"},
	}
}

// LoadConfig 加载配置文件
// 如果已加载则跳过
func (hm *HeaderManager) LoadConfig() error {
	if hm.loaded {
		return nil
	}

	headerConfig, err := hm.configLoader.LoadConfig()
	if err != nil {
		utils.Error(err, "加载HTTP头部配置失败: "+hm.configLoader.Path())
		return err
	}

	hm.config = make(http.Header)
	for name, value := range headerConfig.Headers {
		hm.config.Set(name, value)
	}
	hm.loaded = true

	if len(headerConfig.Headers) > 0 {
		utils.Debugf("成功加载%d个HTTP头部配置: %s", len(headerConfig.Headers), hm.redactor.RedactToString(hm.config))
	}
	return nil
}

// Validate 验证所有头部的合法性
// 按优先级从低到高逐层验证,错误中标注出错的来源
func (hm *HeaderManager) Validate() error {
	layers := []struct {
		layer   utils.HeaderLayer
		headers http.Header
	}{
		{utils.LayerDefault, hm.defaults},
		{utils.LayerConfig, hm.config},
		{utils.LayerCLI, hm.cli},
	}
	for _, l := range layers {
		if err := hm.validator.ValidateLayer(l.layer, l.headers); err != nil {
			utils.Errorf("%v", err)
			return err
		}
	}

	utils.Debugf("所有HTTP头部验证通过")
	return nil
}

// GetMergedHeaders 按优先级合并头部 (default < config < cli)
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	result := make(http.Header)
	for _, layer := range []http.Header{hm.defaults, hm.config, hm.cli} {
		for name, values := range layer {
			result[name] = values
		}
	}
	return result
}

// GetSafeHeaders 返回脱敏后的头部 (用于日志)
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 实现 HeaderProvider 接口
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.LoadConfig(); err != nil {
		return nil, err
	}
	if err := hm.Validate(); err != nil {
		return nil, err
	}
	return hm.GetMergedHeaders(), nil
}

// BrowserHeaders 注入浏览器页面的额外头部
// 只适用于静态探测的头部(压缩协商、UA、Sec-*)不注入
func BrowserHeaders(provider models.HeaderProvider) (http.Header, error) {
	headers, err := provider.GetHeaders()
	if err != nil {
		return nil, err
	}
	validator := utils.NewHeaderValidator()
	if skipped := validator.ProbeOnly(headers); len(skipped) > 0 {
		utils.Debugf("以下头部仅用于门户探测,不注入浏览器: %v", skipped)
	}
	return validator.ForBrowser(headers), nil
}
