package utils

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// MaxHeaderValueLength 单个头部值上限 (8KB)
const MaxHeaderValueLength = 8192

// HeaderLayer 头部来源,合并优先级 默认 < 配置文件 < 命令行
type HeaderLayer string

const (
	LayerDefault HeaderLayer = "默认"
	LayerConfig  HeaderLayer = "配置文件"
	LayerCLI     HeaderLayer = "命令行"
)

var (
	// ForbiddenHeaders 任何来源都不允许设置
	// 前四项由传输层计算; Cookie 属于浏览器会话,覆盖会导致登录状态丢失
	ForbiddenHeaders = []string{
		"Host",
		"Content-Length",
		"Transfer-Encoding",
		"Connection",
		"Cookie",
	}

	// ProbeOnlyHeaders 只随静态探测请求发送,不注入浏览器页面
	// 浏览器自行协商压缩并解码响应; UA 必须与页面内 navigator.userAgent 一致
	ProbeOnlyHeaders = []string{
		"Accept-Encoding",
		"User-Agent",
	}
)

// probeOnlyPrefix 浏览器按请求自动计算的 Sec-Fetch-* / Sec-CH-UA 等头部
const probeOnlyPrefix = "sec-"

// HeaderValidator 校验各来源的头部,并区分浏览器可注入的部分
type HeaderValidator struct {
	nameRegex  *regexp.Regexp
	valueRegex *regexp.Regexp

	forbidden map[string]bool
	probeOnly map[string]bool
}

// NewHeaderValidator 创建验证器
func NewHeaderValidator() *HeaderValidator {
	return &HeaderValidator{
		// RFC 7230 token 的常用子集
		nameRegex: regexp.MustCompile(`^[A-Za-z0-9-]+$`),
		// CDP Network.setExtraHTTPHeaders 只接受可打印ASCII
		valueRegex: regexp.MustCompile(`^[\x20-\x7E\t]*$`),
		forbidden:  lowerSet(ForbiddenHeaders),
		probeOnly:  lowerSet(ProbeOnlyHeaders),
	}
}

func lowerSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[strings.ToLower(n)] = true
	}
	return set
}

// IsForbidden 任何来源都不允许的头部
func (hv *HeaderValidator) IsForbidden(name string) bool {
	return hv.forbidden[strings.ToLower(name)]
}

// IsProbeOnly 只适用于静态探测的头部
func (hv *HeaderValidator) IsProbeOnly(name string) bool {
	lower := strings.ToLower(name)
	return hv.probeOnly[lower] || strings.HasPrefix(lower, probeOnlyPrefix)
}

// ValidateHeader 校验单个头部
func (hv *HeaderValidator) ValidateHeader(name, value string) error {
	if hv.IsForbidden(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "此头部由传输层或浏览器会话管理,不允许自定义",
			Suggestion: fmt.Sprintf("移除 '%s'", name),
		}
	}
	if name == "" || !hv.nameRegex.MatchString(name) {
		return &models.ValidationError{
			Field:      "name",
			HeaderName: name,
			Reason:     "头部名称为空或包含非法字符",
			Suggestion: "仅使用字母、数字和连字符,如 'Accept-Language'",
		}
	}
	if len(value) > MaxHeaderValueLength {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     fmt.Sprintf("头部值过长: %d 字节 (最大 %d)", len(value), MaxHeaderValueLength),
		}
	}
	if !hv.valueRegex.MatchString(value) {
		return &models.ValidationError{
			Field:      "value",
			HeaderName: name,
			Reason:     "头部值包含控制字符或非ASCII字符,浏览器会拒绝整组额外头部",
			Suggestion: "移除控制字符; 非ASCII内容需先做百分号编码",
		}
	}
	return nil
}

// ValidateLayer 校验一个来源的全部头部,按名称顺序返回第一个错误
// 配置文件和命令行中的空值不会删除低优先级来源的同名头部,因此拒绝
func (hv *HeaderValidator) ValidateLayer(layer HeaderLayer, headers http.Header) error {
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		for _, value := range headers[name] {
			err := hv.ValidateHeader(name, value)
			if err == nil && layer != LayerDefault && value == "" {
				err = &models.ValidationError{
					Field:      "value",
					HeaderName: name,
					Reason:     "头部值为空,空值不会覆盖低优先级来源的同名头部",
				}
			}
			if err != nil {
				return locate(layer, err)
			}
		}
	}
	return nil
}

// locate 为错误标注来源并给出该来源的修改位置
func locate(layer HeaderLayer, err error) error {
	verr, ok := err.(*models.ValidationError)
	if !ok {
		return err
	}
	verr.Layer = string(layer)

	var where string
	switch layer {
	case LayerConfig:
		where = "修改头部配置文件中的 headers 段"
	case LayerCLI:
		where = "修改对应的 --header 参数"
	default:
		where = "内置默认头部非法"
	}
	if verr.Suggestion != "" {
		verr.Suggestion = where + ": " + verr.Suggestion
	} else {
		verr.Suggestion = where
	}
	return verr
}

// ForBrowser 返回可通过 SetExtraHeaders 注入页面的头部副本
func (hv *HeaderValidator) ForBrowser(headers http.Header) http.Header {
	out := headers.Clone()
	for name := range out {
		if hv.IsProbeOnly(name) {
			delete(out, name)
		}
	}
	return out
}

// ProbeOnly 返回只会随静态探测发送的头部名称(已排序)
func (hv *HeaderValidator) ProbeOnly(headers http.Header) []string {
	var names []string
	for name := range headers {
		if hv.IsProbeOnly(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
