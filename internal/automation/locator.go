package automation

import (
	"fmt"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// Query 浏览器可执行的查询
type Query struct {
	Expr  string
	XPath bool // true 时使用 XPath 查询,否则为 CSS
}

// Translate 将定位描述翻译为CSS或XPath查询
func Translate(loc models.Locator) (Query, error) {
	if err := loc.Validate(); err != nil {
		return Query{}, err
	}

	switch loc.Strategy {
	case models.StrategyCSS:
		return Query{Expr: loc.Value}, nil
	case models.StrategyID:
		return Query{Expr: fmt.Sprintf(`[id=%s]`, cssString(loc.Value))}, nil
	case models.StrategyName:
		return Query{Expr: fmt.Sprintf(`[name=%s]`, cssString(loc.Value))}, nil
	case models.StrategyXPath:
		return Query{Expr: loc.Value, XPath: true}, nil
	case models.StrategyText:
		return Query{
			Expr:  fmt.Sprintf(`//*[normalize-space(text())=%s]`, xpathString(normalizeText(loc.Value))),
			XPath: true,
		}, nil
	}
	return Query{}, fmt.Errorf("未知的定位策略: %q", loc.Strategy)
}

// cssString 生成CSS属性选择器中的带引号字符串
func cssString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// xpathString 生成XPath字符串字面量
// XPath 1.0 没有转义,同时含两种引号时使用 concat()
func xpathString(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}

	parts := strings.Split(s, `"`)
	args := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			args = append(args, `'"'`)
		}
		if p != "" {
			args = append(args, `"`+p+`"`)
		}
	}
	return "concat(" + strings.Join(args, ", ") + ")"
}
