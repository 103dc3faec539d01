package models

import (
	"fmt"
	"strings"
)

// Strategy 定位策略
type Strategy string

const (
	StrategyCSS   Strategy = "css"   // CSS选择器
	StrategyID    Strategy = "id"    // 元素id
	StrategyName  Strategy = "name"  // name属性
	StrategyXPath Strategy = "xpath" // XPath表达式
	StrategyText  Strategy = "text"  // 可见文本完全匹配
)

// Valid 是否为已知策略
func (s Strategy) Valid() bool {
	switch s {
	case StrategyCSS, StrategyID, StrategyName, StrategyXPath, StrategyText:
		return true
	}
	return false
}

// Locator 元素定位描述
type Locator struct {
	Strategy Strategy `json:"strategy" mapstructure:"strategy"`
	Value    string   `json:"value" mapstructure:"value"`
}

// String 以 "策略:值" 形式输出,可被 ParseLocator 解析回来
func (l Locator) String() string {
	return fmt.Sprintf("%s:%s", l.Strategy, l.Value)
}

// Validate 校验定位描述
func (l Locator) Validate() error {
	if !l.Strategy.Valid() {
		return fmt.Errorf("未知的定位策略: %q", l.Strategy)
	}
	if strings.TrimSpace(l.Value) == "" {
		return fmt.Errorf("定位值不能为空 (策略 %s)", l.Strategy)
	}
	return nil
}

// ParseLocator 解析带策略前缀的定位字符串
// 无前缀时使用 fallback 策略(扁平文档中为 id)
func ParseLocator(raw string, fallback Strategy) Locator {
	raw = strings.TrimSpace(raw)
	if prefix, value, ok := strings.Cut(raw, ":"); ok {
		s := Strategy(strings.ToLower(strings.TrimSpace(prefix)))
		if s.Valid() {
			return Locator{Strategy: s, Value: strings.TrimSpace(value)}
		}
	}
	return Locator{Strategy: fallback, Value: raw}
}

// FieldSpec 结果模式中的一个输出字段
type FieldSpec struct {
	// Field 输出字段名
	Field string `json:"field" mapstructure:"field"`

	// Column 结果表格中的列标题
	Column string `json:"column" mapstructure:"column"`

	// Numeric 是否按数字规范化
	Numeric bool `json:"numeric" mapstructure:"numeric"`
}

// Schema 有序的结果模式
type Schema []FieldSpec

// Fields 返回字段名列表(保持顺序)
func (s Schema) Fields() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Field
	}
	return names
}

// DefaultSchema 扁平选择器文档使用的默认结果模式
func DefaultSchema() Schema {
	return Schema{
		{Field: "parcelasPagas", Column: "Parcelas Pagas", Numeric: true},
		{Field: "saldo", Column: "Saldo", Numeric: true},
	}
}

// 选择器映射中的逻辑字段名
const (
	FieldUser         = "campo_usuario"
	FieldPassword     = "campo_senha"
	FieldLoginButton  = "botao_entrar"
	FieldMenuRegistry = "menu_cadastro"
	FieldMenuProposal = "menu_proposta"
	FieldIdentifier   = "campo_cpf"
	FieldQueryButton  = "botao_consultar"
	FieldResultGrid   = "grid_resultados"
	FieldNoDataMarker = "indicador_sem_dados"
	FieldErrorMarker  = "indicador_erro"
)

// RequiredFields 加载时必须存在的逻辑字段
var RequiredFields = []string{
	FieldUser,
	FieldPassword,
	FieldLoginButton,
	FieldMenuRegistry,
	FieldIdentifier,
	FieldResultGrid,
}

// OptionalFields 可选的逻辑字段
var OptionalFields = []string{
	FieldMenuProposal,
	FieldQueryButton,
	FieldNoDataMarker,
	FieldErrorMarker,
}
