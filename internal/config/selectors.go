package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/spf13/viper"
	"github.com/titanous/json5"
)

// DefaultSelectorsFile 默认选择器映射文件路径
const DefaultSelectorsFile = "configs/selectors.yaml"

// reservedColumns 输出和检查点已占用的列名,结果字段不能与之重名
var reservedColumns = map[string]bool{
	"seq":        true,
	"identifier": true,
	"status":     true,
	"detail":     true,
}

// Registry 选择器注册表
// 加载后只读,可被多个组件共享
type Registry struct {
	path    string
	entries map[string][]models.Locator
	schema  models.Schema
}

// LoadRegistry 加载并校验选择器映射
// 支持两种文档形态:
//   - 结构化: selectors + schema 两段,裸字符串按 CSS 处理
//   - 扁平: 顶层即 字段 -> 定位器,裸字符串按 id 处理,使用默认结果模式
//
// 任何必需字段缺失、定位器非法或模式为空都返回 *models.ConfigError
func LoadRegistry(path string) (*Registry, error) {
	if path == "" {
		path = DefaultSelectorsFile
	}

	if err := validateFileSize(path); err != nil {
		return nil, err
	}

	doc, err := readDocument(path)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}

	reg, err := buildRegistry(doc)
	if err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}
	reg.path = path

	if err := reg.validate(); err != nil {
		return nil, &models.ConfigError{FilePath: path, Cause: err}
	}

	utils.Debugf("选择器映射已加载: %d 个字段, %d 个结果列 (%s)", len(reg.entries), len(reg.schema), path)
	return reg, nil
}

// readDocument 按扩展名解析文档
// .json5 使用 json5,其余格式交给 viper
func readDocument(path string) (map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))

	if ext == ".json5" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var doc map[string]interface{}
		if err := json5.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("解析JSON5失败: %w", err)
		}
		return doc, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	return v.AllSettings(), nil
}

// buildRegistry 从通用文档结构构建注册表
func buildRegistry(doc map[string]interface{}) (*Registry, error) {
	reg := &Registry{entries: make(map[string][]models.Locator)}

	rawSelectors, structured := doc["selectors"]
	if !structured {
		// 扁平文档
		for field, raw := range doc {
			chain, err := parseChain(raw, models.StrategyID)
			if err != nil {
				return nil, fmt.Errorf("字段 %s: %w", field, err)
			}
			reg.entries[field] = chain
		}
		reg.schema = models.DefaultSchema()
		return reg, nil
	}

	selectors, ok := asMap(rawSelectors)
	if !ok {
		return nil, fmt.Errorf("selectors 必须是 字段 -> 定位器 的映射")
	}
	for field, raw := range selectors {
		chain, err := parseChain(raw, models.StrategyCSS)
		if err != nil {
			return nil, fmt.Errorf("字段 %s: %w", field, err)
		}
		reg.entries[field] = chain
	}

	rawSchema, hasSchema := doc["schema"]
	if !hasSchema {
		reg.schema = models.DefaultSchema()
		return reg, nil
	}
	schema, err := parseSchema(rawSchema)
	if err != nil {
		return nil, err
	}
	reg.schema = schema
	return reg, nil
}

// parseChain 解析一个字段的候选定位器列表
// 接受单个字符串、字符串列表,或 {strategy, value} 映射(及其列表)
func parseChain(raw interface{}, fallback models.Strategy) ([]models.Locator, error) {
	switch v := raw.(type) {
	case string:
		return []models.Locator{models.ParseLocator(v, fallback)}, nil
	case []interface{}:
		chain := make([]models.Locator, 0, len(v))
		for i, item := range v {
			loc, err := parseLocatorItem(item, fallback)
			if err != nil {
				return nil, fmt.Errorf("第%d个定位器: %w", i+1, err)
			}
			chain = append(chain, loc)
		}
		return chain, nil
	default:
		if _, ok := asMap(raw); ok {
			loc, err := parseLocatorItem(raw, fallback)
			if err != nil {
				return nil, err
			}
			return []models.Locator{loc}, nil
		}
	}
	return nil, fmt.Errorf("不支持的定位器类型 %T", raw)
}

func parseLocatorItem(item interface{}, fallback models.Strategy) (models.Locator, error) {
	if s, ok := item.(string); ok {
		return models.ParseLocator(s, fallback), nil
	}
	m, ok := asMap(item)
	if !ok {
		return models.Locator{}, fmt.Errorf("不支持的定位器类型 %T", item)
	}
	strategy, _ := m["strategy"].(string)
	value, _ := m["value"].(string)
	return models.Locator{
		Strategy: models.Strategy(strings.ToLower(strings.TrimSpace(strategy))),
		Value:    strings.TrimSpace(value),
	}, nil
}

// parseSchema 解析结果模式列表
func parseSchema(raw interface{}) (models.Schema, error) {
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("schema 必须是列表")
	}

	schema := make(models.Schema, 0, len(items))
	for i, item := range items {
		m, ok := asMap(item)
		if !ok {
			return nil, fmt.Errorf("schema 第%d项必须是映射", i+1)
		}
		field, _ := m["field"].(string)
		column, _ := m["column"].(string)
		numeric, _ := m["numeric"].(bool)
		schema = append(schema, models.FieldSpec{
			Field:   strings.TrimSpace(field),
			Column:  strings.TrimSpace(column),
			Numeric: numeric,
		})
	}
	return schema, nil
}

// asMap 兼容 viper 和 json5 产生的两种映射类型
func asMap(raw interface{}) (map[string]interface{}, bool) {
	switch m := raw.(type) {
	case map[string]interface{}:
		return m, true
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, v := range m {
			out[fmt.Sprint(k)] = v
		}
		return out, true
	}
	return nil, false
}

// validate 加载时校验
func (r *Registry) validate() error {
	for _, field := range models.RequiredFields {
		chain, ok := r.entries[field]
		if !ok || len(chain) == 0 {
			return fmt.Errorf("缺少必需字段: %s", field)
		}
	}

	known := make(map[string]bool)
	for _, f := range models.RequiredFields {
		known[f] = true
	}
	for _, f := range models.OptionalFields {
		known[f] = true
	}

	for _, field := range r.Fields() {
		chain := r.entries[field]
		if len(chain) == 0 {
			return fmt.Errorf("字段 %s 的定位器列表为空", field)
		}
		for i, loc := range chain {
			if err := loc.Validate(); err != nil {
				return fmt.Errorf("字段 %s 第%d个定位器: %w", field, i+1, err)
			}
		}
		if !known[field] {
			utils.Warnf("选择器映射中存在未使用的字段: %s", field)
		}
	}

	if len(r.schema) == 0 {
		return fmt.Errorf("结果模式不能为空")
	}
	seen := make(map[string]bool)
	for i, fs := range r.schema {
		if fs.Field == "" || fs.Column == "" {
			return fmt.Errorf("schema 第%d项缺少 field 或 column", i+1)
		}
		if reservedColumns[strings.ToLower(fs.Field)] {
			return fmt.Errorf("schema 字段名 %q 与保留列冲突", fs.Field)
		}
		if seen[fs.Field] {
			return fmt.Errorf("schema 字段名重复: %s", fs.Field)
		}
		seen[fs.Field] = true
	}
	return nil
}

// Resolve 返回字段的候选定位器列表
// 字段未配置时返回 SelectorNotFound 记录错误
func (r *Registry) Resolve(field string) ([]models.Locator, error) {
	chain, ok := r.entries[field]
	if !ok || len(chain) == 0 {
		return nil, models.NewRecordError(models.KindSelectorNotFound, field, nil)
	}
	out := make([]models.Locator, len(chain))
	copy(out, chain)
	return out, nil
}

// Has 字段是否已配置
func (r *Registry) Has(field string) bool {
	return len(r.entries[field]) > 0
}

// Fields 已配置的字段名(排序)
func (r *Registry) Fields() []string {
	fields := make([]string, 0, len(r.entries))
	for f := range r.entries {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// Schema 结果模式
func (r *Registry) Schema() models.Schema {
	out := make(models.Schema, len(r.schema))
	copy(out, r.schema)
	return out
}

// Path 映射文件路径
func (r *Registry) Path() string {
	return r.path
}

// NewRegistry 由内存中的映射构建注册表(主要用于测试和嵌入调用)
func NewRegistry(entries map[string][]models.Locator, schema models.Schema) (*Registry, error) {
	reg := &Registry{entries: make(map[string][]models.Locator, len(entries)), schema: schema}
	for field, chain := range entries {
		reg.entries[field] = append([]models.Locator(nil), chain...)
	}
	if len(reg.schema) == 0 {
		reg.schema = models.DefaultSchema()
	}
	if err := reg.validate(); err != nil {
		return nil, &models.ConfigError{Cause: err}
	}
	return reg, nil
}
