package core

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

var (
	// canonicalNumber 规范化后的数值: 可选负号,整数部分,可选小数部分
	canonicalNumber = regexp.MustCompile(`^-?[0-9]+(\.[0-9]+)?$`)

	// thousandsOnly 仅含千位分隔点的整数,如 1.235 或 1.234.567
	thousandsOnly = regexp.MustCompile(`^-?[0-9]{1,3}(\.[0-9]{3})+$`)
)

// ParseResult 将结果表第一行数据按结果模式映射为字段值
// 空表、缺少列、数值列中的非数值都返回 ParseError
func ParseResult(table automation.Table, schema models.Schema) (map[string]string, error) {
	if table.Empty() {
		return nil, models.NewRecordError(models.KindParse, models.FieldResultGrid, fmt.Errorf("结果表没有数据行"))
	}

	row := table.Rows[0]
	fields := make(map[string]string, len(schema))
	for _, fs := range schema {
		col := table.Column(fs.Column)
		if col < 0 {
			return nil, models.NewRecordError(models.KindParse, fs.Field, fmt.Errorf("结果表缺少列 %q", fs.Column))
		}

		value := ""
		if col < len(row) {
			value = strings.TrimSpace(row[col])
		}
		if fs.Numeric && value != "" {
			n, err := NormalizeNumber(value)
			if err != nil {
				return nil, models.NewRecordError(models.KindParse, fs.Field, err)
			}
			value = n
		}
		fields[fs.Field] = value
	}
	return fields, nil
}

// NormalizeNumber 将门户显示的巴西格式数值转为点号小数
//
//	"R$ 1.235,00" → "1235.00"
//	"12"          → "12"
//	"1.235"       → "1235"
//	"-0,50"       → "-0.50"
func NormalizeNumber(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "R$")
	s = strings.Map(func(r rune) rune {
		if r == ' ' || r == '\u00a0' {
			return -1
		}
		return r
	}, s)

	switch {
	case strings.Contains(s, ","):
		// 逗号为小数点,点号为千位分隔
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	case thousandsOnly.MatchString(s):
		s = strings.ReplaceAll(s, ".", "")
	}

	if !canonicalNumber.MatchString(s) {
		return "", fmt.Errorf("非数值: %q", raw)
	}
	return s, nil
}
