// Package checkpoint 实现增量检查点文件和最终结果合并
//
// 检查点是分号分隔的文本文件,首行为标题:
//
//	seq;identifier;status;<结果字段...>;detail
//
// 每条结果追加一行并立即 fsync,已写入的字节不会被改写,运行中途也可以直接打开查看。
// 合并阶段按追加顺序读取条目,跳过损坏的行,输出 csv 或 xlsx。
package checkpoint

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// Delimiter 检查点和CSV输出的分隔符
const Delimiter = ';'

const (
	colSeq        = "seq"
	colIdentifier = "identifier"
	colStatus     = "status"
	colDetail     = "detail"
)

// headerColumns 检查点标题列
func headerColumns(fields []string) []string {
	cols := make([]string, 0, len(fields)+4)
	cols = append(cols, colSeq, colIdentifier, colStatus)
	cols = append(cols, fields...)
	return append(cols, colDetail)
}

// encodeLine 将一行编码为以换行结尾的字节
// 值中的换行被替换为空格,保证一条记录恰好占一行
func encodeLine(values []string) ([]byte, error) {
	clean := make([]string, len(values))
	for i, v := range values {
		clean[i] = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(v)
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = Delimiter
	if err := w.Write(clean); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeLine 解析单行(不含换行符)
func decodeLine(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = Delimiter
	r.FieldsPerRecord = -1
	return r.Read()
}

// entryValues 检查点条目的列值
func entryValues(seq int, o models.RecordOutcome, fields []string) []string {
	values := make([]string, 0, len(fields)+4)
	values = append(values, fmt.Sprint(seq), o.Identifier, string(o.Status))
	for _, f := range fields {
		if o.Status == models.StatusOK {
			values = append(values, o.Fields[f])
		} else {
			values = append(values, "")
		}
	}
	return append(values, o.Detail)
}
