// Package source 读取待查询的标识列表
//
// 支持 .xlsx(第一个工作表)、.csv(分号或逗号分隔)和 .txt(每行一个标识)。
// 记录保持输入顺序,不去重;空行和格式错误的行被跳过并记录警告。
package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/xuri/excelize/v2"
)

// DefaultColumn 默认标识列名
const DefaultColumn = "CPF"

// Result 读取结果
type Result struct {
	Records []models.Record
	Invalid int // 被跳过的空行/格式错误行
}

// Identifiers 标识列表(保持顺序)
func (r Result) Identifiers() []string {
	ids := make([]string, len(r.Records))
	for i, rec := range r.Records {
		ids[i] = rec.Identifier
	}
	return ids
}

// Read 按扩展名读取标识
// 文件不可读、格式不支持或缺少标识列时返回 *models.ConfigError
func Read(path, column string) (Result, error) {
	if column == "" {
		column = DefaultColumn
	}

	var (
		rows []row
		err  error
	)

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".xlsx", ".xlsm":
		rows, err = readXLSX(path)
	case ".csv":
		rows, err = readCSV(path)
	case ".txt", "":
		return readTXT(path, column)
	default:
		err = fmt.Errorf("不支持的输入格式: %s", ext)
	}
	if err != nil {
		return Result{}, &models.ConfigError{FilePath: path, Cause: err}
	}

	res, err := fromRows(rows, column)
	if err != nil {
		return Result{}, &models.ConfigError{FilePath: path, Cause: err}
	}
	return res, nil
}

// row 表格中的一行及其在文件中的行号
type row struct {
	line  int
	cells []string
}

// fromRows 从表格行中提取标识列,首行为标题
func fromRows(rows []row, column string) (Result, error) {
	if len(rows) == 0 {
		return Result{}, fmt.Errorf("输入文件为空")
	}

	idx := -1
	for i, h := range rows[0].cells {
		if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), column) {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Result{}, fmt.Errorf("输入文件必须包含标识列 %q", column)
	}

	var res Result
	for _, r := range rows[1:] {
		raw := ""
		if idx < len(r.cells) {
			raw = r.cells[idx]
		}
		res.add(r.line, raw)
	}
	return res, nil
}

// add 校验并追加一条记录
func (r *Result) add(rowNum int, raw string) {
	id, err := models.NormalizeIdentifier(raw)
	if err != nil {
		r.Invalid++
		utils.Warnf("跳过无效输入 (行 %d): %v", rowNum, err)
		return
	}
	r.Records = append(r.Records, models.Record{
		Position:   len(r.Records) + 1,
		Row:        rowNum,
		Identifier: id,
	})
}

func readXLSX(path string) ([]row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("打开Excel文件失败: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("Excel文件没有工作表")
	}

	cells, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("读取工作表 %s 失败: %w", sheets[0], err)
	}

	rows := make([]row, len(cells))
	for i, c := range cells {
		rows[i] = row{line: i + 1, cells: c}
	}
	return rows, nil
}

// readCSV 读取CSV,空行会被跳过但行号保持为文件中的实际行号
func readCSV(path string) ([]row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开CSV文件失败: %w", err)
	}
	defer file.Close()

	delim, err := sniffDelimiter(file)
	if err != nil {
		return nil, err
	}

	r := csv.NewReader(file)
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var rows []row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("解析CSV失败: %w", err)
		}
		line, _ := r.FieldPos(0)
		rows = append(rows, row{line: line, cells: rec})
	}
	return rows, nil
}

// sniffDelimiter 根据标题行判断分隔符(分号优先),读取后复位文件
func sniffDelimiter(file *os.File) (rune, error) {
	buf := make([]byte, 4096)
	n, err := file.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("读取CSV失败: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("读取CSV失败: %w", err)
	}

	header, _, _ := strings.Cut(string(buf[:n]), "\n")
	if strings.Count(header, ";") >= strings.Count(header, ",") && strings.Contains(header, ";") {
		return ';', nil
	}
	return ',', nil
}

// readTXT 每行一个标识,首行与列名相同时视为标题
func readTXT(path, column string) (Result, error) {
	lines, err := utils.ReadLines(path)
	if err != nil {
		return Result{}, &models.ConfigError{FilePath: path, Cause: err}
	}

	var res Result
	for i, line := range lines {
		if i == 0 && strings.EqualFold(line.Text, column) {
			continue
		}
		res.add(line.Number, line.Text)
	}
	return res, nil
}
