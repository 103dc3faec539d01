package checkpoint

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/xuri/excelize/v2"
)

// ResultSheet xlsx输出的工作表名
const ResultSheet = "resultados"

// Consolidate 将检查点合并为最终输出
// 按扩展名输出 .xlsx 或分号分隔的CSV;对同一检查点重复执行得到相同的CSV字节
func Consolidate(checkpointPath, outputPath string) (models.ConsolidationSummary, error) {
	parsed, err := Read(checkpointPath)
	if err != nil {
		return models.ConsolidationSummary{}, err
	}

	for _, issue := range parsed.Issues {
		utils.Warnf("跳过损坏的检查点条目: %v", issue)
	}

	header, rows := Rows(parsed)
	summary := models.ConsolidationSummary{
		Entries:    len(rows),
		Structural: len(parsed.Issues),
	}
	for _, row := range rows {
		if row.Status == models.StatusOK {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}

	if err := utils.EnsureParentDir(outputPath); err != nil {
		return summary, err
	}

	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".xlsx":
		err = writeXLSX(outputPath, header, rows)
	default:
		err = writeCSV(outputPath, header, rows)
	}
	if err != nil {
		return summary, err
	}

	utils.Infof("✅ 结果已合并: %s (%d 条, 成功 %d, 失败 %d, 跳过损坏 %d)",
		outputPath, summary.Entries, summary.Succeeded, summary.Failed, summary.Structural)
	return summary, nil
}

// Rows 将检查点条目映射为输出行
// 缺失值使用占位符 "-"
func Rows(parsed Parsed) ([]string, []models.OutputRow) {
	header := make([]string, 0, len(parsed.Fields)+3)
	header = append(header, colIdentifier, colStatus)
	header = append(header, parsed.Fields...)
	header = append(header, colDetail)

	rows := make([]models.OutputRow, 0, len(parsed.Entries))
	for _, entry := range parsed.Entries {
		o := entry.Outcome
		values := make([]string, len(parsed.Fields))
		for i, f := range parsed.Fields {
			values[i] = o.Value(f)
		}
		detail := o.Detail
		if detail == "" {
			detail = models.Placeholder
		}
		rows = append(rows, models.OutputRow{
			Identifier: o.Identifier,
			Status:     o.Status,
			Values:     values,
			Detail:     detail,
		})
	}
	return header, rows
}

func rowCells(row models.OutputRow) []string {
	cells := make([]string, 0, len(row.Values)+3)
	cells = append(cells, row.Identifier, string(row.Status))
	cells = append(cells, row.Values...)
	return append(cells, row.Detail)
}

// writeCSV 先写临时文件再重命名,输出不会出现半个文件
func writeCSV(path string, header []string, rows []models.OutputRow) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = Delimiter

	if err := w.Write(header); err != nil {
		return fmt.Errorf("写入输出标题失败: %w", err)
	}
	for _, row := range rows {
		if err := w.Write(rowCells(row)); err != nil {
			return fmt.Errorf("写入输出行失败: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("写入输出失败: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("写入输出文件失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("替换输出文件失败: %w", err)
	}
	return nil
}

func writeXLSX(path string, header []string, rows []models.OutputRow) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultSheet); err != nil {
		return fmt.Errorf("创建工作表失败: %w", err)
	}

	headerRow := make([]interface{}, len(header))
	for i, h := range header {
		headerRow[i] = h
	}
	if err := f.SetSheetRow(ResultSheet, "A1", &headerRow); err != nil {
		return fmt.Errorf("写入输出标题失败: %w", err)
	}

	for i, row := range rows {
		cells := rowCells(row)
		values := make([]interface{}, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ResultSheet, cell, &values); err != nil {
			return fmt.Errorf("写入输出行失败: %w", err)
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("保存Excel文件失败: %w", err)
	}
	return nil
}
