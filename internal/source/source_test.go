package source

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRead_CSV(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"分号分隔", "Nome;cpf\nAna;10000000191\nBia;50000000285\n"},
		{"逗号分隔", "Nome,CPF\nAna,10000000191\nBia,50000000285\n"},
		{"带BOM", "\ufeffCPF;Nome\n10000000191;Ana\n50000000285;Bia\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Read(writeInput(t, "cpfs.csv", tt.content), "")
			require.NoError(t, err)
			require.Equal(t, []string{"10000000191", "50000000285"}, res.Identifiers())
			require.Zero(t, res.Invalid)
		})
	}
}

func TestRead_SkipsInvalidRowsKeepsOrder(t *testing.T) {
	content := "CPF\n10000000191\n\n1000 0191\n50000000285\n10000000191\n"
	res, err := Read(writeInput(t, "cpfs.csv", content), "CPF")
	require.NoError(t, err)

	require.Equal(t, []string{"10000000191", "50000000285", "10000000191"}, res.Identifiers(), "保持顺序且不去重")
	require.Equal(t, 1, res.Invalid, "空行被CSV解析器跳过,只有格式错误行计数")

	require.Equal(t, models.Record{Position: 1, Row: 2, Identifier: "10000000191"}, res.Records[0])
	require.Equal(t, models.Record{Position: 2, Row: 5, Identifier: "50000000285"}, res.Records[1])
	require.Equal(t, 3, res.Records[2].Position)
}

func TestRead_TXT(t *testing.T) {
	res, err := Read(writeInput(t, "cpfs.txt", "cpf\n# comentário\n10000000191\n\n50000000285\n"), "CPF")
	require.NoError(t, err)
	require.Equal(t, []string{"10000000191", "50000000285"}, res.Identifiers())
	require.Equal(t, 3, res.Records[0].Row)
}

func TestRead_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Nome", "CPF"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"Ana", "10000000191"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"Sem CPF"}))
	require.NoError(t, f.SetSheetRow(sheet, "A4", &[]interface{}{"Bia", "50000000285"}))

	path := filepath.Join(t.TempDir(), "cpfs.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	res, err := Read(path, "cpf")
	require.NoError(t, err)
	require.Equal(t, []string{"10000000191", "50000000285"}, res.Identifiers())
	require.Equal(t, 1, res.Invalid)
	require.Equal(t, 4, res.Records[1].Row)
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"缺少标识列", func(t *testing.T) string { return writeInput(t, "a.csv", "Nome\nAna\n") }},
		{"空文件", func(t *testing.T) string { return writeInput(t, "a.csv", "") }},
		{"不支持的格式", func(t *testing.T) string { return writeInput(t, "a.json", "[]") }},
		{"文件不存在", func(t *testing.T) string { return filepath.Join(t.TempDir(), "missing.xlsx") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(tt.path(t), "CPF")
			var cfgErr *models.ConfigError
			require.ErrorAs(t, err, &cfgErr)
		})
	}
}
