package checkpoint

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
)

// Issue 一条被跳过的损坏条目
type Issue struct {
	Line   int
	Reason string
}

// Error 实现error接口,可用 errors.Is(err, models.ErrStructuralCheckpoint) 判断
func (i Issue) Error() string {
	return fmt.Sprintf("%s: 第%d行 %s", models.KindStructuralCheckpoint, i.Line, i.Reason)
}

// Unwrap 支持errors.Is
func (i Issue) Unwrap() error {
	return models.ErrStructuralCheckpoint
}

// Parsed 解析后的检查点
type Parsed struct {
	Fields  []string                 // 结果字段(来自标题行)
	Entries []models.CheckpointEntry // 有效条目,按追加顺序
	Issues  []Issue                  // 被跳过的损坏条目
}

// LastSeq 最大有效序号,没有条目时为0
func (p Parsed) LastSeq() int {
	if len(p.Entries) == 0 {
		return 0
	}
	return p.Entries[len(p.Entries)-1].Seq
}

// Read 读取检查点文件
// 标题行缺失或非法时返回错误;条目级损坏记为 Issue 并跳过
func Read(path string) (Parsed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Parsed{}, fmt.Errorf("读取检查点失败: %w", err)
	}
	parsed, err := parse(data)
	if err != nil {
		return Parsed{}, fmt.Errorf("%s: %w", path, err)
	}
	return parsed, nil
}

func parse(data []byte) (Parsed, error) {
	text := string(data)
	if text == "" {
		return Parsed{}, fmt.Errorf("检查点为空,缺少标题行")
	}

	lines := strings.Split(text, "\n")
	// 以换行结尾时最后一段为空;否则最后一段是写入中断留下的残行
	torn := lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	if len(lines) == 0 {
		return Parsed{}, fmt.Errorf("检查点标题行不完整")
	}

	fields, err := parseHeader(strings.TrimSuffix(lines[0], "\r"))
	if err != nil {
		return Parsed{}, err
	}

	p := Parsed{Fields: fields}
	lastSeq := 0
	for i, line := range lines[1:] {
		lineNum := i + 2
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}

		entry, err := parseEntry(line, fields)
		if err != nil {
			p.Issues = append(p.Issues, Issue{Line: lineNum, Reason: err.Error()})
			continue
		}
		if entry.Seq <= lastSeq {
			p.Issues = append(p.Issues, Issue{
				Line:   lineNum,
				Reason: fmt.Sprintf("序号未递增 (%d <= %d)", entry.Seq, lastSeq),
			})
			continue
		}
		lastSeq = entry.Seq
		p.Entries = append(p.Entries, entry)
	}

	if torn != "" {
		p.Issues = append(p.Issues, Issue{Line: len(lines) + 1, Reason: "行不完整(写入中断)"})
	}
	return p, nil
}

func parseHeader(line string) ([]string, error) {
	cols, err := decodeLine(line)
	if err != nil {
		return nil, fmt.Errorf("检查点标题行无法解析: %w", err)
	}
	if len(cols) < 4 ||
		cols[0] != colSeq || cols[1] != colIdentifier || cols[2] != colStatus ||
		cols[len(cols)-1] != colDetail {
		return nil, fmt.Errorf("检查点标题行非法: %q", line)
	}
	return cols[3 : len(cols)-1], nil
}

func parseEntry(line string, fields []string) (models.CheckpointEntry, error) {
	cols, err := decodeLine(line)
	if err != nil {
		return models.CheckpointEntry{}, fmt.Errorf("无法解析: %v", err)
	}
	if want := len(fields) + 4; len(cols) != want {
		return models.CheckpointEntry{}, fmt.Errorf("列数错误 (%d, 应为 %d)", len(cols), want)
	}

	seq, err := strconv.Atoi(cols[0])
	if err != nil || seq < 1 {
		return models.CheckpointEntry{}, fmt.Errorf("序号非法: %q", cols[0])
	}

	status, err := models.ParseRecordStatus(cols[2])
	if err != nil || status == models.StatusPending {
		return models.CheckpointEntry{}, fmt.Errorf("状态非法: %q", cols[2])
	}

	if cols[1] == "" {
		return models.CheckpointEntry{}, fmt.Errorf("标识为空")
	}

	outcome := models.RecordOutcome{
		Identifier: cols[1],
		Status:     status,
		Detail:     cols[len(cols)-1],
	}
	if status == models.StatusOK {
		outcome.Fields = make(map[string]string, len(fields))
		for i, f := range fields {
			outcome.Fields[f] = cols[3+i]
		}
		outcome.Detail = ""
	}

	return models.CheckpointEntry{Seq: seq, Outcome: outcome}, nil
}
