package checkpoint

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
)

// ErrClosed 向已关闭的检查点写入
var ErrClosed = errors.New("检查点已关闭")

// Writer 只追加的检查点写入器
// Append 由互斥锁串行化,每条记录一次写入并 fsync
type Writer struct {
	mu      sync.Mutex
	file    *os.File
	path    string
	fields  []string
	lastSeq int
	count   int
	closed  bool
}

// Create 创建(截断)检查点文件并写入标题行
func Create(path string, schema models.Schema) (*Writer, error) {
	if err := utils.EnsureParentDir(path); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("创建检查点失败: %w", err)
	}

	w := &Writer{file: file, path: path, fields: schema.Fields()}

	header, err := encodeLine(headerColumns(w.fields))
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := w.writeSync(header); err != nil {
		file.Close()
		return nil, err
	}

	utils.Debugf("检查点已创建: %s", path)
	return w, nil
}

// OpenAppend 打开已有检查点继续写入
// 标题必须与当前结果模式一致;末尾不完整的行会被截去,返回已完成的最大序号
func OpenAppend(path string, schema models.Schema) (*Writer, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, fmt.Errorf("读取检查点失败: %w", err)
	}

	parsed, err := parse(data)
	if err != nil {
		return nil, 0, err
	}
	if !equalFields(parsed.Fields, schema.Fields()) {
		return nil, 0, fmt.Errorf("检查点字段 %v 与当前结果模式 %v 不一致", parsed.Fields, schema.Fields())
	}

	file, err := os.OpenFile(path, os.O_WRONLY, 0644)
	if err != nil {
		return nil, 0, fmt.Errorf("打开检查点失败: %w", err)
	}

	// 截去未以换行结尾的残行,避免新条目拼接在残行之后
	// 这是唯一改写已有字节的地方;残行的 Append 从未返回成功,不属于已确认条目
	complete := int64(bytes.LastIndexByte(data, '\n') + 1)
	if complete < int64(len(data)) {
		utils.Warnf("检查点末尾存在不完整的行 (%d 字节),已截去", int64(len(data))-complete)
		if err := file.Truncate(complete); err != nil {
			file.Close()
			return nil, 0, fmt.Errorf("截断检查点失败: %w", err)
		}
	}
	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		file.Close()
		return nil, 0, fmt.Errorf("定位检查点末尾失败: %w", err)
	}

	for _, issue := range parsed.Issues {
		utils.Warnf("%v", issue)
	}

	lastSeq := parsed.LastSeq()
	w := &Writer{
		file:    file,
		path:    path,
		fields:  schema.Fields(),
		lastSeq: lastSeq,
		count:   len(parsed.Entries),
	}
	utils.Infof("📂 从检查点继续: %s (已完成 %d 条, 最大序号 %d)", path, len(parsed.Entries), lastSeq)
	return w, lastSeq, nil
}

// Append 追加一条结果
// seq 必须严格大于已写入的最大序号
func (w *Writer) Append(seq int, outcome models.RecordOutcome) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if seq <= w.lastSeq {
		return fmt.Errorf("检查点序号必须递增: %d <= %d", seq, w.lastSeq)
	}
	if outcome.Status != models.StatusOK && outcome.Status != models.StatusError {
		return fmt.Errorf("不能写入状态为 %q 的结果", outcome.Status)
	}

	line, err := encodeLine(entryValues(seq, outcome, w.fields))
	if err != nil {
		return fmt.Errorf("编码检查点条目失败: %w", err)
	}
	if err := w.writeSync(line); err != nil {
		return err
	}

	w.lastSeq = seq
	w.count++
	return nil
}

// writeSync 单次写入后 fsync
func (w *Writer) writeSync(p []byte) error {
	if _, err := w.file.Write(p); err != nil {
		return fmt.Errorf("写入检查点失败: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("同步检查点失败: %w", err)
	}
	return nil
}

// LastSeq 已写入的最大序号
func (w *Writer) LastSeq() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeq
}

// Count 文件中的有效条目数
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Path 检查点路径
func (w *Writer) Path() string {
	return w.path
}

// Close 关闭文件(幂等)
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

func equalFields(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}
