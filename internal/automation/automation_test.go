package automation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/go-rod/rod"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		loc  models.Locator
		want Query
	}{
		{"CSS原样", models.Locator{Strategy: models.StrategyCSS, Value: "#grid table"}, Query{Expr: "#grid table"}},
		{"id属性", models.Locator{Strategy: models.StrategyID, Value: "cpf_input"}, Query{Expr: `[id="cpf_input"]`}},
		{"id含引号", models.Locator{Strategy: models.StrategyID, Value: `a"b`}, Query{Expr: `[id="a\"b"]`}},
		{"name属性", models.Locator{Strategy: models.StrategyName, Value: "cpf"}, Query{Expr: `[name="cpf"]`}},
		{"XPath原样", models.Locator{Strategy: models.StrategyXPath, Value: "//table[1]"}, Query{Expr: "//table[1]", XPath: true}},
		{"文本", models.Locator{Strategy: models.StrategyText, Value: " Consultar  CPF "}, Query{Expr: `//*[normalize-space(text())="Consultar CPF"]`, XPath: true}},
		{"文本含双引号", models.Locator{Strategy: models.StrategyText, Value: `Clique "aqui"`}, Query{Expr: `//*[normalize-space(text())='Clique "aqui"']`, XPath: true}},
		{"文本含两种引号", models.Locator{Strategy: models.StrategyText, Value: `a"b'c`}, Query{Expr: `//*[normalize-space(text())=concat("a", '"', "b'c")]`, XPath: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Translate(tt.loc)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}

	_, err := Translate(models.Locator{Strategy: "jquery", Value: "x"})
	require.Error(t, err)
}

func TestConditions(t *testing.T) {
	chain := []models.Locator{
		{Strategy: models.StrategyID, Value: "a"},
		{Strategy: models.StrategyCSS, Value: ".b"},
	}
	conds := Conditions(models.FieldIdentifier, chain, Present)
	require.Len(t, conds, 2)
	require.Equal(t, chain[1], conds[1].Locator)
	require.Equal(t, Present, conds[0].Kind)
	require.Equal(t, "present(campo_cpf=id:a)", conds[0].String())
}

const resultGrid = `
<div id="gridResultados">
  <table>
    <thead>
      <tr><th>CPF</th><th> Parcelas
          Pagas </th><th>Saldo</th></tr>
    </thead>
    <tbody>
      <tr><td>100.000.001-91</td><td>12</td><td>R$ 1.235,00</td></tr>
      <tr><td></td><td> </td><td></td></tr>
      <tr><td>100.000.001-91</td><td>3</td><td>10,00</td></tr>
    </tbody>
  </table>
</div>`

func TestParseTable(t *testing.T) {
	table, err := ParseTable(resultGrid)
	require.NoError(t, err)

	require.Equal(t, []string{"CPF", "Parcelas Pagas", "Saldo"}, table.Header)
	require.Len(t, table.Rows, 2, "空白行应被忽略")
	require.Equal(t, []string{"100.000.001-91", "12", "R$ 1.235,00"}, table.Rows[0])

	require.Equal(t, 1, table.Column("parcelas  pagas"))
	require.Equal(t, 2, table.Column("SALDO"))
	require.Equal(t, -1, table.Column("Situação"))
	require.False(t, table.Empty())
}

func TestParseTable_Variants(t *testing.T) {
	t.Run("无th时首行为标题", func(t *testing.T) {
		table, err := ParseTable(`<table><tr><td>Saldo</td></tr><tr><td>5,00</td></tr></table>`)
		require.NoError(t, err)
		require.Equal(t, []string{"Saldo"}, table.Header)
		require.Equal(t, [][]string{{"5,00"}}, table.Rows)
	})

	t.Run("只有标题", func(t *testing.T) {
		table, err := ParseTable(`<table><tr><th>Saldo</th></tr></table>`)
		require.NoError(t, err)
		require.True(t, table.Empty())
	})

	t.Run("忽略嵌套表格", func(t *testing.T) {
		table, err := ParseTable(`<table><tr><th>A</th></tr><tr><td>1<table><tr><td>x</td></tr></table></td></tr></table>`)
		require.NoError(t, err)
		require.Len(t, table.Rows, 1)
	})

	t.Run("没有表格", func(t *testing.T) {
		_, err := ParseTable(`<div>Nenhum registro encontrado</div>`)
		require.Error(t, err)
	})
}

func TestFlattenHeaders(t *testing.T) {
	h := map[string][]string{
		"X-B":             {"2"},
		"Accept-Language": {"pt-BR", "en"},
		"X-Empty":         {},
	}
	require.Equal(t, []string{"Accept-Language", "pt-BR", "X-B", "2"}, flattenHeaders(h))
}

func TestActionContext_BoundedWithoutCancel(t *testing.T) {
	ra := &RodAutomation{opts: RodOptions{ActionTimeout: 20 * time.Millisecond}}

	// 状态机使用不可取消的ctx处理记录
	actx, cancel := ra.actionContext(context.WithoutCancel(context.Background()))
	defer cancel()

	_, ok := actx.Deadline()
	require.True(t, ok, "元素操作必须有截止时间")

	select {
	case <-actx.Done():
	case <-time.After(time.Second):
		t.Fatal("操作上下文未在超时后结束")
	}
	require.ErrorIs(t, actx.Err(), context.DeadlineExceeded)
}

func TestActionError(t *testing.T) {
	live := context.Background()

	t.Run("成功", func(t *testing.T) {
		require.NoError(t, actionError(live, "点击失败", nil))
	})

	t.Run("超时归为元素超时", func(t *testing.T) {
		err := actionError(live, "点击失败", fmt.Errorf("hover: %w", context.DeadlineExceeded))
		require.ErrorIs(t, err, models.ErrElementTimeout)
		require.Equal(t, models.KindElementTimeout, models.KindOf(err))
	})

	t.Run("上下文已到期", func(t *testing.T) {
		expired, cancel := context.WithTimeout(live, 0)
		defer cancel()
		<-expired.Done()
		err := actionError(expired, "输入文本失败", errors.New("cdp: context closed"))
		require.ErrorIs(t, err, models.ErrElementTimeout)
	})

	t.Run("其他错误原样包装", func(t *testing.T) {
		cause := errors.New("node detached")
		err := actionError(live, "移除焦点失败", cause)
		require.ErrorIs(t, err, cause)
		require.NotErrorIs(t, err, models.ErrElementTimeout)
		require.Contains(t, err.Error(), "移除焦点失败")
	})
}

// causeError 包装错误但不格式化被包装的错误(rod错误的Error()需要真实元素)
type causeError struct{ cause error }

func (e causeError) Error() string { return "interactable" }
func (e causeError) Unwrap() error { return e.cause }

func TestObstructed(t *testing.T) {
	require.True(t, obstructed(&rod.CoveredError{}))
	require.True(t, obstructed(causeError{&rod.CoveredError{}}))
	require.True(t, obstructed(&rod.InvisibleShapeError{}))
	require.True(t, obstructed(&rod.NoPointerEventsError{}))
	require.False(t, obstructed(errors.New("eval failed")))
}

func TestResourceMonitor_Preflight(t *testing.T) {
	newMonitor := func(available uint64, cpuErr error) *ResourceMonitor {
		rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb})
		rm.memFn = func() (*mem.VirtualMemoryStat, error) {
			return &mem.VirtualMemoryStat{Total: 8192 * mb, Available: available}, nil
		}
		rm.cpuFn = func(time.Duration, bool) ([]float64, error) {
			return []float64{95}, cpuErr
		}
		return rm
	}

	t.Run("内存充足", func(t *testing.T) {
		rm := newMonitor(2048*mb, nil)
		require.NoError(t, rm.Preflight())
		require.Equal(t, float64(95), rm.Last().CPUPercent)
	})

	t.Run("内存不足", func(t *testing.T) {
		require.Error(t, newMonitor(100*mb, nil).Preflight())
	})

	t.Run("CPU采样失败不影响预检", func(t *testing.T) {
		require.NoError(t, newMonitor(2048*mb, errors.New("no cpu")).Preflight())
	})

	t.Run("内存采样失败时跳过", func(t *testing.T) {
		rm := newMonitor(0, nil)
		rm.memFn = func() (*mem.VirtualMemoryStat, error) { return nil, errors.New("no mem") }
		require.NoError(t, rm.Preflight())
	})
}

func TestResourceMonitor_Check(t *testing.T) {
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	available := uint64(2048 * mb)

	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb})
	rm.now = func() time.Time { return clock }
	rm.memFn = func() (*mem.VirtualMemoryStat, error) {
		return &mem.VirtualMemoryStat{Total: 8192 * mb, Available: available}, nil
	}
	rm.cpuFn = func(time.Duration, bool) ([]float64, error) { return []float64{1}, nil }

	require.True(t, rm.Check(5*time.Second), "首次调用应采样")
	require.False(t, rm.Check(5*time.Second), "间隔内不应重复采样")

	available = 100 * mb
	clock = clock.Add(6 * time.Second)
	require.True(t, rm.Check(5*time.Second))
	require.Equal(t, uint64(100*mb), rm.Last().AvailableMemory)
	require.True(t, rm.warned)

	available = 1024 * mb
	clock = clock.Add(6 * time.Second)
	require.True(t, rm.Check(5*time.Second))
	require.False(t, rm.warned, "内存恢复后应重置告警")
}

func TestResourceMonitor_CheckAfterPreflight(t *testing.T) {
	clock := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	samples := 0

	rm := NewResourceMonitor(ResourceMonitorConfig{MinFreeMemory: 512 * mb})
	rm.now = func() time.Time { return clock }
	rm.memFn = func() (*mem.VirtualMemoryStat, error) {
		samples++
		return &mem.VirtualMemoryStat{Total: 8192 * mb, Available: 2048 * mb}, nil
	}
	rm.cpuFn = func(time.Duration, bool) ([]float64, error) { return []float64{1}, nil }

	require.NoError(t, rm.Preflight())
	require.False(t, rm.Check(5*time.Second), "预检刚采样过")
	require.Equal(t, 1, samples)
}
