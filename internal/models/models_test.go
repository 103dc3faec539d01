package models

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"有效的HTTP URL", "http://example.com", false},
		{"有效的HTTPS URL", "https://example.com", false},
		{"带路径的URL", "https://portal.example.com/login", false},
		{"无效的协议", "ftp://example.com", true},
		{"无效的URL", "not a url", true},
		{"空URL", "", true},
		{"无协议", "example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNormalizeIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"纯数字", "10000000191", "10000000191", false},
		{"带格式的CPF", "100.000.001-91", "100.000.001-91", false},
		{"去除空白", "  50000000285 ", "50000000285", false},
		{"CNPJ格式", "12.345.678/0001-90", "12.345.678/0001-90", false},
		{"空字符串", "", "", true},
		{"仅空白", "   ", "", true},
		{"非法字符", "1000;0191", "", true},
		{"内部空格", "100 000", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeIdentifier(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeIdentifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeIdentifier() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLocator(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Locator
	}{
		{"无前缀使用默认策略", "cpf_input", Locator{StrategyID, "cpf_input"}},
		{"CSS前缀", "css:#grid > table", Locator{StrategyCSS, "#grid > table"}},
		{"XPath前缀", "xpath://table[@id='x']", Locator{StrategyXPath, "//table[@id='x']"}},
		{"文本前缀", "text: Consultar ", Locator{StrategyText, "Consultar"}},
		{"大写前缀", "NAME:usuario", Locator{StrategyName, "usuario"}},
		{"未知前缀保留原值", "a:hover", Locator{StrategyID, "a:hover"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLocator(tt.raw, StrategyID)
			if got != tt.want {
				t.Errorf("ParseLocator(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
			if err := got.Validate(); err != nil {
				t.Errorf("Validate() error = %v", err)
			}
		})
	}
}

func TestLocator_Validate(t *testing.T) {
	if err := (Locator{Strategy: "jquery", Value: "#a"}).Validate(); err == nil {
		t.Error("未知策略应该返回错误")
	}
	if err := (Locator{Strategy: StrategyCSS, Value: " "}).Validate(); err == nil {
		t.Error("空定位值应该返回错误")
	}
}

func TestExtractionConfig_Validate(t *testing.T) {
	valid := func() ExtractionConfig {
		c := DefaultExtractionConfig()
		c.PortalURL = "https://portal.example.com"
		c.User = "operador"
		c.Password = "segredo"
		c.InputPath = "cpfs.xlsx"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *ExtractionConfig)
		wantErr bool
	}{
		{"有效配置", func(c *ExtractionConfig) {}, false},
		{"门户地址无效", func(c *ExtractionConfig) { c.PortalURL = "portal" }, true},
		{"查询地址无效", func(c *ExtractionConfig) { c.QueryURL = "ftp://x" }, true},
		{"缺少密码", func(c *ExtractionConfig) { c.Password = "" }, true},
		{"缺少输入文件", func(c *ExtractionConfig) { c.InputPath = "" }, true},
		{"超时过小", func(c *ExtractionConfig) { c.WaitTimeout = 100 * time.Millisecond }, true},
		{"轮询间隔大于超时", func(c *ExtractionConfig) { c.PollInterval = time.Minute }, true},
		{"重试次数为负", func(c *ExtractionConfig) { c.MaxRetries = -1 }, true},
		{"重试次数为零", func(c *ExtractionConfig) { c.MaxRetries = 0 }, false},
		{"登录次数为零", func(c *ExtractionConfig) { c.AuthAttempts = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"空错误", nil, ""},
		{"配置错误", &ConfigError{FilePath: "s.yaml", Cause: errors.New("x")}, KindConfig},
		{"包装的配置错误", fmt.Errorf("加载: %w", &ConfigError{Cause: errors.New("x")}), KindConfig},
		{"登录错误", &AuthError{Attempts: 3, Cause: ErrElementTimeout}, KindAuth},
		{"记录错误", NewRecordError(KindParse, "saldo", nil), KindParse},
		{"无数据", NewRecordError(KindNotFound, "", nil), KindNotFound},
		{"超时哨兵", ErrElementTimeout, KindElementTimeout},
		{"未分类错误按超时处理", errors.New("navigation failed"), KindElementTimeout},
		{"检查点结构错误", fmt.Errorf("行3: %w", ErrStructuralCheckpoint), KindStructuralCheckpoint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorKind_Classes(t *testing.T) {
	if !KindElementTimeout.Retryable() {
		t.Error("ElementTimeout 应该可重试")
	}
	for _, k := range []ErrorKind{KindSelectorNotFound, KindParse, KindNotFound, KindPortal} {
		if k.Retryable() {
			t.Errorf("%s 不应可重试", k)
		}
		if k.Fatal() {
			t.Errorf("%s 不应是致命错误", k)
		}
	}
	if !KindConfig.Fatal() || !KindAuth.Fatal() {
		t.Error("ConfigError 和 AuthError 应该是致命错误")
	}
}

func TestRecordError_Detail(t *testing.T) {
	tests := []struct {
		name string
		err  *RecordError
		want string
	}{
		{"无数据", NewRecordError(KindNotFound, FieldResultGrid, nil), "not found"},
		{"带字段", NewRecordError(KindSelectorNotFound, FieldIdentifier, nil), "SelectorNotFound: campo_cpf"},
		{"带原因", NewRecordError(KindPortal, "", errors.New("Sistema indisponível")), "PortalError: Sistema indisponível"},
		{"仅分类", NewRecordError(KindElementTimeout, "", nil), "ElementTimeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Detail(); got != tt.want {
				t.Errorf("Detail() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecordOutcome(t *testing.T) {
	fields := map[string]string{"parcelasPagas": "12", "saldo": "1235.00"}
	ok := NewSuccessOutcome("10000000191", fields, 1)
	fields["saldo"] = "0"

	if ok.Value("saldo") != "1235.00" {
		t.Errorf("成功结果应持有字段副本, 得到 %q", ok.Value("saldo"))
	}
	if ok.Value("inexistente") != Placeholder {
		t.Error("缺失字段应返回占位符")
	}

	failed := NewErrorOutcome("50000000285", NewRecordError(KindNotFound, "", nil), 1)
	if failed.Status != StatusError || failed.Detail != NotFoundDetail {
		t.Errorf("失败结果不正确: %+v", failed)
	}
	if failed.Value("saldo") != Placeholder {
		t.Error("失败结果的字段应为占位符")
	}

	timeout := NewErrorOutcome("1", ErrElementTimeout, 3)
	if timeout.Kind != KindElementTimeout || timeout.Detail == "" {
		t.Errorf("超时结果不正确: %+v", timeout)
	}
}

func TestRunStats_Observe(t *testing.T) {
	var stats RunStats
	stats.Observe(NewSuccessOutcome("1", nil, 1))
	stats.Observe(NewErrorOutcome("2", ErrElementTimeout, 3))
	stats.Observe(NewErrorOutcome("3", NewRecordError(KindNotFound, "", nil), 1))

	if stats.Processed != 3 || stats.Succeeded != 1 || stats.Failed != 2 {
		t.Errorf("计数错误: %+v", stats)
	}
	if stats.Retries != 2 {
		t.Errorf("Retries = %d, want 2", stats.Retries)
	}
	if stats.ErrorsByKind[KindElementTimeout] != 1 || stats.ErrorsByKind[KindNotFound] != 1 {
		t.Errorf("分类计数错误: %v", stats.ErrorsByKind)
	}
}

func TestRunReport_JSON(t *testing.T) {
	config := DefaultExtractionConfig()
	config.PortalURL = "https://portal.example.com"
	config.Password = "segredo"

	report := NewRunReport(config)
	if report.RunID == "" {
		t.Fatal("运行ID不应为空")
	}
	report.Finish(RunStatusCompleted, nil)

	data, err := report.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON() error = %v", err)
	}

	var decoded RunReport
	if err := decoded.FromJSON(data); err != nil {
		t.Fatalf("FromJSON() error = %v", err)
	}
	if decoded.RunID != report.RunID {
		t.Errorf("解码后的RunID不匹配: got %v, want %v", decoded.RunID, report.RunID)
	}
	if decoded.Config.Password != "" {
		t.Error("密码不应被序列化")
	}
}

func TestCliHeaders_Parse(t *testing.T) {
	headers, err := CliHeaders{"Accept-Language: pt-BR", "X-Trace:  abc "}.Parse()
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if headers.Get("Accept-Language") != "pt-BR" || headers.Get("X-Trace") != "abc" {
		t.Errorf("解析结果错误: %v", headers)
	}

	if _, err := (CliHeaders{"sem-separador"}).Parse(); err == nil {
		t.Error("缺少冒号应该返回错误")
	}
	if _, err := (CliHeaders{": valor"}).Parse(); err == nil {
		t.Error("空名称应该返回错误")
	}
}
