package core

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/stretchr/testify/require"
)

const (
	testPortalURL = "https://portal.example/login"
	testQueryURL  = "https://portal.example/cadastro/proposta"
	testUser      = "operador"
	testPassword  = "s3nha"
)

// fakeElement 模拟页面元素
type fakeElement struct {
	field   string
	locator string
	text    string
}

func (e fakeElement) Text() (string, error) {
	return e.text, nil
}

// fakeResult 门户对某个标识的响应
type fakeResult struct {
	table     automation.Table
	notFound  bool
	portalErr string
}

// fakePortal 内存中的门户模拟
// 页面之间的跳转、登录和会话过期按真实门户的行为建模,等待不会真正休眠
type fakePortal struct {
	authenticated bool
	page          string

	// missing 在DOM中不存在的定位器 (Locator.String())
	missing map[string]bool

	results  map[string]fakeResult
	timeouts map[string]int // 标识 → 剩余的结果超时次数

	// expireAfter 提交指定次数查询后会话过期, 0 表示不过期
	expireAfter int

	// redirects 第N次查询提交时会话已过期,门户直接跳回登录页
	redirects map[int]bool

	typed   map[string]string
	current string
	result  fakeResult
	queries int

	submits     map[string]int
	loginClicks int
	blurs       int
	filledWith  []string // campo_cpf 命中的定位器
	closed      bool

	onSubmit func(identifier string)
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		page:      "blank",
		missing:   make(map[string]bool),
		results:   make(map[string]fakeResult),
		timeouts:  make(map[string]int),
		redirects: make(map[int]bool),
		typed:     make(map[string]string),
		submits:   make(map[string]int),
	}
}

var pageFields = map[string][]string{
	"login": {models.FieldUser, models.FieldPassword, models.FieldLoginButton},
	"home":  {models.FieldMenuRegistry, models.FieldMenuProposal},
	"query": {models.FieldMenuRegistry, models.FieldMenuProposal, models.FieldIdentifier, models.FieldQueryButton},
}

func (f *fakePortal) visible(field string) (bool, string) {
	page := f.page
	if page == "pending" || page == "result" {
		page = "query"
	}
	for _, name := range pageFields[page] {
		if name == field {
			return true, ""
		}
	}
	if f.page != "result" {
		return false, ""
	}
	switch {
	case field == models.FieldResultGrid && !f.result.notFound && f.result.portalErr == "":
		return true, ""
	case field == models.FieldNoDataMarker && f.result.notFound:
		return true, "Nenhum registro encontrado"
	case field == models.FieldErrorMarker && f.result.portalErr != "":
		return true, f.result.portalErr
	}
	return false, ""
}

func (f *fakePortal) Navigate(_ context.Context, url string) error {
	switch url {
	case testPortalURL:
		if f.authenticated {
			f.page = "home"
		} else {
			f.page = "login"
		}
	case testQueryURL:
		if f.authenticated {
			f.page = "query"
		} else {
			f.page = "login"
		}
	default:
		return fmt.Errorf("net::ERR_NAME_NOT_RESOLVED %s", url)
	}
	return nil
}

func (f *fakePortal) WaitAny(_ context.Context, conds []automation.Condition, _ time.Duration) (int, automation.Element, error) {
	for i, c := range conds {
		if f.missing[c.Locator.String()] {
			continue
		}
		if ok, text := f.visible(c.Field); ok {
			return i, fakeElement{field: c.Field, locator: c.Locator.String(), text: text}, nil
		}
	}
	return -1, nil, fmt.Errorf("%w: %v", models.ErrElementTimeout, conds)
}

func (f *fakePortal) Fill(_ context.Context, el automation.Element, text string) error {
	e := el.(fakeElement)
	f.typed[e.field] = text
	if e.field == models.FieldIdentifier {
		f.current = text
		f.filledWith = append(f.filledWith, e.locator)
	}
	return nil
}

func (f *fakePortal) Click(_ context.Context, el automation.Element) error {
	switch el.(fakeElement).field {
	case models.FieldLoginButton:
		f.loginClicks++
		if f.typed[models.FieldUser] == testUser && f.typed[models.FieldPassword] == testPassword {
			f.authenticated = true
			f.page = "home"
		}
	case models.FieldMenuRegistry, models.FieldMenuProposal:
		if f.authenticated {
			f.page = "query"
		} else {
			f.page = "login"
		}
	case models.FieldQueryButton:
		f.submit()
	}
	return nil
}

func (f *fakePortal) Blur(_ context.Context, el automation.Element) error {
	f.blurs++
	if el.(fakeElement).field == models.FieldIdentifier {
		f.submit()
	}
	return nil
}

func (f *fakePortal) submit() {
	id := f.current
	f.submits[id]++
	f.queries++
	if f.onSubmit != nil {
		f.onSubmit(id)
	}

	if f.redirects[f.queries] {
		f.authenticated = false
		f.page = "login"
		return
	}

	if f.timeouts[id] > 0 {
		f.timeouts[id]--
		f.page = "pending"
		return
	}

	res, ok := f.results[id]
	if !ok {
		res = fakeResult{notFound: true}
	}
	f.result = res
	f.page = "result"

	if f.expireAfter > 0 && f.queries >= f.expireAfter {
		f.authenticated = false
		f.expireAfter = 0
	}
}

func (f *fakePortal) ReadTable(_ context.Context, el automation.Element) (automation.Table, error) {
	return f.result.table, nil
}

func (f *fakePortal) Close() error {
	f.closed = true
	return nil
}

func (f *fakePortal) totalSubmits() int {
	n := 0
	for _, c := range f.submits {
		n += c
	}
	return n
}

// resultTable 门户结果表
func resultTable(parcelas, saldo string) automation.Table {
	return automation.Table{
		Header: []string{"Proposta", "Parcelas Pagas", "Saldo"},
		Rows:   [][]string{{"0001", parcelas, saldo}},
	}
}

func loc(raw string) models.Locator {
	return models.ParseLocator(raw, models.StrategyCSS)
}

// testRegistry 测试用选择器映射
func testRegistry(t *testing.T, without ...string) *config.Registry {
	t.Helper()
	entries := map[string][]models.Locator{
		models.FieldUser:         {loc("id:username")},
		models.FieldPassword:     {loc("id:password")},
		models.FieldLoginButton:  {loc("css:button#entrar")},
		models.FieldMenuRegistry: {loc("text:Cadastro")},
		models.FieldMenuProposal: {loc("text:Proposta")},
		models.FieldIdentifier:   {loc("id:cpf_input"), loc("name:cpf")},
		models.FieldQueryButton:  {loc("id:consultar")},
		models.FieldResultGrid:   {loc("css:table.grid")},
		models.FieldNoDataMarker: {loc("text:Nenhum registro encontrado")},
		models.FieldErrorMarker:  {loc("css:.alert-danger")},
	}
	for _, field := range without {
		delete(entries, field)
	}
	reg, err := config.NewRegistry(entries, models.DefaultSchema())
	require.NoError(t, err)
	return reg
}

// testConfig 测试用运行配置
func testConfig(t *testing.T) models.ExtractionConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := models.DefaultExtractionConfig()
	cfg.PortalURL = testPortalURL
	cfg.User = testUser
	cfg.Password = testPassword
	cfg.WaitTimeout = time.Second
	cfg.PollInterval = 10 * time.Millisecond
	cfg.MaxRetries = 2
	cfg.AuthAttempts = 3
	cfg.InputPath = filepath.Join(dir, "cpfs.csv")
	cfg.SelectorsPath = filepath.Join(dir, "selectors.yaml")
	cfg.CheckpointPath = filepath.Join(dir, "output", "checkpoint.csv")
	cfg.OutputPath = filepath.Join(dir, "output", "resultados.csv")
	cfg.MinFreeMemoryMB = 0
	return cfg
}
