package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/automation"
	"github.com/RecoveryAshes/PortalExtract/internal/config"
	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/rs/zerolog"
)

// State 记录处理状态
type State string

const (
	StateIdle              State = "Idle"
	StateAuthenticating    State = "Authenticating"
	StateNavigatingToQuery State = "NavigatingToQuery"
	StateSubmittingQuery   State = "SubmittingQuery"
	StateWaitingForResult  State = "WaitingForResult"
	StateParsingResult     State = "ParsingResult"
	StateDone              State = "Done"
)

// Machine 单条记录的提取状态机
// 独占一个页面,记录严格串行处理;会话在记录之间复用
type Machine struct {
	pa       automation.PageAutomation
	registry *config.Registry
	cfg      models.ExtractionConfig

	session models.SessionState
	state   State

	// dirty 当前页面已提交过查询,不能直接复用
	dirty bool

	log zerolog.Logger
}

// NewMachine 创建状态机
func NewMachine(pa automation.PageAutomation, registry *config.Registry, cfg models.ExtractionConfig) *Machine {
	return &Machine{
		pa:       pa,
		registry: registry,
		cfg:      cfg,
		state:    StateIdle,
		dirty:    true,
		log:      zerolog.Nop(),
	}
}

// Session 当前会话状态快照
func (m *Machine) Session() models.SessionState {
	return m.session
}

// State 当前状态
func (m *Machine) State() State {
	return m.state
}

// Process 处理一条记录,返回不可变的结果
// 记录级失败转换为 status=error 的结果;只有致命错误(AuthError)作为 error 返回
func (m *Machine) Process(ctx context.Context, rec models.Record, log zerolog.Logger) (models.RecordOutcome, error) {
	m.log = log
	start := time.Now()

	for attempt := 1; ; attempt++ {
		fields, err := m.attempt(ctx, rec, attempt)
		if err == nil {
			m.enter(StateDone, attempt)
			outcome := models.NewSuccessOutcome(rec.Identifier, fields, attempt)
			outcome.Duration = time.Since(start)
			m.enter(StateIdle, attempt)
			return outcome, nil
		}

		kind := models.KindOf(err)
		if kind.Fatal() {
			m.enter(StateIdle, attempt)
			return models.RecordOutcome{}, err
		}

		if kind.Retryable() && attempt <= m.cfg.MaxRetries {
			m.log.Warn().Err(err).Int("attempt", attempt).Msgf("记录处理超时,重试 (%d/%d)", attempt, m.cfg.MaxRetries)
			// 重试时重新打开查询模块
			m.dirty = true
			continue
		}

		m.enter(StateDone, attempt)
		outcome := models.NewErrorOutcome(rec.Identifier, err, attempt)
		outcome.Duration = time.Since(start)
		if kind == models.KindNotFound {
			m.log.Info().Int("attempt", attempt).Msg("门户无此记录")
		} else {
			m.log.Warn().Err(err).Int("attempt", attempt).Str("kind", string(kind)).Msg("记录处理失败")
		}
		m.enter(StateIdle, attempt)
		return outcome, nil
	}
}

// attempt 一次完整的 导航 → 提交 → 等待 → 解析
func (m *Machine) attempt(ctx context.Context, rec models.Record, attempt int) (map[string]string, error) {
	if !m.session.Authenticated {
		if err := m.authenticate(ctx, attempt); err != nil {
			return nil, err
		}
	}

	// 提交后被重定向到登录页时重新登录一次,不计入重试
	var grid automation.Element
	for relogged := false; ; relogged = true {
		m.enter(StateNavigatingToQuery, attempt)
		input, err := m.navigateToQuery(ctx, attempt)
		if err != nil {
			return nil, err
		}

		m.enter(StateSubmittingQuery, attempt)
		if err := m.submit(ctx, input, rec.Identifier); err != nil {
			return nil, err
		}

		m.enter(StateWaitingForResult, attempt)
		grid, err = m.waitForResult(ctx)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrSessionLost) {
			return nil, err
		}
		if relogged {
			return nil, models.NewRecordError(models.KindElementTimeout, models.FieldResultGrid, err)
		}
		if err := m.reauthenticate(ctx, attempt); err != nil {
			return nil, err
		}
	}

	m.enter(StateParsingResult, attempt)
	table, err := m.pa.ReadTable(ctx, grid)
	if err != nil {
		return nil, models.NewRecordError(models.KindParse, models.FieldResultGrid, err)
	}
	return ParseResult(table, m.registry.Schema())
}

// authenticate 登录门户,有限次尝试
func (m *Machine) authenticate(ctx context.Context, attempt int) error {
	m.enter(StateAuthenticating, attempt)

	var lastErr error
	for i := 1; i <= m.cfg.AuthAttempts; i++ {
		err := m.login(ctx)
		if err == nil {
			m.session.Authenticated = true
			m.session.Logins++
			m.dirty = false
			m.log.Info().Int("login", m.session.Logins).Msg("🔐 登录成功")
			return nil
		}
		lastErr = err
		m.log.Warn().Err(err).Msgf("登录失败 (%d/%d)", i, m.cfg.AuthAttempts)
	}
	return &models.AuthError{Attempts: m.cfg.AuthAttempts, Cause: lastErr}
}

// login 打开门户首页并提交凭据
// 首页已经是登录后页面时(会话仍然有效)直接返回
func (m *Machine) login(ctx context.Context) error {
	if err := m.pa.Navigate(ctx, m.cfg.PortalURL); err != nil {
		return fmt.Errorf("打开门户失败: %w", err)
	}

	idx, user, err := m.race(ctx, models.FieldUser, models.FieldMenuRegistry)
	if err != nil {
		return err
	}
	if idx == 1 {
		return nil
	}

	if err := m.pa.Fill(ctx, user, m.cfg.User); err != nil {
		return fmt.Errorf("填写用户名失败: %w", err)
	}

	password, err := m.wait(ctx, models.FieldPassword, automation.Present, m.cfg.WaitTimeout)
	if err != nil {
		return err
	}
	if err := m.pa.Fill(ctx, password, m.cfg.Password); err != nil {
		return fmt.Errorf("填写密码失败: %w", err)
	}

	button, err := m.wait(ctx, models.FieldLoginButton, automation.Clickable, m.cfg.WaitTimeout)
	if err != nil {
		return err
	}
	if err := m.pa.Click(ctx, button); err != nil {
		return fmt.Errorf("点击登录按钮失败: %w", err)
	}

	// 登录后菜单出现即认为会话建立
	if _, err := m.wait(ctx, models.FieldMenuRegistry, automation.Present, m.cfg.WaitTimeout); err != nil {
		return err
	}
	return nil
}

// navigateToQuery 进入查询模块并返回标识输入框
// 发现登录框时判定会话丢失,重新登录后再进入一次
func (m *Machine) navigateToQuery(ctx context.Context, attempt int) (automation.Element, error) {
	if !m.dirty {
		// 刚加载的页面已有输入框时直接使用
		if input, err := m.wait(ctx, models.FieldIdentifier, automation.Present, m.cfg.PollInterval); err == nil {
			return input, nil
		}
	}

	input, err := m.openQueryModule(ctx)
	if !errors.Is(err, models.ErrSessionLost) {
		return input, err
	}

	if err := m.reauthenticate(ctx, attempt); err != nil {
		return nil, err
	}
	m.enter(StateNavigatingToQuery, attempt)
	return m.openQueryModule(ctx)
}

// reauthenticate 作废当前会话并重新登录
func (m *Machine) reauthenticate(ctx context.Context, attempt int) error {
	m.log.Warn().Msg("会话已丢失,重新登录")
	m.session.Invalidate()
	m.session.ReAuths++
	return m.authenticate(ctx, attempt)
}

// openQueryModule 通过查询地址或菜单打开查询模块
func (m *Machine) openQueryModule(ctx context.Context) (automation.Element, error) {
	if m.cfg.QueryURL != "" {
		if err := m.pa.Navigate(ctx, m.cfg.QueryURL); err != nil {
			return nil, fmt.Errorf("打开查询模块失败: %w", err)
		}
	} else {
		if err := m.openViaMenu(ctx); err != nil {
			return nil, err
		}
	}
	m.dirty = false

	idx, input, err := m.race(ctx, models.FieldIdentifier, models.FieldUser)
	if err != nil {
		return nil, models.NewRecordError(models.KindSelectorNotFound, models.FieldIdentifier, err)
	}
	if idx == 1 {
		return nil, models.ErrSessionLost
	}
	return input, nil
}

// openViaMenu 依次点击 menu_cadastro 和(可选的) menu_proposta
func (m *Machine) openViaMenu(ctx context.Context) error {
	idx, menu, err := m.race(ctx, models.FieldMenuRegistry, models.FieldUser)
	if err != nil {
		return models.NewRecordError(models.KindElementTimeout, models.FieldMenuRegistry, err)
	}
	if idx == 1 {
		return models.ErrSessionLost
	}
	if err := m.pa.Click(ctx, menu); err != nil {
		return fmt.Errorf("点击菜单失败: %w", err)
	}

	if !m.registry.Has(models.FieldMenuProposal) {
		return nil
	}
	idx, proposal, err := m.race(ctx, models.FieldMenuProposal, models.FieldUser)
	if err != nil {
		return models.NewRecordError(models.KindElementTimeout, models.FieldMenuProposal, err)
	}
	if idx == 1 {
		return models.ErrSessionLost
	}
	if err := m.pa.Click(ctx, proposal); err != nil {
		return fmt.Errorf("点击菜单失败: %w", err)
	}
	return nil
}

// submit 填写标识并提交查询
// 未配置查询按钮时通过失焦触发查询
func (m *Machine) submit(ctx context.Context, input automation.Element, identifier string) error {
	if err := m.pa.Fill(ctx, input, identifier); err != nil {
		return fmt.Errorf("填写标识失败: %w", err)
	}
	m.dirty = true

	if !m.registry.Has(models.FieldQueryButton) {
		if err := m.pa.Blur(ctx, input); err != nil {
			return fmt.Errorf("触发查询失败: %w", err)
		}
		return nil
	}

	button, err := m.wait(ctx, models.FieldQueryButton, automation.Clickable, m.cfg.WaitTimeout)
	if err != nil {
		return models.NewRecordError(models.KindSelectorNotFound, models.FieldQueryButton, err)
	}
	if err := m.pa.Click(ctx, button); err != nil {
		return fmt.Errorf("点击查询按钮失败: %w", err)
	}
	return nil
}

// waitForResult 等待结果表、无数据提示或错误提示中最先出现的一个
// 登录框先出现时返回 ErrSessionLost
func (m *Machine) waitForResult(ctx context.Context) (automation.Element, error) {
	grid, _ := m.registry.Resolve(models.FieldResultGrid)
	conds := automation.Conditions(models.FieldResultGrid, grid, automation.Populated)
	nGrid := len(conds)

	nNoData := 0
	if chain, err := m.registry.Resolve(models.FieldNoDataMarker); err == nil {
		conds = append(conds, automation.Conditions(models.FieldNoDataMarker, chain, automation.Present)...)
		nNoData = len(chain)
	}
	nError := 0
	if chain, err := m.registry.Resolve(models.FieldErrorMarker); err == nil {
		conds = append(conds, automation.Conditions(models.FieldErrorMarker, chain, automation.Present)...)
		nError = len(chain)
	}
	user, _ := m.registry.Resolve(models.FieldUser)
	conds = append(conds, automation.Conditions(models.FieldUser, user, automation.Present)...)

	idx, el, err := m.pa.WaitAny(ctx, conds, m.cfg.WaitTimeout)
	switch {
	case err != nil:
		return nil, models.NewRecordError(models.KindElementTimeout, models.FieldResultGrid, err)
	case idx < nGrid:
		return el, nil
	case idx < nGrid+nNoData:
		return nil, models.NewRecordError(models.KindNotFound, "", nil)
	case idx >= nGrid+nNoData+nError:
		return nil, models.ErrSessionLost
	}

	text, err := el.Text()
	if err != nil || text == "" {
		return nil, models.NewRecordError(models.KindPortal, models.FieldErrorMarker, err)
	}
	return nil, models.NewRecordError(models.KindPortal, "", errors.New(text))
}

// wait 按候选顺序等待字段的任一定位器满足条件
// 所有候选均失败时返回 SelectorNotFound
func (m *Machine) wait(ctx context.Context, field string, kind automation.ConditionKind, timeout time.Duration) (automation.Element, error) {
	chain, err := m.registry.Resolve(field)
	if err != nil {
		return nil, err
	}
	_, el, err := m.pa.WaitAny(ctx, automation.Conditions(field, chain, kind), timeout)
	if err != nil {
		return nil, models.NewRecordError(models.KindSelectorNotFound, field, err)
	}
	return el, nil
}

// race 在两个字段之间竞争,返回先出现者(0 或 1)
func (m *Machine) race(ctx context.Context, first, second string) (int, automation.Element, error) {
	a, err := m.registry.Resolve(first)
	if err != nil {
		return 0, nil, err
	}
	b, err := m.registry.Resolve(second)
	if err != nil {
		return 0, nil, err
	}

	conds := automation.Conditions(first, a, automation.Present)
	conds = append(conds, automation.Conditions(second, b, automation.Present)...)

	idx, el, err := m.pa.WaitAny(ctx, conds, m.cfg.WaitTimeout)
	if err != nil {
		return 0, nil, err
	}
	if idx < len(a) {
		return 0, el, nil
	}
	return 1, el, nil
}

// enter 状态迁移
func (m *Machine) enter(state State, attempt int) {
	m.state = state
	m.log.Debug().Str("state", string(state)).Int("attempt", attempt).Msg("状态迁移")
}
