package automation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/RecoveryAshes/PortalExtract/internal/models"
	"github.com/RecoveryAshes/PortalExtract/internal/utils"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// DefaultPollInterval 默认条件轮询间隔
const DefaultPollInterval = 250 * time.Millisecond

// DefaultActionTimeout 单次元素操作(输入、点击、读取)的默认上限
const DefaultActionTimeout = 30 * time.Second

// navigateTimeout 页面导航和加载的上限
const navigateTimeout = 60 * time.Second

// RodOptions 浏览器启动选项
type RodOptions struct {
	// ControlURL 远程浏览器调试地址(ws://... 或 http://host:9222),为空时本地启动
	ControlURL string

	// BrowserBin 本地浏览器路径,为空时自动查找或下载
	BrowserBin string

	Headless bool
	Stealth  bool

	// Headers 设置到页面所有请求上的额外头部
	Headers http.Header

	// PollInterval 条件轮询间隔
	PollInterval time.Duration

	// ActionTimeout 单次元素操作的上限
	// rod 在元素被遮挡或不可写时会一直重试,调用方的ctx不带截止时间
	ActionTimeout time.Duration
}

// RodAutomation 基于go-rod的页面自动化实现
// 单页面,非并发安全,由状态机独占
type RodAutomation struct {
	opts     RodOptions
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// rodElement 包装rod元素以实现 Element 接口
type rodElement struct {
	el *rod.Element
}

// Text 元素可见文本
func (e rodElement) Text() (string, error) {
	return e.el.Text()
}

// NewRodAutomation 启动(或连接)浏览器并打开一个页面
func NewRodAutomation(opts RodOptions) (*RodAutomation, error) {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = DefaultActionTimeout
	}

	ra := &RodAutomation{opts: opts}

	controlURL, err := ra.resolveControlURL()
	if err != nil {
		return nil, err
	}

	ra.browser = rod.New().ControlURL(controlURL)
	if err := ra.browser.Connect(); err != nil {
		ra.cleanupLauncher()
		return nil, fmt.Errorf("连接浏览器失败: %w", err)
	}
	utils.Debugf("浏览器已连接: %s", controlURL)

	if err := ra.openPage(); err != nil {
		_ = ra.Close()
		return nil, err
	}

	return ra, nil
}

// resolveControlURL 远程地址优先,否则本地启动浏览器
func (ra *RodAutomation) resolveControlURL() (string, error) {
	if ra.opts.ControlURL != "" {
		u, err := launcher.ResolveURL(ra.opts.ControlURL)
		if err != nil {
			return "", fmt.Errorf("解析远程浏览器地址失败: %w", err)
		}
		return u, nil
	}

	l := launcher.New().
		Headless(ra.opts.Headless).
		Set("ignore-certificate-errors").
		Set("disable-infobars").
		Set("disable-extensions").
		Set("disable-gpu").
		NoSandbox(true)
	if ra.opts.BrowserBin != "" {
		l = l.Bin(ra.opts.BrowserBin)
	}
	utils.Debugf("浏览器启动参数: --ignore-certificate-errors --disable-infobars --disable-extensions --disable-gpu --no-sandbox")

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("启动浏览器失败: %w", err)
	}
	ra.launcher = l
	utils.Warnf("浏览器已配置为跳过HTTPS证书验证,适用于内网门户的自签名证书")
	return controlURL, nil
}

// openPage 创建页面并注入反检测脚本和额外头部
func (ra *RodAutomation) openPage() error {
	page, err := ra.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("创建页面失败: %w", err)
	}
	ra.page = page

	if ra.opts.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			return fmt.Errorf("注入反检测脚本失败: %w", err)
		}
		utils.Debugf("已注入反检测脚本")
	}

	if len(ra.opts.Headers) > 0 {
		if _, err := page.SetExtraHeaders(flattenHeaders(ra.opts.Headers)); err != nil {
			return fmt.Errorf("设置额外头部失败: %w", err)
		}
		utils.Debugf("已设置 %d 个额外头部", len(ra.opts.Headers))
	}
	return nil
}

// flattenHeaders 转换为 SetExtraHeaders 需要的 键,值,键,值 列表(按名称排序)
func flattenHeaders(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names)*2)
	for _, name := range names {
		if values := h[name]; len(values) > 0 {
			out = append(out, name, values[0])
		}
	}
	return out
}

// Navigate 打开URL并等待加载完成
func (ra *RodAutomation) Navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()

	p := ra.page.Context(navCtx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("导航失败 [%s]: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("等待页面加载失败 [%s]: %w", url, err)
	}
	return nil
}

// WaitAny 按轮询间隔检查条件,直到任一满足或超时
func (ra *RodAutomation) WaitAny(ctx context.Context, conds []Condition, timeout time.Duration) (int, Element, error) {
	if len(conds) == 0 {
		return -1, nil, fmt.Errorf("没有等待条件")
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(ra.opts.PollInterval)
	defer ticker.Stop()

	for {
		for i, cond := range conds {
			el, ok, err := ra.check(waitCtx, cond)
			if err != nil && waitCtx.Err() == nil {
				return -1, nil, err
			}
			if ok {
				return i, rodElement{el: el}, nil
			}
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return -1, nil, ctx.Err()
			}
			return -1, nil, fmt.Errorf("%w: %v", models.ErrElementTimeout, conds)
		case <-ticker.C:
		}
	}
}

// check 对单个条件做一次不等待的检查
func (ra *RodAutomation) check(ctx context.Context, cond Condition) (*rod.Element, bool, error) {
	q, err := Translate(cond.Locator)
	if err != nil {
		return nil, false, err
	}

	p := ra.page.Context(ctx)
	var (
		found bool
		el    *rod.Element
	)
	if q.XPath {
		found, el, err = p.HasX(q.Expr)
	} else {
		found, el, err = p.Has(q.Expr)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, false, nil
		}
		// 页面正在跳转时查询会失败,按未满足处理
		utils.Debugf("检查条件失败 %s: %v", cond, err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}

	switch cond.Kind {
	case Present:
		return el, true, nil
	case Clickable:
		ok, err := clickable(el)
		return el, ok, err
	case Populated:
		ok, err := populated(el)
		return el, ok, err
	}
	return nil, false, fmt.Errorf("未知的条件类型: %s", cond.Kind)
}

func clickable(el *rod.Element) (bool, error) {
	visible, err := el.Visible()
	if err != nil || !visible {
		return false, nil
	}
	disabled, err := el.Property("disabled")
	if err != nil || disabled.Bool() {
		return false, nil
	}
	if _, err := el.Interactable(); err != nil {
		if obstructed(err) {
			utils.Debugf("元素被遮挡或不可点击: %v", err)
		}
		return false, nil
	}
	return true, nil
}

// obstructed 元素可见但点击会落到其他元素上(遮罩层、加载动画)
func obstructed(err error) bool {
	var covered *rod.CoveredError
	var shape *rod.InvisibleShapeError
	var pointer *rod.NoPointerEventsError
	return errors.As(err, &covered) || errors.As(err, &shape) || errors.As(err, &pointer)
}

func populated(el *rod.Element) (bool, error) {
	found, _, err := el.Has("td")
	if err != nil {
		return false, nil
	}
	return found, nil
}

func unwrap(el Element) (*rod.Element, error) {
	re, ok := el.(rodElement)
	if !ok || re.el == nil {
		return nil, fmt.Errorf("无效的元素句柄 %T", el)
	}
	return re.el, nil
}

// actionContext 为单次元素操作加上截止时间
func (ra *RodAutomation) actionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ra.opts.ActionTimeout)
}

// actionError 操作超时归为 ElementTimeout,其余错误加上操作说明
func actionError(actx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(actx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", models.ErrElementTimeout, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Fill 清空输入框并输入文本
func (ra *RodAutomation) Fill(ctx context.Context, el Element, text string) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	actx, cancel := ra.actionContext(ctx)
	defer cancel()

	e = e.Context(actx)
	if err := e.SelectAllText(); err != nil {
		return actionError(actx, "选中输入框文本失败", err)
	}
	return actionError(actx, "输入文本失败", e.Input(text))
}

// Click 点击元素
func (ra *RodAutomation) Click(ctx context.Context, el Element) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	actx, cancel := ra.actionContext(ctx)
	defer cancel()

	return actionError(actx, "点击失败", e.Context(actx).Click(proto.InputMouseButtonLeft, 1))
}

// Blur 使元素失去焦点
func (ra *RodAutomation) Blur(ctx context.Context, el Element) error {
	e, err := unwrap(el)
	if err != nil {
		return err
	}
	actx, cancel := ra.actionContext(ctx)
	defer cancel()

	return actionError(actx, "移除焦点失败", e.Context(actx).Blur())
}

// ReadTable 读取表格元素的HTML并解析
func (ra *RodAutomation) ReadTable(ctx context.Context, el Element) (Table, error) {
	e, err := unwrap(el)
	if err != nil {
		return Table{}, err
	}
	actx, cancel := ra.actionContext(ctx)
	defer cancel()

	markup, err := e.Context(actx).HTML()
	if err != nil {
		return Table{}, actionError(actx, "读取表格HTML失败", err)
	}
	return ParseTable(markup)
}

// Close 关闭页面和浏览器
// 连接远程浏览器时只关闭页面
func (ra *RodAutomation) Close() error {
	var firstErr error
	if ra.page != nil {
		if err := ra.page.Close(); err != nil {
			firstErr = err
		}
		ra.page = nil
	}
	if ra.browser != nil && ra.launcher != nil {
		if err := ra.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	ra.cleanupLauncher()
	utils.Debugf("浏览器已关闭")
	return firstErr
}

func (ra *RodAutomation) cleanupLauncher() {
	if ra.launcher != nil {
		ra.launcher.Cleanup()
		ra.launcher = nil
	}
}
