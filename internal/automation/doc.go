// Package automation 提供门户页面自动化能力
//
// # 概述
//
// automation包定义状态机使用的 PageAutomation 接口,并给出基于 go-rod 的实现。
// 所有等待都是按固定间隔轮询的有界等待,不存在无条件休眠。
//
// # 核心组件
//
// ## PageAutomation
//
// 导航、条件等待、输入、点击、失焦和表格读取。WaitAny 同时轮询多个条件,
// 同一轮中有多个条件满足时返回下标最小者,因此候选定位器的先后顺序即优先级。
//
//	idx, el, err := pa.WaitAny(ctx, automation.Conditions(field, chain, automation.Present), 30*time.Second)
//	if errors.Is(err, models.ErrElementTimeout) { /* 所有候选均未出现 */ }
//
// ## 定位器翻译
//
// 选择器映射中的定位描述被翻译为CSS或XPath查询:
//   - css:   原样使用
//   - id:    [id="值"]
//   - name:  [name="值"]
//   - xpath: 原样使用(XPath查询)
//   - text:  //*[normalize-space(text())="值"]
//
// ## RodAutomation
//
// 本地启动浏览器(跳过证书校验、关闭扩展/GPU/沙箱)或连接远程调试地址,
// 可选注入 go-rod/stealth 脚本,并将自定义头部设置到页面所有请求上。
//
//	pa, err := automation.NewRodAutomation(automation.RodOptions{Headless: true, Stealth: true})
//	if err != nil { /* 处理错误 */ }
//	defer pa.Close()
//
// ## ParseTable
//
// 读取表格元素的HTML,用 goquery 解析为标题和数据行,单元格空白被规范化。
//
// ## ResourceMonitor (资源监控器)
//
// 启动浏览器前检查可用内存,运行期间周期采样并在内存低于保留值时告警。
package automation
