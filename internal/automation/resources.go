package automation

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

const mb = 1024 * 1024

// ResourceMonitorConfig 资源监控配置
type ResourceMonitorConfig struct {
	MinFreeMemory    uint64  // 启动浏览器所需的最小可用内存(字节)
	CPULoadThreshold float64 // CPU负载告警阈值(%)
}

// ResourceSnapshot 一次资源采样
type ResourceSnapshot struct {
	TotalMemory     uint64
	AvailableMemory uint64
	CPUPercent      float64
}

// ResourceMonitor 系统资源监控器
// 启动前做一次预检,运行期间由调用方在记录之间触发采样,不启动后台任务
type ResourceMonitor struct {
	config ResourceMonitorConfig

	// 采样函数和时钟,测试时可替换
	memFn func() (*mem.VirtualMemoryStat, error)
	cpuFn func(time.Duration, bool) ([]float64, error)
	now   func() time.Time

	last      ResourceSnapshot
	sampledAt time.Time
	warned    bool
}

// NewResourceMonitor 创建资源监控器
func NewResourceMonitor(config ResourceMonitorConfig) *ResourceMonitor {
	if config.CPULoadThreshold <= 0 {
		config.CPULoadThreshold = 90
	}
	return &ResourceMonitor{
		config: config,
		memFn:  mem.VirtualMemory,
		cpuFn:  cpu.Percent,
		now:    time.Now,
	}
}

// Sample 采样当前内存和CPU
func (rm *ResourceMonitor) Sample() (ResourceSnapshot, error) {
	vm, err := rm.memFn()
	if err != nil {
		return ResourceSnapshot{}, fmt.Errorf("获取系统内存失败: %w", err)
	}

	snap := ResourceSnapshot{
		TotalMemory:     vm.Total,
		AvailableMemory: vm.Available,
	}

	// 100毫秒采样,避免阻塞过久
	percentages, err := rm.cpuFn(100*time.Millisecond, false)
	if err != nil {
		log.Warn().Err(err).Msg("获取CPU使用率失败")
	} else if len(percentages) > 0 {
		snap.CPUPercent = percentages[0]
	}

	rm.last = snap
	rm.sampledAt = rm.now()
	return snap, nil
}

// Preflight 启动浏览器前的资源检查
// 可用内存低于保留值时返回错误; CPU过高只告警
func (rm *ResourceMonitor) Preflight() error {
	snap, err := rm.Sample()
	if err != nil {
		// 无法采样时不阻止运行
		log.Warn().Err(err).Msg("资源预检跳过")
		return nil
	}

	log.Info().Msgf("系统内存: 可用 %.0f MB / 总计 %.0f MB, CPU %.1f%%",
		float64(snap.AvailableMemory)/mb, float64(snap.TotalMemory)/mb, snap.CPUPercent)

	if snap.AvailableMemory < rm.config.MinFreeMemory {
		return fmt.Errorf("可用内存不足: %d MB < %d MB",
			snap.AvailableMemory/mb, rm.config.MinFreeMemory/mb)
	}
	if snap.CPUPercent > rm.config.CPULoadThreshold {
		log.Warn().Msgf("CPU负载较高 (%.1f%%),浏览器响应可能变慢,超时会增多", snap.CPUPercent)
	}
	return nil
}

// Check 距上次采样超过 interval 时重新采样并检查内存压力
// 返回是否进行了采样
func (rm *ResourceMonitor) Check(interval time.Duration) bool {
	if !rm.sampledAt.IsZero() && rm.now().Sub(rm.sampledAt) < interval {
		return false
	}
	snap, err := rm.Sample()
	if err != nil {
		log.Debug().Err(err).Msg("资源采样失败")
		return false
	}
	rm.checkPressure(snap)
	return true
}

// checkPressure 内存首次低于保留值时告警,恢复后重置
func (rm *ResourceMonitor) checkPressure(snap ResourceSnapshot) {
	low := snap.AvailableMemory < rm.config.MinFreeMemory
	if low && !rm.warned {
		log.Warn().Msgf("⚠️  可用内存降至 %d MB,低于保留值 %d MB",
			snap.AvailableMemory/mb, rm.config.MinFreeMemory/mb)
	}
	rm.warned = low
}

// Last 最近一次采样
func (rm *ResourceMonitor) Last() ResourceSnapshot {
	return rm.last
}
