package run

import (
	"time"

	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// Observer 用于把“运行进度/阶段/命中结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：OnResultFound 可能来自多个探测 goroutine。
type Observer interface {
	// OnStart 在探测开始前调用（应尽量早，保证用户 1 秒内看到输出）。
	OnStart(eff config.EffectiveConfig, plan domain.RunPlan)
	// OnScanStarted 在开始扫描某个版本时调用（idx 从 1 开始）。
	OnScanStarted(version string, idx, total int)
	// OnResultFound 在某个候选 URL 存在时调用。
	OnResultFound(h domain.Hit)
	// OnScanCompleted 在某个版本的全部探测结束后调用（取消时也会调用）。
	OnScanCompleted(version string, res domain.AggregatedResult, dur time.Duration)
	// OnNotice 报告旁路通道（版本收录/结果推送）的结果；这些失败不影响扫描。
	OnNotice(msg string)
	// OnRunCompleted 在整次运行结束时调用。
	OnRunCompleted(rr domain.RunReport)
	// OnProgress 用于 keepalive（通常由 CLI 自己 ticker 触发；run 层不强制调用）。
	OnProgress(p domain.ScanProgress, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) OnStart(config.EffectiveConfig, domain.RunPlan) {}
func (nopObserver) OnScanStarted(string, int, int) {}
func (nopObserver) OnResultFound(domain.Hit) {}
func (nopObserver) OnScanCompleted(string, domain.AggregatedResult, time.Duration) {}
func (nopObserver) OnNotice(string) {}
func (nopObserver) OnRunCompleted(domain.RunReport) {}
func (nopObserver) OnProgress(domain.ScanProgress, time.Duration) {}
