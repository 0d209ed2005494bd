package scan

import (
	"context"
	"sync"
	"time"

	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/probe"
)

const (
	MinConcurrency     = 50
	MaxConcurrency     = 300
	DefaultConcurrency = 100
)

// Unit 是一次调度的扫描单元：单个版本 × 若干平台 × 闭区间构建号。
type Unit struct {
	Version   string
	Platforms []domain.PlatformArch
	Range     domain.Range
}

// Scheduler 在并发上限内驱动 (平台 × 构建号) 的存在性检查。
//
// 准入闸门是一个容量为 Concurrency 的 channel 信号量；没有空槽时阻塞，
// 这是唯一的背压手段。取消在四处检查：准入前、拿到槽位后、暂停轮询中、任务开始时。
type Scheduler struct {
	Prober    probe.Prober
	Generator candidate.Generator

	// Concurrency <=0 时使用 DefaultConcurrency；不在这里做 [50,300] 钳制（由配置层负责）。
	Concurrency int

	Control  *Control
	Progress *Progress

	PollInterval time.Duration
}

func (s *Scheduler) concurrency() int {
	if s.Concurrency <= 0 {
		return DefaultConcurrency
	}
	return s.Concurrency
}

func (s *Scheduler) control() *Control {
	if s.Control == nil {
		s.Control = NewControl()
	}
	return s.Control
}

func (s *Scheduler) progress() *Progress {
	if s.Progress == nil {
		s.Progress = NewProgress(0)
	}
	return s.Progress
}

// Scan 把 u 中每个 (平台, 构建号) 恰好尝试一次（除非被取消），等待所有在途探测结束后返回。
//
// onHit 可能被多个 goroutine 并发调用。返回 false 表示扫描因取消而提前结束。
func (s *Scheduler) Scan(ctx context.Context, u Unit, onHit func(domain.Hit)) bool {
	ctl := s.control()
	prog := s.progress()
	sem := make(chan struct{}, s.concurrency())

	var wg sync.WaitGroup

admit:
	for _, p := range u.Platforms {
		for n := u.Range.Start; n <= u.Range.End; n++ {
			if ctl.stopped(ctx) {
				break admit
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				break admit
			case <-ctl.Done():
				break admit
			}

			if ctl.stopped(ctx) || !ctl.waitWhilePaused(ctx, s.PollInterval) {
				<-sem
				break admit
			}

			wg.Add(1)
			go func(p domain.PlatformArch, n int) {
				defer wg.Done()
				defer func() { <-sem }()

				if ctl.stopped(ctx) {
					return
				}

				url := s.Generator.Generate(p, u.Version, n)
				st := s.Prober.Probe(ctx, url)
				prog.record(st)
				if st == domain.Found && onHit != nil {
					onHit(domain.Hit{URL: url, Platform: p, Version: u.Version, Build: n})
				}
			}(p, n)
		}
	}

	wg.Wait()
	return !ctl.stopped(ctx)
}
