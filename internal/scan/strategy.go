package scan

import (
	"context"
	"sync"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// RangeSupplier 按轮次给出要扫描的区间与平台。
//
// missing 是截至上一轮仍无命中的平台（按请求顺序）。ok=false 表示停止。
type RangeSupplier interface {
	Next(round int, missing []domain.PlatformArch) (r domain.Range, platforms []domain.PlatformArch, ok bool)
}

// NewSupplier 把策略标签联合映射为具体的 RangeSupplier。
func NewSupplier(st domain.Strategy) RangeSupplier {
	if st.Kind == domain.StrategyAdaptive {
		return adaptiveSupplier{p: st.Adaptive}
	}
	return fixedSupplier{r: st.Fixed}
}

type fixedSupplier struct {
	r domain.Range
}

// 固定区间只有一轮，且扫描全部平台（第 0 轮 missing 即全部平台）。
func (f fixedSupplier) Next(round int, missing []domain.PlatformArch) (domain.Range, []domain.PlatformArch, bool) {
	if round > 0 || len(missing) == 0 {
		return domain.Range{}, nil, false
	}
	return f.r, missing, true
}

type adaptiveSupplier struct {
	p domain.AdaptiveParams
}

// 第 0 轮扫描 [0, InitialWindow]；第 k 轮紧接上一轮末尾再扫 Increment 个构建号。
func (a adaptiveSupplier) Next(round int, missing []domain.PlatformArch) (domain.Range, []domain.PlatformArch, bool) {
	if len(missing) == 0 || round > a.p.MaxRounds {
		return domain.Range{}, nil, false
	}
	if round == 0 {
		return domain.Range{Start: 0, End: a.p.InitialWindow}, missing, true
	}
	if a.p.Increment <= 0 {
		return domain.Range{}, nil, false
	}
	start := a.p.InitialWindow + 1 + (round-1)*a.p.Increment
	return domain.Range{Start: start, End: start + a.p.Increment - 1}, missing, true
}

// Search 用 req.Strategy 驱动调度器扫描单个版本。
//
// 第 0 轮的探测数应已计入 Progress 总量（见 SearchRequest.PlannedProbes）；
// 之后每一轮在开始前把本轮探测数追加到总量。返回 false 表示被取消。
func (s *Scheduler) Search(ctx context.Context, req domain.SearchRequest, onHit func(domain.Hit)) bool {
	supplier := NewSupplier(req.Strategy)
	prog := s.progress()

	var mu sync.Mutex
	hit := make(map[domain.PlatformArch]bool, len(req.Platforms))
	record := func(h domain.Hit) {
		mu.Lock()
		hit[h.Platform] = true
		mu.Unlock()
		if onHit != nil {
			onHit(h)
		}
	}

	missing := append([]domain.PlatformArch(nil), req.Platforms...)
	for round := 0; ; round++ {
		r, platforms, ok := supplier.Next(round, missing)
		if !ok {
			return true
		}
		if round > 0 {
			prog.AddTotal(int64(r.Size() * len(platforms)))
		}

		if !s.Scan(ctx, Unit{Version: req.Version, Platforms: platforms, Range: r}, record) {
			return false
		}

		mu.Lock()
		next := missing[:0:0]
		for _, p := range missing {
			if !hit[p] {
				next = append(next, p)
			}
		}
		mu.Unlock()
		missing = next
	}
}
