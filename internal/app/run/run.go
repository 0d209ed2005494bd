package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LoaderSpot/loaderspot/internal/app"
	"github.com/LoaderSpot/loaderspot/internal/app/planner"
	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/infra/httpx"
	"github.com/LoaderSpot/loaderspot/internal/probe"
	"github.com/LoaderSpot/loaderspot/internal/remote"
	"github.com/LoaderSpot/loaderspot/internal/scan"
)

// Engine 驱动一次多版本运行：逐版本调用调度器，聚合结果，并发布事件与进度。
//
// Control 在运行期间可被其他 goroutine 调用（暂停/恢复/取消）；Progress 可随时轮询。
// 一个 Engine 只服务一次 Run：进度计数与取消标志不会重置，再次运行请新建 Engine。
type Engine struct {
	Prober    probe.Prober
	Generator candidate.Generator

	// Catalog 非 nil 时，每个版本扫描前检查是否已收录，未收录则提交。
	Catalog *remote.Catalog
	Source  string

	PollInterval time.Duration

	control  *scan.Control
	progress *scan.Progress
}

// NewEngine 返回一个空闲状态的 Engine。
func NewEngine(p probe.Prober, gen candidate.Generator) *Engine {
	return &Engine{
		Prober:    p,
		Generator: gen,
		control:   scan.NewControl(),
		progress:  scan.NewProgress(0),
	}
}

func (e *Engine) Control() *scan.Control { return e.control }

// Progress 返回进度快照；运行中且处于暂停时 State 为 paused。
func (e *Engine) Progress() domain.ScanProgress {
	p := e.progress.Snapshot()
	if p.State == domain.StateRunning && e.control.Paused() {
		p.State = domain.StatePaused
	}
	return p
}

// Run 按计划逐版本扫描，返回对外稳定的 RunReport。
//
// 取消不是错误：RunReport.State 为 cancelled，已完成的版本与当前版本的部分命中仍会写入报告。
func (e *Engine) Run(ctx context.Context, plan domain.RunPlan, obs Observer) domain.RunReport {
	if obs == nil {
		obs = nopObserver{}
	}
	started := time.Now()

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Versions:  planVersions(plan),
		Platforms: planPlatforms(plan),
		Source:    e.Source,
		StartedAt: started.UTC(),
		Results:   make([]domain.AggregatedResult, 0, len(plan.Requests)),
		Hits:      make([]domain.Hit, 0, 8),
		Skipped:   append([]domain.SkippedVersion(nil), plan.Skipped...),
	}
	if len(plan.Requests) > 0 {
		rr.Strategy = plan.Requests[0].Strategy
	}

	e.progress.AddTotal(int64(plan.TotalPlanned))
	e.progress.SetState(domain.StateRunning)

	// cancelled 只由扫描本身决定：全部版本扫完之后才到达的取消不改变终态。
	cancelled := false
	total := len(plan.Requests)
	for i, req := range plan.Requests {
		if e.control.Cancelled() || ctx.Err() != nil {
			cancelled = true
			break
		}

		e.progress.SetVersion(req.Version, i+1, total)
		obs.OnScanStarted(req.Version, i+1, total)
		e.reportUnknown(ctx, req.Version, obs)

		scanStarted := time.Now()
		hits, ok := e.search(ctx, req, obs)
		res := app.Aggregate(hits, req.Version, e.Source)

		rr.Results = append(rr.Results, res)
		rr.Hits = append(rr.Hits, hits...)
		obs.OnScanCompleted(req.Version, res, time.Since(scanStarted))
		if !ok {
			cancelled = true
			break
		}
	}

	state := domain.StateCompleted
	if cancelled {
		state = domain.StateCancelled
	}
	e.progress.SetState(state)

	snap := e.progress.Snapshot()
	rr.State = state
	rr.Summary.Planned = snap.Total
	rr.Summary.Processed = snap.Processed
	rr.Summary.RateLimited = snap.RateLimited
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	obs.OnRunCompleted(rr)
	return rr
}

func (e *Engine) search(ctx context.Context, req domain.SearchRequest, obs Observer) ([]domain.Hit, bool) {
	sched := &scan.Scheduler{
		Prober:       e.Prober,
		Generator:    e.Generator,
		Concurrency:  req.Concurrency,
		Control:      e.control,
		Progress:     e.progress,
		PollInterval: e.PollInterval,
	}

	var mu sync.Mutex
	hits := make([]domain.Hit, 0, len(req.Platforms))
	ok := sched.Search(ctx, req, func(h domain.Hit) {
		mu.Lock()
		hits = append(hits, h)
		mu.Unlock()
		obs.OnResultFound(h)
	})
	return hits, ok
}

func (e *Engine) reportUnknown(ctx context.Context, v string, obs Observer) {
	if e.Catalog == nil {
		return
	}
	submitted, err := e.Catalog.CheckAndSubmit(ctx, v)
	switch {
	case err != nil:
		obs.OnNotice(fmt.Sprintf("版本收录检查失败（%s）：%v", v, err))
	case submitted:
		obs.OnNotice(fmt.Sprintf("版本 %s 未收录，已提交", v))
	}
}

// Search 是单版本的同步入口：校验并裁剪 req 后扫描，返回聚合结果（不发事件、不可暂停）。
//
// 请求不合法（版本格式、区间、裁剪后无平台）时返回 *planner.ValidationError，且不发出任何探测。
func Search(ctx context.Context, req domain.SearchRequest, p probe.Prober, gen candidate.Generator) (domain.AggregatedResult, error) {
	plan, err := planner.Plan([]string{req.Version}, req.Platforms, req.Strategy)
	if err != nil {
		return domain.AggregatedResult{}, err
	}
	for i := range plan.Requests {
		plan.Requests[i].Concurrency = req.Concurrency
	}

	rr := NewEngine(p, gen).Run(ctx, plan, nil)
	if len(rr.Results) == 0 {
		return app.Aggregate(nil, req.Version, ""), nil
	}
	return rr.Results[0], nil
}

// Prepare 校验配置并生成计划，构造可直接 Run 的 Engine（探测客户端按配置装配）。
//
// 错误要么是 *planner.ValidationError（请求不合法），要么是网络配置错误；两者都发生在任何探测之前。
func Prepare(eff config.EffectiveConfig) (*Engine, domain.RunPlan, error) {
	plan, err := planner.Plan(eff.Versions, eff.Platforms, eff.Strategy)
	if err != nil {
		return nil, domain.RunPlan{}, err
	}
	for i := range plan.Requests {
		plan.Requests[i].Concurrency = eff.Connections
	}

	probeClient, err := httpx.NewProbeClient(httpx.ProbeOptions{
		ProxyURL:  eff.ProxyURL,
		MaxConns:  eff.Connections,
		RateLimit: eff.RateLimit,
	})
	if err != nil {
		return nil, domain.RunPlan{}, fmt.Errorf("proxy.url 无效：%w", err)
	}

	e := NewEngine(probe.New(probeClient), candidate.New(eff.BaseURL))
	e.Source = eff.Source

	if eff.ReportUnknown {
		metaClient, err := httpx.NewMetaClient(eff.ProxyURL)
		if err != nil {
			return nil, domain.RunPlan{}, fmt.Errorf("proxy.url 无效：%w", err)
		}
		e.Catalog = &remote.Catalog{Client: metaClient, VersionsURL: eff.VersionsURL, FormURL: eff.FormURL}
	}
	return e, plan, nil
}

// Execute 执行一次完整运行（计划 + 扫描 + 可选的结果推送），并返回对外稳定的 RunReport。
func Execute(ctx context.Context, eff config.EffectiveConfig) (domain.RunReport, error) {
	return ExecuteWithObserver(ctx, eff, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, obs Observer) (domain.RunReport, error) {
	e, plan, err := Prepare(eff)
	if err != nil {
		return domain.RunReport{}, err
	}
	if obs == nil {
		obs = nopObserver{}
	}
	obs.OnStart(eff, plan)
	rr := e.Run(ctx, plan, obs)
	Publish(ctx, eff, rr, obs)
	return rr, nil
}

// Publish 把每个版本的聚合结果推送到 gas_url（未配置或运行被取消时跳过）。
func Publish(ctx context.Context, eff config.EffectiveConfig, rr domain.RunReport, obs Observer) {
	if eff.GASURL == "" || rr.Cancelled() {
		return
	}
	if obs == nil {
		obs = nopObserver{}
	}
	c, err := httpx.NewMetaClient(eff.ProxyURL)
	if err != nil {
		obs.OnNotice(fmt.Sprintf("结果推送失败：%v", err))
		return
	}
	g := remote.GAS{Client: c, URL: eff.GASURL}
	for _, res := range rr.Results {
		v := res.Metadata[domain.MetaVersion]
		reply, err := g.Send(ctx, res)
		if err != nil {
			var hs *remote.HTTPStatusError
			if errors.As(err, &hs) {
				obs.OnNotice(fmt.Sprintf("结果推送失败（%s）：HTTP %d", v, hs.StatusCode))
			} else {
				obs.OnNotice(fmt.Sprintf("结果推送失败（%s）：%v", v, err))
			}
			continue
		}
		obs.OnNotice(fmt.Sprintf("结果已推送（%s）：%s", v, reply))
	}
}

func planVersions(plan domain.RunPlan) []string {
	out := make([]string, 0, len(plan.Requests)+len(plan.Skipped))
	for _, r := range plan.Requests {
		out = append(out, r.Version)
	}
	for _, s := range plan.Skipped {
		out = append(out, s.Version)
	}
	return out
}

// planPlatforms 返回所有请求涉及的平台（规范顺序）。
func planPlatforms(plan domain.RunPlan) []domain.PlatformArch {
	seen := map[domain.PlatformArch]bool{}
	for _, r := range plan.Requests {
		for _, p := range r.Platforms {
			seen[p] = true
		}
	}
	out := make([]domain.PlatformArch, 0, len(seen))
	for _, p := range domain.AllPlatforms() {
		if seen[p] {
			out = append(out, p)
		}
	}
	return out
}
