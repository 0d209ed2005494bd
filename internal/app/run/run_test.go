package run

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LoaderSpot/loaderspot/internal/app/planner"
	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/probe"
)

const testVersion = "1.1.68.632.g2b11de83"

// foundAt 返回只对 build 命中的桩 prober。
func foundAt(gen candidate.Generator, p domain.PlatformArch, v string, build int) probe.Prober {
	want := gen.Generate(p, v, build)
	return probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		if url == want {
			return domain.Found
		}
		return domain.NotFound
	})
}

func fixedReq(v string, r domain.Range, ps ...domain.PlatformArch) domain.SearchRequest {
	return domain.SearchRequest{Version: v, Platforms: ps, Strategy: domain.FixedStrategy(r), Concurrency: 50}
}

func TestSearch_SingleHitInRange(t *testing.T) {
	gen := candidate.New("")
	req := fixedReq(testVersion, domain.Range{Start: 10, End: 12}, domain.WinX64)

	res, err := Search(context.Background(), req, foundAt(gen, domain.WinX64, testVersion, 11), gen)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	want := "https://upgrade.scdn.co/upgrade/client/win32-x86_64/spotify_installer-1.1.68.632.g2b11de83-11.exe"
	if len(res.Latest) != 1 || res.Latest[domain.WinX64] != want {
		t.Fatalf("聚合结果不正确：%v", res.Latest)
	}
	if res.Metadata[domain.MetaVersion] != testVersion {
		t.Fatalf("metadata.version 不正确：%v", res.Metadata)
	}
}

func TestSearch_NoHitYieldsUnknown(t *testing.T) {
	gen := candidate.New("")
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus { return domain.RateLimited })

	res, err := Search(context.Background(), fixedReq(testVersion, domain.Range{Start: 0, End: 5}, domain.WinX64, domain.MacOSArm64), p, gen)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Found() || res.Latest[domain.PlatformUnknown] != domain.UnknownPlaceholder {
		t.Fatalf("零命中应返回 unknown 哨兵：%v", res.Latest)
	}
}

func TestSearch_RejectsInvalidRequest(t *testing.T) {
	gen := candidate.New("")
	var calls atomic.Int64
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		calls.Add(1)
		return domain.NotFound
	})

	cases := []struct {
		name string
		req  domain.SearchRequest
	}{
		{"版本格式错误", fixedReq("not-a-version", domain.Range{Start: 0, End: 9}, domain.WinX64)},
		{"区间倒置", fixedReq(testVersion, domain.Range{Start: 12, End: 10}, domain.WinX64)},
		{"裁剪后无平台", fixedReq("1.2.60.100.gaaaaaaaa", domain.Range{Start: 0, End: 9}, domain.WinX86)},
	}
	for _, tc := range cases {
		if _, err := Search(context.Background(), tc.req, p, gen); !planner.IsValidation(err) {
			t.Fatalf("%s：期望 ValidationError，实际 %v", tc.name, err)
		}
	}
	if calls.Load() != 0 {
		t.Fatalf("请求无效时不应发出探测，实际 %d 次", calls.Load())
	}
}

func TestSearch_PrunesX86ForNewVersions(t *testing.T) {
	gen := candidate.New("")
	v := "1.2.60.100.gaaaaaaaa"

	var total, x86 atomic.Int64
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		total.Add(1)
		if strings.Contains(url, "/win32-x86/") {
			x86.Add(1)
		}
		return domain.NotFound
	})

	if _, err := Search(context.Background(), fixedReq(v, domain.Range{Start: 0, End: 9}, domain.WinX86, domain.WinX64), p, gen); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if x86.Load() != 0 || total.Load() != 10 {
		t.Fatalf("WIN32 应被裁剪：total=%d win32=%d", total.Load(), x86.Load())
	}
}

func TestEngineRun_MultiVersionReport(t *testing.T) {
	gen := candidate.New("")
	other := "1.2.40.599.g606b7f29"
	hitA := gen.Generate(domain.WinX64, testVersion, 11)
	hitB := gen.Generate(domain.MacOSIntel, other, 3)
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		if url == hitA || url == hitB {
			return domain.Found
		}
		if url == gen.Generate(domain.WinX64, other, 2) {
			return domain.RateLimited
		}
		return domain.NotFound
	})

	plan := domain.RunPlan{
		Requests: []domain.SearchRequest{
			fixedReq(testVersion, domain.Range{Start: 0, End: 20}, domain.WinX64, domain.MacOSIntel),
			fixedReq(other, domain.Range{Start: 0, End: 20}, domain.WinX64, domain.MacOSIntel),
		},
		Skipped:      []domain.SkippedVersion{{Version: "1.2.60.1.gaaaaaaaa", Reason: "x"}},
		TotalPlanned: 84,
	}

	e := NewEngine(p, gen)
	e.Source = "ci"
	rr := e.Run(context.Background(), plan, nil)

	if rr.State != domain.StateCompleted || rr.RunID == "" {
		t.Fatalf("状态或 run_id 不正确：state=%s run_id=%q", rr.State, rr.RunID)
	}
	if rr.Summary.Planned != 84 || rr.Summary.Processed != 84 || rr.Summary.Found != 2 || rr.Summary.RateLimited != 1 || rr.Summary.Skipped != 1 {
		t.Fatalf("summary 不正确：%+v", rr.Summary)
	}
	if len(rr.Results) != 2 {
		t.Fatalf("期望 2 个结果，实际 %d", len(rr.Results))
	}
	if rr.Results[0].Latest[domain.WinX64] != hitA || rr.Results[1].Latest[domain.MacOSIntel] != hitB {
		t.Fatalf("结果与版本顺序不对应：%v", rr.Results)
	}
	if rr.Results[1].Metadata[domain.MetaSource] != "ci" {
		t.Fatalf("source 未写入 metadata：%v", rr.Results[1].Metadata)
	}
	wantVersions := []string{testVersion, other, "1.2.60.1.gaaaaaaaa"}
	if !reflect.DeepEqual(rr.Versions, wantVersions) {
		t.Fatalf("versions 不正确：%v", rr.Versions)
	}
	if got := e.Progress(); got.State != domain.StateCompleted || got.VersionIndex != 2 || got.VersionCount != 2 {
		t.Fatalf("进度快照不正确：%+v", got)
	}
}

func TestEngineRun_CancelKeepsPartial(t *testing.T) {
	gen := candidate.New("")
	hit := gen.Generate(domain.WinX64, testVersion, 0)

	var e *Engine
	var once sync.Once
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		if url == hit {
			once.Do(func() { e.Control().Cancel() })
			return domain.Found
		}
		time.Sleep(time.Millisecond)
		return domain.NotFound
	})
	e = NewEngine(p, gen)

	plan := domain.RunPlan{
		Requests: []domain.SearchRequest{
			{Version: testVersion, Platforms: []domain.PlatformArch{domain.WinX64}, Strategy: domain.FixedStrategy(domain.Range{Start: 0, End: 5000}), Concurrency: 1},
			fixedReq("1.2.40.599.g606b7f29", domain.Range{Start: 0, End: 10}, domain.WinX64),
		},
		TotalPlanned: 5012,
	}
	rr := e.Run(context.Background(), plan, nil)

	if !rr.Cancelled() {
		t.Fatalf("期望 cancelled，实际 %s", rr.State)
	}
	if len(rr.Results) != 1 || rr.Results[0].Latest[domain.WinX64] != hit {
		t.Fatalf("取消前的部分命中应保留：%v", rr.Results)
	}
	if rr.Summary.Processed >= rr.Summary.Planned {
		t.Fatalf("取消后不应扫完：%+v", rr.Summary)
	}
}

func TestEngineRun_AdaptiveGrowsPlanned(t *testing.T) {
	gen := candidate.New("")
	e := NewEngine(foundAt(gen, domain.WinX64, testVersion, 7), gen)

	req := domain.SearchRequest{
		Version:     testVersion,
		Platforms:   []domain.PlatformArch{domain.WinX64, domain.WinArm64},
		Strategy:    domain.AdaptiveStrategy(domain.AdaptiveParams{InitialWindow: 9, Increment: 5, MaxRounds: 2}),
		Concurrency: 50,
	}
	rr := e.Run(context.Background(), domain.RunPlan{Requests: []domain.SearchRequest{req}, TotalPlanned: req.PlannedProbes()}, nil)

	// 首轮 10*2，之后 2 轮只扫 WIN-ARM64：5+5。
	if rr.Summary.Planned != 30 || rr.Summary.Processed != 30 {
		t.Fatalf("summary 不正确：%+v", rr.Summary)
	}
	if rr.Strategy.Kind != domain.StrategyAdaptive {
		t.Fatalf("strategy 不正确：%+v", rr.Strategy)
	}
}

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	events     []string
	hits       []domain.Hit
	notices    []string
}

func (o *recordObserver) add(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, s)
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig, plan domain.RunPlan) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
}

func (o *recordObserver) OnScanStarted(v string, idx, total int) { o.add("start:" + v) }

func (o *recordObserver) OnResultFound(h domain.Hit) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hits = append(o.hits, h)
}

func (o *recordObserver) OnScanCompleted(v string, res domain.AggregatedResult, dur time.Duration) {
	o.add("done:" + v)
}

func (o *recordObserver) OnNotice(msg string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notices = append(o.notices, msg)
}

func (o *recordObserver) OnRunCompleted(rr domain.RunReport) { o.add("run:" + rr.State) }

func (o *recordObserver) OnProgress(p domain.ScanProgress, elapsed time.Duration) {
	// keepalive 由 CLI 触发；这里无需断言。
}

func TestEngineRun_ObserverOrder(t *testing.T) {
	gen := candidate.New("")
	other := "1.2.40.599.g606b7f29"
	e := NewEngine(foundAt(gen, domain.WinX64, other, 1), gen)

	obs := &recordObserver{}
	plan := domain.RunPlan{
		Requests: []domain.SearchRequest{
			fixedReq(testVersion, domain.Range{Start: 0, End: 3}, domain.WinX64),
			fixedReq(other, domain.Range{Start: 0, End: 3}, domain.WinX64),
		},
		TotalPlanned: 8,
	}
	_ = e.Run(context.Background(), plan, obs)

	want := []string{"start:" + testVersion, "done:" + testVersion, "start:" + other, "done:" + other, "run:completed"}
	if !reflect.DeepEqual(obs.events, want) {
		t.Fatalf("事件顺序不符合预期：got=%v want=%v", obs.events, want)
	}
	if len(obs.hits) != 1 || obs.hits[0].Build != 1 || obs.hits[0].Version != other {
		t.Fatalf("命中事件不正确：%v", obs.hits)
	}
}

func TestStream_EventsEndWithRunCompleted(t *testing.T) {
	gen := candidate.New("")
	e := NewEngine(foundAt(gen, domain.WinX64, testVersion, 2), gen)
	plan := domain.RunPlan{
		Requests:     []domain.SearchRequest{fixedReq(testVersion, domain.Range{Start: 0, End: 4}, domain.WinX64)},
		TotalPlanned: 5,
	}

	var kinds []EventKind
	var last Event
	for ev := range Stream(context.Background(), e, plan) {
		kinds = append(kinds, ev.Kind)
		last = ev
	}

	want := []EventKind{EventScanStarted, EventResultFound, EventScanCompleted, EventRunCompleted}
	if !reflect.DeepEqual(kinds, want) {
		t.Fatalf("事件序列不符合预期：%v", kinds)
	}
	if last.Report.Summary.Found != 1 {
		t.Fatalf("终态报告不正确：%+v", last.Report.Summary)
	}
}

// cancelAfterLast 在最后一个版本扫描结束后才取消。
type cancelAfterLast struct {
	recordObserver
	e    *Engine
	last string
}

func (o *cancelAfterLast) OnScanCompleted(v string, res domain.AggregatedResult, dur time.Duration) {
	if v == o.last {
		o.e.Control().Cancel()
	}
}

func TestEngineRun_LateCancelStaysCompleted(t *testing.T) {
	gen := candidate.New("")
	e := NewEngine(foundAt(gen, domain.WinX64, testVersion, 1), gen)
	plan := domain.RunPlan{
		Requests:     []domain.SearchRequest{fixedReq(testVersion, domain.Range{Start: 0, End: 3}, domain.WinX64)},
		TotalPlanned: 4,
	}

	rr := e.Run(context.Background(), plan, &cancelAfterLast{e: e, last: testVersion})
	if rr.State != domain.StateCompleted {
		t.Fatalf("全部扫完后的取消不应改变终态，实际 %s", rr.State)
	}
	if rr.Summary.Processed != 4 {
		t.Fatalf("summary 不正确：%+v", rr.Summary)
	}
}

func TestEngineProgress_ReportsPaused(t *testing.T) {
	gen := candidate.New("")

	var e *Engine
	var once sync.Once
	pausedCh := make(chan struct{})
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		once.Do(func() {
			e.Control().Pause()
			close(pausedCh)
		})
		return domain.NotFound
	})
	e = NewEngine(p, gen)
	e.PollInterval = 5 * time.Millisecond

	plan := domain.RunPlan{
		Requests:     []domain.SearchRequest{fixedReq(testVersion, domain.Range{Start: 0, End: 499}, domain.WinX64)},
		TotalPlanned: 500,
	}
	done := make(chan domain.RunReport, 1)
	go func() { done <- e.Run(context.Background(), plan, nil) }()

	select {
	case <-pausedCh:
	case <-time.After(5 * time.Second):
		t.Fatalf("等待暂停超时")
	}
	if got := e.Progress(); got.State != domain.StatePaused {
		t.Fatalf("暂停中 Progress 应为 paused，实际 %+v", got)
	}

	e.Control().Resume()
	select {
	case rr := <-done:
		if rr.State != domain.StateCompleted || rr.Summary.Processed != 500 {
			t.Fatalf("恢复后应扫完：state=%s summary=%+v", rr.State, rr.Summary)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("恢复后运行未结束")
	}
	if got := e.Progress(); got.State != domain.StateCompleted {
		t.Fatalf("结束后 Progress 应为 completed，实际 %s", got.State)
	}
}

func TestEngineRun_CancelledEngineIsSpent(t *testing.T) {
	gen := candidate.New("")
	var calls atomic.Int64
	p := probe.ProberFunc(func(ctx context.Context, url string) domain.ProbeStatus {
		calls.Add(1)
		return domain.NotFound
	})
	e := NewEngine(p, gen)
	e.Control().Cancel()

	plan := domain.RunPlan{
		Requests:     []domain.SearchRequest{fixedReq(testVersion, domain.Range{Start: 0, End: 3}, domain.WinX64)},
		TotalPlanned: 4,
	}
	rr := e.Run(context.Background(), plan, nil)
	if !rr.Cancelled() || calls.Load() != 0 || len(rr.Results) != 0 {
		t.Fatalf("已取消的 Engine 不应再扫描：state=%s calls=%d results=%d", rr.State, calls.Load(), len(rr.Results))
	}

	// 新的 Engine 不受影响。
	rr = NewEngine(p, gen).Run(context.Background(), plan, nil)
	if rr.State != domain.StateCompleted || rr.Summary.Planned != 4 || rr.Summary.Processed != 4 {
		t.Fatalf("新 Engine 应从零开始：state=%s summary=%+v", rr.State, rr.Summary)
	}
}
