package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/LoaderSpot/loaderspot/internal/app/run"
	"github.com/LoaderSpot/loaderspot/internal/config"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/version"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间没有命中时也会定期输出一行进度，降低等待焦虑
type progressUI struct {
	w io.Writer

	// quiet 只输出旁路通知（非交互模式）。
	quiet bool

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func newQuietUI(w io.Writer) *progressUI {
	return &progressUI{w: w, quiet: true}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, plan domain.RunPlan) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	if p.quiet {
		return
	}

	fmt.Fprintf(p.w, "[%s] LoaderSpot search (%s)\n", now.Format("15:04:05"), eff.Strategy.Kind)
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  versions: %s\n", formatVersions(eff.Versions))
	fmt.Fprintf(p.w, "  platforms: %s\n", formatPlatforms(eff.Platforms))
	fmt.Fprintf(p.w, "  strategy: %s\n", formatStrategy(eff.Strategy))
	fmt.Fprintf(p.w, "  connections: %d\n", eff.Connections)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.RateLimit > 0 {
		fmt.Fprintf(p.w, "  rate_limit: %g/s\n", eff.RateLimit)
	}
	fmt.Fprintf(p.w, "  base_url: %s\n", truncate(eff.BaseURL, 120))
	if eff.GASURL != "" {
		fmt.Fprintf(p.w, "  gas_url: %s (source=%s)\n", truncate(eff.GASURL, 80), eff.Source)
	}
	fmt.Fprintf(p.w, "  report_unknown: %s\n", onOff(eff.ReportUnknown))

	fmt.Fprintf(p.w, "计划: versions=%d skipped=%d probes=%d\n", len(plan.Requests), len(plan.Skipped), plan.TotalPlanned)
	for _, s := range plan.Skipped {
		fmt.Fprintf(p.w, "  跳过 %s：%s\n", s.Version, s.Reason)
	}
	fmt.Fprintln(p.w, "交互: p 暂停/继续，r 继续，c 取消")
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnScanStarted(v string, idx, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "[%d/%d] 扫描 %s\n", idx, total, version.Short(v))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnResultFound(h domain.Hit) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "  命中 %-9s build=%d %s\n", h.Platform.Key(), h.Build, h.URL)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnScanCompleted(v string, res domain.AggregatedResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet {
		return
	}
	if !res.Found() {
		fmt.Fprintf(p.w, "  %s 未找到 (%s)\n", version.Short(v), formatShortDuration(dur))
	} else {
		keys := make([]string, 0, len(res.Latest))
		for _, pa := range res.Platforms() {
			keys = append(keys, pa.Key())
		}
		fmt.Fprintf(p.w, "  %s 完成：%s (%s)\n", version.Short(v), strings.Join(keys, ","), formatShortDuration(dur))
	}
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnNotice(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "提示: %s\n", msg)
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnRunCompleted(rr domain.RunReport) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// 结束：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
	if p.quiet {
		return
	}
	fmt.Fprintf(p.w, "\n结束: state=%s elapsed=%s\n", rr.State, formatElapsed(rr.FinishedAt.Sub(rr.StartedAt)))
	p.lastPrinted = time.Now()
}

func (p *progressUI) OnProgress(sp domain.ScanProgress, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.printProgressLocked(sp, elapsed)
}

func (p *progressUI) printProgressLocked(sp domain.ScanProgress, elapsed time.Duration) {
	fmt.Fprintf(p.w, "进度: %d/%d (%.1f%%) found=%d rate_limited=%d state=%s version=%d/%d elapsed=%s\n",
		sp.Processed, sp.Total, sp.Fraction()*100, sp.Found, sp.RateLimited, sp.State,
		sp.VersionIndex, sp.VersionCount, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

// startTicker 周期性轮询 poll，在一段时间没有输出时打印一行进度（quiet 模式不启用）。
func (p *progressUI) startTicker(poll func() domain.ScanProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.quiet || p.tickerStarted || poll == nil {
		return
	}
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stopCh := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				sp := poll()
				p.mu.Lock()
				// 暂停时每个周期都提示一次，其余情况只在长时间无输出时打印。
				if sp.State == domain.StatePaused || time.Since(p.lastPrinted) > threshold {
					p.printProgressLocked(sp, time.Since(p.startedAt))
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatVersions(vs []string) string {
	if len(vs) == 0 {
		return "(none)"
	}
	out := make([]string, 0, len(vs))
	for _, v := range vs {
		out = append(out, version.Short(v))
	}
	return truncate(strings.Join(out, ", "), 160)
}

func formatPlatforms(ps []domain.PlatformArch) string {
	keys := make([]string, 0, len(ps))
	for _, p := range ps {
		keys = append(keys, p.Key())
	}
	return strings.Join(keys, ",")
}

func formatStrategy(st domain.Strategy) string {
	switch st.Kind {
	case domain.StrategyAdaptive:
		a := st.Adaptive
		return fmt.Sprintf("adaptive (0-%d, +%d x %d)", a.InitialWindow, a.Increment, a.MaxRounds)
	default:
		return fmt.Sprintf("fixed (%d-%d)", st.Fixed.Start, st.Fixed.End)
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
