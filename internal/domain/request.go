package domain

// Range 是闭区间 [Start, End] 的构建号范围。
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Size 返回区间内构建号个数；非法区间返回 0。
func (r Range) Size() int {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

func (r Range) Valid() bool {
	return r.Start >= 0 && r.Start <= r.End
}

const (
	StrategyFixed    = "fixed"
	StrategyAdaptive = "adaptive"
)

// AdaptiveParams 描述“逐步加宽窗口”的搜索参数。
//
// 第 0 轮扫描 [0, InitialWindow]；之后每轮扫描紧接着的 Increment 个构建号，
// 最多再追加 MaxRounds 轮，且只扫描仍未命中的平台。
type AdaptiveParams struct {
	InitialWindow int `json:"initial_window"`
	Increment     int `json:"increment"`
	MaxRounds     int `json:"max_rounds"`
}

// Strategy 是范围供给策略的标签联合：Fixed{Range} | Adaptive{AdaptiveParams}。
// 序列化时两个分支都会输出，以 Kind 为准。
type Strategy struct {
	Kind     string         `json:"kind"`
	Fixed    Range          `json:"fixed"`
	Adaptive AdaptiveParams `json:"adaptive"`
}

func FixedStrategy(r Range) Strategy {
	return Strategy{Kind: StrategyFixed, Fixed: r}
}

func AdaptiveStrategy(p AdaptiveParams) Strategy {
	return Strategy{Kind: StrategyAdaptive, Adaptive: p}
}

// DefaultAdaptive 与原始工具的“阶梯搜索”参数一致。
func DefaultAdaptive() AdaptiveParams {
	return AdaptiveParams{InitialWindow: 1000, Increment: 1000, MaxRounds: 15}
}

// SearchRequest 是单个版本的一次探测请求（构造后不再修改）。
type SearchRequest struct {
	Version     string
	Platforms   []PlatformArch
	Strategy    Strategy
	Concurrency int
}

// PlannedProbes 返回该请求在启动时可确定的探测数。
// adaptive 只计入首轮窗口，后续轮次在追加时再计入总量。
func (r SearchRequest) PlannedProbes() int {
	switch r.Strategy.Kind {
	case StrategyAdaptive:
		return (r.Strategy.Adaptive.InitialWindow + 1) * len(r.Platforms)
	default:
		return r.Strategy.Fixed.Size() * len(r.Platforms)
	}
}

// SkippedVersion 记录因策略裁剪后无平台可扫而被跳过的版本。
type SkippedVersion struct {
	Version string `json:"version"`
	Reason  string `json:"reason"`
}

// RunPlan 是 planner 的产物：按输入顺序排列的逐版本请求。
type RunPlan struct {
	Requests     []SearchRequest
	Skipped      []SkippedVersion
	TotalPlanned int
}
