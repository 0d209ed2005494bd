package domain

// ProbeStatus 是一次存在性检查的分类结果。
type ProbeStatus int

const (
	NotFound ProbeStatus = iota
	Found
	// RateLimited 对外可观测，但在聚合时等同 NotFound（不重试、不退避）。
	RateLimited
)

func (s ProbeStatus) String() string {
	switch s {
	case Found:
		return "found"
	case RateLimited:
		return "rate_limited"
	default:
		return "not_found"
	}
}

// Hit 是一次 Found 结果：URL 必须能由 (Platform, Version, Build) 经生成器逐字节重建。
type Hit struct {
	URL      string       `json:"url"`
	Platform PlatformArch `json:"platform"`
	Version  string       `json:"version"`
	Build    int          `json:"build"`
}

const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StatePaused    = "paused"
	StateCompleted = "completed"
	StateCancelled = "cancelled"
)

// ScanProgress 是进度快照（只读副本，由调度方发布）。
type ScanProgress struct {
	State        string
	Processed    int64
	Total        int64
	Found        int64
	RateLimited  int64
	Version      string
	VersionIndex int // 1-based；尚未开始时为 0
	VersionCount int
}

// Fraction 返回 processed/total；total 为 0 时返回 0。
func (p ScanProgress) Fraction() float64 {
	if p.Total <= 0 {
		return 0
	}
	f := float64(p.Processed) / float64(p.Total)
	if f > 1 {
		f = 1
	}
	return f
}
