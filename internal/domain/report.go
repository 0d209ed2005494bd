package domain

import (
	"encoding/json"
	"time"
)

// RunReport 是对外稳定输出（report.json / stdout JSON）的结构。
type RunReport struct {
	RunID     string         `json:"run_id"`
	Strategy  Strategy       `json:"strategy"`
	Versions  []string       `json:"versions"`
	Platforms []PlatformArch `json:"platforms"`
	Source    string         `json:"source,omitempty"`

	// State 只可能是 completed 或 cancelled（取消不是错误，是正常终态）。
	State string `json:"state"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary      `json:"summary"`
	Results []AggregatedResult `json:"results"`
	Hits    []Hit              `json:"hits"`
	Skipped []SkippedVersion   `json:"skipped"`
}

type ReportSummary struct {
	Planned     int64 `json:"planned"`
	Processed   int64 `json:"processed"`
	Found       int   `json:"found"`
	RateLimited int64 `json:"rate_limited"`
	Skipped     int   `json:"skipped"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) hits 稳定排序，nil 切片归一为空切片（JSON 输出 [] 而不是 null）
// 3) summary 中可由明细推导的字段重新计算
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Hits == nil {
		r.Hits = []Hit{}
	}
	if r.Results == nil {
		r.Results = []AggregatedResult{}
	}
	if r.Skipped == nil {
		r.Skipped = []SkippedVersion{}
	}
	if r.Versions == nil {
		r.Versions = []string{}
	}
	if r.Platforms == nil {
		r.Platforms = []PlatformArch{}
	}
	SortHits(r.Hits)

	r.Summary.Found = len(r.Hits)
	r.Summary.Skipped = len(r.Skipped)
}

// Cancelled 报告本次运行是否被操作者取消。
func (r RunReport) Cancelled() bool { return r.State == StateCancelled }

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	return json.Marshal(Alias(r))
}
