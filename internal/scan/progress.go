package scan

import (
	"sync"
	"sync/atomic"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// Progress 是调度方独占写入的计数器；外部只能通过 Snapshot 读取副本。
type Progress struct {
	processed   atomic.Int64
	total       atomic.Int64
	found       atomic.Int64
	rateLimited atomic.Int64

	mu           sync.Mutex
	state        string
	version      string
	versionIndex int
	versionCount int
}

func NewProgress(total int64) *Progress {
	p := &Progress{state: domain.StateIdle}
	p.total.Store(total)
	return p
}

// AddTotal 在追加扫描轮次前扩充总量，保证 processed 不超过 total。
func (p *Progress) AddTotal(n int64) { p.total.Add(n) }

func (p *Progress) SetState(s string) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// SetVersion 记录当前正在扫描的版本（idx 从 1 开始）。
func (p *Progress) SetVersion(v string, idx, count int) {
	p.mu.Lock()
	p.version = v
	p.versionIndex = idx
	p.versionCount = count
	p.mu.Unlock()
}

func (p *Progress) record(st domain.ProbeStatus) {
	p.processed.Add(1)
	switch st {
	case domain.Found:
		p.found.Add(1)
	case domain.RateLimited:
		p.rateLimited.Add(1)
	}
}

func (p *Progress) Snapshot() domain.ScanProgress {
	p.mu.Lock()
	defer p.mu.Unlock()
	return domain.ScanProgress{
		State:        p.state,
		Processed:    p.processed.Load(),
		Total:        p.total.Load(),
		Found:        p.found.Load(),
		RateLimited:  p.rateLimited.Load(),
		Version:      p.version,
		VersionIndex: p.versionIndex,
		VersionCount: p.versionCount,
	}
}
