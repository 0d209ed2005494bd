package domain

import (
	"encoding/json"
	"sort"
)

const (
	MetaVersion = "version"
	MetaSource  = "source"

	// UnknownPlaceholder 是“一条都没找到”时的哨兵值（键与值相同）。
	UnknownPlaceholder = "unknown"
)

// AggregatedResult 是一批探测完成后的可报告结果。
//
// 约束：
// - 每个平台最多一个 URL（构建号最大者）
// - 元数据与平台结果分开存放；Flatten 才会把两者合并成对外的扁平 map
// - 没有任何命中时 Latest 只含 {PlatformUnknown: "unknown"}，保证下游永远拿到非空载荷
type AggregatedResult struct {
	Latest   map[PlatformArch]string
	Metadata map[string]string
}

// Found 报告是否至少有一个真实平台命中。
func (r AggregatedResult) Found() bool {
	for p := range r.Latest {
		if p != PlatformUnknown {
			return true
		}
	}
	return false
}

// Platforms 按规范顺序返回命中的平台（不含哨兵）。
func (r AggregatedResult) Platforms() []PlatformArch {
	out := make([]PlatformArch, 0, len(r.Latest))
	for _, p := range AllPlatforms() {
		if _, ok := r.Latest[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Flatten 生成原始工具使用的扁平 map：平台键 + version/source。
// 平台键与元数据键同处一个命名空间，只应在需要兼容该线格式的传输层使用。
func (r AggregatedResult) Flatten() map[string]string {
	out := make(map[string]string, len(r.Latest)+len(r.Metadata))
	for p, u := range r.Latest {
		out[p.Key()] = u
	}
	for k, v := range r.Metadata {
		out[k] = v
	}
	if len(out) == 0 {
		out[UnknownPlaceholder] = UnknownPlaceholder
	}
	return out
}

type aggregatedJSON struct {
	Latest   map[string]string `json:"latest"`
	Metadata map[string]string `json:"metadata"`
}

func (r AggregatedResult) MarshalJSON() ([]byte, error) {
	latest := make(map[string]string, len(r.Latest))
	for p, u := range r.Latest {
		latest[p.Key()] = u
	}
	meta := r.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return json.Marshal(aggregatedJSON{Latest: latest, Metadata: meta})
}

func (r *AggregatedResult) UnmarshalJSON(b []byte) error {
	var aux aggregatedJSON
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	r.Latest = make(map[PlatformArch]string, len(aux.Latest))
	for k, u := range aux.Latest {
		p, err := ParsePlatformArch(k)
		if err != nil {
			return err
		}
		r.Latest[p] = u
	}
	r.Metadata = aux.Metadata
	return nil
}

// SortHits 稳定排序：version -> 平台规范顺序 -> build。
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		if a.Platform != b.Platform {
			return a.Platform < b.Platform
		}
		return a.Build < b.Build
	})
}
