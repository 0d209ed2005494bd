package app

import (
	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// Aggregate 把一批命中折叠成每个平台一个 URL（构建号最大者）。
//
// - 构建号从 URL 末尾的 "-<digits>.<ext>" 取出；取不出的命中忽略
// - 平局保留先到者：只有严格更大的构建号才会替换
// - 一条命中都没有时返回 {PlatformUnknown: "unknown"} 哨兵
func Aggregate(hits []domain.Hit, version, source string) domain.AggregatedResult {
	type best struct {
		url   string
		build int
	}
	picked := make(map[domain.PlatformArch]best, len(domain.AllPlatforms()))

	for _, h := range hits {
		if !h.Platform.Valid() {
			continue
		}
		n, ok := candidate.BuildNumber(h.URL)
		if !ok {
			continue
		}
		cur, seen := picked[h.Platform]
		if !seen || n > cur.build {
			picked[h.Platform] = best{url: h.URL, build: n}
		}
	}

	out := domain.AggregatedResult{
		Latest:   make(map[domain.PlatformArch]string, len(picked)+1),
		Metadata: map[string]string{},
	}
	for p, b := range picked {
		out.Latest[p] = b.url
	}
	if len(out.Latest) == 0 {
		out.Latest[domain.PlatformUnknown] = domain.UnknownPlaceholder
	}

	if version != "" {
		out.Metadata[domain.MetaVersion] = version
	}
	if source != "" {
		out.Metadata[domain.MetaSource] = source
	}
	return out
}
