package version

import "github.com/LoaderSpot/loaderspot/internal/domain"

// 32 位 Windows 安装包只提供到该版本（含）。
var x86Cutoff = [3]int{1, 2, 53}

// Applies 判断某架构对给定版本是否仍然提供。
//
// 目前只有一条规则：WinX86 仅适用于 (major, minor, patch) <= 1.2.53。
// 前三段无法解析为整数时按“适用”处理（fail-open）。
func Applies(p domain.PlatformArch, v string) bool {
	if p != domain.WinX86 {
		return true
	}
	major, minor, patch, ok := Base(v)
	if !ok {
		return true
	}
	got := [3]int{major, minor, patch}
	for i := range got {
		if got[i] != x86Cutoff[i] {
			return got[i] < x86Cutoff[i]
		}
	}
	return true
}
