package domain

import (
	"fmt"
	"strings"
)

// PlatformArch 是封闭的部署目标枚举（操作系统 + 处理器架构）。
//
// 零值 PlatformUnknown 只作为聚合结果的占位哨兵使用，永远不会被探测。
type PlatformArch int

const (
	PlatformUnknown PlatformArch = iota
	WinX86
	WinX64
	WinArm64
	MacOSIntel
	MacOSArm64
)

type platformSpec struct {
	key      string
	label    string
	template string
}

// 每个模板恰好包含一个 {version} 与一个 {number} 占位符。
var platformSpecs = map[PlatformArch]platformSpec{
	WinX86:     {key: "WIN32", label: "Windows x86", template: "win32-x86/spotify_installer-{version}-{number}.exe"},
	WinX64:     {key: "WIN64", label: "Windows x64", template: "win32-x86_64/spotify_installer-{version}-{number}.exe"},
	WinArm64:   {key: "WIN-ARM64", label: "Windows arm64", template: "win32-arm64/spotify_installer-{version}-{number}.exe"},
	MacOSIntel: {key: "OSX", label: "macOS intel", template: "osx-x86_64/spotify-autoupdate-{version}-{number}.tbz"},
	MacOSArm64: {key: "OSX-ARM64", label: "macOS arm64", template: "osx-arm64/spotify-autoupdate-{version}-{number}.tbz"},
}

// AllPlatforms 返回规范顺序的全部可探测平台（不含 PlatformUnknown）。
func AllPlatforms() []PlatformArch {
	return []PlatformArch{WinX86, WinX64, WinArm64, MacOSIntel, MacOSArm64}
}

// Key 是平台在聚合结果/对外 JSON 中的稳定键（例如 WIN64）。
func (p PlatformArch) Key() string {
	if s, ok := platformSpecs[p]; ok {
		return s.key
	}
	return "unknown"
}

// Label 是给人看的名称（例如 "Windows x64"）。
func (p PlatformArch) Label() string {
	if s, ok := platformSpecs[p]; ok {
		return s.label
	}
	return "unknown"
}

// PathTemplate 返回相对 base URL 的路径模板。
func (p PlatformArch) PathTemplate() string {
	return platformSpecs[p].template
}

func (p PlatformArch) Valid() bool {
	_, ok := platformSpecs[p]
	return ok
}

func (p PlatformArch) String() string { return p.Key() }

func (p PlatformArch) MarshalText() ([]byte, error) {
	return []byte(p.Key()), nil
}

func (p *PlatformArch) UnmarshalText(b []byte) error {
	v, err := ParsePlatformArch(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParsePlatformArch 按稳定键解析（大小写不敏感）。
func ParsePlatformArch(s string) (PlatformArch, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for _, p := range AllPlatforms() {
		if p.Key() == s {
			return p, nil
		}
	}
	if s == "UNKNOWN" {
		return PlatformUnknown, nil
	}
	return PlatformUnknown, fmt.Errorf("未知平台：%q", s)
}
