package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/scan"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultRange       = "0-5000"
	DefaultVersionsURL = "https://raw.githubusercontent.com/amd64fox/LoaderSpot/refs/heads/main/versions.json"
	DefaultFormURL     = "https://docs.google.com/forms/u/0/d/e/1FAIpQLSdqIxSjqt2PcjBlQzhvwqc4QckfWuq5qqWsrdpoTidQHsPGpw/formResponse"
)

// 在 cwd 中按顺序查找的配置文件名。
var discoverNames = []string{"loaderspot.json", "loaderspot.yaml", "loaderspot.yml"}

// CLIArgs 保留每个参数“是否显式指定”的信息，保证 CLI > 配置文件 > 默认 的覆盖顺序可实现。
// 例如 --report-unknown=false 必须能覆盖 report_unknown: true。
type CLIArgs struct {
	// ConfigPath 非空时只读取该文件，且文件必须存在。
	ConfigPath string

	Versions []string

	Range    string
	RangeSet bool

	Platforms    string
	PlatformsSet bool

	Arches    string
	ArchesSet bool

	Connections    int
	ConnectionsSet bool

	Adaptive    bool
	AdaptiveSet bool

	GASURL    string
	GASURLSet bool

	Source    string
	SourceSet bool

	ReportUnknown    bool
	ReportUnknownSet bool

	ProxyURL    string
	ProxyURLSet bool

	RateLimit    float64
	RateLimitSet bool

	BaseURL    string
	BaseURLSet bool

	// 只由 CLI 控制的输出位置。
	Out  string
	XLSX string
}

// FileConfig 对应 loaderspot.json / loaderspot.yaml 的解析结构。
type FileConfig struct {
	Versions      []string        `json:"versions" yaml:"versions"`
	Range         string          `json:"range" yaml:"range"`
	Platforms     string          `json:"platforms" yaml:"platforms"`
	Arches        string          `json:"arches" yaml:"arches"`
	Connections   int             `json:"connections" yaml:"connections"`
	Proxy         *ProxyConfig    `json:"proxy" yaml:"proxy"`
	RateLimit     float64         `json:"rate_limit" yaml:"rate_limit"`
	BaseURL       string          `json:"base_url" yaml:"base_url"`
	GASURL        string          `json:"gas_url" yaml:"gas_url"`
	Source        string          `json:"source" yaml:"source"`
	ReportUnknown *bool           `json:"report_unknown" yaml:"report_unknown"`
	VersionsURL   string          `json:"versions_url" yaml:"versions_url"`
	FormURL       string          `json:"form_url" yaml:"form_url"`
	Adaptive      *AdaptiveConfig `json:"adaptive" yaml:"adaptive"`
}

type ProxyConfig struct {
	URL string `json:"url" yaml:"url"`
}

// AdaptiveConfig 为 0 的字段使用内置默认值。
type AdaptiveConfig struct {
	Enabled       *bool `json:"enabled" yaml:"enabled"`
	InitialWindow int   `json:"initial_window" yaml:"initial_window"`
	Increment     int   `json:"increment" yaml:"increment"`
	MaxRounds     int   `json:"max_rounds" yaml:"max_rounds"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取的配置文件；未读取任何文件时为空。
	ConfigPath string

	Versions  []string
	Platforms []domain.PlatformArch
	Strategy  domain.Strategy

	Connections int
	ProxyURL    string
	RateLimit   float64
	BaseURL     string

	GASURL        string
	Source        string
	ReportUnknown bool
	VersionsURL   string
	FormURL       string

	Out  string
	XLSX string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Path == "" {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则：
// 1) CLI 提供 --config：只读该文件（必须存在，扩展名决定 JSON/YAML）
// 2) 否则依次尝试 <cwd>/loaderspot.json、loaderspot.yaml、loaderspot.yml（可选）
//
// 覆盖优先级：CLI > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
		return merge(cli, fc, cfgPath)
	}

	for _, name := range discoverNames {
		p := filepath.Join(cwdAbs, name)
		got, exists, err := readFileConfig(p)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: err}
		}
		if exists {
			return merge(cli, got, p)
		}
	}
	return merge(cli, FileConfig{}, "")
}

func merge(cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(err error) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	versions := fc.Versions
	if len(cli.Versions) > 0 {
		versions = cli.Versions
	}

	oses := pickString(cli.PlatformsSet, cli.Platforms, fc.Platforms, "all")
	arches := pickString(cli.ArchesSet, cli.Arches, fc.Arches, "all")
	platforms, err := SelectPlatforms(oses, arches)
	if err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	connections := fc.Connections
	if cli.ConnectionsSet {
		connections = cli.Connections
	}
	connections = ClampConnections(connections)

	proxyURL := ""
	if fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if cli.ProxyURLSet {
		proxyURL = strings.TrimSpace(cli.ProxyURL)
	}
	if proxyURL != "" {
		if err := validateHTTPURL("proxy.url", proxyURL); err != nil {
			return EffectiveConfig{}, invalid(err)
		}
	}

	rateLimit := fc.RateLimit
	if cli.RateLimitSet {
		rateLimit = cli.RateLimit
	}
	if rateLimit < 0 {
		return EffectiveConfig{}, invalid(fmt.Errorf("rate_limit 不能为负：%v", rateLimit))
	}

	baseURL := pickString(cli.BaseURLSet, cli.BaseURL, fc.BaseURL, candidate.DefaultBaseURL)
	if err := validateHTTPURL("base_url", baseURL); err != nil {
		return EffectiveConfig{}, invalid(err)
	}

	gasURL := pickString(cli.GASURLSet, cli.GASURL, fc.GASURL, "")
	if gasURL != "" {
		if err := validateHTTPURL("gas_url", gasURL); err != nil {
			return EffectiveConfig{}, invalid(err)
		}
	}
	source := pickString(cli.SourceSet, cli.Source, fc.Source, "")

	reportUnknown := false
	if cli.ReportUnknownSet {
		reportUnknown = cli.ReportUnknown
	} else if fc.ReportUnknown != nil {
		reportUnknown = *fc.ReportUnknown
	}

	versionsURL := strings.TrimSpace(fc.VersionsURL)
	if versionsURL == "" {
		versionsURL = DefaultVersionsURL
	}
	formURL := strings.TrimSpace(fc.FormURL)
	if formURL == "" {
		formURL = DefaultFormURL
	}

	// 模式：--adaptive > adaptive.enabled；同时给出 gas_url 与 source 时也进入 adaptive。
	adaptive := false
	if cli.AdaptiveSet {
		adaptive = cli.Adaptive
	} else if fc.Adaptive != nil && fc.Adaptive.Enabled != nil {
		adaptive = *fc.Adaptive.Enabled
	}
	if gasURL != "" && source != "" {
		adaptive = true
	}

	var st domain.Strategy
	if adaptive {
		st = domain.AdaptiveStrategy(adaptiveParams(fc.Adaptive))
	} else {
		r, err := ParseRange(pickString(cli.RangeSet, cli.Range, fc.Range, DefaultRange))
		if err != nil {
			return EffectiveConfig{}, invalid(err)
		}
		st = domain.FixedStrategy(r)
	}

	return EffectiveConfig{
		ConfigPath:    cfgPath,
		Versions:      normalizeVersions(versions),
		Platforms:     platforms,
		Strategy:      st,
		Connections:   connections,
		ProxyURL:      proxyURL,
		RateLimit:     rateLimit,
		BaseURL:       baseURL,
		GASURL:        gasURL,
		Source:        source,
		ReportUnknown: reportUnknown,
		VersionsURL:   versionsURL,
		FormURL:       formURL,
		Out:           strings.TrimSpace(cli.Out),
		XLSX:          strings.TrimSpace(cli.XLSX),
	}, nil
}

// ClampConnections 把并发上限钳制到 [50, 300]；0 表示使用默认值。
func ClampConnections(n int) int {
	if n == 0 {
		return scan.DefaultConcurrency
	}
	if n < scan.MinConcurrency {
		return scan.MinConcurrency
	}
	if n > scan.MaxConcurrency {
		return scan.MaxConcurrency
	}
	return n
}

// ParseRange 解析 "start-end" 形式的构建号区间。
// 只做语法检查；倒置/跨度等语义校验由 planner 负责。
func ParseRange(s string) (domain.Range, error) {
	s = strings.TrimSpace(s)
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return domain.Range{}, fmt.Errorf("range 格式应为 start-end，实际 %q", s)
	}
	start, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil || start < 0 {
		return domain.Range{}, fmt.Errorf("range 起点不是非负整数：%q", a)
	}
	end, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil || end < 0 {
		return domain.Range{}, fmt.Errorf("range 终点不是非负整数：%q", b)
	}
	return domain.Range{Start: start, End: end}, nil
}

// SelectPlatforms 把 (系统, 架构) 两个逗号列表映射为规范顺序、去重后的平台集合。
//
// 合法组合：win×{x86,x64,arm64}、mac×{intel,arm64}；其余组合忽略。结果为空时报错。
func SelectPlatforms(oses, arches string) ([]domain.PlatformArch, error) {
	osSet, err := parseList(oses, []string{"win", "mac"})
	if err != nil {
		return nil, err
	}
	archSet, err := parseList(arches, []string{"x86", "x64", "arm64", "intel"})
	if err != nil {
		return nil, err
	}

	matrix := []struct {
		os, arch string
		p        domain.PlatformArch
	}{
		{"win", "x86", domain.WinX86},
		{"win", "x64", domain.WinX64},
		{"win", "arm64", domain.WinArm64},
		{"mac", "intel", domain.MacOSIntel},
		{"mac", "arm64", domain.MacOSArm64},
	}

	out := make([]domain.PlatformArch, 0, len(matrix))
	for _, m := range matrix {
		if osSet[m.os] && archSet[m.arch] {
			out = append(out, m.p)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("平台 %q 与架构 %q 没有可用组合", oses, arches)
	}
	return out, nil
}

func parseList(s string, allowed []string) (map[string]bool, error) {
	out := map[string]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if part == "all" {
			for _, a := range allowed {
				out[a] = true
			}
			continue
		}
		ok := false
		for _, a := range allowed {
			if a == part {
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("未知取值 %q（可选：%s, all）", part, strings.Join(allowed, ", "))
		}
		out[part] = true
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("选择不能为空（可选：%s, all）", strings.Join(allowed, ", "))
	}
	return out, nil
}

func adaptiveParams(ac *AdaptiveConfig) domain.AdaptiveParams {
	p := domain.DefaultAdaptive()
	if ac == nil {
		return p
	}
	if ac.InitialWindow > 0 {
		p.InitialWindow = ac.InitialWindow
	}
	if ac.Increment > 0 {
		p.Increment = ac.Increment
	}
	if ac.MaxRounds > 0 {
		p.MaxRounds = ac.MaxRounds
	}
	return p
}

func pickString(set bool, cli, file, def string) string {
	if set {
		return strings.TrimSpace(cli)
	}
	if v := strings.TrimSpace(file); v != "" {
		return v
	}
	return def
}

// normalizeVersions 支持 "a,b" 与多次传参两种写法。
func normalizeVersions(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s 无效：%w", field, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s 必须是 http/https 绝对地址：%q", field, raw)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析配置文件（.yaml/.yml 用 YAML，其余按 JSON）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = json.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
