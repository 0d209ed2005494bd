package candidate

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// DefaultBaseURL 是安装包所在的固定源站。
const DefaultBaseURL = "https://upgrade.scdn.co/upgrade/client/"

// Generator 把 (平台, 版本, 构建号) 映射为完整 URL。
//
// 约束：纯函数、确定性、无 I/O；占位符做字面替换，不做转义（版本字符串视为 URL 安全）。
type Generator struct {
	BaseURL string
}

// New 返回以 base 为源站的生成器；base 为空时使用 DefaultBaseURL。
func New(base string) Generator {
	base = strings.TrimSpace(base)
	if base == "" {
		base = DefaultBaseURL
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Generator{BaseURL: base}
}

// Generate 生成候选 URL。
func (g Generator) Generate(p domain.PlatformArch, version string, build int) string {
	base := g.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	path := p.PathTemplate()
	path = strings.Replace(path, "{version}", version, 1)
	path = strings.Replace(path, "{number}", strconv.Itoa(build), 1)
	return base + path
}

// Generate 使用默认源站生成候选 URL。
func Generate(p domain.PlatformArch, version string, build int) string {
	return Generator{BaseURL: DefaultBaseURL}.Generate(p, version, build)
}

var buildRE = regexp.MustCompile(`-([0-9]+)\.[A-Za-z0-9]+$`)

// BuildNumber 从 URL 末尾的 "-<digits>.<ext>" 中取出构建号。
func BuildNumber(u string) (int, bool) {
	m := buildRE.FindStringSubmatch(u)
	if len(m) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}
