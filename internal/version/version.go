package version

import (
	"regexp"
	"strconv"
	"strings"
)

// 完整版本形如 1.1.68.632.g2b11de83：四段数字 + ".g" + 8 位十六进制提交号。
var fullRE = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+\.g[0-9a-f]{8}$`)

// InvalidError 表示版本字符串不是完整版本格式。
type InvalidError struct {
	Version string
}

func (e *InvalidError) Error() string {
	return "版本格式无效：" + strconv.Quote(e.Version) + "（示例：1.1.68.632.g2b11de83）"
}

// Validate 校验完整版本字符串；不合法时返回 *InvalidError。
func Validate(v string) error {
	if !fullRE.MatchString(v) {
		return &InvalidError{Version: v}
	}
	return nil
}

// Base 解析前三段数字 (major, minor, patch)。
func Base(v string) (major, minor, patch int, ok bool) {
	parts := strings.SplitN(v, ".", 4)
	if len(parts) < 3 {
		return 0, 0, 0, false
	}
	nums := [3]int{}
	for i := 0; i < 3; i++ {
		n, err := strconv.ParseUint(parts[i], 10, 32)
		if err != nil {
			return 0, 0, 0, false
		}
		nums[i] = int(n)
	}
	return nums[0], nums[1], nums[2], true
}

// Short 返回展示用的短版本：".g" 之前的部分，否则取前四段。
func Short(v string) string {
	if i := strings.Index(v, ".g"); i >= 0 {
		return v[:i]
	}
	parts := strings.Split(v, ".")
	if len(parts) > 4 {
		parts = parts[:4]
	}
	return strings.Join(parts, ".")
}
