package candidate

import (
	"strings"
	"testing"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

func TestGenerate_WinX64(t *testing.T) {
	got := Generate(domain.WinX64, "1.1.68.632.g2b11de83", 11)
	want := "https://upgrade.scdn.co/upgrade/client/win32-x86_64/spotify_installer-1.1.68.632.g2b11de83-11.exe"
	if got != want {
		t.Fatalf("期望 %q，实际 %q", want, got)
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	g := New("http://127.0.0.1:9999/base")
	a := g.Generate(domain.MacOSArm64, "1.2.3.4.gdeadbeef", 42)
	b := g.Generate(domain.MacOSArm64, "1.2.3.4.gdeadbeef", 42)
	if a != b {
		t.Fatalf("相同输入必须得到相同输出：%q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "http://127.0.0.1:9999/base/osx-arm64/") {
		t.Fatalf("base 拼接不正确：%q", a)
	}
	if !strings.HasSuffix(a, "-42.tbz") {
		t.Fatalf("扩展名/构建号不正确：%q", a)
	}
}

func TestBuildNumber_RoundTrip(t *testing.T) {
	versions := []string{"1.1.68.632.g2b11de83", "1.2.53.900.gabcdef01", "9.9.9.9.g00000000"}
	builds := []int{0, 1, 11, 999, 1000, 15000, 123456}
	for _, p := range domain.AllPlatforms() {
		for _, v := range versions {
			for _, n := range builds {
				u := Generate(p, v, n)
				got, ok := BuildNumber(u)
				if !ok || got != n {
					t.Fatalf("round-trip 失败：platform=%s version=%s build=%d url=%q got=%d ok=%v", p, v, n, u, got, ok)
				}
			}
		}
	}
}

func TestBuildNumber_NoMatch(t *testing.T) {
	if _, ok := BuildNumber("https://example.test/file.exe"); ok {
		t.Fatalf("不含构建号的 URL 不应匹配")
	}
}
