package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

func TestWriteJSON_RoundTrip(t *testing.T) {
	rr := domain.RunReport{RunID: "r1", State: domain.StateCompleted}
	rr.Finalize()

	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteJSON(path, rr); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取失败：%v", err)
	}
	var back domain.RunReport
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("report 不是合法 JSON：%v", err)
	}
	if back.RunID != "r1" || back.State != domain.StateCompleted {
		t.Fatalf("report 内容不正确：%+v", back)
	}
}
