package export

import (
	"path/filepath"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/domain"
)

const (
	found   = "1.2.40.599.g606b7f29"
	missing = "1.2.41.1.gaaaaaaaa"
)

func TestWriteXLSX_Sheets(t *testing.T) {
	u := candidate.Generate(domain.WinX64, found, 11)
	rr := domain.RunReport{
		Results: []domain.AggregatedResult{
			{
				Latest:   map[domain.PlatformArch]string{domain.WinX64: u},
				Metadata: map[string]string{domain.MetaVersion: found},
			},
			{
				Latest:   map[domain.PlatformArch]string{domain.PlatformUnknown: domain.UnknownPlaceholder},
				Metadata: map[string]string{domain.MetaVersion: missing},
			},
		},
		Hits: []domain.Hit{{URL: u, Platform: domain.WinX64, Version: found, Build: 11}},
	}

	path := filepath.Join(t.TempDir(), "out", "result.xlsx")
	if err := WriteXLSX(path, rr); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("打开 xlsx 失败：%v", err)
	}
	defer f.Close()

	latest, err := f.GetRows(SheetLatest)
	if err != nil {
		t.Fatalf("读取 %s 失败：%v", SheetLatest, err)
	}
	if len(latest) != 3 {
		t.Fatalf("期望 3 行（表头 + 2），实际 %d：%v", len(latest), latest)
	}
	if latest[1][0] != found || latest[1][1] != "WIN64" || latest[1][3] != "11" || latest[1][4] != u {
		t.Fatalf("Latest 行内容不正确：%v", latest[1])
	}
	if latest[2][0] != missing || latest[2][1] != domain.UnknownPlaceholder {
		t.Fatalf("零命中版本应写 unknown：%v", latest[2])
	}

	hits, err := f.GetRows(SheetHits)
	if err != nil {
		t.Fatalf("读取 %s 失败：%v", SheetHits, err)
	}
	if len(hits) != 2 || hits[1][3] != u {
		t.Fatalf("Hits 内容不正确：%v", hits)
	}
}

func TestWriteXLSX_TargetIsDir(t *testing.T) {
	dir := t.TempDir()
	if err := WriteXLSX(dir, domain.RunReport{}); err == nil {
		t.Fatalf("目标为目录时应报错")
	}
}
