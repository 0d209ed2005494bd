package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/LoaderSpot/loaderspot/internal/candidate"
	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/infra/fsx"
)

const (
	SheetLatest = "Latest"
	SheetHits   = "Hits"
)

var (
	latestHeader = []any{"version", "platform", "label", "build", "url"}
	hitsHeader   = []any{"version", "platform", "build", "url"}
)

// WriteXLSX 把 RunReport 导出为两张表（原子写入 path）：
// - Latest：每个版本每个平台的最新 URL（零命中的版本写一行 unknown）
// - Hits：所有命中的 URL（按 RunReport 的稳定顺序）
func WriteXLSX(path string, rr domain.RunReport) error {
	f, err := Build(rr)
	if err != nil {
		return err
	}
	defer f.Close()

	return fsx.WriteFileAtomicFunc(path, func(w io.Writer) error {
		return f.Write(w)
	})
}

// Build 生成工作簿但不落盘（调用方负责 Close）。
func Build(rr domain.RunReport) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetLatest); err != nil {
		_ = f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetHits); err != nil {
		_ = f.Close()
		return nil, err
	}

	latest := [][]any{latestHeader}
	for _, r := range rr.Results {
		v := r.Metadata[domain.MetaVersion]
		if !r.Found() {
			latest = append(latest, []any{v, domain.UnknownPlaceholder, "", "", ""})
			continue
		}
		for _, p := range r.Platforms() {
			u := r.Latest[p]
			build, _ := candidate.BuildNumber(u)
			latest = append(latest, []any{v, p.Key(), p.Label(), build, u})
		}
	}

	hits := [][]any{hitsHeader}
	for _, h := range rr.Hits {
		hits = append(hits, []any{h.Version, h.Platform.Key(), h.Build, h.URL})
	}

	if err := writeRows(f, SheetLatest, latest); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := writeRows(f, SheetHits, hits); err != nil {
		_ = f.Close()
		return nil, err
	}
	_ = f.SetColWidth(SheetLatest, "E", "E", 90)
	_ = f.SetColWidth(SheetHits, "D", "D", 90)
	return f, nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("写入 %s 第 %d 行失败：%w", sheet, i+1, err)
		}
	}
	return nil
}
