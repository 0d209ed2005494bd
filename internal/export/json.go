package export

import (
	"encoding/json"

	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/infra/fsx"
)

// MarshalReport 生成缩进的 report JSON（末尾带换行）。
func MarshalReport(rr domain.RunReport) ([]byte, error) {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// WriteJSON 把 report 原子写入 path（已存在则覆盖）。
func WriteJSON(path string, rr domain.RunReport) error {
	b, err := MarshalReport(rr)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(path, b)
}
