package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// FormComment 是提交未知版本时附带的说明。
const FormComment = "from LoaderSpot"

const maxCatalogBytes = 8 << 20

// Catalog 查询已收录版本列表，并把未收录的版本提交到收集表单。
//
// 这是探测之外的辅助通道：任何失败都不影响扫描本身。
type Catalog struct {
	Client      *http.Client
	VersionsURL string
	FormURL     string
}

type catalogEntry struct {
	FullVersion string `json:"fullversion"`
}

// Known 报告 v 是否已出现在 versions.json 中。
//
// 网络错误与非 2xx 返回 error；内容不是预期结构时视为“未知”（false, nil）。
func (c Catalog) Known(ctx context.Context, v string) (bool, error) {
	if c.Client == nil {
		return false, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.VersionsURL, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.Client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, &HTTPStatusError{URL: c.VersionsURL, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return false, err
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(b, &entries); err != nil {
		return false, nil
	}
	for _, raw := range entries {
		var e catalogEntry
		if json.Unmarshal(raw, &e) != nil {
			continue
		}
		if e.FullVersion == v {
			return true, nil
		}
	}
	return false, nil
}

// SubmitUnknown 以表单 POST 提交未收录版本（尽力而为，不重试）。
func (c Catalog) SubmitUnknown(ctx context.Context, v string) error {
	if c.Client == nil {
		return errors.New("http client 不能为空")
	}
	form := url.Values{}
	form.Set("entry.1104502920", v)
	form.Set("entry.1319854718", FormComment)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.FormURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPStatusError{URL: c.FormURL, StatusCode: resp.StatusCode}
	}
	return nil
}

// CheckAndSubmit 在版本未收录时提交；查询失败时不提交（保守处理）。
// 返回值 submitted 表示是否实际发出了提交。
func (c Catalog) CheckAndSubmit(ctx context.Context, v string) (submitted bool, err error) {
	known, err := c.Known(ctx, v)
	if err != nil {
		return false, err
	}
	if known {
		return false, nil
	}
	if err := c.SubmitUnknown(ctx, v); err != nil {
		return false, err
	}
	return true, nil
}
