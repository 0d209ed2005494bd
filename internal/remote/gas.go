package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/LoaderSpot/loaderspot/internal/domain"
)

// 回复页面中承载结果文本的居中 div。
const replySelector = "div[style*='text-align:center']"

// ErrNoReply 表示 HTML 回复中找不到结果文本。
var ErrNoReply = errors.New("无法从 HTML 回复中提取结果")

// GAS 把聚合结果推送到 Apps Script 端点：GET <URL><urlencode(json)>。
type GAS struct {
	Client *http.Client
	URL    string
}

// Payload 生成推送用的扁平 JSON（平台键 + version/source，零命中时含 unknown 哨兵）。
func Payload(r domain.AggregatedResult) ([]byte, error) {
	return json.MarshalIndent(r.Flatten(), "", "  ")
}

// Send 推送结果并返回端点的回复文本。
func (g GAS) Send(ctx context.Context, r domain.AggregatedResult) (string, error) {
	if g.Client == nil {
		return "", errors.New("http client 不能为空")
	}
	if strings.TrimSpace(g.URL) == "" {
		return "", errors.New("gas_url 不能为空")
	}

	payload, err := Payload(r)
	if err != nil {
		return "", err
	}
	target := g.URL + url.QueryEscape(string(payload))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPStatusError{URL: g.URL, StatusCode: resp.StatusCode}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	return ParseReply(b)
}

// ParseReply 提取回复文本：HTML 页面取居中 div 的文字，纯文本直接去掉首尾空白。
func ParseReply(b []byte) (string, error) {
	if !bytes.Contains(b, []byte("<div")) {
		return strings.TrimSpace(string(b)), nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	sel := doc.Find(replySelector).First()
	if sel.Length() == 0 {
		return "", ErrNoReply
	}
	return strings.TrimSpace(sel.Text()), nil
}
