package probe

import (
	"context"
	"io"
	"net/http"

	"github.com/LoaderSpot/loaderspot/internal/domain"
	"github.com/LoaderSpot/loaderspot/internal/infra/httpx"
)

// Prober 执行一次存在性检查并给出分类。
//
// 实现必须并发安全，且不能返回 error：任何失败都折叠为 NotFound。
type Prober interface {
	Probe(ctx context.Context, url string) domain.ProbeStatus
}

// ProberFunc 让普通函数满足 Prober（测试桩常用）。
type ProberFunc func(ctx context.Context, url string) domain.ProbeStatus

func (f ProberFunc) Probe(ctx context.Context, url string) domain.ProbeStatus { return f(ctx, url) }

// HTTPProber 用 HEAD 请求探测候选 URL。
type HTTPProber struct {
	Client *http.Client
}

func New(c *http.Client) *HTTPProber {
	return &HTTPProber{Client: c}
}

const maxDrain = 4 << 10

func (p *HTTPProber) Probe(ctx context.Context, url string) domain.ProbeStatus {
	if p == nil || p.Client == nil {
		return domain.NotFound
	}

	ctx, cancel := context.WithTimeout(ctx, httpx.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return domain.NotFound
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return domain.NotFound
	}
	// 少量 drain 让连接可以复用；HEAD 正常情况下没有 body。
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrain)
	_ = resp.Body.Close()

	return Classify(resp.StatusCode)
}

// Classify 把 HTTP 状态码映射为探测结果。
func Classify(status int) domain.ProbeStatus {
	switch {
	case status >= 200 && status < 300:
		return domain.Found
	case status == http.StatusTooManyRequests:
		return domain.RateLimited
	default:
		return domain.NotFound
	}
}
