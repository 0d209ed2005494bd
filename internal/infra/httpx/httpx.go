package httpx

import (
	"errors"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// ProbeTimeout 是单次存在性检查的固定超时。
	ProbeTimeout = 10 * time.Second

	defaultMetaTimeout = 20 * time.Second
	defaultRetryMax    = 2
)

// Transport 把“UA 池 + 代理 + 限速 + 有界重试”固化为统一策略。
//
// 探测方（probe）与元数据方（remote）只负责构造请求和解释响应，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。探测客户端固定为 0。
	RetryMax int

	// Limiter 非 nil 时，每次尝试前都要先拿到令牌（全局 token bucket）。
	Limiter *rate.Limiter
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if t.Limiter != nil {
			if err := t.Limiter.Wait(req.Context()); err != nil {
				return nil, err
			}
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.ua != nil {
			r.Header.Set("User-Agent", t.ua.random())
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ProbeOptions 描述探测客户端的网络策略。
type ProbeOptions struct {
	ProxyURL string
	// MaxConns 与并发上限对齐，让连接池不成为第二道闸门。
	MaxConns int
	// RateLimit 为每秒探测数；<=0 表示不限速。
	RateLimit float64
}

// NewProbeClient 构造用于存在性检查的 HTTP client。
//
// 规则：
// - 不重试：瞬时失败与“不存在”对上层不可区分
// - 不跟随重定向：HEAD 得到的 3xx 直接按非成功处理
// - 总超时固定为 ProbeTimeout
func NewProbeClient(opts ProbeOptions) (*http.Client, error) {
	base, err := newBaseTransport(opts.ProxyURL)
	if err != nil {
		return nil, err
	}
	if opts.MaxConns > 0 {
		base.MaxIdleConns = opts.MaxConns
		base.MaxIdleConnsPerHost = opts.MaxConns
		base.MaxConnsPerHost = opts.MaxConns
	}

	tr := &Transport{
		Base:     base,
		ua:       globalUA,
		RetryMax: 0,
	}
	if opts.RateLimit > 0 {
		burst := int(opts.RateLimit)
		if burst < 1 {
			burst = 1
		}
		tr.Limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	return &http.Client{
		Transport: tr,
		Timeout:   ProbeTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}, nil
}

// NewMetaClient 构造用于 versions.json / 表单 / Apps Script 的 HTTP client（有界重试 + 总超时）。
func NewMetaClient(proxyURL string) (*http.Client, error) {
	base, err := newBaseTransport(proxyURL)
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: &Transport{
			Base:     base,
			ua:       globalUA,
			RetryMax: defaultRetryMax,
		},
		Timeout: defaultMetaTimeout,
	}, nil
}

func newBaseTransport(proxyURL string) (*http.Transport, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: ProbeTimeout,
		IdleConnTimeout:       90 * time.Second,
	}

	proxyURL = strings.TrimSpace(proxyURL)
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 缺少 scheme 或 host")
		}
		base.Proxy = http.ProxyURL(u)
	}
	return base, nil
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
