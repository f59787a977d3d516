package collector

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent     = "HostingNewsBot/1.0"
	defaultFetchTimeout  = 20 * time.Second
	maxResponseBodyBytes = 4 << 20 // 4MB，新闻页和 feed 都远小于此
)

// HTTPFetcher 简单的 GET 封装，带超时与响应体大小限制
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewHTTPFetcher client 为 nil 时使用默认 http.Client
func NewHTTPFetcher(client *http.Client, userAgent string, timeout time.Duration) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	return &HTTPFetcher{client: client, userAgent: userAgent, timeout: timeout}
}

// Get 拉取 url 的内容，非 2xx 视为失败
func (f *HTTPFetcher) Get(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("get %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}
