package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"market-maker-sim/market"
)

// BinanceRESTClient 只读行情客户端，用于连接建立后拉取一次深度快照预热盘口。
// HTTPClient 可注入 httptest。
type BinanceRESTClient struct {
	BaseURL    string
	HTTPClient *http.Client
	Limiter    RateLimiter
}

// DepthSnapshot 调用 /api/v3/depth，返回过滤并排序后的买卖档位。
func (c *BinanceRESTClient) DepthSnapshot(ctx context.Context, symbol string, limit int) (bids, asks []market.Level, err error) {
	if c == nil || c.HTTPClient == nil {
		return nil, nil, fmt.Errorf("http client not set")
	}
	if symbol == "" {
		return nil, nil, fmt.Errorf("symbol required")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, nil, err
		}
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := strings.TrimRight(c.BaseURL, "/") + "/api/v3/depth?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("depth snapshot status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	ev, err := parseDepth(body)
	if err != nil {
		return nil, nil, err
	}
	return ev.Bids, ev.Asks, nil
}

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}
