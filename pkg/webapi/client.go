// pkg/webapi/client.go
package webapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"asphalt/pkg/config"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "https://apis.roblox.com"

	uploadPath          = "/assets/v1/assets"
	animationUploadPath = "/assets/user-auth/v1/assets"
	operationPath       = "/assets/v1/operations/"

	// TestAssetID 是测试模式下返回的 ID
	TestAssetID = 1337

	maxRetries = 5
	maxPolls   = 10
)

var (
	ErrFatal         = errors.New("previous request failed due to a fatal error")
	ErrPollExhausted = errors.New("operation polling exceeded maximum retries")
	ErrNoResponse    = errors.New("operation completed but no response provided")
	ErrRateLimited   = errors.New("rate limited too many times")
)

// Options 配置 Client
type Options struct {
	APIKey        string
	Cookie        string
	Creator       config.Creator
	ExpectedPrice *uint64

	// BaseURL 为空时使用 DefaultBaseURL
	BaseURL    string
	HTTPClient *http.Client

	// PollDelay 是第一次轮询前的等待，之后每次翻倍
	PollDelay time.Duration
	// BackoffUnit 是 429 退避的时间单位 (x-ratelimit-reset 的 "秒")
	BackoffUnit time.Duration

	// RequestsPerSecond > 0 时在每个请求前主动限速
	RequestsPerSecond float64

	// TestMode 不发任何请求，直接返回 TestAssetID
	TestMode bool
}

// Client 是资源上传 API 的客户端
// 同一进程内所有 input 共享一个 Client: 限流时间点和致命错误标志都是全局的
type Client struct {
	opts    Options
	http    *http.Client
	limiter *rate.Limiter

	// 下一个请求最早可以发出的时间
	resetMu sync.Mutex
	resetAt time.Time

	fatal atomic.Bool

	csrfMu sync.Mutex
	csrf   string
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.PollDelay <= 0 {
		opts.PollDelay = time.Second
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	c := &Client{opts: opts, http: opts.HTTPClient}
	if c.http == nil {
		c.http = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return c
}

// Failed 报告是否发生过致命错误
func (c *Client) Failed() bool { return c != nil && c.fatal.Load() }

// TestMode 报告是否处于测试模式
func (c *Client) TestMode() bool { return c.opts.TestMode }

type response struct {
	status int
	header http.Header
	body   []byte
}

// send 处理限流、CSRF 和致命错误，只返回 200 的响应
// newReq 每次重试都会被调用，因为请求体只能读一次
func (c *Client) send(ctx context.Context, newReq func() (*http.Request, error)) (*response, error) {
	attempt := 0
	csrfRetried := false

	for {
		// 1. 之前有请求致命失败，直接短路
		if c.fatal.Load() {
			return nil, ErrFatal
		}

		// 2. 等待共享的限流时间点
		if err := c.waitForReset(ctx); err != nil {
			return nil, err
		}
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		req, err := newReq()
		if err != nil {
			return nil, err
		}
		if token := c.csrfToken(); token != "" {
			req.Header.Set("X-CSRF-Token", token)
		}

		res, err := c.do(req)
		if err != nil {
			return nil, err
		}

		// 3. 记录 CSRF token，403 + 新 token 重试一次
		newToken := c.storeCSRF(res.header.Get("X-CSRF-Token"))
		switch {
		case res.status == http.StatusOK:
			return res, nil

		case res.status == http.StatusForbidden && newToken && !csrfRetried:
			csrfRetried = true
			log.Debug("retrying request with new CSRF token")
			continue

		case res.status == http.StatusTooManyRequests:
			if attempt >= maxRetries {
				return nil, fmt.Errorf("%w: %s", ErrRateLimited, res.body)
			}
			wait := c.retryDelay(res.header, attempt)
			c.pushReset(wait)
			attempt++
			log.Warnf("Rate limited, retrying in %s", wait)
			continue
		}

		// 4. 其他状态码: 标记致命错误，后续请求全部短路
		c.fatal.Store(true)
		log.Errorf("request failed: %d - %s", res.status, res.body)
		return nil, fmt.Errorf("request failed: %d %s - %s", res.status, http.StatusText(res.status), res.body)
	}
}

func (c *Client) do(req *http.Request) (*response, error) {
	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &response{status: res.StatusCode, header: res.Header, body: body}, nil
}

// retryDelay: x-ratelimit-reset，然后 Retry-After，最后 2^attempt
func (c *Client) retryDelay(h http.Header, attempt int) time.Duration {
	for _, name := range []string{"x-ratelimit-reset", "Retry-After"} {
		if v := h.Get(name); v != "" {
			if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
				return time.Duration(secs * float64(c.opts.BackoffUnit))
			}
		}
	}
	return time.Duration(1<<attempt) * c.opts.BackoffUnit
}

// pushReset 把共享时间点推迟到 now+wait，不会往前移
func (c *Client) pushReset(wait time.Duration) {
	c.resetMu.Lock()
	defer c.resetMu.Unlock()
	if at := time.Now().Add(wait); at.After(c.resetAt) {
		c.resetAt = at
	}
}

// waitForReset 睡到共享时间点为止；睡眠期间别的请求可能又把它推迟，醒来后重新检查
func (c *Client) waitForReset(ctx context.Context) error {
	for {
		c.resetMu.Lock()
		at := c.resetAt
		c.resetMu.Unlock()
		if !time.Now().Before(at) {
			return nil
		}
		if err := sleep(ctx, time.Until(at)); err != nil {
			return err
		}
	}
}

func (c *Client) csrfToken() string {
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()
	return c.csrf
}

// storeCSRF 保存 token，返回它是否和之前不同
func (c *Client) storeCSRF(token string) bool {
	if token == "" {
		return false
	}
	c.csrfMu.Lock()
	defer c.csrfMu.Unlock()
	changed := token != c.csrf
	c.csrf = token
	return changed
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
