package biliclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/58.0.3029.110 Safari/537.36"
	acceptHeader     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"

	defaultLiveBaseURL    = "https://api.live.bilibili.com"
	defaultAccountBaseURL = "https://api.bilibili.com"
)

// APIError is a non-zero response code in a Bilibili envelope.
type APIError struct {
	Code    int64
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("bilibili api error code=%d message=%s", e.Code, e.Message)
}

// Client wraps the Bilibili REST endpoints the relay consumes. Every
// cookie-authenticated call carries the configured cookie header and a fixed
// browser user-agent.
type Client struct {
	baseURL        string
	liveBaseURL    string
	accountBaseURL string
	cookies        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	maxAttempts    int
	baseBackoff    time.Duration

	// myMid is the sender identity cached from GetMyInfo.
	myMid int64
}

func New(baseURL, cookies string) *Client {
	return &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		liveBaseURL:    defaultLiveBaseURL,
		accountBaseURL: defaultAccountBaseURL,
		cookies:        cookies,
		httpClient:     &http.Client{Timeout: 10 * time.Second},
		limiter:        newDefaultLimiter(),
		maxAttempts:    3,
		baseBackoff:    500 * time.Millisecond,
	}
}

// SetSender caches the logged-in account mid used as msg[sender_uid].
func (c *Client) SetSender(mid int64) { c.myMid = mid }

type envelope struct {
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e *envelope) message() string {
	if strings.TrimSpace(e.Message) != "" {
		return e.Message
	}
	if strings.TrimSpace(e.Msg) != "" {
		return e.Msg
	}
	return "unknown bilibili api error"
}

// decode unmarshals the envelope data into out after checking the code.
func (e *envelope) decode(out any) error {
	if e.Code != 0 {
		return &APIError{Code: e.Code, Message: e.message()}
	}
	if out == nil || len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, out)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, withCookie bool) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	c.decorate(req, withCookie)
	return c.send(ctx, req)
}

func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) (*envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	c.decorate(req, true)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.send(ctx, req)
}

func (c *Client) decorate(req *http.Request, withCookie bool) {
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept", acceptHeader)
	if withCookie {
		req.Header.Set("Cookie", c.cookies)
	}
}

func (c *Client) send(ctx context.Context, req *http.Request) (*envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := c.doWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", req.URL.Path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s http status %d", req.URL.Path, resp.StatusCode)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode response %s: %w", req.URL.Path, err)
	}
	return &env, nil
}

// doWithRetry retries 5xx responses up to maxAttempts with linear backoff.
// 4xx responses and network-level failures are returned as-is on the first
// attempt; the transport's own timeout bounds each try.
func (c *Client) doWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	backoff := c.baseBackoff
	var lastStatus int
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 500 || resp.StatusCode > 599 {
			return resp, nil
		}
		lastStatus = resp.StatusCode
		_ = resp.Body.Close()
		if attempt == c.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("%s failed after %d attempts: http status %d", req.URL.Path, c.maxAttempts, lastStatus)
}
