package botclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"bilirelay/internal/metrics"
)

// expiryMargin is subtracted from the configured token lifetime so the cached
// token is refreshed shortly before the service would reject it.
const expiryMargin = 5 * time.Second

// TokenManager caches the bot-service access token and refreshes it on
// demand. All mutations of the cache happen under the mutex so concurrent
// dispatch goroutines observe single-writer semantics.
type TokenManager struct {
	appID      string
	baseURL    string
	ttl        time.Duration
	signer     *Signer
	limiter    *WindowLimiter
	httpClient *http.Client
	nowFn      func() time.Time

	mu     sync.Mutex
	value  string
	expiry time.Time
}

func NewTokenManager(appID, appSecret, baseURL string, ttl time.Duration, limiter *WindowLimiter) *TokenManager {
	return &TokenManager{
		appID:      appID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		ttl:        ttl,
		signer:     NewSigner(appSecret),
		limiter:    limiter,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		nowFn:      time.Now,
	}
}

// Token returns the cached access token when it is still valid, otherwise it
// consumes one rate-limiter point and fetches a fresh one. Any failure clears
// the cache and surfaces as ErrRateLimited or *TokenFetchError; the caller
// decides whether a later cycle retries.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	now := m.nowFn()
	m.mu.Lock()
	if m.value != "" && m.expiry.After(now) {
		v := m.value
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	if err := m.limiter.Consume(1); err != nil {
		return "", err
	}

	const body = "{}"
	p := m.signer.Params()
	sign := m.signer.Sign(p, body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/v2/token", strings.NewReader(body))
	if err != nil {
		m.invalidate()
		return "", &TokenFetchError{Msg: "build request", Err: err}
	}
	req.Header.Set("X-APPID", m.appID)
	req.Header.Set("request_id", p.RequestID)
	req.Header.Set("timestamp", strconv.FormatInt(p.Timestamp, 10))
	req.Header.Set("nonce", p.Nonce)
	req.Header.Set("sign", sign)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.invalidate()
		return "", &TokenFetchError{Msg: "transport", Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		m.invalidate()
		return "", &TokenFetchError{Msg: "read response", Err: err}
	}
	var out struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		m.invalidate()
		return "", &TokenFetchError{Msg: fmt.Sprintf("decode response (http %d)", resp.StatusCode), Err: err}
	}
	if out.Code != 0 {
		m.invalidate()
		msg := out.Msg
		if msg == "" {
			msg = "unknown error"
		}
		return "", &TokenFetchError{Msg: msg}
	}

	m.mu.Lock()
	m.value = out.Data.AccessToken
	m.expiry = now.Add(m.ttl - expiryMargin)
	m.mu.Unlock()
	metrics.TokenRefreshes.Inc()
	return out.Data.AccessToken, nil
}

func (m *TokenManager) invalidate() {
	m.mu.Lock()
	m.value = ""
	m.mu.Unlock()
}
