package botclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func newTokenServer(t *testing.T, hits *atomic.Int64, code int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/token" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("X-APPID") == "" || r.Header.Get("sign") == "" ||
			r.Header.Get("nonce") == "" || r.Header.Get("timestamp") == "" ||
			r.Header.Get("request_id") == "" {
			t.Error("missing auth headers on token request")
		}
		hits.Add(1)
		if code != 0 {
			fmt.Fprintf(w, `{"code":%d,"msg":"token denied"}`, code)
			return
		}
		fmt.Fprintf(w, `{"code":0,"data":{"access_token":"tok-%d"}}`, hits.Load())
	}))
}

func TestTokenCachedUntilExpiry(t *testing.T) {
	var hits atomic.Int64
	ts := newTokenServer(t, &hits, 0)
	defer ts.Close()

	clk := &clock{t: time.Unix(1700000000, 0)}
	m := NewTokenManager("appid", "secret", ts.URL, time.Hour, NewWindowLimiter(30, time.Minute, time.Minute))
	m.nowFn = clk.now
	m.httpClient = ts.Client()

	ctx := context.Background()
	v1, err := m.Token(ctx)
	if err != nil {
		t.Fatalf("cold fetch: %v", err)
	}
	if v1 != "tok-1" || hits.Load() != 1 {
		t.Fatalf("cold fetch: token=%q hits=%d", v1, hits.Load())
	}

	// Warm path never touches the network.
	v2, err := m.Token(ctx)
	if err != nil || v2 != v1 || hits.Load() != 1 {
		t.Fatalf("warm fetch: token=%q err=%v hits=%d", v2, err, hits.Load())
	}

	// Expiry is ttl minus the safety margin: 5s short of an hour is still
	// cached, past the margin it refreshes.
	clk.advance(time.Hour - 6*time.Second)
	if _, err := m.Token(ctx); err != nil || hits.Load() != 1 {
		t.Fatalf("just inside expiry: err=%v hits=%d", err, hits.Load())
	}
	clk.advance(2 * time.Second)
	v3, err := m.Token(ctx)
	if err != nil || v3 != "tok-2" || hits.Load() != 2 {
		t.Fatalf("post-expiry: token=%q err=%v hits=%d", v3, err, hits.Load())
	}
}

func TestTokenFailureClearsCache(t *testing.T) {
	var hits atomic.Int64
	ts := newTokenServer(t, &hits, 45009)
	defer ts.Close()

	m := NewTokenManager("appid", "secret", ts.URL, time.Hour, NewWindowLimiter(30, time.Minute, time.Minute))
	m.httpClient = ts.Client()
	m.value = "stale"
	m.expiry = time.Now().Add(-time.Minute)

	_, err := m.Token(context.Background())
	var tfe *TokenFetchError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected *TokenFetchError, got %v", err)
	}
	if tfe.Msg != "token denied" {
		t.Fatalf("unexpected message %q", tfe.Msg)
	}
	if m.value != "" {
		t.Fatal("failed refresh must clear the cached token")
	}
}

func TestTokenTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	ts.Close() // force a connection error

	m := NewTokenManager("appid", "secret", ts.URL, time.Hour, NewWindowLimiter(30, time.Minute, time.Minute))
	_, err := m.Token(context.Background())
	var tfe *TokenFetchError
	if !errors.As(err, &tfe) {
		t.Fatalf("expected *TokenFetchError, got %v", err)
	}
	if tfe.Unwrap() == nil {
		t.Fatal("transport error should be wrapped")
	}
}

func TestTokenRespectsRateLimiter(t *testing.T) {
	var hits atomic.Int64
	ts := newTokenServer(t, &hits, 0)
	defer ts.Close()

	m := NewTokenManager("appid", "secret", ts.URL, time.Hour, NewWindowLimiter(0, time.Minute, time.Minute))
	m.httpClient = ts.Client()

	_, err := m.Token(context.Background())
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatal("rate-limited fetch must not reach the network")
	}
}
