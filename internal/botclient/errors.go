package botclient

import (
	"errors"
	"fmt"
)

// ErrBadKey means the configured encoding AES key does not decode to 32 bytes.
// Fatal at startup; never retried.
var ErrBadKey = errors.New("invalid encoding aes key")

// ErrRateLimited means the request budget for the current window is exhausted
// and the limiter is cooling down. Transient; the caller decides when to retry.
var ErrRateLimited = errors.New("rate limit exceeded")

// TokenFetchError reports a failed token refresh. The token cache has been
// invalidated by the time this is returned.
type TokenFetchError struct {
	Msg string
	Err error
}

func (e *TokenFetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("token fetch failed: %s: %v", e.Msg, e.Err)
	}
	return "token fetch failed: " + e.Msg
}

func (e *TokenFetchError) Unwrap() error { return e.Err }

// QueryError reports a non-zero response code from the bot query endpoint.
type QueryError struct {
	Code int64
	Msg  string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("bot query error code=%d msg=%s", e.Code, e.Msg)
}
