package biliclient

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMissingCSRF means the configured cookie string holds neither bili_csrf
// nor bili_jct. This is a configuration defect, not a transient failure.
var ErrMissingCSRF = errors.New("missing bili_csrf/bili_jct in cookie")

// parseCookieString splits a raw Cookie header into a key/value map.
func parseCookieString(raw string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// CSRFFromCookies extracts the anti-forgery token from a raw cookie string,
// preferring bili_csrf and falling back to bili_jct.
func CSRFFromCookies(raw string) (string, error) {
	cookies := parseCookieString(raw)
	for _, key := range []string{"bili_csrf", "bili_jct"} {
		if v := cookies[key]; v != "" {
			if decoded, err := url.QueryUnescape(v); err == nil {
				return decoded, nil
			}
			return v, nil
		}
	}
	return "", ErrMissingCSRF
}
