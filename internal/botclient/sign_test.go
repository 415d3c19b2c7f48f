package botclient

import (
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"
)

func fixedSigner(secret string) *Signer {
	s := NewSigner(secret)
	s.nowFn = func() time.Time { return time.Unix(1700000000, 0) }
	s.nonceFn = func() string { return "abc1234567" }
	s.idFn = func() string { return "req-1" }
	return s
}

func TestSignMatchesReferenceComposition(t *testing.T) {
	s := fixedSigner("secret")
	p := s.Params()
	if p.Timestamp != 1700000000 || p.Nonce != "abc1234567" || p.RequestID != "req-1" {
		t.Fatalf("unexpected params: %+v", p)
	}

	body := "{}"
	bodySum := md5.Sum([]byte(body))
	inner := "secret" + "1700000000" + "abc1234567" + hex.EncodeToString(bodySum[:])
	outer := md5.Sum([]byte(inner))
	want := hex.EncodeToString(outer[:])

	if got := s.Sign(p, body); got != want {
		t.Fatalf("Sign = %s, want %s", got, want)
	}
}

func TestSignDependsOnBody(t *testing.T) {
	s := fixedSigner("secret")
	p := s.Params()
	if s.Sign(p, "{}") == s.Sign(p, "other") {
		t.Fatal("different bodies must produce different signatures")
	}
}

func TestRandomNonceShape(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		n := randomNonce()
		if len(n) != 10 {
			t.Fatalf("nonce length %d, want 10", len(n))
		}
		for _, r := range n {
			if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'f') {
				t.Fatalf("nonce %q has non-hex rune %q", n, r)
			}
		}
		seen[n] = true
	}
	if len(seen) < 2 {
		t.Fatal("nonces should not all collide")
	}
}
