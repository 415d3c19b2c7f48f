package botclient

import (
	"crypto/md5"
	crand "crypto/rand"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// CommonParams are generated fresh for every outbound bot-service call and
// never reused.
type CommonParams struct {
	Timestamp int64
	Nonce     string
	RequestID string
}

// Signer produces the common params and MD5 signature required on every
// authenticated bot-service call.
type Signer struct {
	secret  string
	nowFn   func() time.Time
	nonceFn func() string
	idFn    func() string
}

func NewSigner(secret string) *Signer {
	return &Signer{
		secret:  secret,
		nowFn:   time.Now,
		nonceFn: randomNonce,
		idFn:    uuid.NewString,
	}
}

// Params returns a fresh timestamp/nonce/requestId triple.
func (s *Signer) Params() CommonParams {
	return CommonParams{
		Timestamp: s.nowFn().Unix(),
		Nonce:     s.nonceFn(),
		RequestID: s.idFn(),
	}
}

// Sign computes md5hex(secret + timestamp + nonce + md5hex(body)).
// Deterministic for fixed inputs; the remote side recomputes it exactly.
func (s *Signer) Sign(p CommonParams, body string) string {
	bodyMD5 := md5hex(body)
	return md5hex(s.secret + strconv.FormatInt(p.Timestamp, 10) + p.Nonce + bodyMD5)
}

// randomNonce returns 10 lowercase hex characters drawn from 16 random bytes.
func randomNonce() string {
	b := make([]byte, 16)
	_, _ = crand.Read(b)
	return hex.EncodeToString(b)[:10]
}

func md5hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
