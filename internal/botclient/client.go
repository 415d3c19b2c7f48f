package botclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bilirelay/internal/metrics"
	"bilirelay/internal/model"
)

// QueryRequest is one user message forwarded to the NLU bot. Zero-value
// optional fields take documented defaults: Env "online", empty skill lists.
type QueryRequest struct {
	Query                string
	UserName             string
	Avatar               string
	UserID               int64
	Env                  string
	FirstPrioritySkills  []string
	SecondPrioritySkills []string
}

type queryWire struct {
	Query                string   `json:"query"`
	Env                  string   `json:"env"`
	FirstPrioritySkills  []string `json:"first_priority_skills"`
	SecondPrioritySkills []string `json:"second_priority_skills"`
	UserName             string   `json:"user_name"`
	Avatar               string   `json:"avatar"`
	UserID               int64    `json:"userid"`
}

// Client calls the bot-service query endpoint over the signed, AES-encrypted
// protocol.
type Client struct {
	appID      string
	baseURL    string
	codec      *Codec
	signer     *Signer
	tokens     *TokenManager
	httpClient *http.Client
}

func NewClient(appID, appSecret, baseURL string, codec *Codec, tokens *TokenManager) *Client {
	return &Client{
		appID:      appID,
		baseURL:    strings.TrimRight(baseURL, "/"),
		codec:      codec,
		signer:     NewSigner(appSecret),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Query sends one message through the encrypted RPC and returns the decrypted
// answer. The pipeline is fixed: token, serialize, encrypt, sign ciphertext,
// POST opaque text, decrypt response, parse. Errors carry upstream detail and
// are never retried here.
func (c *Client) Query(ctx context.Context, req QueryRequest) (model.BotAnswer, error) {
	var zero model.BotAnswer

	if req.Env == "" {
		req.Env = "online"
	}
	if req.FirstPrioritySkills == nil {
		req.FirstPrioritySkills = []string{}
	}
	if req.SecondPrioritySkills == nil {
		req.SecondPrioritySkills = []string{}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return zero, err
	}

	payload, err := json.Marshal(queryWire{
		Query:                req.Query,
		Env:                  req.Env,
		FirstPrioritySkills:  req.FirstPrioritySkills,
		SecondPrioritySkills: req.SecondPrioritySkills,
		UserName:             req.UserName,
		Avatar:               req.Avatar,
		UserID:               req.UserID,
	})
	if err != nil {
		return zero, fmt.Errorf("marshal query: %w", err)
	}
	cipherText, err := c.codec.Encrypt(string(payload))
	if err != nil {
		return zero, fmt.Errorf("encrypt query: %w", err)
	}

	p := c.signer.Params()
	sign := c.signer.Sign(p, cipherText)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/bot/query", strings.NewReader(cipherText))
	if err != nil {
		return zero, fmt.Errorf("build query request: %w", err)
	}
	httpReq.Header.Set("X-OPENAI-TOKEN", token)
	httpReq.Header.Set("X-APPID", c.appID)
	httpReq.Header.Set("request_id", p.RequestID)
	httpReq.Header.Set("timestamp", strconv.FormatInt(p.Timestamp, 10))
	httpReq.Header.Set("nonce", p.Nonce)
	httpReq.Header.Set("sign", sign)
	httpReq.Header.Set("Content-Type", "text/plain")

	metrics.BotQueries.Inc()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return zero, fmt.Errorf("bot query transport: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return zero, fmt.Errorf("read bot response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return zero, fmt.Errorf("bot query http status %d", resp.StatusCode)
	}

	plain, err := c.codec.Decrypt(strings.TrimSpace(string(raw)))
	if err != nil {
		return zero, fmt.Errorf("decrypt bot response: %w", err)
	}
	var out struct {
		Code int64  `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			IntentName string `json:"intent_name"`
			Answer     string `json:"answer"`
			Options    []struct {
				Title  string `json:"title"`
				Answer string `json:"answer"`
			} `json:"options"`
		} `json:"data"`
	}
	if err := json.Unmarshal([]byte(plain), &out); err != nil {
		return zero, fmt.Errorf("parse bot response: %w", err)
	}
	if out.Code != 0 {
		return zero, &QueryError{Code: out.Code, Msg: out.Msg}
	}

	ans := model.BotAnswer{IntentName: out.Data.IntentName, Answer: out.Data.Answer}
	for _, o := range out.Data.Options {
		ans.Options = append(ans.Options, model.BotOption{Title: o.Title, Answer: o.Answer})
	}
	return ans, nil
}
