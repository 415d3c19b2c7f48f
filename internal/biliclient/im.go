package biliclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"bilirelay/internal/logging"
	"bilirelay/internal/model"
)

// GetUnread returns the inbox unread counters.
func (c *Client) GetUnread(ctx context.Context) (model.UnreadCount, error) {
	var out model.UnreadCount
	env, err := c.getJSON(ctx, c.baseURL+"/session_svr/v1/session_svr/single_unread", true)
	if err != nil {
		return out, err
	}
	var raw struct {
		FollowUnread   int64 `json:"follow_unread"`
		UnfollowUnread int64 `json:"unfollow_unread"`
	}
	if err := env.decode(&raw); err != nil {
		return out, err
	}
	out.FollowUnread = raw.FollowUnread
	out.UnfollowUnread = raw.UnfollowUnread
	return out, nil
}

// GetNewSessions lists sessions updated since beginTs (unix seconds).
func (c *Client) GetNewSessions(ctx context.Context, beginTs int64) ([]model.Session, error) {
	u := fmt.Sprintf("%s/session_svr/v1/session_svr/new_sessions?begin_ts=%d&build=0&mobi_app=web", c.baseURL, beginTs)
	env, err := c.getJSON(ctx, u, true)
	if err != nil {
		return nil, err
	}
	var raw struct {
		SessionList []struct {
			TalkerID      int64 `json:"talker_id"`
			SessionType   int   `json:"session_type"`
			UnreadCount   int   `json:"unread_count"`
			SystemMsgType int   `json:"system_msg_type"`
			LastMsg       *struct {
				MsgType int `json:"msg_type"`
			} `json:"last_msg"`
			AccountInfo *struct {
				Name string `json:"name"`
			} `json:"account_info"`
		} `json:"session_list"`
	}
	if err := env.decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Session, 0, len(raw.SessionList))
	for _, s := range raw.SessionList {
		item := model.Session{
			TalkerID:      s.TalkerID,
			SessionType:   s.SessionType,
			UnreadCount:   s.UnreadCount,
			SystemMsgType: s.SystemMsgType,
		}
		if s.LastMsg != nil {
			item.LastMsg = &model.LastMsg{MsgType: s.LastMsg.MsgType}
		}
		if s.AccountInfo != nil {
			item.AccountInfo = &model.AccountInfo{Name: s.AccountInfo.Name}
		}
		out = append(out, item)
	}
	return out, nil
}

// FetchSessionMessages returns up to size messages from one session.
func (c *Client) FetchSessionMessages(ctx context.Context, talkerID int64, size int) ([]model.Message, error) {
	u := fmt.Sprintf("%s/svr_sync/v1/svr_sync/fetch_session_msgs?talker_id=%d&session_type=1&size=%d", c.baseURL, talkerID, size)
	env, err := c.getJSON(ctx, u, true)
	if err != nil {
		return nil, err
	}
	var raw struct {
		Messages []struct {
			SenderUID int64  `json:"sender_uid"`
			Timestamp int64  `json:"timestamp"`
			Content   string `json:"content"`
		} `json:"messages"`
	}
	if err := env.decode(&raw); err != nil {
		return nil, err
	}
	out := make([]model.Message, 0, len(raw.Messages))
	for _, m := range raw.Messages {
		out = append(out, model.Message{SenderUID: m.SenderUID, Timestamp: m.Timestamp, Content: m.Content})
	}
	return out, nil
}

// SendMessage sends text as a private message from the cached sender mid.
// A non-zero response code is logged and swallowed; transport failures
// propagate to the caller.
func (c *Client) SendMessage(ctx context.Context, receiverID int64, text string) error {
	csrf, err := CSRFFromCookies(c.cookies)
	if err != nil {
		return err
	}
	content, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return fmt.Errorf("marshal message content: %w", err)
	}

	form := url.Values{}
	form.Set("msg[sender_uid]", strconv.FormatInt(c.myMid, 10))
	form.Set("msg[receiver_id]", strconv.FormatInt(receiverID, 10))
	form.Set("msg[receiver_type]", "1")
	form.Set("msg[msg_type]", "1")
	form.Set("msg[msg_status]", "0")
	form.Set("msg[dev_id]", uuid.NewString())
	form.Set("msg[timestamp]", strconv.FormatInt(time.Now().Unix(), 10))
	form.Set("msg[new_face_version]", "1")
	form.Set("msg[content]", string(content))
	form.Set("csrf_token", csrf)
	form.Set("csrf", csrf)
	form.Set("build", "0")
	form.Set("mobi_app", "web")

	env, err := c.postForm(ctx, c.baseURL+"/web_im/v1/web_im/send_msg", form)
	if err != nil {
		return err
	}
	if env.Code != 0 {
		logging.Warn("send_msg_rejected", map[string]any{
			"receiver": receiverID,
			"code":     env.Code,
			"message":  env.message(),
		})
	}
	return nil
}
