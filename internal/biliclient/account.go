package biliclient

import (
	"context"
	"fmt"

	"bilirelay/internal/model"
)

// GetMyInfo fetches the logged-in account identity. Called once at startup;
// its result is the sender of every reply.
func (c *Client) GetMyInfo(ctx context.Context) (model.MyInfo, error) {
	var out model.MyInfo
	env, err := c.getJSON(ctx, c.accountBaseURL+"/x/member/web/account", true)
	if err != nil {
		return out, err
	}
	var raw struct {
		Mid      int64  `json:"mid"`
		Uname    string `json:"uname"`
		UserID   string `json:"userid"`
		Sign     string `json:"sign"`
		Birthday string `json:"birthday"`
		Sex      string `json:"sex"`
		Rank     int    `json:"rank"`
	}
	if err := env.decode(&raw); err != nil {
		return out, err
	}
	out = model.MyInfo{
		Mid:      raw.Mid,
		Uname:    raw.Uname,
		UserID:   raw.UserID,
		Sign:     raw.Sign,
		Birthday: raw.Birthday,
		Sex:      raw.Sex,
		Rank:     raw.Rank,
	}
	return out, nil
}

// GetMasterInfo fetches a sender's public display name and avatar from the
// live API. Unauthenticated; callers treat failures as best-effort.
func (c *Client) GetMasterInfo(ctx context.Context, uid int64) (model.MasterInfo, error) {
	var out model.MasterInfo
	u := fmt.Sprintf("%s/live_user/v1/Master/info?uid=%d", c.liveBaseURL, uid)
	env, err := c.getJSON(ctx, u, false)
	if err != nil {
		return out, err
	}
	var raw struct {
		Info struct {
			Uname string `json:"uname"`
			Face  string `json:"face"`
		} `json:"info"`
	}
	if err := env.decode(&raw); err != nil {
		return out, err
	}
	out.Uname = raw.Info.Uname
	out.Face = raw.Info.Face
	return out, nil
}
