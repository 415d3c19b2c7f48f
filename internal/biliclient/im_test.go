package biliclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func TestGetNewSessionsDecodesOptionalFields(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/session_svr/v1/session_svr/new_sessions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("begin_ts") != "1700000000" {
			t.Errorf("begin_ts = %q", r.URL.Query().Get("begin_ts"))
		}
		fmt.Fprint(w, `{"code":0,"data":{"session_list":[
			{"talker_id":100,"session_type":1,"unread_count":2,"system_msg_type":0,
			 "last_msg":{"msg_type":1},"account_info":{"name":"alice"}},
			{"talker_id":200,"session_type":1,"unread_count":1,"system_msg_type":0,
			 "last_msg":{"msg_type":1}}
		]}}`)
	}))
	defer ts.Close()

	c := newTestClient(ts, "bili_jct=x")
	sessions, err := c.GetNewSessions(context.Background(), 1700000000)
	if err != nil {
		t.Fatalf("GetNewSessions: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions", len(sessions))
	}
	if sessions[0].AccountInfo == nil || sessions[0].AccountInfo.Name != "alice" {
		t.Fatalf("first session account info: %+v", sessions[0].AccountInfo)
	}
	if sessions[1].AccountInfo != nil {
		t.Fatal("absent account_info must stay nil")
	}
	if sessions[0].LastMsg == nil || sessions[0].LastMsg.MsgType != 1 {
		t.Fatalf("first session last msg: %+v", sessions[0].LastMsg)
	}
}

func TestFetchSessionMessages(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("talker_id") != "100" || q.Get("session_type") != "1" || q.Get("size") != "2" {
			t.Errorf("unexpected query: %s", r.URL.RawQuery)
		}
		fmt.Fprint(w, `{"code":0,"data":{"messages":[
			{"sender_uid":100,"timestamp":1700000001,"content":"{\"content\":\"hi\"}"},
			{"sender_uid":100,"timestamp":1700000002,"content":""}
		]}}`)
	}))
	defer ts.Close()

	c := newTestClient(ts, "bili_jct=x")
	msgs, err := c.FetchSessionMessages(context.Background(), 100, 2)
	if err != nil {
		t.Fatalf("FetchSessionMessages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages", len(msgs))
	}
	if msgs[0].Content != `{"content":"hi"}` || msgs[0].SenderUID != 100 {
		t.Fatalf("first message: %+v", msgs[0])
	}
}

func TestSendMessageFormFields(t *testing.T) {
	var form url.Values
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/web_im/v1/web_im/send_msg" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		form = r.PostForm
		fmt.Fprint(w, `{"code":0}`)
	}))
	defer ts.Close()

	c := newTestClient(ts, "bili_jct=tok123")
	c.SetSender(555)
	if err := c.SendMessage(context.Background(), 777, "hello"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if form.Get("msg[sender_uid]") != "555" || form.Get("msg[receiver_id]") != "777" {
		t.Fatalf("sender/receiver: %v", form)
	}
	if form.Get("msg[receiver_type]") != "1" || form.Get("msg[msg_type]") != "1" {
		t.Fatalf("type fields: %v", form)
	}
	if form.Get("csrf") != "tok123" || form.Get("csrf_token") != "tok123" {
		t.Fatalf("csrf fields: %v", form)
	}
	if form.Get("msg[dev_id]") == "" || form.Get("msg[timestamp]") == "" {
		t.Fatal("dev_id and timestamp must be set")
	}
	var content struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(form.Get("msg[content]")), &content); err != nil {
		t.Fatalf("content is not JSON: %v", err)
	}
	if content.Content != "hello" {
		t.Fatalf("content = %q", content.Content)
	}
}

func TestSendMessageSwallowsRejection(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":21037,"message":"message rejected"}`)
	}))
	defer ts.Close()

	c := newTestClient(ts, "bili_jct=tok")
	c.SetSender(1)
	if err := c.SendMessage(context.Background(), 2, "hi"); err != nil {
		t.Fatalf("non-zero code must not surface as an error, got %v", err)
	}
}

func TestSendMessageRequiresCSRF(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made without a csrf token")
	}))
	defer ts.Close()

	c := newTestClient(ts, "SESSDATA=only")
	if err := c.SendMessage(context.Background(), 2, "hi"); err != ErrMissingCSRF {
		t.Fatalf("expected ErrMissingCSRF, got %v", err)
	}
}

func TestGetMyInfoAndMasterInfo(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/x/member/web/account":
			if r.Header.Get("Cookie") == "" {
				t.Error("account lookup must send cookies")
			}
			fmt.Fprint(w, `{"code":0,"data":{"mid":42,"uname":"botmaster","rank":10000}}`)
		case "/live_user/v1/Master/info":
			if r.Header.Get("Cookie") != "" {
				t.Error("master info lookup is unauthenticated")
			}
			if r.URL.Query().Get("uid") != "9" {
				t.Errorf("uid = %q", r.URL.Query().Get("uid"))
			}
			fmt.Fprint(w, `{"code":0,"data":{"info":{"uname":"alice","face":"http://i0.hdslb.com/a.jpg"}}}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer ts.Close()

	c := newTestClient(ts, "bili_jct=x")
	me, err := c.GetMyInfo(context.Background())
	if err != nil {
		t.Fatalf("GetMyInfo: %v", err)
	}
	if me.Mid != 42 || me.Uname != "botmaster" {
		t.Fatalf("unexpected identity: %+v", me)
	}

	master, err := c.GetMasterInfo(context.Background(), 9)
	if err != nil {
		t.Fatalf("GetMasterInfo: %v", err)
	}
	if master.Uname != "alice" || master.Face == "" {
		t.Fatalf("unexpected master info: %+v", master)
	}
}
