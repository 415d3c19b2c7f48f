package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"bilirelay/internal/botclient"
	"bilirelay/internal/logging"
	"bilirelay/internal/metrics"
	"bilirelay/internal/model"
	"bilirelay/internal/store"
)

// placeholderName stands in for senders whose profile lookup failed.
const placeholderName = "未知用户"

// BiliAPI is the slice of the Bilibili client the relay consumes.
type BiliAPI interface {
	GetUnread(ctx context.Context) (model.UnreadCount, error)
	GetNewSessions(ctx context.Context, beginTs int64) ([]model.Session, error)
	GetMasterInfo(ctx context.Context, uid int64) (model.MasterInfo, error)
	FetchSessionMessages(ctx context.Context, talkerID int64, size int) ([]model.Message, error)
	SendMessage(ctx context.Context, receiverID int64, text string) error
}

// BotAPI is the bot-service query surface.
type BotAPI interface {
	Query(ctx context.Context, req botclient.QueryRequest) (model.BotAnswer, error)
}

// Relay orchestrates one polling pipeline: unread counts, session listing and
// filtering, per-session message fetch, bot query, reply send.
type Relay struct {
	bili    BiliAPI
	bot     BotAPI
	journal *store.DB // optional
	nowFn   func() time.Time

	// stop halts the poller when an asynchronous dispatch fails.
	stop func()

	wg sync.WaitGroup
}

func New(bili BiliAPI, bot BotAPI, journal *store.DB) *Relay {
	return &Relay{
		bili:    bili,
		bot:     bot,
		journal: journal,
		nowFn:   time.Now,
		stop:    func() {},
	}
}

// BindStop wires the poller's Stop so failed dispatches can halt polling.
func (r *Relay) BindStop(stop func()) {
	if stop != nil {
		r.stop = stop
	}
}

// RunOnce executes one poll tick. Errors returned here stop the poller via
// its fail-fast rule.
func (r *Relay) RunOnce(ctx context.Context) error {
	unread, err := r.bili.GetUnread(ctx)
	if err != nil {
		return fmt.Errorf("fetch unread: %w", err)
	}
	total := unread.FollowUnread + unread.UnfollowUnread
	logging.Debug("unread_counts", map[string]any{"follow": unread.FollowUnread, "unfollow": unread.UnfollowUnread})
	if total <= 0 {
		return nil
	}

	now := r.nowFn()
	sessions, err := r.bili.GetNewSessions(ctx, now.Unix())
	if err != nil {
		return fmt.Errorf("fetch sessions: %w", err)
	}
	for _, s := range sessions {
		if !Eligible(s) {
			continue
		}
		if err := r.processSession(ctx, s); err != nil {
			return err
		}
	}
	if r.journal != nil {
		_ = r.journal.SaveCursor(ctx, store.CursorLastTick, now.UTC().Format(time.RFC3339Nano))
	}
	return nil
}

// Eligible reports whether a session holds genuinely new unread user text:
// no account info, a last message of the plain-text type, a private-chat
// session, no system message type, and a positive unread count.
func Eligible(s model.Session) bool {
	return s.AccountInfo == nil &&
		s.LastMsg != nil && s.LastMsg.MsgType == 1 &&
		s.SessionType == 1 &&
		s.SystemMsgType == 0 &&
		s.UnreadCount > 0
}

// processSession fetches the sender profile (best effort) and the unread
// message batch, then dispatches each message with content to the bot.
func (r *Relay) processSession(ctx context.Context, s model.Session) error {
	userName := placeholderName
	avatar := ""
	if info, err := r.bili.GetMasterInfo(ctx, s.TalkerID); err == nil {
		userName = info.Uname
		avatar = info.Face
	} else {
		logging.Warn("master_info_failed", map[string]any{"talker": s.TalkerID, "error": err.Error()})
	}

	msgs, err := r.bili.FetchSessionMessages(ctx, s.TalkerID, s.UnreadCount)
	if err != nil {
		return fmt.Errorf("fetch messages talker=%d: %w", s.TalkerID, err)
	}
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		var body struct {
			Content string `json:"content"`
		}
		if err := json.Unmarshal([]byte(m.Content), &body); err != nil {
			return fmt.Errorf("parse message content talker=%d: %w", s.TalkerID, err)
		}
		// Fire-and-forget: messages within a batch are dispatched without
		// waiting for earlier replies, so replies may land out of order.
		r.dispatch(ctx, botclient.QueryRequest{
			Query:    body.Content,
			UserName: userName,
			Avatar:   avatar,
			UserID:   s.TalkerID,
		})
	}
	return nil
}

func (r *Relay) dispatch(ctx context.Context, req botclient.QueryRequest) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ans, err := r.bot.Query(ctx, req)
		if err != nil {
			metrics.BotQueryErrors.Inc()
			logging.Error("bot_query_failed", map[string]any{"user": req.UserID, "error": err.Error()})
			r.stop()
			return
		}
		reply := BuildReplyText(ans)
		if err := r.bili.SendMessage(ctx, req.UserID, reply); err != nil {
			logging.Error("send_reply_failed", map[string]any{"user": req.UserID, "error": err.Error()})
			r.stop()
			return
		}
		metrics.MessagesRelayed.Inc()
		if r.journal != nil {
			_ = r.journal.PutRelay(ctx, store.RelayRecord{
				Time:     time.Now().UTC(),
				TalkerID: req.UserID,
				UserName: req.UserName,
				Query:    req.Query,
				Intent:   ans.IntentName,
				Reply:    reply,
			})
		}
	}()
}

// Drain waits for in-flight dispatches up to timeout. Used at shutdown only.
func (r *Relay) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
