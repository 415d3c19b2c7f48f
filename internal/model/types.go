package model

// MyInfo is the logged-in account identity, fetched once at startup and used
// as the sender for every reply.
type MyInfo struct {
	Mid      int64
	Uname    string
	UserID   string
	Sign     string
	Birthday string
	Sex      string
	Rank     int
}

// UnreadCount is the inbox unread counters split by follow relationship.
type UnreadCount struct {
	FollowUnread   int64
	UnfollowUnread int64
}

// Session is one private-message conversation thread.
type Session struct {
	TalkerID      int64
	SessionType   int
	UnreadCount   int
	SystemMsgType int
	LastMsg       *LastMsg
	// AccountInfo is only present on official/system sessions; user sessions
	// leave it nil.
	AccountInfo *AccountInfo
}

type LastMsg struct {
	MsgType int
}

type AccountInfo struct {
	Name string
}

// Message is a single private message within a session.
type Message struct {
	SenderUID int64
	Timestamp int64
	// Content is the raw JSON content field, e.g. {"content":"hello"}.
	Content string
}

// MasterInfo is the public display profile of a sender, from the live API.
type MasterInfo struct {
	Uname string
	Face  string
}

// BotAnswer is a decrypted NLU bot reply.
type BotAnswer struct {
	IntentName string
	Answer     string
	Options    []BotOption
}

type BotOption struct {
	Title  string
	Answer string
}
