// Package models holds the record types owned by the messaging core.
package models

// Reaction is one user's reaction to a message. A user holds at most one
// reaction per message; a later reaction replaces the earlier one.
type Reaction struct {
	User   string `json:"user"`
	Symbol string `json:"symbol"`
	TS     int64  `json:"ts"`
}

// Message is a direct or group message record. Body holds the encrypted
// blob as stored; Text carries decrypted plaintext only on the read path
// and is never persisted.
type Message struct {
	ID        string `json:"id"`
	Sender    string `json:"sender"`
	Recipient string `json:"recipient,omitempty"`
	Group     string `json:"group,omitempty"`
	Body      []byte `json:"body,omitempty"`
	Text      string `json:"text,omitempty"`
	// CreatedTS is set once at send time (UTC nanoseconds) and never changes.
	CreatedTS int64 `json:"created_ts"`
	Edited    bool  `json:"edited,omitempty"`
	EditedTS  int64 `json:"edited_ts,omitempty"`
	// Deleted marks a tombstone: content cleared, metadata retained.
	Deleted bool `json:"deleted,omitempty"`
	// Reactions maps user -> reaction (upsert by user).
	Reactions map[string]Reaction `json:"reactions,omitempty"`
	// Read/ReadTS track the direct-message read receipt.
	Read   bool  `json:"read,omitempty"`
	ReadTS int64 `json:"read_ts,omitempty"`
	// Readers maps user -> read timestamp for group messages.
	Readers map[string]int64 `json:"readers,omitempty"`
}

// IsGroup reports whether the message was posted to a group.
func (m *Message) IsGroup() bool { return m.Group != "" }

// Participant reports whether user may react to or read this message.
// Group membership is checked by the group registry, not here.
func (m *Message) Participant(user string) bool {
	return user == m.Sender || (m.Recipient != "" && user == m.Recipient)
}

// CallState is the call lifecycle state. Transitions are monotonic:
// ringing -> active -> ended, or ringing -> ended.
type CallState string

const (
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

// CallReason records why a call reached the terminal state.
type CallReason string

const (
	ReasonAnswered  CallReason = "answered-and-ended"
	ReasonRejected  CallReason = "rejected"
	ReasonCancelled CallReason = "cancelled"
	ReasonTimeout   CallReason = "timeout"
)

// Call is a signaling record for one voice/video call.
type Call struct {
	ID       string     `json:"id"`
	Caller   string     `json:"caller"`
	Callee   string     `json:"callee"`
	State    CallState  `json:"state"`
	StartTS  int64      `json:"start_ts"`
	AnswerTS int64      `json:"answer_ts,omitempty"`
	EndTS    int64      `json:"end_ts,omitempty"`
	Reason   CallReason `json:"reason,omitempty"`
}

// Group owns membership and an ordered log of message ids. Message records
// themselves belong to the message store; the log holds back-references.
type Group struct {
	Name      string   `json:"name"`
	Creator   string   `json:"creator"`
	Members   []string `json:"members"`
	CreatedTS int64    `json:"created_ts"`
	Log       []string `json:"log,omitempty"`
}

// Member reports whether user is in the group.
func (g *Group) Member(user string) bool {
	for _, m := range g.Members {
		if m == user {
			return true
		}
	}
	return false
}
