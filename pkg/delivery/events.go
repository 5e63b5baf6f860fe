package delivery

import "chabrush/pkg/models"

// Event types pushed over the feed, one-directional server -> client.
const (
	EvtNewMessage     = "newMessage"
	EvtMessageEdited  = "messageEdited"
	EvtMessageDeleted = "messageDeleted"
	EvtReaction       = "reaction"
	EvtRead           = "read"
	EvtCallIncoming   = "callIncoming"
	EvtCallConnected  = "callConnected"
	EvtCallEnded      = "callEnded"
	EvtTyping         = "typing"
	EvtStopTyping     = "stopTyping"
	EvtGroupMessage   = "groupMessage"
	EvtStatus         = "status"
)

// Event is one immutable record pushed to a room. Exactly the fields
// relevant to the type are set.
type Event struct {
	Type    string          `json:"type"`
	Message *models.Message `json:"message,omitempty"`
	Call    *models.Call    `json:"call,omitempty"`
	Group   string          `json:"groupName,omitempty"`
	From    string          `json:"from,omitempty"`
	Text    string          `json:"text,omitempty"`
}
