// Package batch sequences multiple sends with per-item independent commit:
// one item's failure never aborts or rolls back the others. Clients rely on
// this contract — the batch is atomic per item, not across the set.
package batch

import (
	"chabrush/pkg/cerrs"
	"chabrush/pkg/delivery"
	"chabrush/pkg/identity"
	"chabrush/pkg/models"
	"chabrush/pkg/store"
)

// Item is one (recipient, text) pair of a batch send.
type Item struct {
	Recipient string `json:"recipient"`
	Text      string `json:"text"`
}

// Result reports the outcome of the item at Index. Exactly one of Message
// or Error is set.
type Result struct {
	Index   int             `json:"index"`
	Message *models.Message `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
	Kind    string          `json:"kind,omitempty"`
}

// Send runs each item through the message store independently and fans out
// committed items. The result slice is ordered and the same length as items.
func Send(h *delivery.Hub, dir identity.Directory, sender string, items []Item) []Result {
	results := make([]Result, 0, len(items))
	for i, it := range items {
		if dir != nil && !dir.Exists(it.Recipient) {
			err := cerrs.Validationf("unknown recipient %s", it.Recipient)
			results = append(results, Result{Index: i, Error: err.Error(), Kind: cerrs.Kind(err)})
			continue
		}
		m, err := store.SendMessage(sender, it.Recipient, it.Text, 0)
		if err != nil {
			results = append(results, Result{Index: i, Error: err.Error(), Kind: cerrs.Kind(err)})
			continue
		}
		if h != nil {
			h.NotifyDirectMessage(delivery.EvtNewMessage, m)
		}
		results = append(results, Result{Index: i, Message: &m})
	}
	return results
}
