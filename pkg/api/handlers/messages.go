package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chabrush/pkg/batch"
	"chabrush/pkg/delivery"
	"chabrush/pkg/groups"
	"chabrush/pkg/logger"
	"chabrush/pkg/models"
	"chabrush/pkg/store"
	"chabrush/pkg/utils"
)

// RegisterMessages registers HTTP handlers for message endpoints.
func RegisterMessages(r *mux.Router) {
	r.HandleFunc("/messages", sendMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/batch", batchSend).Methods(http.MethodPost)
	r.HandleFunc("/messages/{username}", listMessages).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}", editMessage).Methods(http.MethodPut)
	r.HandleFunc("/messages/{id}", deleteMessage).Methods(http.MethodDelete)
	r.HandleFunc("/messages/{id}/versions", listVersions).Methods(http.MethodGet)
	r.HandleFunc("/messages/{id}/reactions", reactMessage).Methods(http.MethodPost)
	r.HandleFunc("/messages/{id}/read", markRead).Methods(http.MethodPost)
}

// notifyMutation routes a committed mutation event. Group-message mutations
// take the same member fanout as new posts, so a member's personal feed
// converges without a room join.
func notifyMutation(evType string, m models.Message) {
	if m.IsGroup() {
		members, err := groups.Members(m.Group)
		if err != nil {
			logger.Warn("mutation_fanout_skipped", "group", m.Group, "error", err)
			return
		}
		hub.NotifyGroupMessage(evType, m, members)
		return
	}
	hub.NotifyDirectMessage(evType, m)
}

func sendMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender    string `json:"sender"`
		Recipient string `json:"recipient"`
		Text      string `json:"text"`
		TS        int64  `json:"ts,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := requireUsers(req.Sender, req.Recipient); err != nil {
		writeErr(w, err)
		return
	}
	m, err := store.SendMessage(req.Sender, req.Recipient, req.Text, req.TS)
	if err != nil {
		writeErr(w, err)
		return
	}
	hub.NotifyDirectMessage(delivery.EvtNewMessage, m)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func batchSend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sender   string       `json:"sender"`
		Messages []batch.Item `json:"messages"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := requireUsers(req.Sender); err != nil {
		writeErr(w, err)
		return
	}
	results := batch.Send(hub, dir, req.Sender, req.Messages)
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Results []batch.Result `json:"results"`
	}{Results: results})
}

func listMessages(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	msgs, err := store.ListMessagesFor(username)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Messages []models.Message `json:"messages"`
	}{Messages: msgs})
}

func editMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Requester string `json:"requester"`
		Text      string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, err := store.EditMessage(id, req.Requester, req.Text)
	if err != nil {
		writeErr(w, err)
		return
	}
	notifyMutation(delivery.EvtMessageEdited, m)
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Requester string `json:"requester"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, err := store.DeleteMessage(id, req.Requester)
	if err != nil {
		writeErr(w, err)
		return
	}
	notifyMutation(delivery.EvtMessageDeleted, m)
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func listVersions(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	versions, err := store.ListMessageVersions(id)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Versions []models.Message `json:"versions"`
	}{Versions: versions})
}

func reactMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		User   string `json:"user"`
		Symbol string `json:"symbol"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, err := store.ReactMessage(id, req.User, req.Symbol)
	if err != nil {
		writeErr(w, err)
		return
	}
	notifyMutation(delivery.EvtReaction, m)
	_ = utils.JSONWrite(w, http.StatusOK, m)
}

func markRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		User string `json:"user"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, changed, err := store.MarkRead(id, req.User)
	if err != nil {
		writeErr(w, err)
		return
	}
	if changed {
		notifyMutation(delivery.EvtRead, m)
	}
	_ = utils.JSONWrite(w, http.StatusOK, m)
}
