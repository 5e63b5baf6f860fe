package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chabrush/pkg/delivery"
	"chabrush/pkg/groups"
	"chabrush/pkg/models"
	"chabrush/pkg/utils"
)

// RegisterGroups registers HTTP handlers for group endpoints.
func RegisterGroups(r *mux.Router) {
	r.HandleFunc("/groups", createGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{name}/join", joinGroup).Methods(http.MethodPost)
	r.HandleFunc("/groups/{name}/messages", postGroupMessage).Methods(http.MethodPost)
	r.HandleFunc("/groups/{name}/messages", getGroupMessages).Methods(http.MethodGet)
}

func createGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string `json:"name"`
		Creator string `json:"creator"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := requireUsers(req.Creator); err != nil {
		writeErr(w, err)
		return
	}
	g, err := groups.Create(req.Name, req.Creator)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, g)
}

func joinGroup(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req struct {
		User string `json:"user"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := requireUsers(req.User); err != nil {
		writeErr(w, err)
		return
	}
	g, changed, err := groups.Join(name, req.User)
	if err != nil {
		writeErr(w, err)
		return
	}
	if changed {
		hub.Publish(name, delivery.Event{Type: delivery.EvtStatus, Group: name, Text: req.User + " joined group " + name})
	}
	_ = utils.JSONWrite(w, http.StatusOK, g)
}

func postGroupMessage(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req struct {
		Sender string `json:"sender"`
		Text   string `json:"text"`
		TS     int64  `json:"ts,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	m, members, err := groups.Post(name, req.Sender, req.Text, req.TS)
	if err != nil {
		writeErr(w, err)
		return
	}
	hub.NotifyGroupMessage(delivery.EvtGroupMessage, m, members)
	_ = utils.JSONWrite(w, http.StatusCreated, m)
}

func getGroupMessages(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	requester := r.URL.Query().Get("requester")
	msgs, err := groups.Messages(name, requester)
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Group    string           `json:"group"`
		Messages []models.Message `json:"messages"`
	}{Group: name, Messages: msgs})
}
