package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chabrush/pkg/calls"
	"chabrush/pkg/delivery"
	"chabrush/pkg/utils"
)

// RegisterCalls registers HTTP handlers for call signaling.
func RegisterCalls(r *mux.Router) {
	r.HandleFunc("/calls", startCall).Methods(http.MethodPost)
	r.HandleFunc("/calls/{id}", getCall).Methods(http.MethodGet)
	r.HandleFunc("/calls/{id}/answer", answerCall).Methods(http.MethodPost)
	r.HandleFunc("/calls/{id}/end", endCall).Methods(http.MethodPost)
}

func startCall(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Callee string `json:"callee"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := requireUsers(req.Caller, req.Callee); err != nil {
		writeErr(w, err)
		return
	}
	c, err := calls.Start(req.Caller, req.Callee)
	if err != nil {
		writeErr(w, err)
		return
	}
	hub.NotifyCall(delivery.EvtCallIncoming, c)
	_ = utils.JSONWrite(w, http.StatusCreated, c)
}

func getCall(w http.ResponseWriter, r *http.Request) {
	c, err := calls.Get(mux.Vars(r)["id"])
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func answerCall(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Responder string `json:"responder"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := calls.Answer(id, req.Responder)
	if err != nil {
		writeErr(w, err)
		return
	}
	hub.NotifyCall(delivery.EvtCallConnected, c)
	_ = utils.JSONWrite(w, http.StatusOK, c)
}

func endCall(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		Requester string `json:"requester"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	c, err := calls.End(id, req.Requester)
	if err != nil {
		writeErr(w, err)
		return
	}
	hub.NotifyCall(delivery.EvtCallEnded, c)
	_ = utils.JSONWrite(w, http.StatusOK, c)
}
