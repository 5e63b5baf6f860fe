package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/valyala/bytebufferpool"

	"chabrush/pkg/delivery"
	"chabrush/pkg/groups"
	"chabrush/pkg/logger"
	"chabrush/pkg/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy belongs to the fronting proxy.
	CheckOrigin: func(*http.Request) bool { return true },
}

// inboundFrame is a client->server control frame on the feed socket.
// join/leave manage room membership; typing/stopTyping are ephemeral and
// never persisted.
type inboundFrame struct {
	Type string `json:"type"`
	Room string `json:"room,omitempty"`
}

// RegisterFeed registers the websocket event feed.
func RegisterFeed(r *mux.Router) {
	r.HandleFunc("/feed", feed).Methods(http.MethodGet)
}

func feed(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	if user == "" || !dir.Exists(user) {
		utils.JSONError(w, http.StatusBadRequest, "validation", "invalid users")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("feed_upgrade_failed", "user", user, "error", err)
		return
	}
	sub := hub.Subscribe(user)
	hub.Publish(user, delivery.Event{Type: delivery.EvtStatus, Text: user + " has entered the room."})

	go writePump(conn, sub)
	readPump(conn, sub)
}

// writePump drains the subscriber queue onto the socket. It exits when
// Unsubscribe closes the queue.
func writePump(conn *websocket.Conn, sub *delivery.Subscriber) {
	defer conn.Close()
	for ev := range sub.Events() {
		buf := bytebufferpool.Get()
		enc := json.NewEncoder(buf)
		if err := enc.Encode(ev); err != nil {
			bytebufferpool.Put(buf)
			continue
		}
		err := conn.WriteMessage(websocket.TextMessage, buf.B)
		bytebufferpool.Put(buf)
		if err != nil {
			return
		}
	}
}

// readPump handles inbound control frames until the client goes away.
func readPump(conn *websocket.Conn, sub *delivery.Subscriber) {
	defer hub.Unsubscribe(sub)
	for {
		var frame inboundFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Type {
		case "join":
			// Group rooms are member-only.
			if frame.Room == "" || !groups.IsMember(frame.Room, sub.User) {
				continue
			}
			hub.Join(sub, frame.Room)
			hub.Publish(frame.Room, delivery.Event{Type: delivery.EvtStatus, Group: frame.Room, Text: sub.User + " has entered the room."})
		case "leave":
			if frame.Room == "" || frame.Room == sub.User {
				continue
			}
			hub.Leave(sub, frame.Room)
			hub.Publish(frame.Room, delivery.Event{Type: delivery.EvtStatus, Group: frame.Room, Text: sub.User + " has left the room."})
		case "typing":
			hub.PublishExcept(counterpartRoom(frame.Room, sub.User), delivery.Event{Type: delivery.EvtTyping, From: sub.User}, sub)
		case "stopTyping":
			hub.PublishExcept(counterpartRoom(frame.Room, sub.User), delivery.Event{Type: delivery.EvtStopTyping, From: sub.User}, sub)
		}
	}
}

// counterpartRoom picks the typing target: the named room, or the typist's
// own room when the client omits one.
func counterpartRoom(room, user string) string {
	if room == "" {
		return user
	}
	return room
}
