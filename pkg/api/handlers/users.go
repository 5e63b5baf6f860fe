package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"chabrush/pkg/utils"
)

// RegisterUsers registers the user-directory endpoints. The directory
// stores opaque username references only; credentials are out of scope.
func RegisterUsers(r *mux.Router) {
	r.HandleFunc("/users", registerUser).Methods(http.MethodPost)
	r.HandleFunc("/users", listUsers).Methods(http.MethodGet)
}

func registerUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := decode(r, &req); err != nil {
		writeErr(w, err)
		return
	}
	if err := dir.Register(req.Username); err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusCreated, map[string]string{"username": req.Username})
}

func listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := dir.List()
	if err != nil {
		writeErr(w, err)
		return
	}
	_ = utils.JSONWrite(w, http.StatusOK, struct {
		Users []string `json:"users"`
	}{Users: users})
}
