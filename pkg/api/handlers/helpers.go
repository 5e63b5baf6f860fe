package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/delivery"
	"chabrush/pkg/identity"
	"chabrush/pkg/utils"
)

var (
	hub *delivery.Hub
	dir identity.Directory
)

// Configure installs the shared collaborators used by all handlers. Call
// once at startup before registering routes.
func Configure(h *delivery.Hub, d identity.Directory) {
	hub = h
	dir = d
}

// writeErr maps the error taxonomy onto HTTP statuses.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, cerrs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, cerrs.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, cerrs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, cerrs.ErrState):
		status = http.StatusConflict
	}
	utils.JSONError(w, status, cerrs.Kind(err), err.Error())
}

// decode parses the request body into v, reporting malformed JSON as a
// validation failure so the core only ever sees well-formed inputs.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return cerrs.Validationf("invalid json")
	}
	return nil
}

// requireUsers validates that every named user exists in the directory.
func requireUsers(names ...string) error {
	for _, n := range names {
		if n == "" || !dir.Exists(n) {
			return cerrs.Validationf("invalid users")
		}
	}
	return nil
}
