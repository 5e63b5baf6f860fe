// Package api assembles the HTTP surface around the messaging core. The
// core packages never see a request; payloads are decoded and validated
// here so stores only receive well-formed inputs.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"chabrush/pkg/api/handlers"
	"chabrush/pkg/auth"
	"chabrush/pkg/delivery"
	"chabrush/pkg/identity"
	"chabrush/pkg/store"
	"chabrush/pkg/telemetry"
	"chabrush/pkg/utils"
)

// Handler builds the full router: versioned operations under /v1 plus the
// ops routes (health, metrics, docs).
func Handler(h *delivery.Hub, d identity.Directory, rl auth.RateLimit) http.Handler {
	handlers.Configure(h, d)

	r := mux.NewRouter()
	r.HandleFunc("/healthz", health).Methods(http.MethodGet)
	r.Handle("/metrics", telemetry.Handler()).Methods(http.MethodGet)
	r.PathPrefix("/docs/").Handler(httpSwagger.WrapHandler)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.Use(auth.Middleware(rl))
	handlers.RegisterUsers(v1)
	handlers.RegisterMessages(v1)
	handlers.RegisterCalls(v1)
	handlers.RegisterGroups(v1)
	handlers.RegisterFeed(v1)
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	status := "ok"
	if !store.Ready() {
		status = "degraded"
	}
	_ = utils.JSONWrite(w, http.StatusOK, map[string]string{"status": status})
}
