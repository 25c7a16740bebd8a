// Package httpapi exposes the daemon's admin-facing HTTP surface:
// /healthz, /metrics, /debug/status, and the private per-transaction
// websocket endpoints from internal/ipc. Grounded on the teacher's
// cmd/warren/main.go HTTP mux wiring (gorilla/mux router, health and
// metrics handlers mounted alongside the grpc listener).
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ostreedev/rpmostreed-core/internal/ipc"
	"github.com/ostreedev/rpmostreed-core/internal/metrics"
)

// StatusProvider supplies the /debug/status payload.
type StatusProvider interface {
	Status() string
	Rebooting() bool
}

// NewRouter assembles the admin mux. endpoints may be nil to omit the
// /txn/{address} route (e.g. a listener that only ever serves health
// checks).
func NewRouter(status StatusProvider, endpoints *ipc.PrivateEndpointHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/debug/status", debugStatusHandler(status)).Methods(http.MethodGet)

	if endpoints != nil {
		r.HandleFunc("/txn/{address}", func(w http.ResponseWriter, req *http.Request) {
			endpoints.Serve(w, req, mux.Vars(req)["address"])
		})
	}

	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func debugStatusHandler(status StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    status.Status(),
			"rebooting": status.Rebooting(),
		})
	}
}
