// control/admin.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Admin HTTP surface: Prometheus scrape endpoint, liveness and debug probes.

package control

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/hioload-appserver/api"
)

// NewAdminRouter serves /metrics from gatherer, /healthz from the engine
// state and /debug/state from probes. A nil probes disables /debug/state.
func NewAdminRouter(e api.Engine, gatherer prometheus.Gatherer, probes *DebugProbes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if e.State() != api.EngineRunning {
			http.Error(w, "engine "+e.State().String(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok"))
	})
	if probes != nil {
		r.Get("/debug/state", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			_ = enc.Encode(probes.DumpState())
		})
	}
	return r
}
