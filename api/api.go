// Package api serves the producer's local HTTP status surface: health,
// playback state, and Prometheus metrics. It is bound to loopback by
// default and carries no frame data; the frames themselves travel only
// through shared memory.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/itklabs/itk/metrics"
	"github.com/itklabs/itk/playback"
)

// StateSource provides the playback snapshot served on /api/state.
type StateSource interface {
	Snapshot() playback.Snapshot
}

// Handler returns the producer's HTTP routes. met and updateGauges may be
// nil; /metrics then returns 404.
func Handler(state StateSource, met *metrics.Metrics, updateGauges func(), log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "api")

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/api/state", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(state.Snapshot()); err != nil {
			log.Warn("state encode failed", "error", err)
		}
	})

	if met != nil {
		r.Method(http.MethodGet, "/metrics", met.Handler(updateGauges))
	}

	return r
}
