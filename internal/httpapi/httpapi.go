// Package httpapi exposes the read-only observability surface from
// spec.md §6: a metrics endpoint and a live-data dump, routed with
// gorilla/mux the way paulround2tele-studio wires its own control-plane
// HTTP surface.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/Krishna8167/atomkv/internal/engine"
)

// metricsResponse is the JSON body of GET /metrics.
type metricsResponse struct {
	Keys   int64 `json:"keys"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// NewRouter builds the mux.Router serving the engine's read-only HTTP
// surface. It never mutates eng.
func NewRouter(eng *engine.Engine, log *logrus.Entry) *mux.Router {
	r := mux.NewRouter()
	h := &handler{engine: eng, log: log}

	r.HandleFunc("/metrics", h.metrics).Methods(http.MethodGet)
	r.HandleFunc("/insights", h.insights).Methods(http.MethodGet)
	return r
}

type handler struct {
	engine *engine.Engine
	log    *logrus.Entry
}

func (h *handler) metrics(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.engine.HitsMisses()
	resp := metricsResponse{
		Keys:   h.engine.Size(),
		Hits:   hits,
		Misses: misses,
	}
	h.writeJSON(w, resp)
}

func (h *handler) insights(w http.ResponseWriter, r *http.Request) {
	snapshot := h.engine.Snapshot()
	out := make(map[string]string, len(snapshot))
	for k, v := range snapshot {
		out[k] = string(v)
	}
	h.writeJSON(w, out)
}

func (h *handler) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	if err := enc.Encode(body); err != nil {
		h.log.WithError(err).Error("failed to encode HTTP response")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
