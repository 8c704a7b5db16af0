package handlers

import (
	"net/http"

	"github.com/onnwee/forcegraph/internal/engine"
)

type healthResponse struct {
	Status     string       `json:"status"`
	Simulation engine.State `json:"simulation"`
}

// Health reports whether the API is alive and the simulation usable. A
// destroyed simulation answers 503 so load balancers stop routing to it.
// GET /health
func Health(sim Simulation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := sim.Stats().State
		if state == engine.Destroyed {
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Simulation: state})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Simulation: state})
	}
}
