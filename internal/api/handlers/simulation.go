package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/middleware"
)

// Simulation is the engine surface the HTTP layer drives.
type Simulation interface {
	SetData(d *graph.Data)
	SetParams(p engine.Params)
	Params() engine.Params
	SpaceSize() float64
	SetPointer(pos r2.Vec, engaged bool)

	Start(alpha float64) error
	Pause() error
	Restart() error
	Step(ctx context.Context) error

	Snapshot() (engine.Snapshot, error)
	Generation() uint64
	TrackedPositions(indices []int) (map[int]r2.Vec, error)
	ClusterCentroids() (map[int]r2.Vec, error)
	Stats() engine.Stats
	Hovered() int
}

// point is a position on the wire: [x, y].
type point [2]float64

func toPoint(v r2.Vec) point { return point{v.X, v.Y} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeEngineError maps an engine error to its API error and logs failures
// the client cannot fix.
func writeEngineError(w http.ResponseWriter, r *http.Request, op string, err error) {
	apiErr := apierr.FromError(err)
	if apiErr.Status() >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "simulation operation failed", "op", op, "error", err)
	}
	apierr.WriteErrorWithContext(w, r, apiErr)
}

// SimulationStatus is the body of GET /api/simulation.
type SimulationStatus struct {
	engine.Stats
	Hovered    int     `json:"hovered"`
	SpaceSize  float64 `json:"space_size"`
	Generation uint64  `json:"generation"`
}

type SimulationHandler struct{ sim Simulation }

// NewSimulationHandler creates the lifecycle handlers.
func NewSimulationHandler(sim Simulation) *SimulationHandler {
	return &SimulationHandler{sim: sim}
}

func (h *SimulationHandler) status() SimulationStatus {
	return SimulationStatus{
		Stats:      h.sim.Stats(),
		Hovered:    h.sim.Hovered(),
		SpaceSize:  h.sim.SpaceSize(),
		Generation: h.sim.Generation(),
	}
}

// GetSimulation returns lifecycle state and counters.
// GET /api/simulation
func (h *SimulationHandler) GetSimulation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.status())
}

type startRequest struct {
	Alpha *float64 `json:"alpha"`
}

// Start resets alpha and starts ticking. The body is optional.
// POST /api/simulation/start {"alpha":1}
func (h *SimulationHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if apiErr := middleware.DecodeOptionalJSON(r, &req); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	alpha := 1.0
	if req.Alpha != nil {
		alpha = *req.Alpha
	}
	if err := h.sim.Start(alpha); err != nil {
		writeEngineError(w, r, "start", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Pause stops ticking.
// POST /api/simulation/pause
func (h *SimulationHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.Pause(); err != nil {
		writeEngineError(w, r, "pause", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Restart resumes ticking from the current alpha.
// POST /api/simulation/restart
func (h *SimulationHandler) Restart(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.Restart(); err != nil {
		writeEngineError(w, r, "restart", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}

// Step runs one tick and leaves the simulation paused.
// POST /api/simulation/step
func (h *SimulationHandler) Step(w http.ResponseWriter, r *http.Request) {
	if err := h.sim.Step(r.Context()); err != nil {
		writeEngineError(w, r, "step", err)
		return
	}
	writeJSON(w, http.StatusOK, h.status())
}
