package handlers

import (
	"net/http"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/middleware"
)

// PointerRequest moves the pointer in simulation space.
type PointerRequest struct {
	X       *float64 `json:"x"`
	Y       *float64 `json:"y"`
	Engaged bool     `json:"engaged"`
}

type pointerResponse struct {
	Hovered int `json:"hovered"`
}

type PointerHandler struct{ sim Simulation }

// NewPointerHandler creates the pointer handler.
func NewPointerHandler(sim Simulation) *PointerHandler {
	return &PointerHandler{sim: sim}
}

// PostPointer sets the pointer position and engagement. The response carries
// the point hovered after the last tick.
// POST /api/pointer {"x":10,"y":20,"engaged":true}
func (h *PointerHandler) PostPointer(w http.ResponseWriter, r *http.Request) {
	var req PointerRequest
	if apiErr := middleware.DecodeJSON(r, &req); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	if req.X == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("x", "is required"))
		return
	}
	if req.Y == nil {
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue("y", "is required"))
		return
	}
	h.sim.SetPointer(r2.Vec{X: *req.X, Y: *req.Y}, req.Engaged)
	writeJSON(w, http.StatusOK, pointerResponse{Hovered: h.sim.Hovered()})
}
