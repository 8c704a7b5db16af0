package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/middleware"
)

type ParamsHandler struct{ sim Simulation }

// NewParamsHandler creates the coefficient handlers.
func NewParamsHandler(sim Simulation) *ParamsHandler {
	return &ParamsHandler{sim: sim}
}

// Params serves GET and PUT on one path and answers any other method with a
// structured 405.
// /api/params
func (h *ParamsHandler) Params(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		middleware.ETag(http.HandlerFunc(h.GetParams)).ServeHTTP(w, r)
	case http.MethodPut:
		h.PutParams(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, PUT")
		apierr.WriteErrorWithContext(w, r,
			apierr.MethodNotAllowed(r.Method, http.MethodGet, http.MethodHead, http.MethodPut))
	}
}

// GetParams returns the current coefficients.
// GET /api/params
func (h *ParamsHandler) GetParams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sim.Params())
}

// PutParams merges the given fields over the current coefficients. Fields
// left out keep their value.
// PUT /api/params
func (h *ParamsHandler) PutParams(w http.ResponseWriter, r *http.Request) {
	var patch json.RawMessage
	if apiErr := middleware.DecodeJSON(r, &patch); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	p := h.sim.Params()
	if err := json.Unmarshal(patch, &p); err != nil {
		field, msg := "body", "must be a JSON object"
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			field, msg = typeErr.Field, "expected "+typeErr.Type.String()
		}
		apierr.WriteErrorWithContext(w, r, apierr.ValidationInvalidValue(field, msg))
		return
	}
	if apiErr := validateParams(p); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}

	h.sim.SetParams(p)
	logger.InfoContext(r.Context(), "simulation params updated", "patch", string(patch))
	writeJSON(w, http.StatusOK, h.sim.Params())
}

// validateParams rejects values the engine cannot run with. Values it can
// repair, such as an oversized space, are left to the engine.
func validateParams(p engine.Params) *apierr.Error {
	switch {
	case p.Friction < 0 || p.Friction > 1:
		return apierr.ValidationInvalidValue("friction", "must be within [0, 1]")
	case p.AlphaTarget < 0 || p.AlphaTarget > 1:
		return apierr.ValidationInvalidValue("alpha_target", "must be within [0, 1]")
	case p.Decay <= 0:
		return apierr.ValidationInvalidValue("decay", "must be positive")
	case p.SpaceSize <= 0:
		return apierr.ValidationInvalidValue("space_size", "must be positive")
	case p.HoverRadius < 0:
		return apierr.ValidationInvalidValue("hover_radius", "must not be negative")
	case p.RepulsionQuadtreeLevels < 1:
		return apierr.ValidationInvalidValue("repulsion_quadtree_levels", "must be at least 1")
	case p.RepulsionTheta <= 0:
		return apierr.ValidationInvalidValue("repulsion_theta", "must be positive")
	}
	return nil
}
