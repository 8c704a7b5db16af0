package handlers

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/cache"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/middleware"
)

// GraphSummary describes the loaded graph.
type GraphSummary struct {
	Points     int      `json:"points"`
	Links      int      `json:"links"`
	Clusters   int      `json:"clusters"`
	Generation uint64   `json:"generation"`
	IDs        []string `json:"ids,omitempty"`
}

type GraphHandler struct {
	sim   Simulation
	cache cache.Cache

	mu      sync.RWMutex
	current GraphSummary
}

// NewGraphHandler creates the graph loading handlers. cache may be nil.
func NewGraphHandler(sim Simulation, c cache.Cache) *GraphHandler {
	return &GraphHandler{sim: sim, cache: c}
}

// PostGraph replaces the simulated graph. With ?start=true the simulation
// starts at full energy right away.
// POST /api/graph
func (h *GraphHandler) PostGraph(w http.ResponseWriter, r *http.Request) {
	var in graph.Input
	if apiErr := middleware.DecodeJSON(r, &in); apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	data, err := graph.Compile(in)
	if err != nil {
		apierr.WriteErrorWithContext(w, r, apierr.FromError(err))
		return
	}

	h.sim.SetData(data)
	if h.cache != nil {
		h.cache.Clear()
	}

	summary := GraphSummary{
		Points:     data.NumPoints(),
		Links:      len(data.Links),
		Clusters:   countClusters(data.PointClusters),
		Generation: h.sim.Generation(),
		IDs:        data.IDs,
	}
	h.mu.Lock()
	h.current = summary
	h.mu.Unlock()
	logger.InfoContext(r.Context(), "graph loaded", "points", summary.Points, "links", summary.Links, "clusters", summary.Clusters)

	if start, _ := strconv.ParseBool(r.URL.Query().Get("start")); start {
		if err := h.sim.Start(1); err != nil {
			writeEngineError(w, r, "start", err)
			return
		}
	}
	summary.IDs = nil
	writeJSON(w, http.StatusOK, summary)
}

// GetGraph returns the loaded graph's counts and node ids in index order, so
// clients can pair them with /api/positions.
// GET /api/graph
func (h *GraphHandler) GetGraph(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	summary := h.current
	h.mu.RUnlock()
	if summary.IDs == nil {
		summary.IDs = []string{}
	}
	writeJSON(w, http.StatusOK, summary)
}

func countClusters(clusters []int) int {
	seen := make(map[int]struct{})
	for _, c := range clusters {
		if c >= 0 {
			seen[c] = struct{}{}
		}
	}
	return len(seen)
}
