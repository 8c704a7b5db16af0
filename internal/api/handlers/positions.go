package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/cache"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/metrics"
	"github.com/onnwee/forcegraph/internal/middleware"
)

// Snapshots change every tick, so a short TTL is enough for clients polling
// at frame rate to share one encoding.
const positionsCacheTTL = 10 * time.Second

// maxTracked bounds the number of indices per tracked request.
const maxTracked = 10000

// PositionsResponse is the body of GET /api/positions.
type PositionsResponse struct {
	Tick       uint64  `json:"tick"`
	Generation uint64  `json:"generation"`
	Positions  []point `json:"positions"`
}

type PositionsHandler struct {
	sim   Simulation
	cache cache.Cache
}

// NewPositionsHandler creates the readback handlers. cache may be nil.
func NewPositionsHandler(sim Simulation, c cache.Cache) *PositionsHandler {
	return &PositionsHandler{sim: sim, cache: c}
}

func positionsETag(generation uint64, encoding string) string {
	if encoding == middleware.EncodingIdentity {
		encoding = "identity"
	}
	return `"g` + strconv.FormatUint(generation, 10) + "-" + encoding + `"`
}

// GetPositions returns every point position. The body of each generation is
// encoded once per content coding and shared by all clients; If-None-Match
// with the current generation's tag short-circuits to 304.
// GET /api/positions
func (h *PositionsHandler) GetPositions(w http.ResponseWriter, r *http.Request) {
	encoding := middleware.Negotiate(r.Header.Get("Accept-Encoding"))
	w.Header().Add("Vary", "Accept-Encoding")

	gen := h.sim.Generation()
	if middleware.NotModified(w, r, positionsETag(gen, encoding)) {
		return
	}
	if body, ok := h.cached(gen, encoding); ok {
		metrics.APICacheHits.WithLabelValues("positions").Inc()
		h.write(w, gen, encoding, body)
		return
	}
	metrics.APICacheMisses.WithLabelValues("positions").Inc()

	snap, err := h.sim.Snapshot()
	if err != nil {
		writeEngineError(w, r, "positions", err)
		return
	}
	resp := PositionsResponse{Tick: snap.Tick, Generation: snap.Generation, Positions: make([]point, len(snap.Positions))}
	for i, p := range snap.Positions {
		resp.Positions[i] = toPoint(p)
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to encode positions", "error", err)
		apierr.WriteErrorWithContext(w, r, apierr.SystemInternal("Failed to encode positions"))
		return
	}
	body, err := middleware.Encode(encoding, raw)
	if err != nil {
		logger.WarnContext(r.Context(), "failed to compress positions, sending identity", "encoding", encoding, "error", err)
		encoding, body = middleware.EncodingIdentity, raw
	}
	if h.cache != nil {
		h.cache.Set(cache.SnapshotKey("positions", snap.Generation, encoding), body, positionsCacheTTL)
	}
	w.Header().Set("ETag", positionsETag(snap.Generation, encoding))
	h.write(w, snap.Generation, encoding, body)
}

func (h *PositionsHandler) cached(gen uint64, encoding string) ([]byte, bool) {
	if h.cache == nil {
		return nil, false
	}
	return h.cache.Get(cache.SnapshotKey("positions", gen, encoding))
}

func (h *PositionsHandler) write(w http.ResponseWriter, gen uint64, encoding string, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Simulation-Generation", strconv.FormatUint(gen, 10))
	if encoding != middleware.EncodingIdentity {
		w.Header().Set("Content-Encoding", encoding)
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// TrackedResponse is the body of GET /api/positions/tracked.
type TrackedResponse struct {
	Positions map[int]point `json:"positions"`
}

// GetTracked returns the positions of the requested points. Indices are given
// as repeated or comma separated i parameters; out of range indices are
// omitted from the result.
// GET /api/positions/tracked?i=1&i=5
func (h *PositionsHandler) GetTracked(w http.ResponseWriter, r *http.Request) {
	indices, apiErr := parseIndices(r.URL.Query()["i"])
	if apiErr != nil {
		apierr.WriteErrorWithContext(w, r, apiErr)
		return
	}
	tracked, err := h.sim.TrackedPositions(indices)
	if err != nil {
		writeEngineError(w, r, "tracked positions", err)
		return
	}
	resp := TrackedResponse{Positions: make(map[int]point, len(tracked))}
	for i, p := range tracked {
		resp.Positions[i] = toPoint(p)
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseIndices(values []string) ([]int, *apierr.Error) {
	var out []int
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			i, err := strconv.Atoi(part)
			if err != nil {
				return nil, apierr.ValidationInvalidValue("i", "must be an integer point index")
			}
			out = append(out, i)
			if len(out) > maxTracked {
				return nil, apierr.ValidationInvalidValue("i", "too many indices")
			}
		}
	}
	if len(out) == 0 {
		return nil, apierr.ValidationInvalidValue("i", "at least one point index is required")
	}
	return out, nil
}

// CentroidsResponse is the body of GET /api/clusters/centroids.
type CentroidsResponse struct {
	Centroids map[int]point `json:"centroids"`
}

// GetCentroids returns the live centroid of every non-empty cluster.
// GET /api/clusters/centroids
func (h *PositionsHandler) GetCentroids(w http.ResponseWriter, r *http.Request) {
	centroids, err := h.sim.ClusterCentroids()
	if err != nil {
		writeEngineError(w, r, "cluster centroids", err)
		return
	}
	resp := CentroidsResponse{Centroids: make(map[int]point, len(centroids))}
	for id, p := range centroids {
		resp.Centroids[id] = toPoint(p)
	}
	writeJSON(w, http.StatusOK, resp)
}
