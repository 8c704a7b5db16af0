// Package api exposes a simulation over HTTP: lifecycle control, graph and
// parameter updates, position readback and a websocket event stream.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/forcegraph/internal/api/handlers"
	"github.com/onnwee/forcegraph/internal/apierr"
	"github.com/onnwee/forcegraph/internal/cache"
	"github.com/onnwee/forcegraph/internal/middleware"
)

// Deps are the collaborators the router serves.
type Deps struct {
	Sim   handlers.Simulation
	Hub   *handlers.Hub
	Cache cache.Cache // nil disables snapshot caching
	// Limiter rate limits every route but /health and /metrics; nil disables it.
	Limiter      *middleware.RateLimiter
	CORS         *middleware.CORSConfig
	MaxBodyBytes int64
}

// NewRouter builds the full handler: routes plus the middleware chain
// RequestID, Recover, SecurityHeaders, CORS, RateLimit, LimitBody, Compress.
func NewRouter(d Deps) http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Observe)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		apierr.WriteErrorWithContext(w, req, apierr.ResourceNotFound("route"))
	})

	sim := handlers.NewSimulationHandler(d.Sim)
	gh := handlers.NewGraphHandler(d.Sim, d.Cache)
	ph := handlers.NewParamsHandler(d.Sim)
	pos := handlers.NewPositionsHandler(d.Sim, d.Cache)
	ptr := handlers.NewPointerHandler(d.Sim)

	r.HandleFunc("/health", handlers.Health(d.Sim)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	// Graph
	api.HandleFunc("/graph", gh.PostGraph).Methods(http.MethodPost)
	api.Handle("/graph", middleware.ETag(http.HandlerFunc(gh.GetGraph))).Methods(http.MethodGet)

	// Lifecycle
	api.HandleFunc("/simulation", sim.GetSimulation).Methods(http.MethodGet)
	api.HandleFunc("/simulation/start", sim.Start).Methods(http.MethodPost)
	api.HandleFunc("/simulation/pause", sim.Pause).Methods(http.MethodPost)
	api.HandleFunc("/simulation/restart", sim.Restart).Methods(http.MethodPost)
	api.HandleFunc("/simulation/step", sim.Step).Methods(http.MethodPost)

	// Params
	api.HandleFunc("/params", ph.Params)

	// Pointer
	api.HandleFunc("/pointer", ptr.PostPointer).Methods(http.MethodPost)

	// Readback
	api.HandleFunc("/positions", pos.GetPositions).Methods(http.MethodGet)
	api.HandleFunc("/positions/tracked", pos.GetTracked).Methods(http.MethodGet)
	api.HandleFunc("/clusters/centroids", pos.GetCentroids).Methods(http.MethodGet)

	// Event stream
	if d.Hub != nil {
		api.HandleFunc("/ws", handlers.NewWebSocketHandler(d.Hub, d.Sim).HandleWebSocket).Methods(http.MethodGet)
	}

	var h http.Handler = r
	h = middleware.Compress(h)
	h = middleware.LimitBody(d.MaxBodyBytes)(h)
	if d.Limiter != nil {
		h = exempt(h, d.Limiter.Limit(h), "/health", "/metrics")
	}
	h = middleware.CORS(d.CORS)(h)
	h = middleware.SecurityHeaders(h)
	h = middleware.RecoverWithSentry(h)
	h = middleware.RequestID(h)
	return h
}

// exempt routes the given paths around limited.
func exempt(plain, limited http.Handler, paths ...string) http.Handler {
	skip := make(map[string]bool, len(paths))
	for _, p := range paths {
		skip[p] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip[r.URL.Path] {
			plain.ServeHTTP(w, r)
			return
		}
		limited.ServeHTTP(w, r)
	})
}
