package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Simulation metrics
	SimulationTicksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forcegraph_ticks_total",
			Help: "Total number of simulation ticks executed",
		},
	)

	SimulationTickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "forcegraph_tick_duration_seconds",
			Help:    "Duration of a full simulation tick in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.016, 0.033, 0.1, 0.5, 1},
		},
	)

	SimulationAlpha = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_alpha",
			Help: "Current simulation energy (alpha)",
		},
	)

	SimulationProgress = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_progress",
			Help: "Convergence progress in [0,1]",
		},
	)

	SimulationState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_state",
			Help: "Simulation state (0=idle, 1=running, 2=paused, 3=converged, 4=destroyed)",
		},
	)

	SimulationConvergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forcegraph_converged_total",
			Help: "Total number of times the simulation converged",
		},
	)

	FrameErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "forcegraph_frame_errors_total",
			Help: "Total number of frames that failed with an engine error",
		},
	)

	// Rebuild metrics, kind: all, positions, adjacency, clusters, levels
	BufferRebuilds = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forcegraph_buffer_rebuilds_total",
			Help: "Total number of buffer rebuilds by kind",
		},
		[]string{"kind"},
	)

	// Device metrics
	PassDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "forcegraph_pass_duration_seconds",
			Help:    "Duration of data-parallel passes in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"pass"},
	)

	DeviceBytesAllocated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_device_bytes_allocated",
			Help: "Bytes currently held by device buffers",
		},
	)

	DeviceAllocationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "forcegraph_device_allocation_failures_total",
			Help: "Total number of failed buffer allocations",
		},
		[]string{"reason"}, // reason: budget, size, destroyed
	)

	// Graph metrics
	GraphPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_points",
			Help: "Number of points in the simulated graph",
		},
	)

	GraphLinks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_links",
			Help: "Number of links in the simulated graph",
		},
	)

	DeviceTextures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_device_textures",
			Help: "Number of live device buffers",
		},
	)

	GraphClusters = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "forcegraph_clusters",
			Help: "Number of distinct clusters in the simulated graph",
		},
	)

	// API cache metrics
	APICacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_hits_total",
			Help: "Total number of API cache hits",
		},
		[]string{"endpoint"},
	)

	APICacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_cache_misses_total",
			Help: "Total number of API cache misses",
		},
		[]string{"endpoint"},
	)

	APICacheBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_bytes",
			Help: "Approximate bytes held by the snapshot cache",
		},
	)

	APICacheEvictions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_cache_evictions",
			Help: "Snapshot cache evictions since start",
		},
	)

	// API request metrics
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"endpoint", "method", "status"},
	)

	// Metrics collection error tracking
	MetricsCollectionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metrics_collection_errors_total",
			Help: "Total number of errors during metrics collection",
		},
		[]string{"collector"},
	)

	// WebSocket metrics
	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)

	WebSocketMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent to clients",
		},
	)
)
