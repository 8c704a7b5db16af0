package config

import (
	"os"
	"strings"
	"time"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/force"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/utils"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	// Simulation defaults applied to a fresh engine
	Sim            engine.Params
	SimSeed        int64    // 0 picks a time-based seed
	SimAutoCluster bool     // detect communities when no cluster ids are supplied
	SimForces      []string // pass order by name; empty keeps the default order
	// Device limits
	DeviceMaxTextureSize int
	DeviceMemoryBudget   int64 // bytes
	DeviceWorkers        int   // 0 = GOMAXPROCS
	// Frame pacing of the host loop
	FrameRate float64 // frames per second
	// HTTP settings
	HTTPAddr           string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	ShutdownTimeout    time.Duration
	PositionsCacheMax  int64 // max bytes of encoded position snapshots
	MaxBodyBytes       int64 // request body limit
	CORSAllowedOrigins []string
	BroadcastEvery     int // send every Nth tick to websocket clients
	// Security settings
	RateLimitGlobal      float64 // requests per second globally
	RateLimitGlobalBurst int     // burst size for global rate limit
	RateLimitPerIP       float64 // requests per second per IP
	RateLimitPerIPBurst  int     // burst size for per-IP rate limit
	EnableRateLimit      bool    // enable rate limiting middleware
	// Observability settings
	LogLevel          string  // log level: debug, info, warn, error
	OTELEnabled       bool    // enable OpenTelemetry tracing
	OTELEndpoint      string  // OpenTelemetry collector endpoint
	OTELSampleRate    float64 // trace sampling rate (0.0 to 1.0)
	SentryDSN         string  // Sentry DSN for error reporting
	SentryEnvironment string  // Sentry environment (dev, staging, production)
	SentryRelease     string  // Sentry release version
	SentrySampleRate  float64 // Sentry error sampling rate (0.0 to 1.0)
	MetricsInterval   time.Duration
}

var cached *Config

// Load reads env vars once and caches them.
func Load() *Config {
	if cached != nil {
		return cached
	}
	def := engine.DefaultParams()
	cached = &Config{
		Sim: engine.Params{
			Decay:                   utils.GetEnvAsFloat("SIM_DECAY", def.Decay),
			Friction:                utils.GetEnvAsFloat("SIM_FRICTION", def.Friction),
			Gravity:                 utils.GetEnvAsFloat("SIM_GRAVITY", def.Gravity),
			Center:                  utils.GetEnvAsFloat("SIM_CENTER", def.Center),
			Repulsion:               utils.GetEnvAsFloat("SIM_REPULSION", def.Repulsion),
			RepulsionTheta:          utils.GetEnvAsFloat("SIM_REPULSION_THETA", def.RepulsionTheta),
			UseQuadtree:             utils.GetEnvAsBool("SIM_USE_QUADTREE", def.UseQuadtree),
			RepulsionQuadtreeLevels: utils.GetEnvAsInt("SIM_REPULSION_QUADTREE_LEVELS", def.RepulsionQuadtreeLevels),
			LinkSpring:              utils.GetEnvAsFloat("SIM_LINK_SPRING", def.LinkSpring),
			LinkDistance:            utils.GetEnvAsFloat("SIM_LINK_DISTANCE", def.LinkDistance),
			LinkDistRandomVariationRange: [2]float64{
				utils.GetEnvAsFloat("SIM_LINK_DIST_VARIATION_MIN", def.LinkDistRandomVariationRange[0]),
				utils.GetEnvAsFloat("SIM_LINK_DIST_VARIATION_MAX", def.LinkDistRandomVariationRange[1]),
			},
			RepulsionFromMouse: utils.GetEnvAsFloat("SIM_REPULSION_FROM_MOUSE", def.RepulsionFromMouse),
			Cluster:            utils.GetEnvAsFloat("SIM_CLUSTER", def.Cluster),
			AlphaTarget:        utils.GetEnvAsFloat("SIM_ALPHA_TARGET", def.AlphaTarget),
			SpaceSize:          utils.GetEnvAsFloat("SIM_SPACE_SIZE", def.SpaceSize),
			HoverRadius:        utils.GetEnvAsFloat("SIM_HOVER_RADIUS", def.HoverRadius),
		},
		SimSeed:        utils.GetEnvAsInt64("SIM_SEED", 0),
		SimAutoCluster: utils.GetEnvAsBool("SIM_AUTO_CLUSTER", false),
		SimForces:      utils.GetEnvAsSlice("SIM_FORCES", nil, ","),

		DeviceMaxTextureSize: utils.GetEnvAsInt("DEVICE_MAX_TEXTURE_SIZE", 4096),
		DeviceMemoryBudget:   utils.GetEnvAsInt64("DEVICE_MEMORY_BUDGET_BYTES", 1<<30),
		DeviceWorkers:        utils.GetEnvAsInt("DEVICE_WORKERS", 0),

		FrameRate: utils.GetEnvAsFloat("FRAME_RATE", 60),

		HTTPAddr:          utils.GetEnvAsString("HTTP_ADDR", ":8000"),
		HTTPReadTimeout:   utils.GetEnvAsMillis("HTTP_READ_TIMEOUT_MS", 15*time.Second),
		HTTPWriteTimeout:  utils.GetEnvAsMillis("HTTP_WRITE_TIMEOUT_MS", 15*time.Second),
		ShutdownTimeout:   utils.GetEnvAsMillis("SHUTDOWN_TIMEOUT_MS", 10*time.Second),
		PositionsCacheMax: utils.GetEnvAsInt64("POSITIONS_CACHE_MAX_BYTES", 64<<20),
		MaxBodyBytes:      utils.GetEnvAsInt64("MAX_BODY_BYTES", 32<<20),
		CORSAllowedOrigins: utils.GetEnvAsSlice("CORS_ALLOWED_ORIGINS",
			[]string{"http://localhost:5173", "http://localhost:3000"}, ","),
		BroadcastEvery: utils.GetEnvAsInt("WS_BROADCAST_EVERY", 1),

		// Security settings with sensible defaults
		RateLimitGlobal:      utils.GetEnvAsFloat("RATE_LIMIT_GLOBAL", 100.0),
		RateLimitGlobalBurst: utils.GetEnvAsInt("RATE_LIMIT_GLOBAL_BURST", 200),
		RateLimitPerIP:       utils.GetEnvAsFloat("RATE_LIMIT_PER_IP", 20.0),
		RateLimitPerIPBurst:  utils.GetEnvAsInt("RATE_LIMIT_PER_IP_BURST", 40),
		EnableRateLimit:      utils.GetEnvAsBool("ENABLE_RATE_LIMIT", true),

		// Observability settings
		LogLevel:          strings.ToLower(utils.GetEnvAsString("LOG_LEVEL", "info")),
		OTELEnabled:       utils.GetEnvAsBool("OTEL_ENABLED", false),
		OTELEndpoint:      utils.GetEnvAsString("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELSampleRate:    utils.GetEnvAsFloat("OTEL_TRACE_SAMPLE_RATE", 0.1),
		SentryDSN:         utils.GetEnvAsString("SENTRY_DSN", ""),
		SentryEnvironment: utils.GetEnvAsString("SENTRY_ENVIRONMENT", ""),
		SentryRelease:     utils.GetEnvAsString("SENTRY_RELEASE", ""),
		SentrySampleRate:  utils.GetEnvAsFloat("SENTRY_SAMPLE_RATE", 1.0),
		MetricsInterval:   utils.GetEnvAsMillis("METRICS_INTERVAL_MS", 5*time.Second),
	}
	if cached.SentryEnvironment == "" {
		if env := os.Getenv("ENV"); env != "" {
			cached.SentryEnvironment = env
		} else {
			cached.SentryEnvironment = "development"
		}
	}
	if cached.FrameRate <= 0 {
		cached.FrameRate = 60
	}
	if cached.BroadcastEvery < 1 {
		cached.BroadcastEvery = 1
	}
	return cached
}

// ResetForTest clears cached config; for use in tests only.
func ResetForTest() { cached = nil }

// Forces resolves SimForces into a pass order. Unknown names are logged and
// skipped. Nil selects the default order.
func (c *Config) Forces() []force.Kind {
	if order := parseForces(c.SimForces); len(order) > 0 {
		return order
	}
	return nil
}

func parseForces(names []string) []force.Kind {
	order := make([]force.Kind, 0, len(names))
	for _, name := range names {
		k, err := force.ParseKind(name)
		if err != nil {
			logger.Warn("ignoring unknown force in order", "force", name)
			continue
		}
		order = append(order, k)
	}
	return order
}

// DeviceOptions returns the device limits.
func (c *Config) DeviceOptions() device.Options {
	return device.Options{
		MaxTextureSize: c.DeviceMaxTextureSize,
		MemoryBudget:   c.DeviceMemoryBudget,
		Workers:        c.DeviceWorkers,
	}
}

// EngineOptions returns engine options without callbacks.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Seed:        c.SimSeed,
		AutoCluster: c.SimAutoCluster,
		Forces:      c.Forces(),
	}
}
