// Package server hosts one simulation: it owns the engine, paces its frame
// clock and serves the HTTP API until the context is cancelled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/api"
	"github.com/onnwee/forcegraph/internal/api/handlers"
	"github.com/onnwee/forcegraph/internal/cache"
	"github.com/onnwee/forcegraph/internal/config"
	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/errorreporting"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/metrics"
	"github.com/onnwee/forcegraph/internal/middleware"
)

const snapshotCacheEntries = 1024

type Server struct {
	cfg       *config.Config
	log       *slog.Logger
	engine    *engine.Engine
	hub       *handlers.Hub
	cache     *cache.LRUCache
	limiter   *middleware.RateLimiter // nil when rate limiting is off
	collector *metrics.Collector
	http      *http.Server

	frames *rate.Limiter
	frame  uint64

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds the engine and everything serving it. Device errors from the
// engine's first allocation are reported and returned.
func New(cfg *config.Config) (*Server, error) {
	log := logger.WithComponent("server")

	hub := handlers.NewHub(cfg.BroadcastEvery)
	opts := cfg.EngineOptions()
	opts.Callbacks = hub.Callbacks()

	eng, err := engine.New(device.New(cfg.DeviceOptions()), cfg.Sim, opts)
	if err != nil {
		errorreporting.CaptureErrorWithContext(err,
			map[string]string{"component": "engine"},
			map[string]any{
				"max_texture_size": cfg.DeviceMaxTextureSize,
				"memory_budget":    cfg.DeviceMemoryBudget,
			})
		return nil, fmt.Errorf("create engine: %w", err)
	}
	hub.OnPointer(func(pos r2.Vec, engaged bool) { eng.SetPointer(pos, engaged) })

	c, err := cache.NewLRU(cfg.PositionsCacheMax, snapshotCacheEntries, time.Minute)
	if err != nil {
		eng.Destroy()
		return nil, fmt.Errorf("create snapshot cache: %w", err)
	}

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst,
			cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
	}

	cors := middleware.DefaultCORSConfig()
	if len(cfg.CORSAllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.CORSAllowedOrigins
	}

	router := api.NewRouter(api.Deps{
		Sim:          eng,
		Hub:          hub,
		Cache:        c,
		Limiter:      limiter,
		CORS:         cors,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})

	frameRate := cfg.FrameRate
	if frameRate <= 0 {
		frameRate = 60
	}

	return &Server{
		cfg:       cfg,
		log:       log,
		engine:    eng,
		hub:       hub,
		cache:     c,
		limiter:   limiter,
		collector: metrics.NewCollector(engineSource{eng}, c, cfg.MetricsInterval),
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  cfg.HTTPReadTimeout,
			WriteTimeout: cfg.HTTPWriteTimeout,
		},
		frames: rate.NewLimiter(rate.Limit(frameRate), 1),
	}, nil
}

// Engine returns the hosted engine.
func (s *Server) Engine() *engine.Engine { return s.engine }

// Handler returns the HTTP handler with the full middleware chain.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the frame loop, the websocket hub, the metrics collector and
// the HTTP server on ln. When ctx is done, or any of them fails, everything
// is shut down within the configured timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(ctx)
		return nil
	})
	g.Go(func() error {
		s.collector.Start(ctx)
		return nil
	})
	g.Go(func() error {
		s.RunFrames(ctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info("http server listening", "addr", ln.Addr().String(), "frame_rate", float64(s.frames.Limit()))
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// RunFrames drives engine.Frame from a paced, monotonic frame counter until
// ctx is done or the engine is destroyed. A failing frame pauses the engine
// so the same error is not raised on every following frame.
func (s *Server) RunFrames(ctx context.Context) {
	for {
		if err := s.frames.Wait(ctx); err != nil {
			return
		}
		s.frame++
		if _, err := s.engine.Frame(ctx, s.frame); err != nil {
			if errors.Is(err, engine.ErrDestroyed) {
				return
			}
			s.frameFailed(err)
		}
	}
}

func (s *Server) frameFailed(err error) {
	metrics.FrameErrorsTotal.Inc()
	s.log.Error("frame failed, pausing simulation", "frame", s.frame, "error", err)
	errorreporting.CaptureErrorWithContext(err,
		map[string]string{"component": "frame_loop"},
		map[string]any{"frame": s.frame, "stats": s.engine.Stats()})
	if perr := s.engine.Pause(); perr != nil && !errors.Is(perr, engine.ErrDestroyed) {
		s.log.Error("failed to pause simulation", "error", perr)
	}
}

// Shutdown stops the HTTP server, destroys the engine and releases the
// background workers. It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutting down server")
		if err := s.http.Shutdown(ctx); err != nil {
			s.shutdownErr = fmt.Errorf("http shutdown: %w", err)
		}
		s.engine.Destroy()
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.collector.Stop()
		s.cache.Close()
	})
	return s.shutdownErr
}

// engineSource adapts the engine to the metrics collector.
type engineSource struct{ e *engine.Engine }

func (s engineSource) Sample(context.Context) (metrics.EngineSample, error) {
	st := s.e.Stats()
	if st.State == engine.Destroyed {
		return metrics.EngineSample{}, engine.ErrDestroyed
	}
	return metrics.EngineSample{
		Points:         st.Points,
		Links:          st.Links,
		Clusters:       st.Clusters,
		DeviceTextures: st.DeviceTextures,
		DeviceBytes:    st.DeviceBytes,
	}, nil
}
