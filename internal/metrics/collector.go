package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/onnwee/forcegraph/internal/cache"
	"github.com/onnwee/forcegraph/internal/logger"
)

// EngineSample is the engine state the collector exports.
type EngineSample struct {
	Points         int
	Links          int
	Clusters       int
	DeviceTextures int
	DeviceBytes    int64
}

// EngineSource reports the current engine state. An error marks the engine
// gauges stale.
type EngineSource interface {
	Sample(ctx context.Context) (EngineSample, error)
}

// CacheSource reports snapshot cache statistics.
type CacheSource interface {
	Stats() cache.Stats
}

// Collector periodically refreshes gauges that are not updated inline.
type Collector struct {
	engine   EngineSource
	cache    CacheSource
	interval time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector. Either source may be nil.
func NewCollector(engine EngineSource, cache CacheSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Collector{
		engine:   engine,
		cache:    cache,
		interval: interval,
		stop:     make(chan struct{}),
	}
}

// Start runs the collection loop until Stop is called or ctx is done.
func (c *Collector) Start(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.collect(ctx)
	for {
		select {
		case <-ticker.C:
			c.collect(ctx)
		case <-c.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop stops the collector. Safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Collector) collect(ctx context.Context) {
	c.collectEngine(ctx)
	c.collectCache()
}

func (c *Collector) collectEngine(ctx context.Context) {
	if c.engine == nil {
		return
	}
	s, err := c.engine.Sample(ctx)
	if err != nil {
		logger.Warn("engine metrics unavailable", "error", err)
		MetricsCollectionErrors.WithLabelValues("engine").Inc()
		// Signal stale data
		GraphPoints.Set(-1)
		GraphLinks.Set(-1)
		GraphClusters.Set(-1)
		DeviceTextures.Set(-1)
		return
	}
	GraphPoints.Set(float64(s.Points))
	GraphLinks.Set(float64(s.Links))
	GraphClusters.Set(float64(s.Clusters))
	DeviceTextures.Set(float64(s.DeviceTextures))
	DeviceBytesAllocated.Set(float64(s.DeviceBytes))
}

func (c *Collector) collectCache() {
	if c.cache == nil {
		return
	}
	s := c.cache.Stats()
	APICacheBytes.Set(float64(s.Size))
	APICacheEvictions.Set(float64(s.Evictions))
}
