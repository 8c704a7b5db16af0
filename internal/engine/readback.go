package engine

import (
	"context"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/force"
)

// readback runs fn with coherent buffers. Pending changes are applied first,
// which needs the write lock; otherwise a read lock is enough.
func (e *Engine) readback(fn func()) error {
	e.mu.RLock()
	if e.state != Destroyed && e.dirty == 0 {
		fn()
		e.mu.RUnlock()
		return nil
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return ErrDestroyed
	}
	if err := e.prepare(context.Background()); err != nil {
		return err
	}
	fn()
	return nil
}

// Positions returns a copy of every point position.
func (e *Engine) Positions() ([]r2.Vec, error) {
	var out []r2.Vec
	err := e.readback(func() { out = e.readPositions() })
	return out, err
}

func (e *Engine) readPositions() []r2.Vec {
	pix := e.dev.Read(e.pos[e.current])
	out := make([]r2.Vec, e.n)
	for i := range out {
		out[i] = r2.Vec{X: pix[i*device.Channels], Y: pix[i*device.Channels+1]}
	}
	return out
}

// Snapshot is a coherent copy of every position.
type Snapshot struct {
	Tick       uint64
	Generation uint64
	Positions  []r2.Vec
}

// Snapshot returns every position together with the tick and generation they
// belong to.
func (e *Engine) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := e.readback(func() {
		s.Tick, s.Generation = e.tick, e.gen
		s.Positions = e.readPositions()
	})
	return s, err
}

// Generation changes whenever positions may have changed: on every tick and
// on every replacement of the point set.
func (e *Engine) Generation() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.gen
}

// TrackedPositions returns the positions of the given points. Indices out of
// range are skipped.
func (e *Engine) TrackedPositions(indices []int) (map[int]r2.Vec, error) {
	out := make(map[int]r2.Vec, len(indices))
	err := e.readback(func() {
		cur := e.pos[e.current]
		for _, i := range indices {
			if i < 0 || i >= e.n {
				continue
			}
			p := cur.At(i)
			out[i] = r2.Vec{X: p[0], Y: p[1]}
		}
	})
	return out, err
}

// ClusterCentroids returns the live centroid of every non-empty cluster,
// aggregated from the current positions.
func (e *Engine) ClusterCentroids() (map[int]r2.Vec, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return nil, ErrDestroyed
	}
	ctx := context.Background()
	if err := e.prepare(ctx); err != nil {
		return nil, err
	}
	b := force.Buffers{N: e.n, Positions: e.pos[e.current], Velocity: e.velocity, Random: e.random}
	if err := e.clusters.Build(ctx, e.dev, b); err != nil {
		return nil, err
	}
	return e.clusters.Centroids(e.dev), nil
}

// Alpha returns the current energy.
func (e *Engine) Alpha() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.alpha
}

// Progress returns convergence progress in [0,1].
func (e *Engine) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return progress(e.alpha)
}

// State returns the lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Tick returns the number of ticks run so far.
func (e *Engine) Tick() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.tick
}

// Hovered returns the point under the pointer after the last tick, or -1.
func (e *Engine) Hovered() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.hovered
}

// Stats returns a snapshot of the engine.
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ds := e.dev.Stats()
	s := Stats{
		State:          e.state,
		Alpha:          e.alpha,
		Progress:       progress(e.alpha),
		Tick:           e.tick,
		Points:         e.n,
		Links:          e.numLinks,
		DeviceTextures: ds.Textures,
		DeviceBytes:    ds.Allocated,
	}
	if e.clusters != nil {
		s.Clusters = e.clusters.Count
	}
	return s
}

// LevelCounts returns the total count stored in every pyramid level and the
// whole-space centermass, as of the last tick.
func (e *Engine) LevelCounts() ([]float64, float64, error) {
	var levels []float64
	var total float64
	err := e.readback(func() {
		for _, t := range e.levels.Textures {
			sum := 0.0
			pix := e.dev.Read(t)
			for i := 2; i < len(pix); i += device.Channels {
				sum += pix[i]
			}
			levels = append(levels, sum)
		}
		_, _, total = e.levels.Centroid()
	})
	return levels, total, err
}
