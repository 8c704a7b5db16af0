// Package engine owns the simulation state and sequences the force passes of
// each tick. The host drives it through Start/Pause/Restart/Step and a frame
// clock, and reads positions back by copy.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/force"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
	"github.com/onnwee/forcegraph/internal/metrics"
)

// AlphaMin is the energy below which the simulation counts as converged.
const AlphaMin = 0.001

// ErrDestroyed is returned by every operation after Destroy.
var ErrDestroyed = errors.New("engine: destroyed")

// Options configure an engine at construction.
type Options struct {
	// Seed seeds the random stream. Zero picks a time-based seed.
	Seed      int64
	Callbacks Callbacks
	// AutoCluster assigns cluster ids by community detection when the caller
	// supplies none.
	AutoCluster bool
	// Forces is the pass order of a tick. Nil selects force.DefaultOrder.
	Forces []force.Kind
}

type dirtyFlags uint8

const (
	dirtyAll dirtyFlags = 1 << iota
	dirtyPositions
	dirtyLinks
	dirtyClusters
	dirtyLevels
)

// Engine is one simulation instance.
type Engine struct {
	mu   sync.RWMutex
	dev  *device.Device
	log  *slog.Logger
	rng  *rand.Rand
	opts Options

	params      Params
	spaceSize   float64
	spaceWarned bool

	state     State
	alpha     float64
	tick      uint64
	gen       uint64 // bumped whenever positions may have changed
	lastFrame uint64
	hasFrame  bool

	// host-side copies of the inputs, applied by prepare
	n                int
	positions        []r2.Vec
	links            [][2]int
	linkStrength     []float64
	pointClusters    []int
	autoClusters     []int
	clusterPositions map[int]r2.Vec
	clusterStrength  []float64
	dirty            dirtyFlags
	linksFP          uint64
	clustersFP       uint64
	numLinks         int

	pointer        r2.Vec
	pointerSet     bool
	pointerEngaged bool
	hovered        int

	// device buffers
	pos      [2]*device.Texture
	current  int
	velocity *device.Texture
	random   *device.Texture
	levels   *force.Levels
	outLinks *force.LinkBuffers
	inLinks  *force.LinkBuffers
	clusters *force.ClusterBuffers
}

// New creates an engine with no points and allocates its initial buffers.
// Allocation failures are returned and are fatal for the engine.
func New(dev *device.Device, params Params, opts Options) (*Engine, error) {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if opts.Forces == nil {
		opts.Forces = force.DefaultOrder()
	}

	e := &Engine{
		dev:     dev,
		log:     logger.WithComponent("engine"),
		rng:     rand.New(rand.NewSource(seed)),
		opts:    opts,
		params:  params,
		alpha:   1,
		hovered: -1,
		dirty:   dirtyAll,
	}

	valid := e.opts.Forces[:0:0]
	for _, k := range e.opts.Forces {
		if !k.Valid() {
			e.log.Warn("ignoring unknown force kind", "kind", int(k))
			continue
		}
		valid = append(valid, k)
	}
	e.opts.Forces = valid

	e.spaceSize = e.clampSpace(params.SpaceSize)
	if err := e.prepare(context.Background()); err != nil {
		e.releaseBuffers()
		return nil, err
	}
	metrics.SimulationState.Set(float64(Idle))
	e.log.Info("engine created", "seed", seed, "space_size", e.spaceSize, "quadtree", params.UseQuadtree)
	return e, nil
}

// clampSpace keeps the space inside [2, MaxTextureSize], warning once.
func (e *Engine) clampSpace(s float64) float64 {
	limit := float64(e.dev.MaxTextureSize())
	if s > limit {
		if !e.spaceWarned {
			e.log.Warn("space size exceeds device texture limit, clamping", "requested", s, "max", limit)
			e.spaceWarned = true
		}
		return limit
	}
	if !(s >= 2) {
		return 2
	}
	return s
}

// SetData replaces the whole graph.
func (e *Engine) SetData(d *graph.Data) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}

	e.n = d.NumPoints()
	e.positions = d.Positions
	switch {
	case e.positions != nil && len(e.positions) != e.n:
		e.log.Warn("initial positions do not match point count, placing randomly", "positions", len(e.positions), "points", e.n)
		e.positions = nil
	case !allFinite(e.positions):
		e.log.Warn("initial positions are not finite, placing randomly", "points", e.n)
		e.positions = nil
	}
	e.links = d.Links
	e.linkStrength = d.LinkStrength
	e.pointClusters = d.PointClusters
	e.clusterPositions = e.finiteTargets(d.ClusterPositions)
	e.clusterStrength = d.ClusterStrength
	e.dirty |= dirtyAll
	e.gen++
}

// SetPointPositions replaces the point set. A different length changes the
// point count and rebuilds every buffer; otherwise only positions are
// uploaded. A set with any non-finite coordinate is placed randomly instead.
func (e *Engine) SetPointPositions(positions []r2.Vec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}

	e.gen++
	if !allFinite(positions) {
		e.log.Warn("point positions are not finite, placing randomly", "points", len(positions))
		e.positions = nil
		e.n = len(positions)
		e.dirty |= dirtyAll
		return
	}
	e.positions = append([]r2.Vec(nil), positions...)
	if len(positions) != e.n {
		e.n = len(positions)
		e.dirty |= dirtyAll
		return
	}
	e.dirty |= dirtyPositions
}

// SetLinks replaces the link set.
func (e *Engine) SetLinks(links [][2]int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.links = append([][2]int(nil), links...)
	e.dirty |= dirtyLinks
}

// SetLinkStrength overrides the degree-derived strength per link. Nil
// restores the defaults.
func (e *Engine) SetLinkStrength(strength []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.linkStrength = append([]float64(nil), strength...)
	if strength == nil {
		e.linkStrength = nil
	}
	e.dirty |= dirtyLinks
}

// SetPointClusters assigns a cluster id per point; negative ids are
// unclustered. Nil clears the assignment.
func (e *Engine) SetPointClusters(clusters []int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.pointClusters = nil
	if clusters != nil {
		e.pointClusters = make([]int, len(clusters))
		for i, c := range clusters {
			e.pointClusters[i] = max(c, -1)
		}
	}
	e.dirty |= dirtyClusters
}

// SetClusterPositions pins cluster ids to fixed targets.
func (e *Engine) SetClusterPositions(targets map[int]r2.Vec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.clusterPositions = e.finiteTargets(targets)
	e.dirty |= dirtyClusters
}

// finiteTargets copies targets, dropping those with a non-finite coordinate.
func (e *Engine) finiteTargets(targets map[int]r2.Vec) map[int]r2.Vec {
	if targets == nil {
		return nil
	}
	out := make(map[int]r2.Vec, len(targets))
	for id, p := range targets {
		if !isFinite(p) {
			e.log.Warn("ignoring non-finite cluster target", "cluster", id)
			continue
		}
		out[id] = p
	}
	return out
}

func isFinite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsInf(v.X, 0) && !math.IsNaN(v.Y) && !math.IsInf(v.Y, 0)
}

func allFinite(ps []r2.Vec) bool {
	for _, p := range ps {
		if !isFinite(p) {
			return false
		}
	}
	return true
}

// SetPointClusterStrength sets the per-point cluster coefficient. NaN entries
// use the default.
func (e *Engine) SetPointClusterStrength(strength []float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.clusterStrength = append([]float64(nil), strength...)
	if strength == nil {
		e.clusterStrength = nil
	}
	e.dirty |= dirtyClusters
}

// SetPointer updates the pointer position in simulation space and whether it
// is engaged. Non-finite positions are ignored.
func (e *Engine) SetPointer(pos r2.Vec, engaged bool) {
	if !isFinite(pos) {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pointer = pos
	e.pointerSet = true
	e.pointerEngaged = engaged
}

// SetParams replaces the coefficients. A change of space size or quadtree
// depth rebuilds the level pyramid before the next tick.
func (e *Engine) SetParams(p Params) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	space := e.clampSpace(p.SpaceSize)
	if space != e.spaceSize || p.RepulsionQuadtreeLevels != e.params.RepulsionQuadtreeLevels {
		e.dirty |= dirtyLevels
	}
	e.spaceSize = space
	e.params = p
}

// Params returns the current coefficients.
func (e *Engine) Params() Params {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.params
}

// SpaceSize returns the effective space size after clamping.
func (e *Engine) SpaceSize() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.spaceSize
}

// Start resets alpha (clamped to [0,1]) and starts scheduling ticks.
func (e *Engine) Start(alpha float64) error {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	if math.IsNaN(alpha) {
		alpha = 1
	}
	e.alpha = min(max(alpha, 0), 1)
	e.setState(Running)
	e.mu.Unlock()

	e.log.Debug("simulation started", "alpha", alpha)
	call(e.opts.Callbacks.OnStart)
	return nil
}

// Pause stops scheduling ticks without touching alpha.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	e.setState(Paused)
	e.mu.Unlock()

	call(e.opts.Callbacks.OnPause)
	return nil
}

// Restart resumes ticking from the current alpha.
func (e *Engine) Restart() error {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	e.setState(Running)
	e.mu.Unlock()

	call(e.opts.Callbacks.OnRestart)
	return nil
}

// Step runs exactly one tick and leaves the engine paused, whatever alpha is.
func (e *Engine) Step(ctx context.Context) error {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return ErrDestroyed
	}
	wasRunning := e.state == Running
	ev, err := e.tickLocked(ctx)
	e.setState(Paused)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if wasRunning {
		call(e.opts.Callbacks.OnPause)
	}
	if cb := e.opts.Callbacks.OnTick; cb != nil {
		cb(ev)
	}
	return nil
}

// Frame is driven by the host's frame clock. It ticks once while running and
// only for a frame number greater than the last one seen. When alpha drops
// below AlphaMin the engine converges and fires OnEnd. It reports whether a
// tick ran.
func (e *Engine) Frame(ctx context.Context, frame uint64) (bool, error) {
	e.mu.Lock()
	if e.state == Destroyed {
		e.mu.Unlock()
		return false, ErrDestroyed
	}
	if e.hasFrame && frame <= e.lastFrame {
		e.mu.Unlock()
		return false, nil
	}
	e.lastFrame, e.hasFrame = frame, true

	if e.state != Running {
		e.mu.Unlock()
		return false, nil
	}
	if e.alpha < AlphaMin {
		e.converge()
		e.mu.Unlock()
		call(e.opts.Callbacks.OnEnd)
		return false, nil
	}

	ev, err := e.tickLocked(ctx)
	if err != nil {
		e.mu.Unlock()
		return false, err
	}
	ended := false
	if e.alpha < AlphaMin {
		e.converge()
		ended = true
	}
	e.mu.Unlock()

	if cb := e.opts.Callbacks.OnTick; cb != nil {
		cb(ev)
	}
	if ended {
		call(e.opts.Callbacks.OnEnd)
	}
	return true, nil
}

func (e *Engine) converge() {
	e.setState(Converged)
	metrics.SimulationConvergedTotal.Inc()
	e.log.Info("simulation converged", "tick", e.tick, "alpha", e.alpha)
}

// Destroy waits for an in-flight tick, releases every buffer and refuses
// further work.
func (e *Engine) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == Destroyed {
		return
	}
	e.releaseBuffers()
	e.setState(Destroyed)
	e.log.Info("engine destroyed", "ticks", e.tick)
}

func (e *Engine) setState(s State) {
	e.state = s
	metrics.SimulationState.Set(float64(s))
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// progress maps alpha to [0,1]; exactly 1 once converged.
func progress(alpha float64) float64 {
	if alpha < AlphaMin {
		return 1
	}
	return math.Sqrt(min(1, AlphaMin/alpha))
}
