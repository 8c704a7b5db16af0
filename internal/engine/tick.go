package engine

import (
	"context"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/force"
	"github.com/onnwee/forcegraph/internal/metrics"
	"github.com/onnwee/forcegraph/internal/tracing"
)

// tickLocked advances the simulation by one tick. The caller holds e.mu.
//
// Order: prepare, aggregates, clear velocity, forces, integrate into the
// other position buffer, swap, alpha, hover.
func (e *Engine) tickLocked(ctx context.Context) (TickEvent, error) {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "engine.tick",
		trace.WithAttributes(attribute.Int64("tick", int64(e.tick)), attribute.Float64("alpha", e.alpha)))
	defer span.End()

	if err := e.prepare(ctx); err != nil {
		span.RecordError(err)
		return TickEvent{}, err
	}

	b := force.Buffers{
		N:         e.n,
		Positions: e.pos[e.current],
		Velocity:  e.velocity,
		Random:    e.random,
	}

	if err := e.levels.Build(ctx, e.dev, b); err != nil {
		span.RecordError(err)
		return TickEvent{}, err
	}
	if err := e.clusters.Build(ctx, e.dev, b); err != nil {
		span.RecordError(err)
		return TickEvent{}, err
	}

	e.velocity.Clear()
	for _, k := range e.opts.Forces {
		if err := e.applyForce(ctx, k, b); err != nil {
			span.RecordError(err)
			return TickEvent{}, err
		}
	}

	next := e.pos[1-e.current]
	if err := integrate(ctx, e.dev, b, next, e.params.Friction); err != nil {
		span.RecordError(err)
		return TickEvent{}, err
	}
	e.current = 1 - e.current

	e.alpha += (e.params.AlphaTarget - e.alpha) * e.params.decayRate()
	e.tick++
	e.gen++
	e.hovered = e.findHovered()

	metrics.SimulationTicksTotal.Inc()
	metrics.SimulationTickDuration.Observe(time.Since(start).Seconds())
	metrics.SimulationAlpha.Set(e.alpha)
	metrics.SimulationProgress.Set(progress(e.alpha))

	return TickEvent{
		Tick:     e.tick,
		Alpha:    e.alpha,
		Progress: progress(e.alpha),
		Hovered:  e.hovered,
	}, nil
}

func (e *Engine) applyForce(ctx context.Context, k force.Kind, b force.Buffers) error {
	p := e.params
	switch k {
	case force.Repulsion:
		return force.ApplyRepulsion(ctx, e.dev, b, e.levels, e.alpha, p.repulsion())
	case force.SpringOutgoing:
		return force.ApplySpring(ctx, e.dev, b, e.outLinks, e.alpha, p.spring())
	case force.SpringIncoming:
		return force.ApplySpring(ctx, e.dev, b, e.inLinks, e.alpha, p.spring())
	case force.Gravity:
		return force.ApplyGravity(ctx, e.dev, b, e.spaceSize, e.alpha, force.GravityParams{Gravity: p.Gravity})
	case force.Center:
		return force.ApplyCenter(ctx, e.dev, b, e.levels, e.alpha, force.CenterParams{Center: p.Center})
	case force.Pointer:
		return force.ApplyPointer(ctx, e.dev, b, force.PointerParams{
			RepulsionFromMouse: p.RepulsionFromMouse,
			Position:           e.pointer,
			Engaged:            e.pointerEngaged,
		})
	case force.Cluster:
		return force.ApplyCluster(ctx, e.dev, b, e.clusters, e.alpha, force.ClusterParams{Cluster: p.Cluster})
	}
	return nil
}

// integrate writes cur + velocity*friction into next. Non-finite velocity
// components are dropped so they never reach position state.
func integrate(ctx context.Context, dev *device.Device, b force.Buffers, next *device.Texture, friction float64) error {
	return dev.Gather(ctx, "integrate", b.N, func(i int) {
		p := b.Positions.At(i)
		v := b.Velocity.At(i)
		vx, vy := v[0], v[1]
		if math.IsNaN(vx) || math.IsInf(vx, 0) {
			vx = 0
		}
		if math.IsNaN(vy) || math.IsInf(vy, 0) {
			vy = 0
		}
		next.Set(i, [device.Channels]float64{p[0] + vx*friction, p[1] + vy*friction, 0, 0})
	})
}

// findHovered returns the point nearest the pointer within HoverRadius, or -1.
func (e *Engine) findHovered() int {
	if !e.pointerSet || e.n == 0 {
		return -1
	}
	r2max := e.params.HoverRadius * e.params.HoverRadius
	best, bestDist := -1, math.Inf(1)
	cur := e.pos[e.current]
	for i := 0; i < e.n; i++ {
		p := cur.At(i)
		dx, dy := p[0]-e.pointer.X, p[1]-e.pointer.Y
		if d := dx*dx + dy*dy; d <= r2max && d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
