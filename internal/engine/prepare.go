package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/force"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/metrics"
	"github.com/onnwee/forcegraph/internal/texel"
	"github.com/onnwee/forcegraph/internal/tracing"
)

// prepare rebuilds whatever the setters invalidated since the last tick.
func (e *Engine) prepare(ctx context.Context) error {
	if e.dirty == 0 {
		return nil
	}
	_, span := tracing.StartSpan(ctx, "engine.rebuild",
		trace.WithAttributes(attribute.Int("dirty", int(e.dirty)), attribute.Int("points", e.n)))
	defer span.End()

	if e.dirty&dirtyAll != 0 {
		if err := e.rebuildAll(); err != nil {
			span.RecordError(err)
			return err
		}
		e.dirty = 0
		return nil
	}

	if e.dirty&dirtyPositions != 0 {
		e.uploadPositions()
		metrics.BufferRebuilds.WithLabelValues("positions").Inc()
	}
	if e.dirty&dirtyLinks != 0 {
		if err := e.rebuildLinks(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if e.dirty&dirtyClusters != 0 {
		if err := e.rebuildClusters(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	if e.dirty&dirtyLevels != 0 {
		if err := e.rebuildLevels(); err != nil {
			span.RecordError(err)
			return err
		}
	}
	e.dirty = 0
	return nil
}

// rebuildAll reallocates every buffer for the current point count. The
// random stream is consumed in a fixed order: initial positions, per-point
// jitter, link jitter, community detection.
func (e *Engine) rebuildAll() error {
	e.releaseBuffers()
	side := texel.Side(e.n)

	var err error
	for i := range e.pos {
		if e.pos[i], err = e.dev.NewSquare(fmt.Sprintf("positions%d", i), side); err != nil {
			return err
		}
	}
	if e.velocity, err = e.dev.NewSquare("velocity", side); err != nil {
		return err
	}
	if e.random, err = e.dev.NewSquare("random", side); err != nil {
		return err
	}
	e.current = 0
	e.hovered = -1

	if e.positions == nil {
		e.positions = e.randomPositions()
	}
	e.uploadPositions()
	for i := 0; i < e.n; i++ {
		e.random.Set(i, [device.Channels]float64{e.rng.Float64() - 0.5, e.rng.Float64() - 0.5, 0, 0})
	}

	if err := e.rebuildLevels(); err != nil {
		return err
	}
	if err := e.rebuildLinks(); err != nil {
		return err
	}
	if err := e.rebuildClusters(); err != nil {
		return err
	}

	metrics.BufferRebuilds.WithLabelValues("all").Inc()
	metrics.GraphPoints.Set(float64(e.n))
	e.log.Debug("rebuilt all buffers", "points", e.n, "side", side)
	return nil
}

// randomPositions places points uniformly in the central half of the space.
func (e *Engine) randomPositions() []r2.Vec {
	out := make([]r2.Vec, e.n)
	quarter := e.spaceSize / 4
	for i := range out {
		out[i].X = quarter + e.rng.Float64()*e.spaceSize/2
		out[i].Y = quarter + e.rng.Float64()*e.spaceSize/2
	}
	return out
}

func (e *Engine) uploadPositions() {
	cur := e.pos[e.current]
	cur.Clear()
	for i, p := range e.positions {
		cur.Set(i, [device.Channels]float64{p.X, p.Y, 0, 0})
	}
}

func (e *Engine) rebuildLevels() error {
	if e.levels != nil {
		e.levels.Release(e.dev)
		e.levels = nil
	}
	lv, err := force.NewLevels(e.dev, e.spaceSize)
	if err != nil {
		return err
	}
	e.levels = lv
	metrics.BufferRebuilds.WithLabelValues("levels").Inc()
	return nil
}

func (e *Engine) rebuildLinks() error {
	links, strength, dropped := graph.FilterLinks(e.n, e.links, e.linkStrength)
	if dropped > 0 {
		e.log.Warn("dropped links referencing missing points", "dropped", dropped, "points", e.n)
	}
	if strength != nil && len(strength) != len(links) {
		e.log.Warn("link strength length mismatch, using degree defaults", "strengths", len(strength), "links", len(links))
		strength = nil
	}

	fp := graph.LinksFingerprint(links, strength)
	if e.outLinks != nil && e.dirty&dirtyAll == 0 && fp == e.linksFP {
		return nil
	}

	if e.outLinks != nil {
		e.outLinks.Release(e.dev)
		e.inLinks.Release(e.dev)
		e.outLinks, e.inLinks = nil, nil
	}

	out, in := graph.BuildAdjacency(e.n, links, strength, e.rng)
	var err error
	if e.outLinks, err = force.UploadLinks(e.dev, out); err != nil {
		return err
	}
	if e.inLinks, err = force.UploadLinks(e.dev, in); err != nil {
		e.outLinks.Release(e.dev)
		e.outLinks = nil
		return err
	}
	e.linksFP = fp
	e.numLinks = len(links)
	metrics.BufferRebuilds.WithLabelValues("adjacency").Inc()
	metrics.GraphLinks.Set(float64(len(links)))

	e.autoClusters = nil
	if e.opts.AutoCluster && len(links) > 0 {
		e.autoClusters = graph.DetectCommunities(e.n, links, e.rng).Assignments
		e.dirty |= dirtyClusters
	}
	return nil
}

func (e *Engine) rebuildClusters() error {
	clusters := e.pointClusters
	if clusters != nil && len(clusters) != e.n {
		e.log.Warn("point clusters do not match point count, ignoring", "clusters", len(clusters), "points", e.n)
		clusters = nil
	}
	if clusters == nil {
		clusters = e.autoClusters
	}
	strength := e.clusterStrength
	if strength != nil && len(strength) != e.n {
		e.log.Warn("cluster strength does not match point count, using defaults", "strengths", len(strength), "points", e.n)
		strength = nil
	}

	fp := graph.ClustersFingerprint(clusters, e.clusterPositions, strength)
	if e.clusters != nil && e.dirty&dirtyAll == 0 && fp == e.clustersFP {
		return nil
	}
	if e.clusters != nil {
		e.clusters.Release(e.dev)
		e.clusters = nil
	}

	cb, err := force.NewClusterBuffers(e.dev, e.n, clusters, e.clusterPositions, strength)
	if err != nil {
		return err
	}
	e.clusters = cb
	e.clustersFP = fp
	metrics.BufferRebuilds.WithLabelValues("clusters").Inc()
	metrics.GraphClusters.Set(float64(cb.Count))
	return nil
}

func (e *Engine) releaseBuffers() {
	for i, t := range e.pos {
		e.dev.Release(t)
		e.pos[i] = nil
	}
	e.dev.Release(e.velocity)
	e.dev.Release(e.random)
	e.velocity, e.random = nil, nil
	if e.levels != nil {
		e.levels.Release(e.dev)
		e.levels = nil
	}
	if e.outLinks != nil {
		e.outLinks.Release(e.dev)
		e.outLinks = nil
	}
	if e.inLinks != nil {
		e.inLinks.Release(e.dev)
		e.inLinks = nil
	}
	if e.clusters != nil {
		e.clusters.Release(e.dev)
		e.clusters = nil
	}
}
