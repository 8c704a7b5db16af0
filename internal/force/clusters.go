package force

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/texel"
)

// DefaultClusterCoefficient is the per-point cluster coefficient used when
// none is supplied.
const DefaultClusterCoefficient = 1.0

// ClusterBuffers hold cluster membership and targets. Caller cluster ids
// are compacted into dense slots in ascending id order, so sparse or large
// ids cost nothing beyond their number.
//
// Points: per point (slot or -1, coefficient).
// Targets: per slot (x, y, pinned).
// Mass: per slot (Σx, Σy, count), rebuilt every tick.
type ClusterBuffers struct {
	Count   int   // number of distinct cluster ids
	IDs     []int // caller id of every slot
	Side    int
	Points  *device.Texture
	Targets *device.Texture
	Mass    *device.Texture
}

// NewClusterBuffers uploads cluster membership for n points. clusters and
// coefficients must be nil or of length n; non-finite coefficients use the
// default.
// Targets for ids no point belongs to are ignored.
func NewClusterBuffers(dev *device.Device, n int, clusters []int, targets map[int]r2.Vec, coefficients []float64) (*ClusterBuffers, error) {
	slot := make(map[int]int)
	for _, c := range clusters {
		if c >= 0 {
			slot[c] = 0
		}
	}
	ids := make([]int, 0, len(slot))
	for id := range slot {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for i, id := range ids {
		slot[id] = i
	}

	cb := &ClusterBuffers{Count: len(ids), IDs: ids, Side: texel.Side(len(ids))}

	var err error
	if cb.Points, err = dev.NewSquare("pointClusters", texel.Side(n)); err != nil {
		return nil, err
	}
	if cb.Targets, err = dev.NewSquare("clusterPositions", cb.Side); err != nil {
		cb.Release(dev)
		return nil, err
	}
	if cb.Mass, err = dev.NewSquare("clusterCentermass", cb.Side); err != nil {
		cb.Release(dev)
		return nil, err
	}

	for i := 0; i < n; i++ {
		s, coeff := -1.0, DefaultClusterCoefficient
		if clusters != nil && clusters[i] >= 0 {
			s = float64(slot[clusters[i]])
		}
		if c := coefficients; c != nil && !math.IsNaN(c[i]) && !math.IsInf(c[i], 0) {
			coeff = c[i]
		}
		cb.Points.Set(i, [device.Channels]float64{s, coeff, 0, 0})
	}
	for id, p := range targets {
		s, ok := slot[id]
		if !ok {
			continue
		}
		cb.Targets.Set(s, [device.Channels]float64{p.X, p.Y, 1, 0})
	}
	return cb, nil
}

// Build aggregates the live centroid of every cluster.
func (cb *ClusterBuffers) Build(ctx context.Context, dev *device.Device, b Buffers) error {
	cb.Mass.Clear()
	if cb.Count == 0 {
		return ctx.Err()
	}
	return dev.ScatterAdd(ctx, "clusterCentermass", cb.Mass, b.N, func(i int) (int, int, [device.Channels]float64, bool) {
		s := int(cb.Points.At(i)[0])
		if s < 0 {
			return 0, 0, [device.Channels]float64{}, false
		}
		p := b.Positions.At(i)
		x, y := texel.ToCoord(s, cb.Side)
		return x, y, [device.Channels]float64{p[0], p[1], 1, 0}, true
	})
}

// Centroids returns the live centroid of every non-empty cluster, keyed by
// the caller's cluster id.
func (cb *ClusterBuffers) Centroids(dev *device.Device) map[int]r2.Vec {
	pix := dev.Read(cb.Mass)
	out := make(map[int]r2.Vec)
	for s, id := range cb.IDs {
		x, y, n := centroid(pix[s*device.Channels : (s+1)*device.Channels])
		if n > 0 {
			out[id] = r2.Vec{X: x, Y: y}
		}
	}
	return out
}

// Release returns the cluster buffers to the device.
func (cb *ClusterBuffers) Release(dev *device.Device) {
	dev.Release(cb.Points)
	dev.Release(cb.Targets)
	dev.Release(cb.Mass)
}

// ApplyCluster pulls every clustered point toward its cluster's pinned
// target, or the cluster's live centroid when it has none.
func ApplyCluster(ctx context.Context, dev *device.Device, b Buffers, cb *ClusterBuffers, alpha float64, p ClusterParams) error {
	if cb == nil || cb.Count == 0 || p.Cluster == 0 {
		return ctx.Err()
	}
	return dev.Gather(ctx, "cluster", b.N, func(i int) {
		pc := cb.Points.At(i)
		s := int(pc[0])
		if s < 0 {
			return
		}
		var target r2.Vec
		if t := cb.Targets.At(s); t[2] > 0 {
			target = r2.Vec{X: t[0], Y: t[1]}
		} else {
			x, y, n := centroid(cb.Mass.At(s))
			if n == 0 {
				return
			}
			target = r2.Vec{X: x, Y: y}
		}
		b.addVelocity(i, r2.Scale(alpha*p.Cluster*pc[1], r2.Sub(target, b.position(i))))
	})
}
