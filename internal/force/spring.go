package force

import (
	"context"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/texel"
)

// LinkBuffers are one direction of the adjacency in texture form.
//
// Table: per point (offset, count).
// Neighbors: per slot (neighbor index, bias, strength, jitter).
type LinkBuffers struct {
	Direction graph.Direction
	MaxDegree int
	Table     *device.Texture
	Neighbors *device.Texture
	side      int
}

// UploadLinks encodes an adjacency table into device buffers.
func UploadLinks(dev *device.Device, adj *graph.Adjacency) (*LinkBuffers, error) {
	n := len(adj.Counts)
	lb := &LinkBuffers{
		Direction: adj.Direction,
		MaxDegree: adj.MaxDegree,
		side:      texel.Side(len(adj.Neighbors)),
	}

	var err error
	if lb.Table, err = dev.NewSquare(adj.Direction.String()+"Table", texel.Side(n)); err != nil {
		return nil, err
	}
	if lb.Neighbors, err = dev.NewSquare(adj.Direction.String()+"Neighbors", lb.side); err != nil {
		dev.Release(lb.Table)
		return nil, err
	}

	for p := 0; p < n; p++ {
		lb.Table.Set(p, [device.Channels]float64{float64(adj.Offsets[p]), float64(adj.Counts[p]), 0, 0})
	}
	for s, nb := range adj.Neighbors {
		lb.Neighbors.Set(s, [device.Channels]float64{float64(nb.Index), nb.Bias, nb.Strength, nb.Jitter})
	}
	return lb, nil
}

// Release returns the buffers to the device.
func (lb *LinkBuffers) Release(dev *device.Device) {
	dev.Release(lb.Table)
	dev.Release(lb.Neighbors)
}

// ApplySpring adds the link force of one direction. Each point walks at most
// MaxDegree neighbor slots and stops at its own count.
func ApplySpring(ctx context.Context, dev *device.Device, b Buffers, lb *LinkBuffers, alpha float64, p SpringParams) error {
	if lb == nil || lb.MaxDegree == 0 || p.LinkSpring == 0 {
		return ctx.Err()
	}
	pass := "spring_" + lb.Direction.String()
	variation := p.MaxVariation - p.MinVariation
	posSide := b.Positions.Width

	return dev.Gather(ctx, pass, b.N, func(i int) {
		row := lb.Table.At(i)
		offset, count := int(row[0]), int(row[1])
		if count == 0 {
			return
		}
		pos := b.position(i)
		var acc r2.Vec
		for slot := 0; slot < lb.MaxDegree; slot++ {
			if slot >= count {
				break
			}
			sx, sy := texel.ToCoord(offset+slot, lb.side)
			nb := lb.Neighbors.Texel(sx, sy)
			qx, qy := texel.ToCoord(int(nb[0]), posSide)
			q := b.Positions.Texel(qx, qy)

			d := r2.Sub(r2.Vec{X: q[0], Y: q[1]}, pos)
			target := p.LinkDistance * (nb[3]*variation + p.MinVariation)
			dist := max(r2.Norm(d), target*0.99)
			if dist == 0 {
				continue
			}
			pull := p.LinkSpring * alpha * nb[2] * nb[1] * (dist - target) / dist
			acc = r2.Add(acc, r2.Scale(pull, d))
		}
		b.addVelocity(i, acc)
	})
}
