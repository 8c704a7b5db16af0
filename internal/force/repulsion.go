package force

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
)

// coincident is the squared distance below which two bodies are treated as
// sharing a position.
const coincident = 1e-12

// body is an aggregate (Σx, Σy, count).
type body struct {
	sx, sy, m float64
}

func bodyOf(t []float64) body { return body{t[0], t[1], t[2]} }

func (a body) minus(b body) body { return body{a.sx - b.sx, a.sy - b.sy, a.m - b.m} }

// repel returns the velocity pushing a point at pos away from body bd.
// Bodies with less than half a point of mass are skipped.
func repel(pos r2.Vec, bd body, k float64, jitter func() r2.Vec) r2.Vec {
	if bd.m < 0.5 {
		return r2.Vec{}
	}
	c := r2.Vec{X: bd.sx / bd.m, Y: bd.sy / bd.m}
	away := r2.Sub(pos, c)
	l := r2.Norm2(away)
	var dir r2.Vec
	if l < coincident {
		dir = jitter()
	} else {
		dir = r2.Scale(1/math.Sqrt(l), away)
	}
	d := math.Sqrt(max(l, 1))
	return r2.Scale(k*bd.m/d, dir)
}

// ApplyRepulsion adds the many-body force using either the Barnes–Hut descent
// over the level pyramid or the per-level sibling summation.
func ApplyRepulsion(ctx context.Context, dev *device.Device, b Buffers, lv *Levels, alpha float64, p RepulsionParams) error {
	if p.Repulsion == 0 || alpha == 0 || lv.Len() == 0 {
		return ctx.Err()
	}
	k := p.Repulsion * alpha
	if p.UseQuadtree {
		depth := lv.Len()
		if p.MaxDepth > 0 {
			depth = min(depth, p.MaxDepth)
		}
		theta := p.Theta
		if theta <= 0 {
			theta = math.SmallestNonzeroFloat64
		}
		return dev.Gather(ctx, "repulsion_quadtree", b.N, func(i int) {
			b.addVelocity(i, quadtreeRepulsion(lv, b, i, k, theta, depth))
		})
	}
	return dev.Gather(ctx, "repulsion_levels", b.N, func(i int) {
		b.addVelocity(i, levelRepulsion(lv, b, i, k))
	})
}

// cellRef addresses one cell of the pyramid.
type cellRef struct {
	level, x, y int
}

// quadtreeRepulsion walks the pyramid from the coarsest level with an explicit
// stack. A cell far enough away is applied as one body; otherwise its four
// children are visited. The point's own cell is always opened, and at the
// depth limit it is applied with the point itself removed.
func quadtreeRepulsion(lv *Levels, b Buffers, i int, k, theta float64, depth int) r2.Vec {
	pos := b.position(i)
	self := body{pos.X, pos.Y, 1}
	jitter := func() r2.Vec { return b.jitterDirection(i) }

	var stack [3*MaxLevels + 4]cellRef
	top := 0
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			stack[top] = cellRef{0, x, y}
			top++
		}
	}

	var acc r2.Vec
	for top > 0 {
		top--
		c := stack[top]
		bd := bodyOf(lv.Textures[c.level].Texel(c.x, c.y))
		if bd.m < 0.5 {
			continue
		}
		ox, oy := lv.CellOf(c.level, pos.X, pos.Y)
		own := ox == c.x && oy == c.y
		last := c.level == depth-1

		if !own {
			width := lv.CellSize(c.level)
			cx, cy := bd.sx/bd.m, bd.sy/bd.m
			dist2 := (cx-pos.X)*(cx-pos.X) + (cy-pos.Y)*(cy-pos.Y)
			if last || width*width/theta < dist2 {
				acc = r2.Add(acc, repel(pos, bd, k, jitter))
				continue
			}
		} else if last {
			acc = r2.Add(acc, repel(pos, bd.minus(self), k, jitter))
			continue
		}

		for dy := 0; dy < 2; dy++ {
			for dx := 0; dx < 2; dx++ {
				stack[top] = cellRef{c.level + 1, 2*c.x + dx, 2*c.y + dy}
				top++
			}
		}
	}
	return acc
}

// levelRepulsion sums, for every level, the mass of the point's parent cell
// that lies outside its own cell, then the rest of its finest cell. Each body
// is counted exactly once.
func levelRepulsion(lv *Levels, b Buffers, i int, k float64) r2.Vec {
	pos := b.position(i)
	jitter := func() r2.Vec { return b.jitterDirection(i) }

	var acc r2.Vec
	parent := bodyOf(lv.Centermass.At(0))
	for l := range lv.Textures {
		x, y := lv.CellOf(l, pos.X, pos.Y)
		own := bodyOf(lv.Textures[l].Texel(x, y))
		acc = r2.Add(acc, repel(pos, parent.minus(own), k, jitter))
		parent = own
	}
	acc = r2.Add(acc, repel(pos, parent.minus(body{pos.X, pos.Y, 1}), k, jitter))
	return acc
}
