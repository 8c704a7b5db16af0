package force

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
)

const (
	gravityScale = 0.1
	centerScale  = 0.01

	// pointerMinDistance keeps the pointer force finite under the cursor.
	pointerMinDistance = 10
	pointerScale       = 100
)

// ApplyGravity pulls every point toward the centre of the space.
func ApplyGravity(ctx context.Context, dev *device.Device, b Buffers, spaceSize, alpha float64, p GravityParams) error {
	if p.Gravity == 0 || alpha == 0 {
		return ctx.Err()
	}
	c := r2.Vec{X: spaceSize / 2, Y: spaceSize / 2}
	k := alpha * p.Gravity * gravityScale
	return dev.Gather(ctx, "gravity", b.N, func(i int) {
		b.addVelocity(i, r2.Scale(k, r2.Sub(c, b.position(i))))
	})
}

// ApplyCenter pulls every point toward the centroid of all points.
func ApplyCenter(ctx context.Context, dev *device.Device, b Buffers, lv *Levels, alpha float64, p CenterParams) error {
	if p.Center == 0 || alpha == 0 {
		return ctx.Err()
	}
	x, y, n := lv.Centroid()
	if n == 0 {
		return ctx.Err()
	}
	c := r2.Vec{X: x, Y: y}
	k := alpha * p.Center * centerScale
	return dev.Gather(ctx, "center", b.N, func(i int) {
		b.addVelocity(i, r2.Scale(k, r2.Sub(c, b.position(i))))
	})
}

// ApplyPointer pushes points away from the pointer while it is engaged. The
// force does not decay with alpha.
func ApplyPointer(ctx context.Context, dev *device.Device, b Buffers, p PointerParams) error {
	if !p.Engaged || p.RepulsionFromMouse == 0 {
		return ctx.Err()
	}
	return dev.Gather(ctx, "pointer", b.N, func(i int) {
		toMouse := r2.Sub(p.Position, b.position(i))
		l := r2.Norm(toMouse)
		var dir r2.Vec
		if l*l < coincident {
			dir = r2.Scale(-1, b.jitterDirection(i))
		} else {
			dir = r2.Scale(1/l, toMouse)
		}
		d := math.Max(l, pointerMinDistance)
		b.addVelocity(i, r2.Scale(-pointerScale*p.RepulsionFromMouse/(d*d), dir))
	})
}
