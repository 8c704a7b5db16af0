package force

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
	"github.com/onnwee/forcegraph/internal/texel"
)

// fixture is a device with position, velocity and random buffers for pts.
type fixture struct {
	dev    *device.Device
	bufs   Buffers
	levels *Levels
}

func newFixture(tb testing.TB, spaceSize float64, pts []r2.Vec) *fixture {
	tb.Helper()
	dev := device.New(device.Options{Workers: 4})
	side := texel.Side(len(pts))

	pos, err := dev.NewSquare("positions", side)
	if err != nil {
		tb.Fatalf("alloc positions: %v", err)
	}
	vel, err := dev.NewSquare("velocity", side)
	if err != nil {
		tb.Fatalf("alloc velocity: %v", err)
	}
	rnd, err := dev.NewSquare("random", side)
	if err != nil {
		tb.Fatalf("alloc random: %v", err)
	}
	rng := rand.New(rand.NewSource(1))
	for i, p := range pts {
		pos.Set(i, [device.Channels]float64{p.X, p.Y, 0, 0})
		rnd.Set(i, [device.Channels]float64{rng.Float64() - 0.5, rng.Float64() - 0.5, 0, 0})
	}

	lv, err := NewLevels(dev, spaceSize)
	if err != nil {
		tb.Fatalf("alloc levels: %v", err)
	}
	f := &fixture{
		dev:    dev,
		bufs:   Buffers{N: len(pts), Positions: pos, Velocity: vel, Random: rnd},
		levels: lv,
	}
	if err := lv.Build(testCtx, dev, f.bufs); err != nil {
		tb.Fatalf("build levels: %v", err)
	}
	return f
}

func (f *fixture) velocity(i int) r2.Vec {
	v := f.bufs.Velocity.At(i)
	return r2.Vec{X: v[0], Y: v[1]}
}

func (f *fixture) resetVelocity() { f.bufs.Velocity.Clear() }

// bruteForce returns the exact pairwise repulsion under the same force law.
func bruteForce(pts []r2.Vec, k float64) []r2.Vec {
	out := make([]r2.Vec, len(pts))
	for i, p := range pts {
		for j, q := range pts {
			if i == j {
				continue
			}
			away := r2.Sub(p, q)
			l := r2.Norm2(away)
			d := math.Sqrt(math.Max(l, 1))
			out[i] = r2.Add(out[i], r2.Scale(k/d/math.Sqrt(l), away))
		}
	}
	return out
}

func ring(n int, cx, cy, radius float64) []r2.Vec {
	pts := make([]r2.Vec, n)
	for i := range pts {
		angle := 2 * math.Pi * float64(i) / float64(n)
		pts[i] = r2.Vec{X: cx + radius*math.Cos(angle), Y: cy + radius*math.Sin(angle)}
	}
	return pts
}

func finite(v r2.Vec) bool {
	return !math.IsNaN(v.X) && !math.IsNaN(v.Y) && !math.IsInf(v.X, 0) && !math.IsInf(v.Y, 0)
}
