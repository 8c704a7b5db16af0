package force

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/forcegraph/internal/device"
)

// MaxLevels bounds the pyramid depth. A 4096 wide space needs 12.
const MaxLevels = 16

// LevelCount returns floor(log2(spaceSize)), at least 1.
func LevelCount(spaceSize float64) int {
	if spaceSize < 2 {
		return 1
	}
	return min(max(int(math.Floor(math.Log2(spaceSize))), 1), MaxLevels)
}

// Levels is the spatial aggregation pyramid. Level l is a grid of side
// 2^(l+1); each cell stores (Σx, Σy, count) of the points inside it.
// Centermass is a single cell holding every point.
type Levels struct {
	SpaceSize  float64
	Textures   []*device.Texture
	Centermass *device.Texture
}

// NewLevels allocates the pyramid for a space of the given size.
func NewLevels(dev *device.Device, spaceSize float64) (*Levels, error) {
	lv := &Levels{SpaceSize: spaceSize}
	for l := 0; l < LevelCount(spaceSize); l++ {
		t, err := dev.NewSquare(fmt.Sprintf("level%d", l), 1<<(l+1))
		if err != nil {
			lv.Release(dev)
			return nil, err
		}
		lv.Textures = append(lv.Textures, t)
	}
	cm, err := dev.NewSquare("centermass", 1)
	if err != nil {
		lv.Release(dev)
		return nil, err
	}
	lv.Centermass = cm
	return lv, nil
}

// Len returns the number of levels.
func (lv *Levels) Len() int { return len(lv.Textures) }

// Side returns the grid side of level l.
func (lv *Levels) Side(l int) int { return 1 << (l + 1) }

// CellSize returns the width of one cell of level l in space units.
func (lv *Levels) CellSize(l int) float64 { return lv.SpaceSize / float64(lv.Side(l)) }

// CellOf returns the cell of level l containing p. Positions outside the
// space are clamped onto the border cells so every point is counted.
func (lv *Levels) CellOf(l int, x, y float64) (int, int) {
	side := lv.Side(l)
	cs := lv.CellSize(l)
	return clampCell(x/cs, side), clampCell(y/cs, side)
}

func clampCell(v float64, side int) int {
	if !(v >= 0) {
		return 0
	}
	if v >= float64(side) {
		return side - 1
	}
	return int(v)
}

// Build clears and refills every level and the centermass from positions.
// Levels are independent outputs and are scattered concurrently.
func (lv *Levels) Build(ctx context.Context, dev *device.Device, b Buffers) error {
	g, gctx := errgroup.WithContext(ctx)
	for l, tex := range lv.Textures {
		l, tex := l, tex
		g.Go(func() error {
			tex.Clear()
			return dev.ScatterAdd(gctx, tex.Name, tex, b.N, func(i int) (int, int, [device.Channels]float64, bool) {
				p := b.Positions.At(i)
				x, y := lv.CellOf(l, p[0], p[1])
				return x, y, [device.Channels]float64{p[0], p[1], 1, 0}, true
			})
		})
	}
	g.Go(func() error {
		lv.Centermass.Clear()
		return dev.ScatterAdd(gctx, "centermass", lv.Centermass, b.N, func(i int) (int, int, [device.Channels]float64, bool) {
			p := b.Positions.At(i)
			return 0, 0, [device.Channels]float64{p[0], p[1], 1, 0}, true
		})
	})
	return g.Wait()
}

// Centroid returns the centroid and count of the whole point set.
func (lv *Levels) Centroid() (x, y, count float64) {
	return centroid(lv.Centermass.At(0))
}

// Release returns every level to the device.
func (lv *Levels) Release(dev *device.Device) {
	for _, t := range lv.Textures {
		dev.Release(t)
	}
	dev.Release(lv.Centermass)
	lv.Textures = nil
	lv.Centermass = nil
}

func centroid(t []float64) (x, y, count float64) {
	if t[2] <= 0 {
		return 0, 0, 0
	}
	return t[0] / t[2], t[1] / t[2], t[2]
}
