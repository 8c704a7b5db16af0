// Package device provides the data-parallel execution surface the simulation
// runs on: square four-channel float buffers ("textures") drawn from a bounded
// memory budget, gather passes that compute one output slot per invocation,
// and additive-blend scatter passes.
//
// A pass returns only after every invocation has finished, so consecutive
// passes are separated by a hard barrier.
package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/forcegraph/internal/metrics"
)

var (
	// ErrOutOfMemory is returned when an allocation would exceed the memory budget.
	ErrOutOfMemory = errors.New("device: out of memory")
	// ErrTextureTooLarge is returned when a texture dimension exceeds MaxTextureSize.
	ErrTextureTooLarge = errors.New("device: texture exceeds maximum size")
	// ErrDestroyed is returned by every allocation after Destroy.
	ErrDestroyed = errors.New("device: destroyed")
)

// Channels is the number of float channels stored per texel (RGBA).
const Channels = 4

const (
	bytesPerTexel = Channels * 8

	// minChunk is the smallest number of invocations handed to one worker.
	minChunk = 256

	// maxPartialTexels bounds the size of targets that get per-worker partial
	// buffers in ScatterAdd. Larger targets are accumulated serially.
	maxPartialTexels = 1 << 14
)

// Options configures a Device. Zero values select defaults.
type Options struct {
	MaxTextureSize int   // maximum width/height of a texture (default 4096)
	MemoryBudget   int64 // bytes available to textures (default 1 GiB)
	Workers        int   // goroutines per pass (default GOMAXPROCS)
}

// Stats describes the current allocation state of a device.
type Stats struct {
	Textures  int
	Allocated int64
	Budget    int64
}

// Device owns every texture used by one simulation.
type Device struct {
	mu        sync.Mutex
	opts      Options
	allocated int64
	textures  map[*Texture]struct{}
	destroyed bool
}

// New creates a device with the given options.
func New(opts Options) *Device {
	if opts.MaxTextureSize <= 0 {
		opts.MaxTextureSize = 4096
	}
	if opts.MemoryBudget <= 0 {
		opts.MemoryBudget = 1 << 30
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	return &Device{
		opts:     opts,
		textures: make(map[*Texture]struct{}),
	}
}

// MaxTextureSize returns the largest supported texture dimension.
func (d *Device) MaxTextureSize() int { return d.opts.MaxTextureSize }

// Workers returns the number of goroutines a pass may fan out to.
func (d *Device) Workers() int { return d.opts.Workers }

// NewTexture allocates a zeroed width x height texture.
func (d *Device) NewTexture(name string, width, height int) (*Texture, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("texture %q: invalid size %dx%d", name, width, height)
	}
	if width > d.opts.MaxTextureSize || height > d.opts.MaxTextureSize {
		metrics.DeviceAllocationFailures.WithLabelValues("size").Inc()
		return nil, fmt.Errorf("texture %q %dx%d (max %d): %w", name, width, height, d.opts.MaxTextureSize, ErrTextureTooLarge)
	}
	size := int64(width) * int64(height) * bytesPerTexel

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		metrics.DeviceAllocationFailures.WithLabelValues("destroyed").Inc()
		return nil, ErrDestroyed
	}
	if d.allocated+size > d.opts.MemoryBudget {
		metrics.DeviceAllocationFailures.WithLabelValues("budget").Inc()
		return nil, fmt.Errorf("texture %q needs %d bytes, %d of %d in use: %w", name, size, d.allocated, d.opts.MemoryBudget, ErrOutOfMemory)
	}

	t := &Texture{
		Name:   name,
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height*Channels),
	}
	d.textures[t] = struct{}{}
	d.allocated += size
	metrics.DeviceBytesAllocated.Set(float64(d.allocated))
	return t, nil
}

// NewSquare allocates a side x side texture.
func (d *Device) NewSquare(name string, side int) (*Texture, error) {
	return d.NewTexture(name, side, side)
}

// Release returns a texture's memory to the budget. Releasing nil or an
// already released texture is a no-op.
func (d *Device) Release(t *Texture) {
	if t == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.textures[t]; !ok {
		return
	}
	delete(d.textures, t)
	d.allocated -= t.bytes()
	t.Pix = nil
	metrics.DeviceBytesAllocated.Set(float64(d.allocated))
}

// Destroy releases every texture. Later allocations fail with ErrDestroyed.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range d.textures {
		t.Pix = nil
	}
	d.textures = make(map[*Texture]struct{})
	d.allocated = 0
	d.destroyed = true
	metrics.DeviceBytesAllocated.Set(0)
}

// Stats returns a snapshot of the allocation state.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Textures:  len(d.textures),
		Allocated: d.allocated,
		Budget:    d.opts.MemoryBudget,
	}
}

// Read copies a texture's contents. It is the only way data leaves the device.
func (d *Device) Read(t *Texture) []float64 {
	out := make([]float64, len(t.Pix))
	copy(out, t.Pix)
	return out
}

// workersFor returns how many workers a pass over n invocations uses.
func (d *Device) workersFor(n int) int {
	w := (n + minChunk - 1) / minChunk
	if w > d.opts.Workers {
		w = d.opts.Workers
	}
	if w < 1 {
		w = 1
	}
	return w
}

func observe(pass string, start time.Time) {
	metrics.PassDuration.WithLabelValues(pass).Observe(time.Since(start).Seconds())
}

// Gather runs kernel(i) for every i in [0, n). Invocations are split into
// contiguous chunks across workers; each invocation must write only its own
// output slot. Cancellation is checked before each chunk starts, never in the
// middle of one.
func (d *Device) Gather(ctx context.Context, pass string, n int, kernel func(i int)) error {
	defer observe(pass, time.Now())
	if n <= 0 {
		return ctx.Err()
	}

	workers := d.workersFor(n)
	if workers == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			kernel(i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for lo := 0; lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := lo; i < hi; i++ {
				kernel(i)
			}
			return nil
		})
	}
	return g.Wait()
}

// ScatterFunc maps invocation i to a destination texel and the value to add
// to it. Returning ok=false skips the invocation.
type ScatterFunc func(i int) (x, y int, v [Channels]float64, ok bool)

// ScatterAdd accumulates fn(i) into dst for every i in [0, n) with additive
// blending. Small targets get one private partial buffer per worker; partials
// are summed into dst in worker order, so the result only depends on n, fn and
// the worker count. dst is not cleared first.
func (d *Device) ScatterAdd(ctx context.Context, pass string, dst *Texture, n int, fn ScatterFunc) error {
	defer observe(pass, time.Now())
	if n <= 0 {
		return ctx.Err()
	}

	workers := d.workersFor(n)
	if workers == 1 || dst.Len() > maxPartialTexels {
		if err := ctx.Err(); err != nil {
			return err
		}
		scatterRange(dst.Pix, dst.Width, 0, n, fn)
		return nil
	}

	partials := make([][]float64, workers)
	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + workers - 1) / workers
	for w := 0; w < workers; w++ {
		w := w
		lo, hi := w*chunk, min((w+1)*chunk, n)
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			buf := make([]float64, len(dst.Pix))
			scatterRange(buf, dst.Width, lo, hi, fn)
			partials[w] = buf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, buf := range partials {
		if buf == nil {
			continue
		}
		for i, v := range buf {
			dst.Pix[i] += v
		}
	}
	return nil
}

func scatterRange(pix []float64, width, lo, hi int, fn ScatterFunc) {
	for i := lo; i < hi; i++ {
		x, y, v, ok := fn(i)
		if !ok {
			continue
		}
		o := (y*width + x) * Channels
		pix[o] += v[0]
		pix[o+1] += v[1]
		pix[o+2] += v[2]
		pix[o+3] += v[3]
	}
}
