package device

import (
	"context"
	"errors"
	"testing"
)

func TestNewTextureBudget(t *testing.T) {
	// room for exactly two 4x4 textures
	dev := New(Options{MemoryBudget: 2 * 16 * bytesPerTexel, MaxTextureSize: 64})

	a, err := dev.NewSquare("a", 4)
	if err != nil {
		t.Fatalf("first allocation failed: %v", err)
	}
	if _, err := dev.NewSquare("b", 4); err != nil {
		t.Fatalf("second allocation failed: %v", err)
	}
	if _, err := dev.NewSquare("c", 4); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("expected ErrOutOfMemory, got %v", err)
	}

	dev.Release(a)
	if _, err := dev.NewSquare("c", 4); err != nil {
		t.Fatalf("allocation after release failed: %v", err)
	}
	if got := dev.Stats().Textures; got != 2 {
		t.Errorf("expected 2 live textures, got %d", got)
	}
}

func TestNewTextureTooLarge(t *testing.T) {
	dev := New(Options{MaxTextureSize: 8})
	if _, err := dev.NewTexture("big", 9, 1); !errors.Is(err, ErrTextureTooLarge) {
		t.Fatalf("expected ErrTextureTooLarge, got %v", err)
	}
	if _, err := dev.NewTexture("bad", 0, 1); err == nil {
		t.Fatal("expected error for zero width")
	}
}

func TestDestroy(t *testing.T) {
	dev := New(Options{})
	tex, err := dev.NewSquare("a", 2)
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	dev.Destroy()

	if tex.Pix != nil {
		t.Error("destroy should drop texture storage")
	}
	if s := dev.Stats(); s.Allocated != 0 || s.Textures != 0 {
		t.Errorf("expected empty device after destroy, got %+v", s)
	}
	if _, err := dev.NewSquare("b", 2); !errors.Is(err, ErrDestroyed) {
		t.Fatalf("expected ErrDestroyed, got %v", err)
	}
}

func TestGatherCoversEveryInvocation(t *testing.T) {
	dev := New(Options{Workers: 4})
	n := 10000
	out := make([]int, n)
	err := dev.Gather(context.Background(), "test", n, func(i int) {
		out[i] = i * 2
	})
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	for i, v := range out {
		if v != i*2 {
			t.Fatalf("slot %d = %d, want %d", i, v, i*2)
		}
	}
}

func TestGatherCancelled(t *testing.T) {
	dev := New(Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := dev.Gather(ctx, "test", 10, func(i int) { calls++ })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Errorf("expected no invocations after cancel, got %d", calls)
	}
}

func TestScatterAddDeterministic(t *testing.T) {
	n := 5000
	run := func() []float64 {
		dev := New(Options{Workers: 4})
		dst, err := dev.NewSquare("dst", 4)
		if err != nil {
			t.Fatalf("allocation failed: %v", err)
		}
		err = dev.ScatterAdd(context.Background(), "test", dst, n, func(i int) (int, int, [Channels]float64, bool) {
			if i%7 == 0 {
				return 0, 0, [Channels]float64{}, false
			}
			return i % 4, (i / 4) % 4, [Channels]float64{float64(i) * 0.1, 1, 0, 0}, true
		})
		if err != nil {
			t.Fatalf("scatter failed: %v", err)
		}
		return dev.Read(dst)
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("scatter not deterministic at %d: %v vs %v", i, a[i], b[i])
		}
	}

	total := 0.0
	for i := 0; i < 16; i++ {
		total += a[i*Channels+1]
	}
	want := float64(n - (n+6)/7)
	if total != want {
		t.Errorf("expected %v scattered counts, got %v", want, total)
	}
}

func TestTextureAccessors(t *testing.T) {
	dev := New(Options{})
	tex, err := dev.NewTexture("t", 3, 2)
	if err != nil {
		t.Fatalf("allocation failed: %v", err)
	}
	tex.Set(4, [Channels]float64{1, 2, 3, 4})
	if got := tex.Texel(1, 1); got[0] != 1 || got[3] != 4 {
		t.Errorf("Texel(1,1) = %v", got)
	}
	tex.Fill(7)
	if tex.At(0)[2] != 7 {
		t.Error("Fill did not set every channel")
	}
	tex.Clear()
	if tex.At(5)[0] != 0 {
		t.Error("Clear did not zero texels")
	}
}
