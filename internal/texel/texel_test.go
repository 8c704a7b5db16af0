package texel

import "testing"

func TestSide(t *testing.T) {
	tests := []struct {
		count int
		want  int
	}{
		{0, 1},
		{1, 1},
		{2, 2},
		{4, 2},
		{5, 3},
		{9, 3},
		{10, 4},
		{1000000, 1000},
		{1000001, 1001},
	}

	for _, tt := range tests {
		if got := Side(tt.count); got != tt.want {
			t.Errorf("Side(%d) = %d, want %d", tt.count, got, tt.want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, count := range []int{1, 3, 7, 16, 17, 250} {
		side := Side(count)
		for i := 0; i < count; i++ {
			x, y := ToCoord(i, side)
			if x < 0 || x >= side || y < 0 || y >= side {
				t.Fatalf("count=%d: ToCoord(%d) = (%d,%d) outside side %d", count, i, x, y, side)
			}
			if got := ToIndex(x, y, side); got != i {
				t.Errorf("count=%d: ToIndex(ToCoord(%d)) = %d", count, i, got)
			}
		}
	}
}
