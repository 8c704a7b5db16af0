package graph

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"
)

func ptr[T any](v T) *T { return &v }

func TestCompileRemapsIDs(t *testing.T) {
	in := Input{
		Nodes: []Node{{ID: "c"}, {ID: "a"}, {ID: "b"}},
		Links: []Link{
			{Source: "a", Target: "b"},
			{Source: "b", Target: "missing"},
			{Source: "c", Target: "a", Strength: ptr(0.5)},
		},
	}

	d, err := Compile(in)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a", "b"}, d.IDs)
	assert.Equal(t, [][2]int{{1, 2}, {0, 1}}, d.Links)
	require.Len(t, d.LinkStrength, 2)
	assert.True(t, math.IsNaN(d.LinkStrength[0]))
	assert.Equal(t, 0.5, d.LinkStrength[1])
	assert.Nil(t, d.Positions, "no node carried a position")
	assert.Nil(t, d.PointClusters)
	assert.Equal(t, 1, d.Index()["a"])
}

func TestCompileOptionalAttributes(t *testing.T) {
	in := Input{
		Nodes: []Node{
			{ID: "a", X: ptr(1.0), Y: ptr(2.0), Cluster: ptr(3)},
			{ID: "b", X: ptr(4.0), Y: ptr(5.0), ClusterStrength: ptr(0.25)},
		},
		Clusters: []ClusterTarget{{ID: 3, X: 10, Y: 20}, {ID: -1}},
	}

	d, err := Compile(in)
	require.NoError(t, err)

	assert.Equal(t, []r2.Vec{{X: 1, Y: 2}, {X: 4, Y: 5}}, d.Positions)
	assert.Equal(t, []int{3, -1}, d.PointClusters)
	assert.True(t, math.IsNaN(d.ClusterStrength[0]))
	assert.Equal(t, 0.25, d.ClusterStrength[1])
	assert.Equal(t, map[int]r2.Vec{3: {X: 10, Y: 20}}, d.ClusterPositions)
}

func TestCompileNonFiniteInputsFallBack(t *testing.T) {
	in := Input{
		Nodes: []Node{
			{ID: "a", X: ptr(math.NaN()), Y: ptr(2.0), ClusterStrength: ptr(math.Inf(1))},
			{ID: "b", X: ptr(4.0), Y: ptr(5.0), Cluster: ptr(1)},
		},
		Links:    []Link{{Source: "a", Target: "b", Strength: ptr(math.Inf(-1))}},
		Clusters: []ClusterTarget{{ID: 1, X: math.Inf(1), Y: 0}},
	}

	d, err := Compile(in)
	require.NoError(t, err)

	assert.Nil(t, d.Positions, "a NaN coordinate must drop initial positions")
	assert.True(t, math.IsNaN(d.ClusterStrength[0]))
	assert.Nil(t, d.LinkStrength)
	assert.Empty(t, d.ClusterPositions)
}

func TestCompilePartialPositionsIgnored(t *testing.T) {
	d, err := Compile(Input{Nodes: []Node{{ID: "a", X: ptr(1.0), Y: ptr(1.0)}, {ID: "b"}}})
	require.NoError(t, err)
	assert.Nil(t, d.Positions)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(Input{Nodes: []Node{{ID: "a"}, {ID: "a"}}})
	assert.ErrorIs(t, err, ErrDuplicateNode)

	_, err = Compile(Input{Nodes: []Node{{ID: ""}}})
	assert.ErrorIs(t, err, ErrEmptyNodeID)
}

func TestFilterLinks(t *testing.T) {
	links := [][2]int{{0, 1}, {1, 5}, {-1, 0}, {2, 0}}
	strength := []float64{1, 2, 3, 4}

	out, str, dropped := FilterLinks(3, links, strength)
	assert.Equal(t, 2, dropped)
	assert.Equal(t, [][2]int{{0, 1}, {2, 0}}, out)
	assert.Equal(t, []float64{1, 4}, str)

	// A mismatched override is passed through untouched.
	_, str, _ = FilterLinks(3, links, []float64{1})
	assert.Equal(t, []float64{1}, str)
}

func TestDegrees(t *testing.T) {
	deg := Degrees(4, [][2]int{{0, 1}, {0, 2}, {3, 3}})
	assert.Equal(t, []int{2, 1, 1, 2}, deg)
}

func TestBuildAdjacencyCountsSumToLinks(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 50
	links := make([][2]int, 0, 200)
	for k := 0; k < 200; k++ {
		links = append(links, [2]int{rng.Intn(n), rng.Intn(n)})
	}

	out, in := BuildAdjacency(n, links, nil, rand.New(rand.NewSource(1)))
	for _, a := range []*Adjacency{out, in} {
		sum, maxCount := 0, 0
		for p := 0; p < n; p++ {
			sum += a.Counts[p]
			maxCount = max(maxCount, a.Counts[p])
			if p > 0 {
				assert.Equal(t, a.Offsets[p-1]+a.Counts[p-1], a.Offsets[p], "offsets must be contiguous")
			}
		}
		assert.Equal(t, len(links), sum, "%s counts", a.Direction)
		assert.Equal(t, maxCount, a.MaxDegree)
	}
}

func TestBuildAdjacencyNeighbors(t *testing.T) {
	// 0 -> 1, 0 -> 2, 2 -> 1
	links := [][2]int{{0, 1}, {0, 2}, {2, 1}}
	out, in := BuildAdjacency(3, links, []float64{0.3, math.NaN(), -1}, rand.New(rand.NewSource(1)))

	require.Len(t, out.Of(0), 2)
	assert.Equal(t, 1, out.Of(0)[0].Index)
	assert.Equal(t, 0, out.Of(0)[0].LinkIndex)
	assert.Equal(t, 0.3, out.Of(0)[0].Strength)
	assert.Empty(t, out.Of(1))
	assert.Equal(t, 2, out.MaxDegree)

	// deg = [2, 2, 2]; NaN and negative overrides use sqrt(1/2)
	assert.InDelta(t, math.Sqrt(0.5), out.Of(0)[1].Strength, 1e-12)
	assert.InDelta(t, math.Sqrt(0.5), out.Of(2)[0].Strength, 1e-12)

	// Incoming table of point 1 holds sources 0 and 2 in link order.
	require.Len(t, in.Of(1), 2)
	assert.Equal(t, 0, in.Of(1)[0].Index)
	assert.Equal(t, 2, in.Of(1)[1].Index)

	// Jitter is shared by both directions of a link.
	assert.Equal(t, out.Of(0)[0].Jitter, in.Of(1)[0].Jitter)
	assert.Equal(t, out.Of(2)[0].Jitter, in.Of(1)[1].Jitter)
}

func TestBuildAdjacencyBias(t *testing.T) {
	// star: 0 is the hub with degree 3
	links := [][2]int{{0, 1}, {0, 2}, {0, 3}}
	out, in := BuildAdjacency(4, links, nil, rand.New(rand.NewSource(1)))

	// Leaf 1 is pulled by the heavy hub: bias = deg(0)/(deg(0)+deg(1)) = 3/4.
	assert.InDelta(t, 0.75, in.Of(1)[0].Bias, 1e-12)
	// The hub moves less toward the leaf.
	assert.InDelta(t, 0.25, out.Of(0)[0].Bias, 1e-12)
	assert.InDelta(t, 1.0, out.Of(0)[0].Bias+in.Of(1)[0].Bias, 1e-12)
}

func TestBuildAdjacencyMismatchedStrength(t *testing.T) {
	links := [][2]int{{0, 1}}
	out, _ := BuildAdjacency(2, links, []float64{0.1, 0.2}, rand.New(rand.NewSource(1)))
	assert.Equal(t, 1.0, out.Of(0)[0].Strength)
}

func TestBuildAdjacencyDeterministic(t *testing.T) {
	links := [][2]int{{0, 1}, {1, 2}, {2, 0}}
	a, _ := BuildAdjacency(3, links, nil, rand.New(rand.NewSource(42)))
	b, _ := BuildAdjacency(3, links, nil, rand.New(rand.NewSource(42)))
	assert.Equal(t, a, b)
	for _, nb := range a.Neighbors {
		assert.GreaterOrEqual(t, nb.Jitter, 0.0)
		assert.Less(t, nb.Jitter, 1.0)
	}
}

func TestFingerprints(t *testing.T) {
	links := [][2]int{{0, 1}, {1, 2}}
	base := LinksFingerprint(links, nil)

	assert.Equal(t, base, LinksFingerprint([][2]int{{0, 1}, {1, 2}}, nil))
	assert.NotEqual(t, base, LinksFingerprint([][2]int{{1, 0}, {1, 2}}, nil))
	assert.NotEqual(t, base, LinksFingerprint(links, []float64{1, 1}))

	targets := map[int]r2.Vec{1: {X: 1, Y: 2}, 0: {X: 3, Y: 4}}
	c := ClustersFingerprint([]int{0, 1}, targets, nil)
	assert.Equal(t, c, ClustersFingerprint([]int{0, 1}, map[int]r2.Vec{0: {X: 3, Y: 4}, 1: {X: 1, Y: 2}}, nil))
	assert.NotEqual(t, c, ClustersFingerprint([]int{1, 0}, targets, nil))
	assert.NotEqual(t, c, ClustersFingerprint([]int{0, 1}, targets, []float64{0.5, 0.5}))
}
