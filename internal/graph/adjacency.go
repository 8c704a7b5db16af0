package graph

import (
	"math"
	"math/rand"

	"github.com/onnwee/forcegraph/internal/logger"
)

// Direction selects which endpoint of a link a table is grouped by.
type Direction int

const (
	// Outgoing groups links by source; neighbors are targets.
	Outgoing Direction = iota
	// Incoming groups links by target; neighbors are sources.
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Neighbor is one slot of a flattened neighbor table.
type Neighbor struct {
	Index     int     // neighbor point
	LinkIndex int     // original link index
	Bias      float64 // share of the pull applied to the fixed endpoint
	Strength  float64
	Jitter    float64 // min-distance variation factor in [0,1)
}

// Adjacency is the neighbor table of one direction. Point p's neighbors are
// Neighbors[Offsets[p] : Offsets[p]+Counts[p]].
type Adjacency struct {
	Direction Direction
	Offsets   []int
	Counts    []int
	Neighbors []Neighbor
	MaxDegree int
}

// Of returns the neighbor slots of point p.
func (a *Adjacency) Of(p int) []Neighbor {
	o := a.Offsets[p]
	return a.Neighbors[o : o+a.Counts[p]]
}

// Degrees counts link incidence per point in both directions. A self loop
// counts twice.
func Degrees(n int, links [][2]int) []int {
	deg := make([]int, n)
	for _, l := range links {
		deg[l[0]]++
		deg[l[1]]++
	}
	return deg
}

// DefaultStrength is the degree-derived link strength sqrt(1/min(deg)).
func DefaultStrength(degSrc, degDst int) float64 {
	m := min(degSrc, degDst)
	if m <= 0 {
		return 1
	}
	return math.Sqrt(1 / float64(m))
}

// BuildAdjacency builds the outgoing and incoming neighbor tables. Every link
// must reference points in [0, n). One jitter value per link is drawn from rng
// in link order, so both directions see the same value for a link.
//
// A strength override whose length differs from len(links) is ignored. NaN or
// negative entries fall back to the degree default for that link.
func BuildAdjacency(n int, links [][2]int, strength []float64, rng *rand.Rand) (out, in *Adjacency) {
	if strength != nil && len(strength) != len(links) {
		logger.WithComponent("graph").Warn("link strength length mismatch, using degree defaults",
			"strengths", len(strength), "links", len(links))
		strength = nil
	}

	deg := Degrees(n, links)
	jitter := make([]float64, len(links))
	str := make([]float64, len(links))
	for k, l := range links {
		jitter[k] = rng.Float64()
		str[k] = DefaultStrength(deg[l[0]], deg[l[1]])
		if strength != nil {
			if s := strength[k]; !math.IsNaN(s) && s >= 0 && !math.IsInf(s, 0) {
				str[k] = s
			}
		}
	}

	out = group(Outgoing, n, links, deg, str, jitter)
	in = group(Incoming, n, links, deg, str, jitter)
	return out, in
}

// group is a stable counting sort of links by their fixed endpoint.
func group(dir Direction, n int, links [][2]int, deg []int, str, jitter []float64) *Adjacency {
	fixed, other := 0, 1
	if dir == Incoming {
		fixed, other = 1, 0
	}

	a := &Adjacency{
		Direction: dir,
		Offsets:   make([]int, n),
		Counts:    make([]int, n),
		Neighbors: make([]Neighbor, len(links)),
	}
	for _, l := range links {
		a.Counts[l[fixed]]++
	}
	off := 0
	for p := 0; p < n; p++ {
		a.Offsets[p] = off
		off += a.Counts[p]
		a.MaxDegree = max(a.MaxDegree, a.Counts[p])
	}

	cursor := make([]int, n)
	copy(cursor, a.Offsets)
	for k, l := range links {
		p, q := l[fixed], l[other]
		a.Neighbors[cursor[p]] = Neighbor{
			Index:     q,
			LinkIndex: k,
			Bias:      float64(deg[q]) / float64(deg[l[0]]+deg[l[1]]),
			Strength:  str[k],
			Jitter:    jitter[k],
		}
		cursor[p]++
	}
	return a
}
