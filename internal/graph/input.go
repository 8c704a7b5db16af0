// Package graph turns an externally keyed graph description into the dense,
// index-addressed arrays the simulation consumes, and derives the per-link
// tables (degree, strength, bias, jitter) the spring passes read.
package graph

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/logger"
)

var (
	// ErrDuplicateNode is returned when two nodes share an external id.
	ErrDuplicateNode = errors.New("graph: duplicate node id")
	// ErrEmptyNodeID is returned for a node without an id.
	ErrEmptyNodeID = errors.New("graph: empty node id")
)

// Node is one point of an input graph. Optional attributes are pointers so a
// missing value is distinguishable from zero.
type Node struct {
	ID              string   `json:"id" toml:"id"`
	X               *float64 `json:"x,omitempty" toml:"x"`
	Y               *float64 `json:"y,omitempty" toml:"y"`
	Cluster         *int     `json:"cluster,omitempty" toml:"cluster"`
	ClusterStrength *float64 `json:"cluster_strength,omitempty" toml:"cluster_strength"`
}

// Link is a directed edge between two node ids.
type Link struct {
	Source   string   `json:"source" toml:"source"`
	Target   string   `json:"target" toml:"target"`
	Strength *float64 `json:"strength,omitempty" toml:"strength"`
}

// ClusterTarget pins the cluster force of cluster ID to a fixed position.
type ClusterTarget struct {
	ID int     `json:"id" toml:"id"`
	X  float64 `json:"x" toml:"x"`
	Y  float64 `json:"y" toml:"y"`
}

// Input is a graph keyed by external ids.
type Input struct {
	Nodes    []Node          `json:"nodes" toml:"nodes"`
	Links    []Link          `json:"links" toml:"links"`
	Clusters []ClusterTarget `json:"clusters,omitempty" toml:"clusters"`
}

// Data is a dense graph. Point i is IDs[i]; every optional slice is either nil
// or exactly as long as the thing it annotates.
type Data struct {
	IDs []string

	// Positions are initial positions; nil means random placement.
	Positions []r2.Vec

	Links [][2]int
	// LinkStrength overrides the degree-derived strength per link. NaN entries
	// keep the default for that link.
	LinkStrength []float64

	// PointClusters holds a cluster id per point, -1 for unclustered.
	PointClusters []int
	// ClusterPositions pins cluster ids to fixed targets.
	ClusterPositions map[int]r2.Vec
	// ClusterStrength is the per-point cluster coefficient. NaN means default.
	ClusterStrength []float64
}

// NumPoints returns the number of points.
func (d *Data) NumPoints() int { return len(d.IDs) }

// Index returns a map from external id to dense index.
func (d *Data) Index() map[string]int {
	idx := make(map[string]int, len(d.IDs))
	for i, id := range d.IDs {
		idx[id] = i
	}
	return idx
}

// Compile remaps external ids to dense indices in first-seen node order.
// Links with an unknown endpoint are dropped with a warning. Positions are
// only kept when every node carries both coordinates and they are finite.
// Non-finite strengths fall back to the defaults.
func Compile(in Input) (*Data, error) {
	log := logger.WithComponent("graph")

	d := &Data{IDs: make([]string, 0, len(in.Nodes))}
	index := make(map[string]int, len(in.Nodes))

	positioned := 0
	clustered := false
	strengthened := false
	for i, n := range in.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("node %d: %w", i, ErrEmptyNodeID)
		}
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("node %q: %w", n.ID, ErrDuplicateNode)
		}
		index[n.ID] = len(d.IDs)
		d.IDs = append(d.IDs, n.ID)
		if n.X != nil && n.Y != nil && finite(*n.X) && finite(*n.Y) {
			positioned++
		}
		clustered = clustered || n.Cluster != nil
		strengthened = strengthened || n.ClusterStrength != nil
	}

	switch {
	case positioned == len(in.Nodes) && positioned > 0:
		d.Positions = make([]r2.Vec, len(in.Nodes))
		for i, n := range in.Nodes {
			d.Positions[i] = r2.Vec{X: *n.X, Y: *n.Y}
		}
	case positioned > 0:
		log.Warn("ignoring partial initial positions", "positioned", positioned, "nodes", len(in.Nodes))
	}

	if clustered {
		d.PointClusters = make([]int, len(in.Nodes))
		for i, n := range in.Nodes {
			d.PointClusters[i] = -1
			if n.Cluster != nil && *n.Cluster >= 0 {
				d.PointClusters[i] = *n.Cluster
			}
		}
	}
	if strengthened {
		d.ClusterStrength = make([]float64, len(in.Nodes))
		for i, n := range in.Nodes {
			d.ClusterStrength[i] = math.NaN()
			if n.ClusterStrength != nil && finite(*n.ClusterStrength) {
				d.ClusterStrength[i] = *n.ClusterStrength
			}
		}
	}

	dropped := 0
	hasStrength := false
	d.Links = make([][2]int, 0, len(in.Links))
	strength := make([]float64, 0, len(in.Links))
	for _, l := range in.Links {
		src, okS := index[l.Source]
		dst, okT := index[l.Target]
		if !okS || !okT {
			dropped++
			continue
		}
		d.Links = append(d.Links, [2]int{src, dst})
		if l.Strength != nil && finite(*l.Strength) {
			hasStrength = true
			strength = append(strength, *l.Strength)
		} else {
			strength = append(strength, math.NaN())
		}
	}
	if dropped > 0 {
		log.Warn("dropped links with unknown endpoints", "dropped", dropped)
	}
	if hasStrength {
		d.LinkStrength = strength
	}

	if len(in.Clusters) > 0 {
		d.ClusterPositions = make(map[int]r2.Vec, len(in.Clusters))
		for _, c := range in.Clusters {
			if c.ID < 0 {
				log.Warn("ignoring cluster target with negative id", "cluster", c.ID)
				continue
			}
			if !finite(c.X) || !finite(c.Y) {
				log.Warn("ignoring non-finite cluster target", "cluster", c.ID)
				continue
			}
			d.ClusterPositions[c.ID] = r2.Vec{X: c.X, Y: c.Y}
		}
	}

	return d, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// FilterLinks drops links whose endpoints fall outside [0, n). The strength
// slice, when it matches the link count, is filtered alongside.
func FilterLinks(n int, links [][2]int, strength []float64) ([][2]int, []float64, int) {
	keepStrength := len(strength) == len(links)
	outLinks := make([][2]int, 0, len(links))
	var outStrength []float64
	if keepStrength {
		outStrength = make([]float64, 0, len(links))
	}
	dropped := 0
	for k, l := range links {
		if l[0] < 0 || l[0] >= n || l[1] < 0 || l[1] >= n {
			dropped++
			continue
		}
		outLinks = append(outLinks, l)
		if keepStrength {
			outStrength = append(outStrength, strength[k])
		}
	}
	if !keepStrength {
		outStrength = strength
	}
	return outLinks, outStrength, dropped
}
