package graph

import (
	"math/rand"
	"sort"

	"github.com/onnwee/forcegraph/internal/logger"
)

// CommunityResult holds the result of community detection
type CommunityResult struct {
	// Assignments maps each point to a dense community id in [0, Count).
	Assignments []int
	Count       int
	Modularity  float64
}

type weightedEdge struct {
	to     int
	weight int
}

// undirected collapses directed links into a weighted undirected adjacency.
// Self loops are dropped. Neighbor lists are sorted by point index.
func undirected(n int, links [][2]int) ([][]weightedEdge, []int, int) {
	weights := make([]map[int]int, n)
	degrees := make([]int, n)
	total := 0
	for _, l := range links {
		src, tgt := l[0], l[1]
		if src == tgt {
			continue
		}
		if weights[src] == nil {
			weights[src] = make(map[int]int)
		}
		if weights[tgt] == nil {
			weights[tgt] = make(map[int]int)
		}
		weights[src][tgt]++
		weights[tgt][src]++
		degrees[src]++
		degrees[tgt]++
		total++
	}

	adjacency := make([][]weightedEdge, n)
	for p, m := range weights {
		edges := make([]weightedEdge, 0, len(m))
		for q, w := range m {
			edges = append(edges, weightedEdge{to: q, weight: w})
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i].to < edges[j].to })
		adjacency[p] = edges
	}
	return adjacency, degrees, total
}

// DetectCommunities performs Louvain local-moving community detection on the
// undirected view of links. Node visiting order is shuffled with rng, so a
// fixed seed gives a fixed result.
func DetectCommunities(n int, links [][2]int, rng *rand.Rand) CommunityResult {
	log := logger.WithComponent("graph")
	if n == 0 {
		return CommunityResult{Assignments: []int{}}
	}

	adjacency, degrees, totalWeight := undirected(n, links)

	// Initialize each node to its own community
	community := make([]int, n)
	communityDegree := make([]int, n)
	for i := range community {
		community[i] = i
		communityDegree[i] = degrees[i]
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}

	improved := true
	iteration := 0
	maxIterations := 50
	weightTo := make([]int, n)

	for improved && iteration < maxIterations && totalWeight > 0 {
		improved = false
		iteration++

		rng.Shuffle(len(order), func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})

		for _, p := range order {
			current := community[p]

			// Weight from p into each neighboring community, in first-seen order
			neighborComms := candidates(adjacency[p], community, weightTo)

			bestCommunity := current
			bestGain := 0.0
			for _, target := range neighborComms {
				if target == current {
					continue
				}
				gain := modularityGain(degrees[p], weightTo[target], weightTo[current],
					communityDegree[target], communityDegree[current]-degrees[p], totalWeight)
				if gain > bestGain {
					bestGain = gain
					bestCommunity = target
				}
			}
			for _, c := range neighborComms {
				weightTo[c] = 0
			}

			// Move to best community if improvement found
			if bestCommunity != current {
				communityDegree[current] -= degrees[p]
				communityDegree[bestCommunity] += degrees[p]
				community[p] = bestCommunity
				improved = true
			}
		}
		log.Debug("louvain iteration", "iteration", iteration, "improved", improved)
	}

	count := renumber(community)
	modularity := calculateModularity(community, adjacency, degrees, totalWeight)
	log.Info("community detection complete", "points", n, "communities", count, "modularity", modularity)

	return CommunityResult{
		Assignments: community,
		Count:       count,
		Modularity:  modularity,
	}
}

// candidates fills weightTo with the edge weight from a node into each
// neighboring community and returns those communities in first-seen order.
func candidates(edges []weightedEdge, community, weightTo []int) []int {
	seen := make([]int, 0, len(edges))
	for _, e := range edges {
		c := community[e.to]
		if weightTo[c] == 0 {
			seen = append(seen, c)
		}
		weightTo[c] += e.weight
	}
	return seen
}

// modularityGain returns a value proportional to the modularity change of
// moving a node with degree k out of its community (total degree sumFrom,
// node excluded) into another (total degree sumTo).
func modularityGain(k, weightTo, weightFrom, sumTo, sumFrom, totalWeight int) float64 {
	if totalWeight == 0 {
		return 0
	}
	m2 := float64(2 * totalWeight)
	return float64(weightTo-weightFrom)/m2 -
		float64(k)*float64(sumTo-sumFrom)/(m2*m2)
}

// renumber rewrites community ids to be sequential in first-seen point order
// and returns the number of communities.
func renumber(community []int) int {
	remap := make(map[int]int)
	for i, c := range community {
		id, ok := remap[c]
		if !ok {
			id = len(remap)
			remap[c] = id
		}
		community[i] = id
	}
	return len(remap)
}

// calculateModularity calculates the modularity of the current community structure
func calculateModularity(community []int, adjacency [][]weightedEdge, degrees []int, totalWeight int) float64 {
	if totalWeight == 0 {
		return 0
	}

	modularity := 0.0
	m2 := float64(2 * totalWeight)
	for p, edges := range adjacency {
		for _, e := range edges {
			if community[p] == community[e.to] {
				modularity += float64(e.weight)
			}
		}
	}

	sums := make([]float64, len(community))
	for p, c := range community {
		sums[c] += float64(degrees[p])
	}
	for _, s := range sums {
		modularity -= s * s / m2
	}
	return modularity / m2
}
