package graph

import (
	"encoding/binary"
	"math"
	"sort"

	"github.com/cespare/xxhash/v2"
	"gonum.org/v1/gonum/spatial/r2"
)

type hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

func newHasher() *hasher { return &hasher{d: xxhash.New()} }

func (h *hasher) int(v int) {
	binary.LittleEndian.PutUint64(h.buf[:], uint64(int64(v)))
	_, _ = h.d.Write(h.buf[:])
}

func (h *hasher) float(v float64) {
	binary.LittleEndian.PutUint64(h.buf[:], math.Float64bits(v))
	_, _ = h.d.Write(h.buf[:])
}

// LinksFingerprint hashes a link set and its strength overrides. Two calls
// return the same value exactly when the adjacency tables built from the
// inputs would be identical.
func LinksFingerprint(links [][2]int, strength []float64) uint64 {
	h := newHasher()
	h.int(len(links))
	for _, l := range links {
		h.int(l[0])
		h.int(l[1])
	}
	h.int(len(strength))
	for _, s := range strength {
		h.float(s)
	}
	return h.d.Sum64()
}

// ClustersFingerprint hashes cluster assignments, pinned targets and per-point
// coefficients.
func ClustersFingerprint(clusters []int, targets map[int]r2.Vec, strength []float64) uint64 {
	h := newHasher()
	h.int(len(clusters))
	for _, c := range clusters {
		h.int(c)
	}

	ids := make([]int, 0, len(targets))
	for id := range targets {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	h.int(len(ids))
	for _, id := range ids {
		h.int(id)
		h.float(targets[id].X)
		h.float(targets[id].Y)
	}

	h.int(len(strength))
	for _, s := range strength {
		h.float(s)
	}
	return h.d.Sum64()
}
