package engine

import (
	"math"

	"github.com/onnwee/forcegraph/internal/force"
)

// Params are the simulation coefficients. All of them may change at any time.
type Params struct {
	Decay                        float64    `json:"decay" toml:"decay"`
	Friction                     float64    `json:"friction" toml:"friction"`
	Gravity                      float64    `json:"gravity" toml:"gravity"`
	Center                       float64    `json:"center" toml:"center"`
	Repulsion                    float64    `json:"repulsion" toml:"repulsion"`
	RepulsionTheta               float64    `json:"repulsion_theta" toml:"repulsion_theta"`
	UseQuadtree                  bool       `json:"use_quadtree" toml:"use_quadtree"`
	RepulsionQuadtreeLevels      int        `json:"repulsion_quadtree_levels" toml:"repulsion_quadtree_levels"`
	LinkSpring                   float64    `json:"link_spring" toml:"link_spring"`
	LinkDistance                 float64    `json:"link_distance" toml:"link_distance"`
	LinkDistRandomVariationRange [2]float64 `json:"link_dist_random_variation_range" toml:"link_dist_random_variation_range"`
	RepulsionFromMouse           float64    `json:"repulsion_from_mouse" toml:"repulsion_from_mouse"`
	Cluster                      float64    `json:"cluster" toml:"cluster"`
	AlphaTarget                  float64    `json:"alpha_target" toml:"alpha_target"`
	SpaceSize                    float64    `json:"space_size" toml:"space_size"`
	HoverRadius                  float64    `json:"hover_radius" toml:"hover_radius"`
}

// DefaultParams returns the default coefficients.
func DefaultParams() Params {
	return Params{
		Decay:                        1000,
		Friction:                     0.85,
		Gravity:                      0.25,
		Center:                       0,
		Repulsion:                    1,
		RepulsionTheta:               1.7,
		UseQuadtree:                  false,
		RepulsionQuadtreeLevels:      12,
		LinkSpring:                   1,
		LinkDistance:                 10,
		LinkDistRandomVariationRange: [2]float64{1, 1.2},
		RepulsionFromMouse:           2,
		Cluster:                      0.1,
		AlphaTarget:                  0,
		SpaceSize:                    1024,
		HoverRadius:                  3,
	}
}

// decayRate is the fraction of the gap to alphaTarget closed per tick.
func (p Params) decayRate() float64 {
	decay := p.Decay
	if !(decay > 0) || math.IsInf(decay, 0) {
		decay = DefaultParams().Decay
	}
	return 1 - math.Pow(AlphaMin, 1/decay)
}

func (p Params) repulsion() force.RepulsionParams {
	return force.RepulsionParams{
		Repulsion:   p.Repulsion,
		Theta:       p.RepulsionTheta,
		UseQuadtree: p.UseQuadtree,
		MaxDepth:    p.RepulsionQuadtreeLevels,
	}
}

func (p Params) spring() force.SpringParams {
	lo, hi := p.LinkDistRandomVariationRange[0], p.LinkDistRandomVariationRange[1]
	if hi < lo {
		lo, hi = hi, lo
	}
	return force.SpringParams{
		LinkSpring:   p.LinkSpring,
		LinkDistance: p.LinkDistance,
		MinVariation: lo,
		MaxVariation: hi,
	}
}
