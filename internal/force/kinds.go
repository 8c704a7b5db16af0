// Package force holds the per-tick passes of the simulation: the level
// pyramid and centroid aggregates, and one kernel per force kind. Every
// kernel reads the current position buffer and adds into the velocity
// buffer's own texel, so passes never observe each other's writes to
// positions.
package force

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/onnwee/forcegraph/internal/device"
)

// Kind identifies one force pass.
type Kind int

const (
	Repulsion Kind = iota
	SpringOutgoing
	SpringIncoming
	Gravity
	Center
	Pointer
	Cluster
)

var kindNames = [...]string{
	Repulsion:      "repulsion",
	SpringOutgoing: "spring_outgoing",
	SpringIncoming: "spring_incoming",
	Gravity:        "gravity",
	Center:         "center",
	Pointer:        "pointer",
	Cluster:        "cluster",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// Valid reports whether k names a known pass.
func (k Kind) Valid() bool { return k >= 0 && int(k) < len(kindNames) }

// ParseKind maps a name such as "spring_outgoing" to its Kind.
func ParseKind(s string) (Kind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown force kind %q", s)
}

// DefaultOrder is the pass order of a tick.
func DefaultOrder() []Kind {
	return []Kind{Repulsion, SpringOutgoing, SpringIncoming, Gravity, Center, Pointer, Cluster}
}

// RepulsionParams configures the many-body pass.
type RepulsionParams struct {
	Repulsion   float64
	Theta       float64
	UseQuadtree bool
	// MaxDepth bounds the quadtree descent. It is capped by the level count.
	MaxDepth int
}

// SpringParams configures both link passes.
type SpringParams struct {
	LinkSpring   float64
	LinkDistance float64
	// MinVariation and MaxVariation scale LinkDistance per link by a jitter
	// factor drawn when the adjacency is built.
	MinVariation float64
	MaxVariation float64
}

// GravityParams pulls every point toward the centre of the space.
type GravityParams struct {
	Gravity float64
}

// CenterParams pulls every point toward the live centroid of all points.
type CenterParams struct {
	Center float64
}

// PointerParams pushes points away from the pointer while it is engaged.
type PointerParams struct {
	RepulsionFromMouse float64
	Position           r2.Vec
	Engaged            bool
}

// ClusterParams pulls clustered points toward their cluster target.
type ClusterParams struct {
	Cluster float64
}

// Buffers are the per-tick inputs shared by every pass. Positions is read
// only for the whole tick.
type Buffers struct {
	N         int
	Positions *device.Texture
	Velocity  *device.Texture
	// Random holds a fixed per-point offset in channels 0 and 1, used as a
	// direction when two bodies coincide.
	Random *device.Texture
}

func (b Buffers) position(i int) r2.Vec {
	t := b.Positions.At(i)
	return r2.Vec{X: t[0], Y: t[1]}
}

func (b Buffers) addVelocity(i int, v r2.Vec) {
	t := b.Velocity.At(i)
	t[0] += v.X
	t[1] += v.Y
}

// jitterDirection returns the unit direction stored for point i.
func (b Buffers) jitterDirection(i int) r2.Vec {
	t := b.Random.At(i)
	v := r2.Vec{X: t[0], Y: t[1]}
	n := r2.Norm(v)
	if n == 0 {
		return r2.Vec{X: 1}
	}
	return r2.Scale(1/n, v)
}
