package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/onnwee/forcegraph/internal/engine"
	"github.com/onnwee/forcegraph/internal/force"
	"github.com/onnwee/forcegraph/internal/graph"
	"github.com/onnwee/forcegraph/internal/logger"
)

// ErrEmptyScenario is returned for a scenario without nodes.
var ErrEmptyScenario = errors.New("scenario has no nodes")

// Scenario is a graph plus simulation settings loaded from a TOML file:
//
//	seed = 7
//	max_ticks = 5000
//	forces = ["repulsion", "spring_outgoing", "spring_incoming", "gravity"]
//
//	[params]
//	link_distance = 15
//
//	[[graph.nodes]]
//	id = "a"
//
//	[[graph.links]]
//	source = "a"
//	target = "b"
//
// Params not present in the file keep their defaults.
type Scenario struct {
	Seed        int64         `toml:"seed"`
	MaxTicks    int           `toml:"max_ticks"`
	AutoCluster bool          `toml:"auto_cluster"`
	Forces      []string      `toml:"forces"`
	Params      engine.Params `toml:"params"`
	Graph       graph.Input   `toml:"graph"`
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	sc := &Scenario{Params: engine.DefaultParams()}
	md, err := toml.DecodeFile(path, sc)
	if err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logger.Warn("ignoring unknown scenario keys", "path", path, "keys", strings.Join(keys, ","))
	}
	if len(sc.Graph.Nodes) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyScenario)
	}
	return sc, nil
}

// ForceOrder resolves the scenario's pass order. Nil selects the default.
func (sc *Scenario) ForceOrder() []force.Kind {
	if order := parseForces(sc.Forces); len(order) > 0 {
		return order
	}
	return nil
}

// EngineOptions returns engine options for the scenario.
func (sc *Scenario) EngineOptions() engine.Options {
	return engine.Options{
		Seed:        sc.Seed,
		AutoCluster: sc.AutoCluster,
		Forces:      sc.ForceOrder(),
	}
}
