package engine

import "fmt"

// State is the lifecycle state of an engine.
type State int

const (
	Idle State = iota
	Running
	Paused
	Converged
	Destroyed
)

var stateNames = [...]string{"idle", "running", "paused", "converged", "destroyed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// TickEvent is passed to OnTick after every tick.
type TickEvent struct {
	Tick     uint64  `json:"tick"`
	Alpha    float64 `json:"alpha"`
	Progress float64 `json:"progress"`
	// Hovered is the point under the pointer, or -1.
	Hovered int `json:"hovered"`
}

// Callbacks are invoked outside the engine lock, so they may call back into
// the engine. Nil callbacks are skipped.
type Callbacks struct {
	OnStart   func()
	OnTick    func(TickEvent)
	OnPause   func()
	OnRestart func()
	OnEnd     func()
}

// Stats is a snapshot of the engine for metrics and status endpoints.
type Stats struct {
	State    State   `json:"state"`
	Alpha    float64 `json:"alpha"`
	Progress float64 `json:"progress"`
	Tick     uint64  `json:"tick"`
	Points   int     `json:"points"`
	Links    int     `json:"links"`
	Clusters int     `json:"clusters"`

	DeviceTextures int   `json:"device_textures"`
	DeviceBytes    int64 `json:"device_bytes"`
}
