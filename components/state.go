package components

import "gonum.org/v1/gonum/spatial/r2"

// AgentState is the plain serialized view of one agent. It is the unit
// of seeding, snapshots, ghost copies, and cross-subdomain hand-off.
type AgentState struct {
	ID        uint64  `json:"id"`
	Seed      uint64  `json:"seed,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	VX        float64 `json:"vx"`
	VY        float64 `json:"vy"`
	Radius    float64 `json:"radius"`
	Stage     Stage   `json:"stage"`
	Progress  float64 `json:"progress"`
	Divisions int     `json:"divisions,omitempty"`
}

// Pos returns the position as a vector.
func (s AgentState) Pos() r2.Vec {
	return r2.Vec{X: s.X, Y: s.Y}
}

// Vel returns the velocity as a vector.
func (s AgentState) Vel() r2.Vec {
	return r2.Vec{X: s.VX, Y: s.VY}
}
