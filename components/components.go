// Package components defines the ECS components that make up a cell agent.
package components

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Position is an agent's center in leaf-plane coordinates.
type Position struct {
	r2.Vec
}

// Velocity is an agent's velocity.
type Velocity struct {
	r2.Vec
}

// Force accumulates the net mechanical force on an agent during the
// current step. Zeroed before every force pass.
type Force struct {
	r2.Vec
}

// Body holds the mechanical extent of an agent. Radius is never
// negative and never shrinks while the agent is in StageGrowing.
type Body struct {
	Radius float64
}

// Identity carries the global agent identifier and the lineage seed.
//
// ID is unique for the lifetime of a run and never reused, even after
// removal. Seed roots the agent's random stream; a child's seed is
// derived from its parent's, so stochastic decisions do not depend on
// worker count or iteration order.
type Identity struct {
	ID   uint64
	Seed uint64
}

// Growth tracks where an agent sits in the developmental state machine.
type Growth struct {
	Stage     Stage
	Progress  float64 // accumulated progress within the current stage
	Divisions int     // completed divisions
}
