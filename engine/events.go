package engine

import "github.com/jonaspleyer/cr-trichome/components"

// DivisionEvent records one completed division.
type DivisionEvent struct {
	Parent uint64
	Child  uint64
}

// FateEvent records one stage transition.
type FateEvent struct {
	ID    uint64
	Stage components.Stage
}

// StepResult summarizes one completed simulation step.
type StepResult struct {
	Step       int64   // index of the completed step, starting at 1
	Time       float64 // elapsed simulation time, Step * dt
	AgentCount int

	Divisions        []DivisionEvent
	Differentiations []FateEvent

	SkippedDivisions int // divisions deferred by the bounds check
	Migrations       int // agents handed to a neighboring subdomain
	Inconsistencies  int // invariant violations clamped this step
}
