package engine

import (
	"errors"
	"fmt"
)

// ErrConfiguration wraps every configuration problem surfaced by New:
// a non-positive dt, a voxel smaller than the interaction reach, an
// empty or out-of-bounds seed population, an invalid worker count.
var ErrConfiguration = errors.New("engine: invalid configuration")

// InconsistencyError reports an agent observed in a state the engine's
// invariants forbid: outside every subdomain after migration, or with
// a negative radius after a step. In production runs the engine clamps
// the agent, logs, and counts the event; with simulation.debug set the
// step returns this error instead.
type InconsistencyError struct {
	Step  int64
	Agent uint64
	Issue string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("engine: state inconsistency at step %d, agent %d: %s", e.Step, e.Agent, e.Issue)
}
