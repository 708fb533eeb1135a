package growth

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jonaspleyer/cr-trichome/components"
)

// Decision is the outcome of stepping one agent through the growth
// state machine. Radius, Progress, and Stage are the new values; when
// Divide is set the engine splits the agent along Axis.
type Decision struct {
	Radius   float64
	Progress float64
	Stage    components.Stage
	Divide   bool
	Axis     r2.Vec
}

// Step advances one agent by dt through the growth state machine and
// returns the resulting decision. It never moves a stage backward and
// never shrinks a growing agent's radius.
func Step(v View, rules Rules, rng *rand.Rand, dt float64) Decision {
	d := Decision{Radius: v.Radius, Progress: v.Progress, Stage: v.Stage}

	switch v.Stage {
	case components.StageGrowing:
		rate := rules.Rate(v)
		if rate < 0 {
			rate = 0
		}
		d.Radius = v.Radius + rate*dt
		d.Progress = v.Progress + rate*dt

		if rules.Divide != nil {
			if axis, ok := rules.Divide(v, rng); ok {
				d.Divide = true
				d.Axis = axis
				// Division preempts differentiation for this step.
				return d
			}
		}

		if rules.Differentiate > 0 && d.Progress >= rules.Differentiate {
			d.Stage = components.StageDifferentiating
			d.Progress = 0
		}

	case components.StageDifferentiating:
		d.Progress = v.Progress + dt
		if d.Progress >= rules.DwellTime && rules.Fate != nil {
			fate := rules.Fate(v, rng)
			if v.Stage.CanTransition(fate) {
				d.Stage = fate
				d.Progress = 0
			}
		}

	default:
		// Terminal stages do not change.
	}

	return d
}

// Placement is one post-division body.
type Placement struct {
	Pos    r2.Vec
	Radius float64
}

// Split returns the parent's and child's post-division placements. The
// two bodies sit on opposite sides of the original center along axis,
// offset by half the parent radius each, and their areas sum to the
// parent's.
func Split(pos r2.Vec, radius float64, axis r2.Vec) (parent, child Placement) {
	r := radius / math.Sqrt2
	offset := axis.Scale(radius / 2)
	parent = Placement{Pos: pos.Add(offset), Radius: r}
	child = Placement{Pos: pos.Sub(offset), Radius: r}
	return parent, child
}
