// Package growth decides how cell agents grow, divide, and
// differentiate. It is pure decision logic: the engine owns the agents
// and applies the decisions.
package growth

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
)

// View is the read-only picture of one agent handed to the rules.
type View struct {
	ID        uint64
	Pos       r2.Vec
	Radius    float64
	Stage     components.Stage
	Progress  float64
	Divisions int
	Crowd     int // neighbors within the crowding radius
}

// RateRule returns the radius growth rate for a growing agent. The
// controller treats negative rates as zero: a growing cell never
// shrinks.
type RateRule func(v View) float64

// DivideRule decides whether a growing agent divides this step and
// along which unit axis. Randomness must come only from rng, which is
// seeded per agent and step.
type DivideRule func(v View, rng *rand.Rand) (axis r2.Vec, ok bool)

// FateRule picks the terminal stage for an agent that has finished
// differentiating. It must return StageMature or StageTrichomeTip;
// anything else leaves the agent differentiating.
type FateRule func(v View, rng *rand.Rand) components.Stage

// Rules bundles the pluggable growth strategy with the two fixed
// thresholds of the stage machine.
type Rules struct {
	Rate   RateRule
	Divide DivideRule
	Fate   FateRule

	Differentiate float64 // progress at which a growing cell starts differentiating
	DwellTime     float64 // time spent differentiating before the fate call
}

// DefaultRules builds the standard rule set from configuration:
// crowding-limited growth, threshold division with a random axis, and
// a probabilistic trichome fate with an optional forced leaf-margin
// band.
func DefaultRules(cfg *config.Config) Rules {
	g := cfg.Growth
	dom := cfg.Domain

	return Rules{
		Differentiate: g.DifferentiationProgress,
		DwellTime:     g.DwellTime,

		Rate: func(v View) float64 {
			if v.Radius >= g.MaxRadius {
				return 0
			}
			rate := g.Rate
			if v.Crowd > g.CrowdThreshold {
				span := g.CrowdSaturation - g.CrowdThreshold
				if span <= 0 {
					return 0
				}
				f := 1 - float64(v.Crowd-g.CrowdThreshold)/float64(span)
				if f < 0 {
					f = 0
				}
				rate *= f
			}
			return rate
		},

		Divide: func(v View, rng *rand.Rand) (r2.Vec, bool) {
			if v.Stage != components.StageGrowing {
				return r2.Vec{}, false
			}
			if v.Radius < g.DivisionRadius || v.Progress < g.DivisionProgress {
				return r2.Vec{}, false
			}
			theta := 2 * math.Pi * rng.Float64()
			return r2.Vec{X: math.Cos(theta), Y: math.Sin(theta)}, true
		},

		Fate: func(v View, rng *rand.Rand) components.Stage {
			if g.MarginWidth > 0 {
				edge := math.Min(
					math.Min(v.Pos.X, dom.Width-v.Pos.X),
					math.Min(v.Pos.Y, dom.Height-v.Pos.Y),
				)
				if edge < g.MarginWidth {
					return components.StageTrichomeTip
				}
			}
			if rng.Float64() < g.TipProbability {
				return components.StageTrichomeTip
			}
			return components.StageMature
		},
	}
}
