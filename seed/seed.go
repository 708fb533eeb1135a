// Package seed builds initial cell populations. The standard initial
// condition is a hexagonal patch of growing cells centered in the leaf,
// with simplex-noise jitter so the lattice is not perfectly regular.
package seed

import (
	"math"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
)

// hexY is the row spacing of a unit hexagonal lattice.
var hexY = math.Sqrt(3) / 2

// Count returns the number of cells in a hexagonal patch with the given
// ring count: the center cell plus rings of 6r cells each.
func Count(rings int) int {
	if rings < 0 {
		return 0
	}
	return 1 + 3*rings*(rings+1)
}

// Hexagonal generates the seed population from configuration: all
// lattice sites within cfg.Seeding.Rings of the center, axial
// coordinates mapped to the plane at cfg.Seeding.Spacing, jittered by
// two independent noise fields. IDs are left unassigned for the engine
// to fill in; the jitter fields derive from the run seed so the same
// configuration always yields the same population.
func Hexagonal(cfg *config.Config) []components.AgentState {
	s := cfg.Seeding
	cx := cfg.Domain.Width / 2
	cy := cfg.Domain.Height / 2

	noiseX := opensimplex.NewNormalized(int64(cfg.Simulation.Seed))
	noiseY := opensimplex.NewNormalized(int64(cfg.Simulation.Seed) + 1)
	freq := 1.0
	if s.Spacing > 0 {
		freq = 1 / (2 * s.Spacing)
	}

	states := make([]components.AgentState, 0, Count(s.Rings))
	for q := -s.Rings; q <= s.Rings; q++ {
		for r := -s.Rings; r <= s.Rings; r++ {
			if hexDist(q, r) > s.Rings {
				continue
			}

			x := cx + s.Spacing*(float64(q)+float64(r)/2)
			y := cy + s.Spacing*hexY*float64(r)

			if s.Jitter > 0 {
				amp := s.Jitter * s.Spacing
				x += amp * (2*noiseX.Eval2(x*freq, y*freq) - 1)
				y += amp * (2*noiseY.Eval2(x*freq, y*freq) - 1)
			}

			// Jitter never pushes a cell out of the leaf.
			x = clamp(x, 0, cfg.Domain.Width)
			y = clamp(y, 0, cfg.Domain.Height)

			states = append(states, components.AgentState{
				X: x, Y: y,
				Radius: s.Radius,
				Stage:  components.StageGrowing,
			})
		}
	}
	return states
}

// hexDist is the hex ring index of axial (q, r): the largest absolute
// cube coordinate.
func hexDist(q, r int) int {
	d := abs(q)
	if a := abs(r); a > d {
		d = a
	}
	if a := abs(-q - r); a > d {
		d = a
	}
	return d
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
