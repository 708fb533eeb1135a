// Package force defines the pairwise mechanical interaction between
// cell agents.
package force

import (
	"gonum.org/v1/gonum/spatial/r2"
)

// Particle is the minimal view of an agent the law needs.
type Particle struct {
	Pos    r2.Vec
	Radius float64
}

// Law computes the force one agent exerts on another. Pairwise returns
// the force acting on a; the engine applies the exact negation to b, so
// momentum is conserved for every isolated pair by construction. Laws
// must be antisymmetric and finite for all inputs, including coincident
// centers.
type Law interface {
	// Pairwise returns the force on a due to b.
	Pairwise(a, b Particle) r2.Vec

	// MaxReach returns the largest center distance at which two bodies
	// with radius at most maxRadius still interact. The voxel size must
	// be at least this value.
	MaxReach(maxRadius float64) float64
}

// ContactLaw is a short-range contact model: a linear spring pushes
// overlapping cells apart, and an optional adhesive band pulls cells
// together just past contact. The attraction rises linearly from zero
// at contact to a peak mid-band and falls back to zero at the outer
// edge, so the force is continuous at both edges and vanishes beyond
// reach.
type ContactLaw struct {
	Repulsion      float64 // spring constant against overlap depth
	Adhesion       float64 // slope of the adhesive tent profile
	AdhesionFactor float64 // outer reach as a multiple of the radius sum, >= 1
}

// fallbackAxis separates exactly coincident centers; any fixed unit
// vector keeps the law finite there.
var fallbackAxis = r2.Vec{X: 1, Y: 0}

// Pairwise returns the contact force on a due to b.
func (l ContactLaw) Pairwise(a, b Particle) r2.Vec {
	delta := a.Pos.Sub(b.Pos)
	dist := r2.Norm(delta)

	rsum := a.Radius + b.Radius
	outer := rsum * l.AdhesionFactor
	if dist >= outer || rsum <= 0 {
		return r2.Vec{}
	}

	dir := fallbackAxis
	if dist > 0 {
		dir = delta.Scale(1 / dist)
	}

	if dist < rsum {
		// Overlap: push a away from b in proportion to the overlap.
		return dir.Scale(l.Repulsion * (rsum - dist))
	}

	band := outer - rsum
	if band <= 0 || l.Adhesion <= 0 {
		return r2.Vec{}
	}

	// Adhesive band: tent profile, zero at dist=rsum and dist=outer.
	mid := rsum + band/2
	depth := dist - rsum
	if dist > mid {
		depth = outer - dist
	}
	return dir.Scale(-l.Adhesion * depth)
}

// MaxReach returns the interaction cutoff for bodies of at most
// maxRadius.
func (l ContactLaw) MaxReach(maxRadius float64) float64 {
	factor := l.AdhesionFactor
	if factor < 1 {
		factor = 1
	}
	return 2 * maxRadius * factor
}
