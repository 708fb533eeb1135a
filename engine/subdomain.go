package engine

import (
	"fmt"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/force"
	"github.com/jonaspleyer/cr-trichome/growth"
	"github.com/jonaspleyer/cr-trichome/spatial"
)

// stepParams bundles the per-run constants every subdomain step needs.
type stepParams struct {
	mass       float64
	dampFactor float64 // exp(-damping*dt), precomputed for the fixed dt
	crowdR     float64 // crowding query radius
	band       float64 // ghost band width, max(interaction reach, crowdR)
	domW, domH float64
	debug      bool
}

// agentRef caches the live component pointers of one owned agent for a
// single step, plus its step-start position for neighbor queries. Refs
// are valid only until the first structural change, so divisions and
// removals are applied after all pointer work.
type agentRef struct {
	entity   ecs.Entity
	startPos r2.Vec
	ident    *components.Identity
	pos      *components.Position
	vel      *components.Velocity
	frc      *components.Force
	body     *components.Body
	grow     *components.Growth
}

// pendingChild is a division outcome awaiting entity creation.
type pendingChild struct {
	parent uint64
	state  components.AgentState
}

// stepEvents accumulates one subdomain's per-step products. The
// coordinator reads them after the barrier.
type stepEvents struct {
	divisions        []DivisionEvent
	differentiations []FateEvent
	skippedDivisions int
	migrations       int
	inconsistencies  int
	population       int // owned agents remaining after migration
}

func (e *stepEvents) reset() {
	e.divisions = e.divisions[:0]
	e.differentiations = e.differentiations[:0]
	e.skippedDivisions = 0
	e.migrations = 0
	e.inconsistencies = 0
	e.population = 0
}

// subdomain owns one vertical strip of the leaf: a private agent world,
// a private voxel grid covering the strip plus one ghost margin, and
// the scratch state for a step. Only its worker touches it between the
// ghost exchange and the barrier.
type subdomain struct {
	index int
	loX   float64
	hiX   float64
	last  bool // the rightmost strip also owns x == hiX

	world  *ecs.World
	mapper *ecs.Map6[
		components.Identity,
		components.Position,
		components.Velocity,
		components.Force,
		components.Body,
		components.Growth,
	]
	filter *ecs.Filter6[
		components.Identity,
		components.Position,
		components.Velocity,
		components.Force,
		components.Body,
		components.Growth,
	]

	grid *spatial.Grid

	ids idSource

	// step scratch, reused across steps
	refs     []agentRef
	crowdBuf []spatial.Neighbor
	children []pendingChild
	dead     []ecs.Entity

	// inbox holds the ghost copies delivered before the step; outbox
	// holds migrants leaving the strip, routed after the barrier.
	inbox  []components.AgentState
	outbox []components.AgentState

	events stepEvents
	err    error
}

func newSubdomain(index int, loX, hiX float64, last bool, domH, voxel float64) *subdomain {
	world := ecs.NewWorld()

	s := &subdomain{
		index: index,
		loX:   loX,
		hiX:   hiX,
		last:  last,
		world: world,
		mapper: ecs.NewMap6[
			components.Identity,
			components.Position,
			components.Velocity,
			components.Force,
			components.Body,
			components.Growth,
		](world),
		filter: ecs.NewFilter6[
			components.Identity,
			components.Position,
			components.Velocity,
			components.Force,
			components.Body,
			components.Growth,
		](world),
	}

	// The grid is anchored one voxel before the strip so ghost bodies
	// land in real margin cells on both sides.
	s.grid = spatial.NewGrid(loX-voxel, 0, (hiX-loX)+2*voxel, domH, voxel)

	return s
}

// owns reports whether x falls in this strip. Strips are half-open on
// the right except the last, which also owns the domain edge itself.
func (s *subdomain) owns(x float64) bool {
	if x < s.loX {
		return false
	}
	if x < s.hiX {
		return true
	}
	return s.last && x == s.hiX
}

// spawn creates an owned agent entity from serialized state.
func (s *subdomain) spawn(st components.AgentState) {
	ident := components.Identity{ID: st.ID, Seed: st.Seed}
	pos := components.Position{Vec: st.Pos()}
	vel := components.Velocity{Vec: st.Vel()}
	frc := components.Force{}
	body := components.Body{Radius: st.Radius}
	grow := components.Growth{Stage: st.Stage, Progress: st.Progress, Divisions: st.Divisions}
	s.mapper.NewEntity(&ident, &pos, &vel, &frc, &body, &grow)
}

// ghostsInto appends read-only copies of owned agents whose X lies in
// [lo, hi] to dst. Called by the coordinator during the serial ghost
// exchange, before any worker runs.
func (s *subdomain) ghostsInto(dst []components.AgentState, lo, hi float64) []components.AgentState {
	query := s.filter.Query()
	for query.Next() {
		ident, pos, vel, _, body, grow := query.Get()
		if pos.X < lo || pos.X > hi {
			continue
		}
		dst = append(dst, components.AgentState{
			ID: ident.ID, Seed: ident.Seed,
			X: pos.X, Y: pos.Y,
			VX: vel.X, VY: vel.Y,
			Radius:    body.Radius,
			Stage:     grow.Stage,
			Progress:  grow.Progress,
			Divisions: grow.Divisions,
		})
	}
	return dst
}

// runStep advances this strip by one step: rebuild the grid, accumulate
// pairwise forces, integrate, grow and divide, then collect migrants.
// Everything here touches only subdomain-private state.
func (s *subdomain) runStep(step int64, dt float64, law force.Law, rules growth.Rules, p *stepParams) {
	s.err = nil
	s.events.reset()
	s.outbox = s.outbox[:0]

	s.rebuild()
	s.accumulateForces(law)
	s.integrate(dt, p)
	s.advanceGrowth(step, dt, rules, p)
	s.collectMigrants(step, p)
}

// rebuild refreshes the voxel grid from current positions: owned agents
// with their dense slots, then the delivered ghosts.
func (s *subdomain) rebuild() {
	s.grid.Clear()
	s.refs = s.refs[:0]

	query := s.filter.Query()
	for query.Next() {
		ident, pos, vel, frc, body, grow := query.Get()
		frc.Vec = r2.Vec{}
		slot := len(s.refs)
		s.refs = append(s.refs, agentRef{
			entity:   query.Entity(),
			startPos: pos.Vec,
			ident:    ident,
			pos:      pos,
			vel:      vel,
			frc:      frc,
			body:     body,
			grow:     grow,
		})
		s.grid.Insert(spatial.Body{ID: ident.ID, Slot: slot, Pos: pos.Vec, Radius: body.Radius})
	}

	for _, g := range s.inbox {
		s.grid.Insert(spatial.Body{ID: g.ID, Slot: -1, Pos: g.Pos(), Radius: g.Radius, Ghost: true})
	}
}

// accumulateForces runs the pair sweep. Each owned-owned pair is
// evaluated once and applied with opposite signs, so momentum is
// conserved exactly. For an owned-ghost pair only the owned side is
// charged here; the neighboring worker computes the mirror image from
// its own copy of the pair.
func (s *subdomain) accumulateForces(law force.Law) {
	s.grid.ForEachPair(func(a, b *spatial.Body) {
		if a.Ghost && b.Ghost {
			return
		}
		f := law.Pairwise(
			force.Particle{Pos: a.Pos, Radius: a.Radius},
			force.Particle{Pos: b.Pos, Radius: b.Radius},
		)
		if f == (r2.Vec{}) {
			return
		}
		if !a.Ghost {
			frc := s.refs[a.Slot].frc
			frc.Vec = frc.Vec.Add(f)
		}
		if !b.Ghost {
			frc := s.refs[b.Slot].frc
			frc.Vec = frc.Vec.Sub(f)
		}
	})
}

// integrate advances positions with semi-implicit Euler under viscous
// damping and walls the leaf rectangle: clamped positions zero their
// outward velocity component.
func (s *subdomain) integrate(dt float64, p *stepParams) {
	for i := range s.refs {
		r := &s.refs[i]

		v := r.vel.Vec.Add(r.frc.Vec.Scale(dt / p.mass)).Scale(p.dampFactor)
		pos := r.pos.Vec.Add(v.Scale(dt))

		if pos.X < 0 {
			pos.X = 0
			if v.X < 0 {
				v.X = 0
			}
		} else if pos.X > p.domW {
			pos.X = p.domW
			if v.X > 0 {
				v.X = 0
			}
		}
		if pos.Y < 0 {
			pos.Y = 0
			if v.Y < 0 {
				v.Y = 0
			}
		} else if pos.Y > p.domH {
			pos.Y = p.domH
			if v.Y > 0 {
				v.Y = 0
			}
		}

		r.vel.Vec = v
		r.pos.Vec = pos
	}
}

// advanceGrowth steps every owned agent through the growth state
// machine and applies divisions. Children are created only after the
// pointer work is done, and a division whose placements would leave the
// leaf is skipped and retried next step.
func (s *subdomain) advanceGrowth(step int64, dt float64, rules growth.Rules, p *stepParams) {
	s.children = s.children[:0]

	for i := range s.refs {
		r := &s.refs[i]

		s.crowdBuf = s.grid.NeighborsInto(s.crowdBuf[:0], r.startPos.X, r.startPos.Y, p.crowdR, r.ident.ID)

		view := growth.View{
			ID:        r.ident.ID,
			Pos:       r.pos.Vec,
			Radius:    r.body.Radius,
			Stage:     r.grow.Stage,
			Progress:  r.grow.Progress,
			Divisions: r.grow.Divisions,
			Crowd:     len(s.crowdBuf),
		}
		rng := growth.Stream(r.ident.Seed, step)
		d := growth.Step(view, rules, rng, dt)

		if d.Stage != r.grow.Stage {
			s.events.differentiations = append(s.events.differentiations, FateEvent{ID: r.ident.ID, Stage: d.Stage})
		}
		r.body.Radius = d.Radius
		r.grow.Progress = d.Progress
		r.grow.Stage = d.Stage

		if !d.Divide {
			continue
		}

		par, chi := growth.Split(r.pos.Vec, r.body.Radius, d.Axis)
		if !s.insideDomain(par.Pos, p) || !s.insideDomain(chi.Pos, p) {
			// Expected back-pressure near the leaf edge, not an error.
			s.events.skippedDivisions++
			continue
		}

		childID := s.ids.take()
		childSeed := growth.ChildSeed(r.ident.Seed, r.grow.Divisions)

		r.pos.Vec = par.Pos
		r.body.Radius = par.Radius
		r.grow.Progress = d.Progress / 2
		r.grow.Divisions++

		s.children = append(s.children, pendingChild{
			parent: r.ident.ID,
			state: components.AgentState{
				ID: childID, Seed: childSeed,
				X: chi.Pos.X, Y: chi.Pos.Y,
				VX: r.vel.X, VY: r.vel.Y,
				Radius:   chi.Radius,
				Stage:    components.StageGrowing,
				Progress: d.Progress / 2,
			},
		})
	}

	// Structural phase: refs are dead after the first NewEntity.
	for _, c := range s.children {
		s.spawn(c.state)
		s.events.divisions = append(s.events.divisions, DivisionEvent{Parent: c.parent, Child: c.state.ID})
	}
}

func (s *subdomain) insideDomain(pos r2.Vec, p *stepParams) bool {
	return pos.X >= 0 && pos.X <= p.domW && pos.Y >= 0 && pos.Y <= p.domH
}

// collectMigrants serializes owned agents that ended the step outside
// the strip and removes them from this world. It also runs the
// post-step invariant sweep and counts the surviving population.
func (s *subdomain) collectMigrants(step int64, p *stepParams) {
	s.dead = s.dead[:0]

	query := s.filter.Query()
	for query.Next() {
		ident, pos, vel, _, body, grow := query.Get()

		if body.Radius < 0 {
			s.events.inconsistencies++
			if p.debug && s.err == nil {
				s.err = &InconsistencyError{
					Step:  step,
					Agent: ident.ID,
					Issue: fmt.Sprintf("negative radius %g", body.Radius),
				}
			}
			body.Radius = 0
		}

		if s.owns(pos.X) {
			s.events.population++
			continue
		}

		s.outbox = append(s.outbox, components.AgentState{
			ID: ident.ID, Seed: ident.Seed,
			X: pos.X, Y: pos.Y,
			VX: vel.X, VY: vel.Y,
			Radius:    body.Radius,
			Stage:     grow.Stage,
			Progress:  grow.Progress,
			Divisions: grow.Divisions,
		})
		s.dead = append(s.dead, query.Entity())
		s.events.migrations++
	}

	for _, e := range s.dead {
		s.mapper.Remove(e)
	}
}

// snapshotInto appends the serialized state of every owned agent.
func (s *subdomain) snapshotInto(dst []components.AgentState) []components.AgentState {
	query := s.filter.Query()
	for query.Next() {
		ident, pos, vel, _, body, grow := query.Get()
		dst = append(dst, components.AgentState{
			ID: ident.ID, Seed: ident.Seed,
			X: pos.X, Y: pos.Y,
			VX: vel.X, VY: vel.Y,
			Radius:    body.Radius,
			Stage:     grow.Stage,
			Progress:  grow.Progress,
			Divisions: grow.Divisions,
		})
	}
	return dst
}

// removeByID deletes the owned agent with the given ID, reporting
// whether it was found. The query is always drained before the
// structural removal.
func (s *subdomain) removeByID(id uint64) bool {
	var target ecs.Entity
	found := false

	query := s.filter.Query()
	for query.Next() {
		ident, _, _, _, _, _ := query.Get()
		if ident.ID == id {
			target = query.Entity()
			found = true
		}
	}

	if found {
		s.mapper.Remove(target)
	}
	return found
}
