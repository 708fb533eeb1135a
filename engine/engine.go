// Package engine advances a population of growing, dividing cell
// agents through time under a pairwise contact law. The leaf rectangle
// is split into vertical strips, one persistent worker per strip, with
// ghost copies exchanged before each step and migrants handed off
// after a single barrier.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/force"
	"github.com/jonaspleyer/cr-trichome/growth"
)

// Simulation is a handle on one running simulation. It is not safe for
// concurrent use; Step, Snapshot, and the other methods are called from
// one goroutine while the internal workers do the per-strip work.
type Simulation struct {
	cfg   *config.Config
	law   force.Law
	rules growth.Rules

	subs []*subdomain
	par  stepParams

	dt      float64
	stepNum int64

	pendingRemovals []uint64

	pool workerPool
}

// workMsg tells one worker to run one step.
type workMsg struct {
	step int64
	dt   float64
}

// workerPool runs one persistent goroutine per subdomain. Each worker
// has its own work channel so a step always lands on the worker owning
// the strip.
type workerPool struct {
	workChans []chan workMsg
	doneChan  chan struct{}
	stopChan  chan struct{}
	wg        sync.WaitGroup
	running   bool
}

// New builds a simulation from configuration and a seed population,
// using the contact law and the default growth rules derived from cfg.
func New(cfg *config.Config, seeds []components.AgentState) (*Simulation, error) {
	law := force.ContactLaw{
		Repulsion:      cfg.Force.Repulsion,
		Adhesion:       cfg.Force.Adhesion,
		AdhesionFactor: cfg.Force.AdhesionFactor,
	}
	return NewWith(cfg, seeds, law, growth.DefaultRules(cfg))
}

// NewWith builds a simulation with a custom interaction law and growth
// rules. All configuration problems are reported wrapped in
// ErrConfiguration; nothing is partially constructed on error.
func NewWith(cfg *config.Config, seeds []components.AgentState, law force.Law, rules growth.Rules) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if len(seeds) == 0 {
		return nil, fmt.Errorf("%w: empty seed population", ErrConfiguration)
	}

	// A custom law may reach further than the configured contact law;
	// the voxel stencil only sees one ring of cells.
	reach := law.MaxReach(cfg.Growth.MaxRadius)
	if reach > cfg.Domain.VoxelSize {
		return nil, fmt.Errorf("%w: interaction reach %g exceeds voxel size %g", ErrConfiguration, reach, cfg.Domain.VoxelSize)
	}

	cols := int(math.Ceil(cfg.Domain.Width / cfg.Domain.VoxelSize))
	workers := cfg.Simulation.Workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers > cols {
			workers = cols
		}
	}
	if workers > cols {
		return nil, fmt.Errorf("%w: %d workers exceed %d voxel columns", ErrConfiguration, workers, cols)
	}

	dt := cfg.Simulation.DT
	sim := &Simulation{
		cfg:   cfg,
		law:   law,
		rules: rules,
		dt:    dt,
		par: stepParams{
			mass:       cfg.Simulation.Mass,
			dampFactor: math.Exp(-cfg.Simulation.Damping * dt),
			crowdR:     cfg.Growth.CrowdRadius,
			band:       math.Max(reach, cfg.Growth.CrowdRadius),
			domW:       cfg.Domain.Width,
			domH:       cfg.Domain.Height,
			debug:      cfg.Simulation.Debug,
		},
	}

	// Vertical strips aligned to whole voxel columns.
	voxel := cfg.Domain.VoxelSize
	var maxID uint64
	for i := 0; i < workers; i++ {
		colLo := i * cols / workers
		colHi := (i + 1) * cols / workers
		loX := float64(colLo) * voxel
		hiX := float64(colHi) * voxel
		last := i == workers-1
		if last {
			hiX = cfg.Domain.Width
		}
		sim.subs = append(sim.subs, newSubdomain(i, loX, hiX, last, cfg.Domain.Height, voxel))
	}

	// Validate and route the seed population.
	seen := make(map[uint64]bool, len(seeds))
	var unassigned []int
	for i, st := range seeds {
		if st.X < 0 || st.X > cfg.Domain.Width || st.Y < 0 || st.Y > cfg.Domain.Height {
			return nil, fmt.Errorf("%w: seed agent %d at (%g, %g) outside domain bounds", ErrConfiguration, st.ID, st.X, st.Y)
		}
		if st.Radius < 0 {
			return nil, fmt.Errorf("%w: seed agent %d has negative radius %g", ErrConfiguration, st.ID, st.Radius)
		}
		if st.ID == 0 {
			unassigned = append(unassigned, i)
			continue
		}
		if seen[st.ID] {
			return nil, fmt.Errorf("%w: duplicate seed agent id %d", ErrConfiguration, st.ID)
		}
		seen[st.ID] = true
		if st.ID > maxID {
			maxID = st.ID
		}
	}

	// Seeds without IDs get the next free ones, deterministically by
	// position in the slice.
	states := make([]components.AgentState, len(seeds))
	copy(states, seeds)
	for _, i := range unassigned {
		maxID++
		states[i].ID = maxID
	}

	// Each strip mints child IDs from its own strided partition, so
	// division never contends on a shared counter and a run with a
	// fixed worker count always assigns the same IDs.
	for i, sub := range sim.subs {
		sub.ids = newIDSource(maxID+1, i, len(sim.subs))
	}

	runSeed := cfg.Simulation.Seed
	for _, st := range states {
		if st.Seed == 0 {
			st.Seed = growth.RootSeed(runSeed, st.ID)
		}
		sim.subFor(st.X).spawn(st)
	}

	return sim, nil
}

// Step advances the simulation by exactly one step and reports what
// happened. The step is atomic: cancellation and removal requests take
// effect only at step boundaries.
func (sim *Simulation) Step() (StepResult, error) {
	step := sim.stepNum + 1

	sim.applyRemovals()
	sim.exchangeGhosts()

	if len(sim.subs) == 1 {
		// A single strip runs on the caller's goroutine.
		sim.subs[0].runStep(step, sim.dt, sim.law, sim.rules, &sim.par)
	} else {
		sim.startWorkers()
		for i := range sim.subs {
			sim.pool.workChans[i] <- workMsg{step: step, dt: sim.dt}
		}
		for range sim.subs {
			<-sim.pool.doneChan
		}
	}

	// Barrier passed. Merge results and apply hand-offs serially so
	// every worker sees a consistent population at the next step start.
	res := StepResult{Step: step, Time: float64(step) * sim.dt}
	var firstErr error
	for _, sub := range sim.subs {
		if sub.err != nil && firstErr == nil {
			firstErr = sub.err
		}
		res.Divisions = append(res.Divisions, sub.events.divisions...)
		res.Differentiations = append(res.Differentiations, sub.events.differentiations...)
		res.SkippedDivisions += sub.events.skippedDivisions
		res.Migrations += sub.events.migrations
		res.Inconsistencies += sub.events.inconsistencies
		res.AgentCount += sub.events.population
	}

	for _, sub := range sim.subs {
		for _, st := range sub.outbox {
			target := sim.subFor(st.X)
			if target == nil {
				// Walls clamp every position into the domain, so an
				// unroutable migrant is a violated invariant.
				res.Inconsistencies++
				slog.Warn("agent outside all subdomains after migration",
					"step", step, "agent", st.ID, "x", st.X, "y", st.Y)
				if sim.par.debug && firstErr == nil {
					firstErr = &InconsistencyError{Step: step, Agent: st.ID, Issue: "outside all subdomains after migration"}
				}
				st.X = math.Min(math.Max(st.X, 0), sim.par.domW)
				if math.IsNaN(st.X) {
					st.X = 0
				}
				target = sim.subFor(st.X)
			}
			target.spawn(st)
			res.AgentCount++
		}
	}

	sim.stepNum = step
	return res, firstErr
}

// RunUntil steps the simulation until the predicate returns true, the
// step ceiling is reached, or ctx is cancelled. Cancellation is only
// observed between steps; a started step always completes. A maxSteps
// of zero or less means no ceiling.
func (sim *Simulation) RunUntil(ctx context.Context, pred func(StepResult) bool, maxSteps int) (StepResult, error) {
	var last StepResult
	for i := 0; maxSteps <= 0 || i < maxSteps; i++ {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		default:
		}

		res, err := sim.Step()
		last = res
		if err != nil {
			return last, err
		}
		if pred != nil && pred(res) {
			break
		}
	}
	return last, nil
}

// Snapshot returns the serialized state of every live agent, sorted by
// ID. It reads without mutating, so calling it repeatedly between steps
// yields identical results.
func (sim *Simulation) Snapshot() []components.AgentState {
	var states []components.AgentState
	for _, sub := range sim.subs {
		states = sub.snapshotInto(states)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID < states[j].ID })
	return states
}

// RemoveAgent requests removal of an agent. The removal is applied at
// the next step boundary; removing an unknown ID is a no-op.
func (sim *Simulation) RemoveAgent(id uint64) {
	sim.pendingRemovals = append(sim.pendingRemovals, id)
}

// StepCount returns the number of completed steps.
func (sim *Simulation) StepCount() int64 { return sim.stepNum }

// Time returns the elapsed simulation time.
func (sim *Simulation) Time() float64 { return float64(sim.stepNum) * sim.dt }

// Workers returns the number of subdomains.
func (sim *Simulation) Workers() int { return len(sim.subs) }

// Close stops the worker pool. The simulation must not be stepped
// afterwards.
func (sim *Simulation) Close() {
	sim.stopWorkers()
}

func (sim *Simulation) applyRemovals() {
	for _, id := range sim.pendingRemovals {
		for _, sub := range sim.subs {
			if sub.removeByID(id) {
				break
			}
		}
	}
	sim.pendingRemovals = sim.pendingRemovals[:0]
}

// exchangeGhosts delivers read-only copies of agents within one ghost
// band of each shared boundary to the neighboring strip. Runs serially
// before any worker starts, so every worker sees the same step-start
// population.
func (sim *Simulation) exchangeGhosts() {
	for _, sub := range sim.subs {
		sub.inbox = sub.inbox[:0]
	}

	band := sim.par.band
	for i, sub := range sim.subs {
		if i > 0 {
			left := sim.subs[i-1]
			sub.inbox = left.ghostsInto(sub.inbox, left.hiX-band, left.hiX)
		}
		if i < len(sim.subs)-1 {
			right := sim.subs[i+1]
			sub.inbox = right.ghostsInto(sub.inbox, right.loX, right.loX+band)
		}
	}
}

func (sim *Simulation) subFor(x float64) *subdomain {
	for _, sub := range sim.subs {
		if sub.owns(x) {
			return sub
		}
	}
	return nil
}

// startWorkers launches the persistent per-strip goroutines.
func (sim *Simulation) startWorkers() {
	if sim.pool.running {
		return
	}

	sim.pool.workChans = make([]chan workMsg, len(sim.subs))
	for i := range sim.pool.workChans {
		sim.pool.workChans[i] = make(chan workMsg, 1)
	}
	sim.pool.doneChan = make(chan struct{}, len(sim.subs))
	sim.pool.stopChan = make(chan struct{})
	sim.pool.running = true

	for i := range sim.subs {
		sim.pool.wg.Add(1)
		go sim.worker(i)
	}
}

// stopWorkers signals all workers to exit and waits for them.
func (sim *Simulation) stopWorkers() {
	if !sim.pool.running {
		return
	}

	close(sim.pool.stopChan)
	sim.pool.wg.Wait()
	for i := range sim.pool.workChans {
		close(sim.pool.workChans[i])
	}
	close(sim.pool.doneChan)
	sim.pool.running = false
}

// worker runs in a goroutine, stepping its strip until stopped.
func (sim *Simulation) worker(i int) {
	defer sim.pool.wg.Done()
	sub := sim.subs[i]

	for {
		select {
		case <-sim.pool.stopChan:
			return
		case msg, ok := <-sim.pool.workChans[i]:
			if !ok {
				return
			}
			sub.runStep(msg.step, msg.dt, sim.law, sim.rules, &sim.par)
			sim.pool.doneChan <- struct{}{}
		}
	}
}
