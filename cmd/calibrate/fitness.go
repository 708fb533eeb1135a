package main

import (
	"context"
	"log"
	"math"
	"sync"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/engine"
	"github.com/jonaspleyer/cr-trichome/seed"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

// FitnessEvaluator runs headless simulations and computes fitness.
type FitnessEvaluator struct {
	params     *ParamVector
	maxSteps   int
	seeds      []int64
	baseConfig *config.Config
	target     float64 // trichome tip fraction to calibrate toward

	// Most recent evaluation, for progress reporting
	mu              sync.Mutex
	lastTipFraction float64
	lastDispersion  float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, maxSteps int, seeds []int64, baseCfg *config.Config, target float64) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		maxSteps:   maxSteps,
		seeds:      seeds,
		baseConfig: baseCfg,
		target:     target,
	}
}

// LastTipFraction returns the mean tip fraction from the most recent evaluation.
func (fe *FitnessEvaluator) LastTipFraction() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastTipFraction
}

// LastDispersion returns the mean tip dispersion from the most recent evaluation.
func (fe *FitnessEvaluator) LastDispersion() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastDispersion
}

// runResult holds the results from a single simulation run.
type runResult struct {
	agents      int
	tips        int
	tipFraction float64
	dispersion  float64 // Clark-Evans index of the final tip pattern
}

// Evaluate computes fitness for a parameter vector (lower = better).
// Every evaluation averages independent runs over the configured seeds.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	// Run all seeds in parallel
	results := make([]runResult, len(fe.seeds))
	errs := make([]error, len(fe.seeds))
	var wg sync.WaitGroup

	for i, s := range fe.seeds {
		wg.Add(1)
		go func(idx int, runSeed int64) {
			defer wg.Done()
			results[idx], errs[idx] = fe.runSimulation(x, runSeed)
		}(i, s)
	}
	wg.Wait()

	var totalFitness, totalTips, totalDispersion float64
	for i, r := range results {
		if errs[i] != nil {
			log.Printf("evaluation run failed: %v", errs[i])
			return math.Inf(1)
		}
		totalFitness += fe.computeFitness(r)
		totalTips += r.tipFraction
		totalDispersion += r.dispersion
	}

	n := float64(len(fe.seeds))

	fe.mu.Lock()
	fe.lastTipFraction = totalTips / n
	fe.lastDispersion = totalDispersion / n
	fe.mu.Unlock()

	return totalFitness / n
}

// runSimulation executes a single headless simulation run and
// summarizes the final population.
func (fe *FitnessEvaluator) runSimulation(x []float64, runSeed int64) (runResult, error) {
	// The config holds only values, so a plain copy is an independent one.
	cfg := *fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)
	cfg.Simulation.Seed = uint64(runSeed)
	// One strip per run; parallelism comes from evaluating seeds concurrently.
	cfg.Simulation.Workers = 1

	sim, err := engine.New(&cfg, seed.Hexagonal(&cfg))
	if err != nil {
		return runResult{}, err
	}
	defer sim.Close()

	if _, err := sim.RunUntil(context.Background(), nil, fe.maxSteps); err != nil {
		return runResult{}, err
	}

	agents := sim.Snapshot()
	_, _, _, tips := telemetry.StageCounts(agents)

	r := runResult{agents: len(agents), tips: tips}
	if len(agents) > 0 {
		r.tipFraction = float64(tips) / float64(len(agents))
	}
	r.dispersion = tipDispersion(agents)
	return r, nil
}

// computeFitness calculates the scalar fitness (lower = better).
// The squared tip-fraction error dominates; tip dispersion trims up to
// 20% to separate runs that hit the target equally well.
func (fe *FitnessEvaluator) computeFitness(r runResult) float64 {
	err := r.tipFraction - fe.target
	return err * err * (1.0 - 0.2*dispersionQuality(r.dispersion))
}

// tipDispersion computes the Clark-Evans nearest-neighbor index of the
// trichome tips: observed mean nearest-tip distance over the mean
// expected from a random pattern of the same density. Values near 1
// indicate a random pattern, values above 1 a dispersed one. Density
// uses the colony's bounding box, since the patch covers only part of
// the leaf. Fewer than two tips score zero.
func tipDispersion(agents []components.AgentState) float64 {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	var xs, ys []float64
	for _, a := range agents {
		minX = math.Min(minX, a.X)
		minY = math.Min(minY, a.Y)
		maxX = math.Max(maxX, a.X)
		maxY = math.Max(maxY, a.Y)
		if a.Stage == components.StageTrichomeTip {
			xs = append(xs, a.X)
			ys = append(ys, a.Y)
		}
	}

	n := len(xs)
	area := (maxX - minX) * (maxY - minY)
	if n < 2 || area <= 0 {
		return 0
	}

	var sum float64
	for i := 0; i < n; i++ {
		nearest := math.Inf(1)
		for j := 0; j < n; j++ {
			if j == i {
				continue
			}
			d := math.Hypot(xs[i]-xs[j], ys[i]-ys[j])
			if d < nearest {
				nearest = d
			}
		}
		sum += nearest
	}
	observed := sum / float64(n)
	expected := 0.5 / math.Sqrt(float64(n)/area)
	return observed / expected
}

// dispersionQuality maps a Clark-Evans index to [0, 1]: zero for a
// clumped or random tip pattern, one at the hexagonal limit near 2.15.
func dispersionQuality(r float64) float64 {
	return clamp01((r - 1.0) / 1.15)
}

// clamp01 clamps x to [0, 1].
func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
