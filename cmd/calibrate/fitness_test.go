package main

import (
	"math"
	"testing"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
)

func TestTipDispersion(t *testing.T) {
	// A 4x4 grid of tips is strongly dispersed.
	var grid []components.AgentState
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			grid = append(grid, components.AgentState{
				X:     float64(i) * 10,
				Y:     float64(j) * 10,
				Stage: components.StageTrichomeTip,
			})
		}
	}
	dispersed := tipDispersion(grid)
	if dispersed <= 1 {
		t.Errorf("grid dispersion = %g, want above 1", dispersed)
	}

	// The same tip count piled into two tight clusters scores clumped.
	var clumped []components.AgentState
	for i := 0; i < 8; i++ {
		clumped = append(clumped,
			components.AgentState{X: float64(i) * 0.1, Y: 0, Stage: components.StageTrichomeTip},
			components.AgentState{X: 30 + float64(i)*0.1, Y: 30, Stage: components.StageTrichomeTip},
		)
	}
	if c := tipDispersion(clumped); c >= 1 {
		t.Errorf("clumped dispersion = %g, want below 1", c)
	}

	if got := tipDispersion(nil); got != 0 {
		t.Errorf("dispersion of empty population = %g, want 0", got)
	}
	one := []components.AgentState{{X: 5, Y: 5, Stage: components.StageTrichomeTip}}
	if got := tipDispersion(one); got != 0 {
		t.Errorf("dispersion of a single tip = %g, want 0", got)
	}
}

func TestDispersionQuality(t *testing.T) {
	if q := dispersionQuality(0.8); q != 0 {
		t.Errorf("quality of clumped pattern = %g, want 0", q)
	}
	if q := dispersionQuality(2.15); q != 1 {
		t.Errorf("quality at the hexagonal limit = %g, want 1", q)
	}
	mid := dispersionQuality(1.5)
	if mid <= 0 || mid >= 1 {
		t.Errorf("quality of a mildly dispersed pattern = %g, want inside (0,1)", mid)
	}
}

func TestEvaluateRunsSeeds(t *testing.T) {
	cfg := config.Default()
	cfg.Seeding.Rings = 1

	params := NewParamVector()
	evaluator := NewFitnessEvaluator(params, 20, []int64{42, 1042}, cfg, 0.12)

	fitness := evaluator.Evaluate(params.DefaultVector())

	// Twenty steps is far too short for any differentiation, so every
	// run ends with zero tips and the full squared target as its error.
	want := 0.12 * 0.12
	if math.Abs(fitness-want) > 1e-9 {
		t.Errorf("fitness = %g, want %g", fitness, want)
	}
	if tf := evaluator.LastTipFraction(); tf != 0 {
		t.Errorf("LastTipFraction = %g, want 0", tf)
	}
	if d := evaluator.LastDispersion(); d != 0 {
		t.Errorf("LastDispersion = %g, want 0", d)
	}
}
