package telemetry

import (
	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/engine"
)

// Collector accumulates per-step results into stats windows.
type Collector struct {
	windowSteps int64
	dt          float64

	windowStart int64

	// event counters for the current window
	divisions        int
	skippedDivisions int
	differentiations int
	migrations       int
	inconsistencies  int
}

// NewCollector creates a stats collector flushing every windowSteps
// steps. dt converts step counts to simulation time.
func NewCollector(windowSteps int, dt float64) *Collector {
	if windowSteps < 1 {
		windowSteps = 1
	}
	return &Collector{
		windowSteps: int64(windowSteps),
		dt:          dt,
	}
}

// Record adds one step's events to the current window.
func (c *Collector) Record(res engine.StepResult) {
	c.divisions += len(res.Divisions)
	c.skippedDivisions += res.SkippedDivisions
	c.differentiations += len(res.Differentiations)
	c.migrations += res.Migrations
	c.inconsistencies += res.Inconsistencies
}

// ShouldFlush reports whether the current window is complete.
func (c *Collector) ShouldFlush(step int64) bool {
	return step-c.windowStart >= c.windowSteps
}

// Flush produces the window's stats from the accumulated events and the
// end-of-window population, then resets for the next window.
func (c *Collector) Flush(step int64, agents []components.AgentState) WindowStats {
	growing, differentiating, mature, tips := StageCounts(agents)

	radii := make([]float64, len(agents))
	for i, a := range agents {
		radii[i] = a.Radius
	}
	mean, p10, p50, p90 := RadiusStats(radii)

	var tipFraction float64
	if len(agents) > 0 {
		tipFraction = float64(tips) / float64(len(agents))
	}

	stats := WindowStats{
		WindowStart: c.windowStart,
		WindowEnd:   step,
		SimTime:     float64(step) * c.dt,

		Agents:          len(agents),
		Growing:         growing,
		Differentiating: differentiating,
		Mature:          mature,
		TrichomeTips:    tips,
		TipFraction:     tipFraction,

		Divisions:        c.divisions,
		SkippedDivisions: c.skippedDivisions,
		Differentiations: c.differentiations,
		Migrations:       c.migrations,
		Inconsistencies:  c.inconsistencies,

		RadiusMean: mean,
		RadiusP10:  p10,
		RadiusP50:  p50,
		RadiusP90:  p90,
	}

	c.windowStart = step
	c.divisions = 0
	c.skippedDivisions = 0
	c.differentiations = 0
	c.migrations = 0
	c.inconsistencies = 0

	return stats
}

// WindowSteps returns the number of steps per window.
func (c *Collector) WindowSteps() int64 {
	return c.windowSteps
}
