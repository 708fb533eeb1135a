// Package telemetry aggregates simulation results into windowed
// statistics and writes the run's on-disk output.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/jonaspleyer/cr-trichome/components"
)

// WindowStats holds aggregated statistics for one stats window.
type WindowStats struct {
	WindowStart int64   `csv:"-"`
	WindowEnd   int64   `csv:"window_end"`
	SimTime     float64 `csv:"sim_time"`

	// Population by stage at window end
	Agents          int     `csv:"agents"`
	Growing         int     `csv:"growing"`
	Differentiating int     `csv:"differentiating"`
	Mature          int     `csv:"mature"`
	TrichomeTips    int     `csv:"trichome_tips"`
	TipFraction     float64 `csv:"tip_fraction"`

	// Events during the window
	Divisions        int `csv:"divisions"`
	SkippedDivisions int `csv:"skipped_divisions"`
	Differentiations int `csv:"differentiations"`
	Migrations       int `csv:"migrations"`
	Inconsistencies  int `csv:"inconsistencies"`

	// Radius distribution at window end
	RadiusMean float64 `csv:"radius_mean"`
	RadiusP10  float64 `csv:"radius_p10"`
	RadiusP50  float64 `csv:"radius_p50"`
	RadiusP90  float64 `csv:"radius_p90"`
}

// StageCounts tallies a population by growth stage.
func StageCounts(agents []components.AgentState) (growing, differentiating, mature, tips int) {
	for _, a := range agents {
		switch a.Stage {
		case components.StageGrowing:
			growing++
		case components.StageDifferentiating:
			differentiating++
		case components.StageMature:
			mature++
		case components.StageTrichomeTip:
			tips++
		}
	}
	return growing, differentiating, mature, tips
}

// RadiusStats summarizes a radius sample: mean plus the empirical 10th,
// 50th, and 90th quantiles. Returns zeros for an empty sample.
func RadiusStats(values []float64) (mean, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mean = stat.Mean(sorted, nil)
	p10 = stat.Quantile(0.10, stat.Empirical, sorted, nil)
	p50 = stat.Quantile(0.50, stat.Empirical, sorted, nil)
	p90 = stat.Quantile(0.90, stat.Empirical, sorted, nil)
	return mean, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStart),
		slog.Int64("window_end", s.WindowEnd),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("agents", s.Agents),
		slog.Int("growing", s.Growing),
		slog.Int("differentiating", s.Differentiating),
		slog.Int("mature", s.Mature),
		slog.Int("trichome_tips", s.TrichomeTips),
		slog.Float64("tip_fraction", s.TipFraction),
		slog.Int("divisions", s.Divisions),
		slog.Int("skipped_divisions", s.SkippedDivisions),
		slog.Int("differentiations", s.Differentiations),
		slog.Int("migrations", s.Migrations),
		slog.Int("inconsistencies", s.Inconsistencies),
		slog.Float64("radius_mean", s.RadiusMean),
		slog.Float64("radius_p10", s.RadiusP10),
		slog.Float64("radius_p50", s.RadiusP50),
		slog.Float64("radius_p90", s.RadiusP90),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEnd,
		"sim_time", s.SimTime,
		"agents", s.Agents,
		"growing", s.Growing,
		"differentiating", s.Differentiating,
		"mature", s.Mature,
		"trichome_tips", s.TrichomeTips,
		"tip_fraction", s.TipFraction,
		"divisions", s.Divisions,
		"skipped_divisions", s.SkippedDivisions,
		"differentiations", s.Differentiations,
		"migrations", s.Migrations,
		"inconsistencies", s.Inconsistencies,
		"radius_mean", s.RadiusMean,
		"radius_p50", s.RadiusP50,
	)
}
