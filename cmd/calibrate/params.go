package main

import (
	"github.com/jonaspleyer/cr-trichome/config"
)

// ParamSpec defines a single calibrated parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of all calibrated parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of calibrated parameters.
// max_radius and crowd_radius stay locked: both are bounded by the
// voxel size, and the search must never produce a config the engine
// rejects.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "growth_rate", Path: "growth.rate", Min: 0.01, Max: 0.2, Default: 0.05},
			{Name: "division_radius", Path: "growth.division_radius", Min: 10, Max: 22, Default: 16},
			{Name: "division_progress", Path: "growth.division_progress", Min: 0.5, Max: 3.0, Default: 1.0},
			{Name: "differentiation_progress", Path: "growth.differentiation_progress", Min: 1.5, Max: 8.0, Default: 3.0},
			{Name: "dwell_time", Path: "growth.dwell_time", Min: 1.0, Max: 20.0, Default: 5.0},
			{Name: "tip_probability", Path: "growth.tip_probability", Min: 0.0, Max: 1.0, Default: 0.12},
			// crowd_saturation's floor meets crowd_threshold's ceiling, so
			// every clamped pair passes validation.
			{Name: "crowd_threshold", Path: "growth.crowd_threshold", Min: 2, Max: 8, Default: 4},
			{Name: "crowd_saturation", Path: "growth.crowd_saturation", Min: 8, Max: 20, Default: 10},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		val := v[i]
		if val < spec.Min {
			val = spec.Min
		}
		if val > spec.Max {
			val = spec.Max
		}
		clamped[i] = val
	}
	return clamped
}

// ApplyToConfig applies parameter values to a Config struct.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	// Clamp values to ensure they're within bounds
	clamped := pv.Clamp(values)

	// Apply each parameter to the config
	// Order must match Specs order
	i := 0

	cfg.Growth.Rate = clamped[i]; i++
	cfg.Growth.DivisionRadius = clamped[i]; i++
	cfg.Growth.DivisionProgress = clamped[i]; i++
	cfg.Growth.DifferentiationProgress = clamped[i]; i++
	cfg.Growth.DwellTime = clamped[i]; i++
	cfg.Growth.TipProbability = clamped[i]; i++
	cfg.Growth.CrowdThreshold = int(clamped[i]); i++
	cfg.Growth.CrowdSaturation = int(clamped[i])
}

// ExtractFromConfig extracts current parameter values from a Config struct.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Growth.Rate,
		cfg.Growth.DivisionRadius,
		cfg.Growth.DivisionProgress,
		cfg.Growth.DifferentiationProgress,
		cfg.Growth.DwellTime,
		cfg.Growth.TipProbability,
		float64(cfg.Growth.CrowdThreshold),
		float64(cfg.Growth.CrowdSaturation),
	}
}
