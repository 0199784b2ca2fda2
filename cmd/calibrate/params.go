package main

import (
	"fmt"

	"github.com/pthm-cable/canopy/config"
)

// ParamSpec defines a single fitted parameter.
type ParamSpec struct {
	Tag     string  // parameter tag in the behavior's params block
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Starting value, read from the config
}

// ParamVector holds the fitted parameters of one species.
type ParamVector struct {
	Species string
	Specs   []ParamSpec
}

// fittable lists the growth tags the calibrator can move, with their search bounds.
var fittable = []ParamSpec{
	{Tag: "nciMaxPotentialGrowth", Min: 0.01, Max: 3},
	{Tag: "nciCrowdingC", Min: 0, Max: 3},
	{Tag: "nciCrowdingD", Min: 0.1, Max: 4},
	{Tag: "nciSizeX0", Min: 1, Max: 400},
	{Tag: "nciSizeXb", Min: 0.1, Max: 6},
	{Tag: "nciShadingCoefficient", Min: 0, Max: 5},
}

// NewParamVector picks the fittable tags the block defines for species. Tags the block
// leaves out belong to terms that are not in use and stay out of the fit.
func NewParamVector(block config.ParamBlock, species string) (*ParamVector, error) {
	pv := &ParamVector{Species: species}
	for _, spec := range fittable {
		v, ok := block[spec.Tag]
		if !ok {
			continue
		}
		switch {
		case v.BySpecies != nil:
			f, ok := v.BySpecies[species]
			if !ok {
				continue
			}
			spec.Default = f
		case v.Scalar != nil:
			spec.Default = *v.Scalar
		default:
			continue
		}
		spec.Default = min(max(spec.Default, spec.Min), spec.Max)
		pv.Specs = append(pv.Specs, spec)
	}
	if len(pv.Specs) == 0 {
		return nil, fmt.Errorf("no fittable parameters for species %s", species)
	}
	return pv, nil
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
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// Apply returns a copy of block with the species' values replaced. A scalar tag becomes
// a species mapping so the other species keep the shared value.
func (pv *ParamVector) Apply(block config.ParamBlock, values []float64, names []string) config.ParamBlock {
	out := block.Clone()
	for i, spec := range pv.Specs {
		v := out[spec.Tag]
		if v.BySpecies == nil {
			shared := *v.Scalar
			v = config.PerSpecies(make(map[string]float64, len(names)))
			for _, n := range names {
				v.BySpecies[n] = shared
			}
		}
		v.BySpecies[pv.Species] = min(max(values[i], spec.Min), spec.Max)
		out[spec.Tag] = v
	}
	return out
}
