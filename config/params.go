package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParamBlock holds a behavior's numeric parameters by tag name.
//
// A tag holds a plain number, a species-keyed mapping, or a species-by-species mapping:
//
//	nciMaxRadius: 10
//	nciAlpha: {ACRU: 2.1, FAGR: 1.8}
//	nciLambda: {ACRU: {ACRU: 0.6, FAGR: 0.9}, FAGR: {ACRU: 0.4, FAGR: 1.0}}
type ParamBlock map[string]ParamValue

// ParamValue is one parameter tag's value. Exactly one of the fields is set.
type ParamValue struct {
	Scalar    *float64
	BySpecies map[string]float64
	Matrix    map[string]map[string]float64
}

// UnmarshalYAML decodes whichever of the three shapes the node holds.
func (v *ParamValue) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var f float64
		if err := node.Decode(&f); err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		v.Scalar = &f
		return nil
	case yaml.MappingNode:
		flat := map[string]float64{}
		if err := node.Decode(&flat); err == nil {
			v.BySpecies = flat
			return nil
		}
		nested := map[string]map[string]float64{}
		if err := node.Decode(&nested); err != nil {
			return fmt.Errorf("line %d: expected species mapping: %w", node.Line, err)
		}
		v.Matrix = nested
		return nil
	}
	return fmt.Errorf("line %d: unsupported parameter value", node.Line)
}

// MarshalYAML writes the value back in the shape it was read.
func (v ParamValue) MarshalYAML() (any, error) {
	switch {
	case v.Scalar != nil:
		return *v.Scalar, nil
	case v.BySpecies != nil:
		return v.BySpecies, nil
	default:
		return v.Matrix, nil
	}
}

// Float returns a scalar ParamValue.
func Float(f float64) ParamValue {
	return ParamValue{Scalar: &f}
}

// PerSpecies returns a species-keyed ParamValue.
func PerSpecies(m map[string]float64) ParamValue {
	return ParamValue{BySpecies: m}
}

// Clone returns a deep copy of the block, so callers may override tags without touching
// the loaded configuration.
func (b ParamBlock) Clone() ParamBlock {
	out := make(ParamBlock, len(b))
	for k, v := range b {
		var c ParamValue
		if v.Scalar != nil {
			f := *v.Scalar
			c.Scalar = &f
		}
		if v.BySpecies != nil {
			c.BySpecies = make(map[string]float64, len(v.BySpecies))
			for sp, f := range v.BySpecies {
				c.BySpecies[sp] = f
			}
		}
		if v.Matrix != nil {
			c.Matrix = make(map[string]map[string]float64, len(v.Matrix))
			for sp, row := range v.Matrix {
				r := make(map[string]float64, len(row))
				for n, f := range row {
					r[n] = f
				}
				c.Matrix[sp] = r
			}
		}
		out[k] = c
	}
	return out
}
