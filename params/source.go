package params

import (
	"math"

	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/simerr"
)

// Source reads tagged parameters out of one behavior's configuration block.
type Source struct {
	component string
	block     config.ParamBlock
	names     []string
	index     map[string]int
}

// NewSource returns a Source over block. names lists every species in code order.
func NewSource(component string, block config.ParamBlock, names []string) *Source {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		idx[n] = i
	}
	return &Source{component: component, block: block, names: names, index: idx}
}

// Component returns the name errors are reported under.
func (s *Source) Component() string {
	return s.component
}

// Names returns the species names in code order.
func (s *Source) Names() []string {
	return s.names
}

// NumSpecies returns the number of species.
func (s *Source) NumSpecies() int {
	return len(s.names)
}

// Has reports whether tag is present.
func (s *Source) Has(tag string) bool {
	_, ok := s.block[tag]
	return ok
}

// Single reads a scalar. A missing optional tag leaves dst untouched.
func (s *Source) Single(tag string, dst *float64, required bool) error {
	v, ok := s.block[tag]
	if !ok {
		if required {
			return simerr.Config(s.component, tag, "required parameter missing")
		}
		return nil
	}
	if v.Scalar == nil {
		return simerr.Config(s.component, tag, "expected a single value")
	}
	if math.IsNaN(*v.Scalar) || math.IsInf(*v.Scalar, 0) {
		return simerr.Config(s.component, tag, "value must be finite")
	}
	*dst = *v.Scalar
	return nil
}

// Int reads a scalar that must be a whole number.
func (s *Source) Int(tag string, dst *int, required bool) error {
	f := float64(*dst)
	if err := s.Single(tag, &f, required); err != nil {
		return err
	}
	if f != math.Trunc(f) {
		return simerr.Config(s.component, tag, "value %v must be a whole number", f)
	}
	*dst = int(f)
	return nil
}

// Bool reads a scalar flag; any non-zero value is true.
func (s *Source) Bool(tag string, dst *bool, required bool) error {
	f := 0.0
	if *dst {
		f = 1
	}
	if err := s.Single(tag, &f, required); err != nil {
		return err
	}
	*dst = f != 0
	return nil
}

// Species reads a required per-species parameter for the covered species. A single value
// applies to every covered species.
func (s *Source) Species(tag string, covered []int) (Table, error) {
	v, ok := s.block[tag]
	if !ok {
		return Table{}, simerr.Config(s.component, tag, "required parameter missing")
	}
	return s.fill(tag, v, covered, nil)
}

// SpeciesOr reads an optional per-species parameter. Species the tag does not mention, or
// every species if the tag is absent, get def.
func (s *Source) SpeciesOr(tag string, covered []int, def float64) (Table, error) {
	v, ok := s.block[tag]
	if !ok {
		return Filled(s.component, tag, s.names, covered, def), nil
	}
	return s.fill(tag, v, covered, &def)
}

func (s *Source) fill(tag string, v config.ParamValue, covered []int, def *float64) (Table, error) {
	t := NewTable(s.component, tag, s.names, covered)
	switch {
	case v.Scalar != nil:
		for _, sp := range covered {
			t.vals[sp] = *v.Scalar
		}
	case v.BySpecies != nil:
		for name := range v.BySpecies {
			if _, known := s.index[name]; !known {
				return Table{}, simerr.Config(s.component, tag, "unknown species %q", name)
			}
		}
		for _, sp := range covered {
			f, ok := v.BySpecies[s.names[sp]]
			switch {
			case ok:
				t.vals[sp] = f
			case def != nil:
				t.vals[sp] = *def
			default:
				return Table{}, simerr.Config(s.component, tag, "missing value for species %s", s.names[sp])
			}
		}
	default:
		return Table{}, simerr.Config(s.component, tag, "expected a per-species value")
	}
	if err := t.Check("must be finite", func(float64) bool { return true }); err != nil {
		return Table{}, err
	}
	return t, nil
}

// Matrix reads a target-by-neighbor parameter. Every covered target species needs a value
// for every neighbor species.
func (s *Source) Matrix(tag string, covered []int) (Matrix, error) {
	v, ok := s.block[tag]
	if !ok {
		return Matrix{}, simerr.Config(s.component, tag, "required parameter missing")
	}
	if v.Matrix == nil {
		return Matrix{}, simerr.Config(s.component, tag, "expected a species-by-species mapping")
	}
	m := NewMatrix(tag, len(s.names))
	for _, target := range covered {
		row, ok := v.Matrix[s.names[target]]
		if !ok {
			return Matrix{}, simerr.Config(s.component, tag, "missing row for species %s", s.names[target])
		}
		for neighbor, name := range s.names {
			f, ok := row[name]
			if !ok {
				return Matrix{}, simerr.Config(s.component, tag, "species %s: missing value for neighbor %s", s.names[target], name)
			}
			if math.IsNaN(f) || math.IsInf(f, 0) {
				return Matrix{}, simerr.Config(s.component, tag, "species %s: value for neighbor %s must be finite", s.names[target], name)
			}
			m.Set(target, neighbor, f)
		}
	}
	return m, nil
}
