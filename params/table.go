// Package params turns a behavior's configuration block into validated per-species tables.
package params

import (
	"fmt"
	"math"

	"github.com/pthm-cable/canopy/simerr"
)

// Table holds one parameter for every species, indexed by species code. Only the species
// the owning behavior covers are filled; validators check only those.
type Table struct {
	Component string
	Tag       string
	names     []string
	vals      []float64
	covered   []int
}

// NewTable returns a zeroed table over the named species, covering the given species codes.
func NewTable(component, tag string, names []string, covered []int) Table {
	return Table{Component: component, Tag: tag, names: names, vals: make([]float64, len(names)), covered: covered}
}

// Filled returns a table with v for every covered species.
func Filled(component, tag string, names []string, covered []int, v float64) Table {
	t := NewTable(component, tag, names, covered)
	for _, sp := range covered {
		t.vals[sp] = v
	}
	return t
}

// At returns the value for species sp.
func (t Table) At(sp int) float64 {
	return t.vals[sp]
}

// Set stores v for species sp.
func (t Table) Set(sp int, v float64) {
	t.vals[sp] = v
}

// Values returns the underlying species-indexed slice.
func (t Table) Values() []float64 {
	return t.vals
}

// Len returns the number of species slots.
func (t Table) Len() int {
	return len(t.vals)
}

// Check returns a ConfigurationError naming the first covered species whose value fails ok.
func (t Table) Check(desc string, ok func(float64) bool) error {
	for _, sp := range t.covered {
		v := t.vals[sp]
		if math.IsNaN(v) || math.IsInf(v, 0) || !ok(v) {
			return simerr.Config(t.Component, t.Tag, "species %s: value %v %s", t.names[sp], v, desc)
		}
	}
	return nil
}

// Positive requires every covered value to be > 0.
func (t Table) Positive() error {
	return t.Check("must be greater than 0", func(v float64) bool { return v > 0 })
}

// NonZero requires every covered value to be != 0.
func (t Table) NonZero() error {
	return t.Check("must not be 0", func(v float64) bool { return v != 0 })
}

// NonNegative requires every covered value to be >= 0.
func (t Table) NonNegative() error {
	return t.Check("must not be negative", func(v float64) bool { return v >= 0 })
}

// Within01 requires every covered value to lie in [0, 1].
func (t Table) Within01() error {
	return t.Check("must be between 0 and 1", func(v float64) bool { return v >= 0 && v <= 1 })
}

// Matrix holds a species-by-species parameter, such as the lambda interaction between a
// target species and a neighbor species.
type Matrix struct {
	Tag string
	n   int
	v   []float64
}

// NewMatrix returns a zeroed n×n matrix.
func NewMatrix(tag string, n int) Matrix {
	return Matrix{Tag: tag, n: n, v: make([]float64, n*n)}
}

// At returns the value for a target species and a neighbor species.
func (m Matrix) At(target, neighbor int) float64 {
	return m.v[target*m.n+neighbor]
}

// Set stores the value for a target species and a neighbor species.
func (m Matrix) Set(target, neighbor int, v float64) {
	m.v[target*m.n+neighbor] = v
}

func (m Matrix) String() string {
	return fmt.Sprintf("%s[%dx%d]", m.Tag, m.n, m.n)
}
