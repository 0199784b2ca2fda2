// Package nci composes a neighborhood competition index with a set of multiplicative effect
// terms into per-tree diameter growth or survival.
//
// Each slot (crowding, size, shading, ...) holds one variant chosen by name when the owning
// behavior is set up. Every effect returns a value in [0, 1]; the competition index itself is
// unbounded.
package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// Value is a competition index. Single-valued terms set only NCI; two-valued terms put the
// target-relative ratio in NCI and the raw neighborhood total in Sum.
type Value struct {
	NCI float64
	Sum float64
}

// Term computes a tree's competition index.
type Term interface {
	Compute(t population.Tree) Value
}

// SizedEffect depends on the tree's diameter, so growth re-evaluates it every sub-step with
// the working diameter.
type SizedEffect interface {
	Effect(t population.Tree, v Value, diam float64) float64
}

// TreeEffect depends on the tree but not on its diameter; it is evaluated once per tree per
// timestep.
type TreeEffect interface {
	Effect(t population.Tree) float64
}

// ClimateEffect depends only on species and plot climate; it is evaluated once per species
// per timestep.
type ClimateEffect interface {
	Effect(species int, clim *plot.Climate) float64
}

// PreCalcer is implemented by terms that cache timestep-scoped state. PreCalcs runs once per
// timestep before any tree is evaluated.
type PreCalcer interface {
	PreCalcs(clim *plot.Climate)
}

// Env is what a term needs at setup.
type Env struct {
	Pop     *population.Population
	Params  *params.Source
	Covered []int              // species codes the owning behavior applies to
	Combos  []population.Combo // species/type combos the owning behavior applies to
}

// AllSpecies returns every species code, for parameters indexed by neighbor species.
func (e *Env) AllSpecies() []int {
	all := make([]int, e.Pop.NumSpecies())
	for i := range all {
		all[i] = i
	}
	return all
}

// requireField returns the code of a field that another behavior must have registered for
// every combo this one covers.
func (e *Env) requireField(component, name string, kind population.FieldKind) (int, error) {
	code, ok := e.Pop.FieldCode(name, kind)
	if !ok {
		return 0, simerr.Prerequisite(component, name, "%s field is not registered by any behavior", kind)
	}
	for _, c := range e.Combos {
		if !e.Pop.Registered(name, c.Species, c.Type) {
			return 0, simerr.Prerequisite(component, name, "not registered for species %s type %s",
				e.Pop.SpeciesNames()[c.Species], c.Type)
		}
	}
	return code, nil
}

// none is the identity for the NCI and per-tree slots. The NCI term returns zero, which
// every crowding variant treats as no competition.
type none struct{}

func (none) Compute(population.Tree) Value  { return Value{} }
func (none) Effect(population.Tree) float64 { return 1 }

type noneSized struct{}

func (noneSized) Effect(population.Tree, Value, float64) float64 { return 1 }

type noneClimate struct{}

func (noneClimate) Effect(int, *plot.Climate) float64 { return 1 }

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// firstErr returns the first non-nil error.
func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
