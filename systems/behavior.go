// Package systems holds the behaviors that advance a stand one timestep at a time.
//
// The simulation calls RegisterFields on every behavior, then Setup on every behavior,
// then Action on each behavior in configured order every timestep. Fields a behavior
// reads at Setup must therefore have been registered by some behavior, in any position.
package systems

import (
	"math/rand"
	"sort"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/gli"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
	"github.com/pthm-cable/canopy/telemetry"
)

// Behavior is one configured step of the timestep loop.
type Behavior interface {
	Name() string
	Kind() string
	RegisterFields(pop *population.Population) error
	Setup(env *Env) error
	Action(env *Env) error
}

// Env is the run state shared by every behavior.
type Env struct {
	Cfg       *config.Config
	Pop       *population.Population
	Climate   *plot.Climate
	Sky       *gli.Cache
	Rng       *rand.Rand
	Pool      *WorkerPool
	Collector *telemetry.Collector
	Output    *telemetry.OutputManager // nil when output is disabled

	Step  int // current timestep, 1-based
	Years int // years per timestep
}

// Extinction returns each species' crown light transmission in code order.
func (e *Env) Extinction() []float64 {
	ext := make([]float64, len(e.Cfg.Species))
	for i, sp := range e.Cfg.Species {
		ext[i] = sp.LightExtinction
	}
	return ext
}

// base holds what every behavior reads from its configuration entry.
type base struct {
	name    string
	kind    string
	cfg     config.BehaviorConfig
	params  *params.Source
	combos  []population.Combo
	covered []int  // distinct species codes in combos, ascending
	on      []bool // species*NumTypes + type
}

func newBase(cfg config.BehaviorConfig, names []string) (base, error) {
	b := base{
		name:   cfg.Name,
		kind:   cfg.Kind,
		cfg:    cfg,
		params: params.NewSource(cfg.Name, cfg.Params, names),
		on:     make([]bool, len(names)*int(components.NumTypes)),
	}
	index := make(map[string]int, len(names))
	for i, n := range names {
		index[n] = i
	}

	seen := make(map[int]bool)
	for _, c := range cfg.Applies {
		sp, ok := index[c.Species]
		if !ok {
			return b, simerr.Config(cfg.Name, "applies", "unknown species %q", c.Species)
		}
		typ, ok := components.ParseTreeType(c.Type)
		if !ok {
			return b, simerr.Config(cfg.Name, "applies", "unknown tree type %q", c.Type)
		}
		slot := sp*int(components.NumTypes) + int(typ)
		if b.on[slot] {
			continue
		}
		b.on[slot] = true
		b.combos = append(b.combos, population.Combo{Species: sp, Type: typ})
		if !seen[sp] {
			seen[sp] = true
			b.covered = append(b.covered, sp)
		}
	}
	sort.Ints(b.covered)
	return b, nil
}

func (b *base) Name() string { return b.name }
func (b *base) Kind() string { return b.kind }

// covers reports whether the behavior applies to a tree.
func (b *base) covers(t population.Tree) bool {
	return b.on[t.Species()*int(components.NumTypes)+int(t.Type())]
}

// requireApplies fails setup for behaviors that act on trees but were given none.
func (b *base) requireApplies() error {
	if len(b.combos) == 0 {
		return simerr.Config(b.name, "applies", "behavior covers no species")
	}
	return nil
}

// noFields is embedded by behaviors that register nothing.
type noFields struct{}

func (noFields) RegisterFields(*population.Population) error { return nil }
