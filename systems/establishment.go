package systems

import (
	"math"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/simerr"
)

// EpiphyticEstablishment establishes seedlings of an epiphyte species on covered host trees.
// Each timestep every live host gets one seedling with probability
// 1 / (1 + exp(-(a + b·GLI))), where GLI is measured at the base of the host's crown and a,
// b are epiEstabA and epiEstabB for the host species. The epiphyte species is named by
// the behavior's epiphyte field; new seedlings have diam10 epiInitialDiam10.
type EpiphyticEstablishment struct {
	base
	noFields
	lightEngines

	epiphyte    int
	initialDiam float64
	a, b        params.Table

	jobs   []lightJob
	values []float64
}

// NewEpiphyticEstablishment creates the epiphytic establishment behavior.
func NewEpiphyticEstablishment(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	e := &EpiphyticEstablishment{base: b, epiphyte: -1}
	for i, n := range names {
		if n == cfg.Epiphyte {
			e.epiphyte = i
		}
	}
	if e.epiphyte < 0 {
		return nil, simerr.Config(cfg.Name, "epiphyte", "unknown epiphyte species %q", cfg.Epiphyte)
	}
	return e, nil
}

func (e *EpiphyticEstablishment) Setup(env *Env) error {
	var err error
	if e.a, err = e.params.Species("epiEstabA", e.covered); err != nil {
		return err
	}
	if e.b, err = e.params.Species("epiEstabB", e.covered); err != nil {
		return err
	}
	e.initialDiam = 0.1
	if err := e.params.Single("epiInitialDiam10", &e.initialDiam, false); err != nil {
		return err
	}
	if e.initialDiam <= 0 {
		return simerr.Config(e.name, "epiInitialDiam10", "must be greater than 0, got %v", e.initialDiam)
	}
	return e.lightEngines.setup(&e.base, env)
}

func (e *EpiphyticEstablishment) Action(env *Env) error {
	e.jobs = e.jobs[:0]
	for t := range env.Pop.All() {
		if !e.covers(t) || env.Pop.DeathCode(t) != components.NotDead {
			continue
		}
		crownBase := math.Max(t.Height()-t.CrownDepth(), 0)
		e.jobs = append(e.jobs, lightJob{tree: t, height: crownBase})
	}

	e.values = grow(e.values, len(e.jobs))
	if err := e.evaluate(env, e.jobs, e.values); err != nil {
		return err
	}

	// Hosts are collected before planting, so new seedlings never host this timestep.
	established := 0
	for i, j := range e.jobs {
		sp := j.tree.Species()
		p := 1 / (1 + math.Exp(-(e.a.At(sp) + e.b.At(sp)*e.values[i])))
		if env.Rng.Float64() >= p {
			continue
		}
		pos := j.tree.Position()
		env.Pop.Add(e.epiphyte, components.Seedling, pos.X, pos.Y, e.initialDiam)
		established++
	}
	env.Collector.RecordEstablishment(established)
	return nil
}
