package systems

import (
	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// GrowthApplier commits the Growth field to each covered tree's size and moves trees that
// outgrow their life stage: seedlings reaching the seedling height become saplings and
// saplings reaching the species' maximum sapling DBH become adults.
type GrowthApplier struct {
	base
	noFields
	growthCode int
}

// NewGrowthApplier creates the growth applier behavior.
func NewGrowthApplier(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	return &GrowthApplier{base: b}, nil
}

func (g *GrowthApplier) Setup(env *Env) error {
	code, ok := env.Pop.FieldCode(population.FieldGrowth, population.FloatField)
	if !ok {
		return simerr.Prerequisite(g.name, population.FieldGrowth, "no growth behavior registered the field")
	}
	for _, c := range g.combos {
		if !env.Pop.Registered(population.FieldGrowth, c.Species, c.Type) {
			return simerr.Prerequisite(g.name, population.FieldGrowth, "not registered for species %s type %s",
				env.Pop.SpeciesNames()[c.Species], c.Type)
		}
	}
	g.growthCode = code
	return nil
}

func (g *GrowthApplier) Action(env *Env) error {
	for t := range env.Pop.All() {
		if !g.covers(t) || env.Pop.DeathCode(t) != components.NotDead {
			continue
		}
		from, to := env.Pop.Grow(t, t.Float(g.growthCode))
		if from != to {
			env.Collector.RecordTransition(from, to)
		}
	}
	return nil
}
