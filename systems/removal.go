package systems

import (
	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// DeadRemoval sweeps trees carrying a death code out of the population and records the
// deaths. With deadMakeSnags set, adults that died naturally stay standing as snags; each
// snag falls with probability snagFallProb per timestep.
type DeadRemoval struct {
	base
	noFields

	makeSnags bool
	fallProb  float64
	trees     []population.Tree
}

// NewDeadRemoval creates the dead removal behavior.
func NewDeadRemoval(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	return &DeadRemoval{base: b}, nil
}

func (d *DeadRemoval) Setup(env *Env) error {
	if err := d.params.Bool("deadMakeSnags", &d.makeSnags, false); err != nil {
		return err
	}
	d.fallProb = 0.2
	if err := d.params.Single("snagFallProb", &d.fallProb, false); err != nil {
		return err
	}
	if d.fallProb < 0 || d.fallProb > 1 {
		return simerr.Config(d.name, "snagFallProb", "must be in [0, 1], got %v", d.fallProb)
	}
	return nil
}

func (d *DeadRemoval) Action(env *Env) error {
	pop := env.Pop
	// Collect first: removal is a structural change and must not happen mid-query.
	d.trees = pop.Snapshot(d.trees[:0])
	for _, t := range d.trees {
		code := pop.DeathCode(t)
		if code == components.NotDead {
			if t.Type() == components.Snag && env.Rng.Float64() < d.fallProb {
				pop.Remove(t)
			}
			continue
		}

		env.Collector.RecordDeath(code)
		if d.makeSnags && code == components.Natural && t.Type() == components.Adult {
			pop.MakeSnag(t)
			if err := pop.Kill(t, components.NotDead); err != nil {
				return err
			}
			continue
		}
		pop.Remove(t)
	}
	clear(d.trees)
	return nil
}
