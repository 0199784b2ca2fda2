package systems

import (
	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/nci"
	"github.com/pthm-cable/canopy/population"
)

// NCIGrowth computes each covered tree's diameter increment for the timestep into its
// Growth field. Seedling and sapling increments are diam10; adult increments are DBH.
type NCIGrowth struct {
	base
	engine     *nci.Engine
	growthCode int
}

// NewNCIGrowth creates the NCI growth behavior.
func NewNCIGrowth(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	return &NCIGrowth{base: b}, nil
}

func (g *NCIGrowth) RegisterFields(pop *population.Population) error {
	var err error
	g.growthCode, err = pop.RegisterFloat(population.FieldGrowth, g.combos)
	return err
}

func (g *NCIGrowth) Setup(env *Env) error {
	var err error
	g.engine, err = nci.New(nci.Growth, g.cfg.Terms, g.nciEnv(env), env.Years)
	return err
}

func (g *NCIGrowth) Action(env *Env) error {
	g.engine.Prepare(env.Climate)
	for t := range env.Pop.All() {
		if !g.covers(t) {
			continue
		}
		if g.engine.Skip(t) {
			t.SetFloat(g.growthCode, 0)
			continue
		}
		t.SetFloat(g.growthCode, g.engine.Growth(t))
	}
	return nil
}

// NCIMortality kills covered trees with the NCI survival probability. Killed trees get the
// natural death code and keep competing until they are removed.
type NCIMortality struct {
	base
	engine *nci.Engine
}

// NewNCIMortality creates the NCI mortality behavior.
func NewNCIMortality(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	return &NCIMortality{base: b}, nil
}

func (m *NCIMortality) RegisterFields(pop *population.Population) error {
	_, err := pop.RegisterInt(population.FieldDead, m.combos)
	return err
}

func (m *NCIMortality) Setup(env *Env) error {
	var err error
	m.engine, err = nci.New(nci.Mortality, m.cfg.Terms, m.nciEnv(env), env.Years)
	return err
}

func (m *NCIMortality) Action(env *Env) error {
	m.engine.Prepare(env.Climate)
	for t := range env.Pop.All() {
		if !m.covers(t) || env.Pop.DeathCode(t) != components.NotDead {
			continue
		}
		if m.engine.Dies(t, env.Rng.Float64()) {
			if err := env.Pop.Kill(t, components.Natural); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *base) nciEnv(env *Env) *nci.Env {
	return &nci.Env{
		Pop:     env.Pop,
		Params:  b.params,
		Covered: b.covered,
		Combos:  b.combos,
	}
}
