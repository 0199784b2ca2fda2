package systems

import (
	"math"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/population"
)

// TreeState registers the shared per-tree state fields (dead, stm_dmg, YearsInfested) and
// advances infestation and storm damage each timestep.
//
// An infested tree's YearsInfested grows by the timestep length; an uninfested tree becomes
// infested with probability infInfectionProb per year. stm_dmg holds 1000 times the damage
// severity (1 medium, 2 full) plus the years since damage; trees recover after
// stmRecoveryYears.
type TreeState struct {
	base

	infectProb   params.Table
	damageProb   params.Table
	fullFraction params.Table
	recovery     float64

	deadCode     int
	damageCode   int
	infestedCode int
}

// NewTreeState creates the tree state behavior.
func NewTreeState(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	return &TreeState{base: b}, nil
}

func (s *TreeState) RegisterFields(pop *population.Population) error {
	var err error
	if s.deadCode, err = pop.RegisterInt(population.FieldDead, s.combos); err != nil {
		return err
	}
	if s.damageCode, err = pop.RegisterInt(population.FieldStormDamage, s.combos); err != nil {
		return err
	}
	s.infestedCode, err = pop.RegisterInt(population.FieldYearsInfested, s.combos)
	return err
}

func (s *TreeState) Setup(env *Env) error {
	var err error
	if s.infectProb, err = s.params.SpeciesOr("infInfectionProb", s.covered, 0); err != nil {
		return err
	}
	if s.damageProb, err = s.params.SpeciesOr("stmDamageProb", s.covered, 0); err != nil {
		return err
	}
	if s.fullFraction, err = s.params.SpeciesOr("stmFullDamageFraction", s.covered, 0); err != nil {
		return err
	}
	s.recovery = 10
	if err := s.params.Single("stmRecoveryYears", &s.recovery, false); err != nil {
		return err
	}
	return firstErr(s.infectProb.Within01(), s.damageProb.Within01(), s.fullFraction.Within01())
}

func (s *TreeState) Action(env *Env) error {
	years := int32(env.Years)
	for t := range env.Pop.All() {
		if !s.covers(t) || env.Pop.DeathCode(t) != components.NotDead {
			continue
		}
		sp := t.Species()

		if infested := t.Int(s.infestedCode); infested > 0 {
			t.SetInt(s.infestedCode, infested+years)
		} else if p := s.infectProb.At(sp); p > 0 && env.Rng.Float64() < perStep(p, env.Years) {
			t.SetInt(s.infestedCode, 1)
		}

		dmg := t.Int(s.damageCode)
		switch {
		case dmg > 0:
			since := dmg%1000 + years
			if float64(since) >= s.recovery {
				t.SetInt(s.damageCode, 0)
			} else {
				t.SetInt(s.damageCode, dmg/1000*1000+since)
			}
		case s.damageProb.At(sp) > 0 && env.Rng.Float64() < perStep(s.damageProb.At(sp), env.Years):
			severity := int32(1)
			if env.Rng.Float64() < s.fullFraction.At(sp) {
				severity = 2
			}
			t.SetInt(s.damageCode, severity*1000)
		}
	}
	return nil
}

// perStep converts an annual probability into the probability of at least one event in a
// timestep of the given length.
func perStep(annual float64, years int) float64 {
	return 1 - math.Pow(1-annual, float64(years))
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
