package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// NewShading builds the named shading effect. Every variant but none reads the Light field,
// which a light behavior must register for all covered combos.
func NewShading(variant string, env *Env) (TreeEffect, error) {
	switch variant {
	case "default":
		return newShading(env, variant, false)
	case "gli":
		return newShading(env, variant, true)
	case "", "none":
		return none{}, nil
	}
	return nil, simerr.Config(env.Params.Component(), "shading", "unknown shading effect %q", variant)
}

// shading is exp(-m·S^n). S is the stored Light value, or 1 - GLI/100 when the Light field
// holds a GLI.
type shading struct {
	m, n      params.Table
	lightCode int
	fromGLI   bool
}

func newShading(env *Env, variant string, fromGLI bool) (*shading, error) {
	code, err := env.requireField("shading effect "+variant, population.FieldLight, population.FloatField)
	if err != nil {
		return nil, err
	}
	e := &shading{lightCode: code, fromGLI: fromGLI}
	if e.m, err = env.Params.Species("nciShadingCoefficient", env.Covered); err != nil {
		return nil, err
	}
	if e.n, err = env.Params.Species("nciShadingExponent", env.Covered); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *shading) Effect(t population.Tree) float64 {
	s := t.Float(e.lightCode)
	if e.fromGLI {
		s = 1 - clamp01(s/100)
	}
	if s <= 0 {
		return 1
	}
	sp := t.Species()
	return clamp01(math.Exp(-e.m.At(sp) * math.Pow(s, e.n.At(sp))))
}

// NewDamage builds the named storm damage effect.
func NewDamage(variant string, env *Env) (TreeEffect, error) {
	switch variant {
	case "", "none":
		return none{}, nil
	case "default":
		return newDamage(env)
	}
	return nil, simerr.Config(env.Params.Component(), "damage", "unknown damage effect %q", variant)
}

// damage returns a species constant for medium or full storm damage. The stm_dmg field holds
// 1000 times the severity (1 medium, 2 full) plus the years since damage.
type damage struct {
	medium, full params.Table
	code         int
}

func newDamage(env *Env) (*damage, error) {
	code, err := env.requireField("damage effect default", population.FieldStormDamage, population.IntField)
	if err != nil {
		return nil, err
	}
	e := &damage{code: code}
	if e.medium, err = env.Params.Species("nciStormDamageMedium", env.Covered); err != nil {
		return nil, err
	}
	if e.full, err = env.Params.Species("nciStormDamageFull", env.Covered); err != nil {
		return nil, err
	}
	return e, firstErr(e.medium.Within01(), e.full.Within01())
}

func (e *damage) Effect(t population.Tree) float64 {
	switch t.Int(e.code) / 1000 {
	case 0:
		return 1
	case 1:
		return clamp01(e.medium.At(t.Species()))
	default:
		return clamp01(e.full.At(t.Species()))
	}
}
