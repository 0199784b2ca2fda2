package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// NewInfection builds the named infection effect.
func NewInfection(variant string, env *Env) (TreeEffect, error) {
	switch variant {
	case "", "none":
		return none{}, nil
	case "log_linear":
		return newInfection(env, variant, false)
	case "size_dependent":
		return newInfection(env, variant, true)
	}
	return nil, simerr.Config(env.Params.Component(), "infection", "unknown infection effect %q", variant)
}

// infection is a·ln(years infested)+b for infested trees and 1 otherwise. The size-dependent
// form multiplies in exp(-0.5·(ln((diam+shift)/X0)/Xb)²).
type infection struct {
	code   int
	a, b   params.Table
	sized  bool
	x0, xb params.Table
	shift  params.Table
}

func newInfection(env *Env, variant string, sized bool) (*infection, error) {
	code, err := env.requireField("infection effect "+variant, population.FieldYearsInfested, population.IntField)
	if err != nil {
		return nil, err
	}
	e := &infection{code: code, sized: sized}
	t, err := tables(env, "nciInf", "A", "B")
	if err != nil {
		return nil, err
	}
	e.a, e.b = t[0], t[1]
	if sized {
		t, err := tables(env, "nciInfSize", "X0", "Xb", "Shift")
		if err != nil {
			return nil, err
		}
		e.x0, e.xb, e.shift = t[0], t[1], t[2]
		if err := firstErr(e.x0.Positive(), e.xb.NonZero(), e.shift.NonNegative()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *infection) Effect(t population.Tree) float64 {
	years := t.Int(e.code)
	if years <= 0 {
		return 1
	}
	sp := t.Species()
	v := e.a.At(sp)*math.Log(float64(years)) + e.b.At(sp)
	if e.sized {
		v *= lognormal(t.Diam()+e.shift.At(sp), e.x0.At(sp), e.xb.At(sp))
	}
	return clamp01(v)
}
