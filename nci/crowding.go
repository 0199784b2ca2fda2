package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// NewCrowding builds the named crowding effect.
func NewCrowding(variant string, env *Env) (SizedEffect, error) {
	switch variant {
	case "", "default":
		return newDefaultCrowding(env)
	case "temperature_dependent":
		return newTempCrowding(env)
	case "two_value":
		return newTwoValueCrowding(env)
	case "none":
		return noneSized{}, nil
	}
	return nil, simerr.Config(env.Params.Component(), "crowding", "unknown crowding effect %q", variant)
}

type crowdingParams struct {
	c, d, gamma params.Table
}

func readCrowding(env *Env) (crowdingParams, error) {
	src := env.Params
	var p crowdingParams
	var err error
	if p.c, err = src.Species("nciCrowdingC", env.Covered); err != nil {
		return p, err
	}
	if p.d, err = src.Species("nciCrowdingD", env.Covered); err != nil {
		return p, err
	}
	if p.gamma, err = src.Species("nciCrowdingGamma", env.Covered); err != nil {
		return p, err
	}
	return p, nil
}

// defaultCrowding is exp(-C · diam^γ · NCI^D).
type defaultCrowding struct {
	crowdingParams
}

func newDefaultCrowding(env *Env) (*defaultCrowding, error) {
	p, err := readCrowding(env)
	if err != nil {
		return nil, err
	}
	return &defaultCrowding{p}, nil
}

func crowding(c, d, gamma, diam, nci float64) float64 {
	if nci <= 0 {
		return 1
	}
	return clamp01(math.Exp(-c * math.Pow(diam, gamma) * math.Pow(nci, d)))
}

func (e *defaultCrowding) Effect(t population.Tree, v Value, diam float64) float64 {
	sp := t.Species()
	return crowding(e.c.At(sp), e.d.At(sp), e.gamma.At(sp), diam, v.NCI)
}

// tempCrowding scales C each timestep by 1 - exp(-0.5·((T-X0)/Xb)²) of the plot's mean
// annual temperature.
type tempCrowding struct {
	crowdingParams
	x0, xb  params.Table
	covered []int
	cNow    []float64
}

func newTempCrowding(env *Env) (*tempCrowding, error) {
	p, err := readCrowding(env)
	if err != nil {
		return nil, err
	}
	e := &tempCrowding{crowdingParams: p, covered: env.Covered, cNow: make([]float64, env.Pop.NumSpecies())}
	if e.x0, err = env.Params.Species("nciCrowdingTempX0", env.Covered); err != nil {
		return nil, err
	}
	if e.xb, err = env.Params.Species("nciCrowdingTempXb", env.Covered); err != nil {
		return nil, err
	}
	if err := e.xb.NonZero(); err != nil {
		return nil, err
	}
	copy(e.cNow, p.c.Values())
	return e, nil
}

func (e *tempCrowding) PreCalcs(clim *plot.Climate) {
	for _, sp := range e.covered {
		z := (clim.MeanAnnualTemp - e.x0.At(sp)) / e.xb.At(sp)
		e.cNow[sp] = e.c.At(sp) * (1 - math.Exp(-0.5*z*z))
	}
}

func (e *tempCrowding) Effect(t population.Tree, v Value, diam float64) float64 {
	sp := t.Species()
	return crowding(e.cNow[sp], e.d.At(sp), e.gamma.At(sp), diam, v.NCI)
}

// twoValueCrowding is exp(-C · diam^γ · ratio^Dr · sum^D) for two-valued NCI terms.
type twoValueCrowding struct {
	crowdingParams
	dr params.Table
}

func newTwoValueCrowding(env *Env) (*twoValueCrowding, error) {
	p, err := readCrowding(env)
	if err != nil {
		return nil, err
	}
	e := &twoValueCrowding{crowdingParams: p}
	if e.dr, err = env.Params.Species("nciCrowdingRatioExp", env.Covered); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *twoValueCrowding) Effect(t population.Tree, v Value, diam float64) float64 {
	if v.NCI <= 0 || v.Sum <= 0 {
		return 1
	}
	sp := t.Species()
	return clamp01(math.Exp(-e.c.At(sp) * math.Pow(diam, e.gamma.At(sp)) *
		math.Pow(v.NCI, e.dr.At(sp)) * math.Pow(v.Sum, e.d.At(sp))))
}
