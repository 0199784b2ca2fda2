package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// NewSize builds the named size effect.
func NewSize(variant string, env *Env) (SizedEffect, error) {
	switch variant {
	case "", "default", "lognormal":
		return newLognormalSize(env, false)
	case "lower_bounded":
		return newLognormalSize(env, true)
	case "none":
		return noneSized{}, nil
	}
	return nil, simerr.Config(env.Params.Component(), "size", "unknown size effect %q", variant)
}

// lognormalSize is exp(-0.5·(ln(diam/X0)/Xb)²), peaking at diam = X0. The lower-bounded
// form raises diam to a species minimum first.
type lognormalSize struct {
	x0, xb  params.Table
	minDiam params.Table
	bounded bool
}

func newLognormalSize(env *Env, bounded bool) (*lognormalSize, error) {
	src := env.Params
	e := &lognormalSize{bounded: bounded}
	var err error
	if e.x0, err = src.Species("nciSizeX0", env.Covered); err != nil {
		return nil, err
	}
	if e.xb, err = src.Species("nciSizeXb", env.Covered); err != nil {
		return nil, err
	}
	if err := firstErr(e.x0.Positive(), e.xb.NonZero()); err != nil {
		return nil, err
	}
	if bounded {
		if e.minDiam, err = src.Species("nciSizeMinDBH", env.Covered); err != nil {
			return nil, err
		}
		if err := e.minDiam.NonNegative(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func lognormal(x, x0, xb float64) float64 {
	if x <= 0 {
		return 0
	}
	z := math.Log(x/x0) / xb
	return clamp01(math.Exp(-0.5 * z * z))
}

func (e *lognormalSize) Effect(t population.Tree, _ Value, diam float64) float64 {
	sp := t.Species()
	if e.bounded {
		diam = max(diam, e.minDiam.At(sp))
	}
	return lognormal(diam, e.x0.At(sp), e.xb.At(sp))
}
