package nci

import (
	"math"

	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/simerr"
)

// climateVar names the plot variable a climate effect responds to.
type climateVar struct {
	slot     string
	prefix   string // parameter tag prefix
	current  func(*plot.Climate) float64
	longTerm func(*plot.Climate) float64
}

var temperatureVar = climateVar{
	slot:     "temperature",
	prefix:   "nciTemp",
	current:  func(c *plot.Climate) float64 { return c.MeanAnnualTemp },
	longTerm: func(c *plot.Climate) float64 { return c.LongTermTemp },
}

func precipitationVar(src plot.PrecipSource) climateVar {
	return climateVar{
		slot:     "precipitation",
		prefix:   "nciPrecip",
		current:  func(c *plot.Climate) float64 { return c.Precip(src) },
		longTerm: func(c *plot.Climate) float64 { return c.LongTermPrecipOf(src) },
	}
}

// NewTemperature builds the named temperature effect.
func NewTemperature(variant string, env *Env) (ClimateEffect, error) {
	return newClimateEffect(variant, temperatureVar, env)
}

// NewPrecipitation builds the named precipitation effect reading the given moisture variable.
func NewPrecipitation(variant string, src plot.PrecipSource, env *Env) (ClimateEffect, error) {
	return newClimateEffect(variant, precipitationVar(src), env)
}

func newClimateEffect(variant string, v climateVar, env *Env) (ClimateEffect, error) {
	switch variant {
	case "", "none":
		return noneClimate{}, nil
	case "weibull":
		return newWeibull(v, env)
	case "double_logistic":
		return newDoubleLogistic(v, env)
	case "double_no_local_diff":
		return newDoubleGaussian(v, env, false)
	case "double_local_diff":
		return newDoubleGaussian(v, env, true)
	}
	return nil, simerr.Config(env.Params.Component(), v.slot, "unknown %s effect %q", v.slot, variant)
}

// tables reads one per-species table for each suffix, in order.
func tables(env *Env, prefix string, suffixes ...string) ([]params.Table, error) {
	out := make([]params.Table, len(suffixes))
	for i, s := range suffixes {
		t, err := env.Params.Species(prefix+s, env.Covered)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// weibull is exp(-0.5·(|x-C|/A)^B).
type weibull struct {
	v       climateVar
	a, b, c params.Table
}

func newWeibull(v climateVar, env *Env) (*weibull, error) {
	t, err := tables(env, v.prefix, "A", "B", "C")
	if err != nil {
		return nil, err
	}
	e := &weibull{v: v, a: t[0], b: t[1], c: t[2]}
	return e, e.a.NonZero()
}

func (e *weibull) Effect(sp int, clim *plot.Climate) float64 {
	x := e.v.current(clim)
	return clamp01(math.Exp(-0.5 * math.Pow(math.Abs((x-e.c.At(sp))/e.a.At(sp)), e.b.At(sp))))
}

// doubleLogistic is the product of a term saturating at low x and one saturating at high x:
// (al + (1-al)/(1+(bl/x)^cl)) · (ah + (1-ah)/(1+(x/bh)^ch)).
type doubleLogistic struct {
	v          climateVar
	al, bl, cl params.Table
	ah, bh, ch params.Table
}

func newDoubleLogistic(v climateVar, env *Env) (*doubleLogistic, error) {
	t, err := tables(env, v.prefix, "Al", "Bl", "Cl", "Ah", "Bh", "Ch")
	if err != nil {
		return nil, err
	}
	e := &doubleLogistic{v: v, al: t[0], bl: t[1], cl: t[2], ah: t[3], bh: t[4], ch: t[5]}
	return e, firstErr(e.al.Within01(), e.ah.Within01(), e.bl.Positive(), e.bh.Positive())
}

func (e *doubleLogistic) Effect(sp int, clim *plot.Climate) float64 {
	x := e.v.current(clim)
	al, ah := e.al.At(sp), e.ah.At(sp)

	low := al
	if x > 0 {
		low = al + (1-al)/(1+math.Pow(e.bl.At(sp)/x, e.cl.At(sp)))
	}
	high := ah + (1-ah)/(1+math.Pow(math.Max(x, 0)/e.bh.At(sp), e.ch.At(sp)))
	return clamp01(low * high)
}

// doubleGaussian weighs this year's and last year's value, each through a Gaussian with
// separate breadths below and above the threshold. The local-difference form works on
// anomalies from the long-term mean and scales the current-year weight by a Gaussian of
// that mean.
type doubleGaussian struct {
	v          climateVar
	localDiff  bool
	threshold  params.Table
	lowBreadth params.Table
	hiBreadth  params.Table
	currWeight params.Table
	ltmX0      params.Table
	ltmXb      params.Table

	cur, prev, ltm float64
	started        bool
}

func newDoubleGaussian(v climateVar, env *Env, localDiff bool) (*doubleGaussian, error) {
	t, err := tables(env, v.prefix, "Threshold", "LowBreadth", "HighBreadth", "CurrWeight")
	if err != nil {
		return nil, err
	}
	e := &doubleGaussian{v: v, localDiff: localDiff, threshold: t[0], lowBreadth: t[1], hiBreadth: t[2], currWeight: t[3]}
	if err := firstErr(e.lowBreadth.NonZero(), e.hiBreadth.NonZero(), e.currWeight.Within01()); err != nil {
		return nil, err
	}
	if localDiff {
		t, err := tables(env, v.prefix, "LTMX0", "LTMXb")
		if err != nil {
			return nil, err
		}
		e.ltmX0, e.ltmXb = t[0], t[1]
		if err := e.ltmXb.NonZero(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// PreCalcs rolls this year's value into last year's. On the first timestep both are the
// current value.
func (e *doubleGaussian) PreCalcs(clim *plot.Climate) {
	x := e.v.current(clim)
	e.ltm = e.v.longTerm(clim)
	if e.localDiff {
		x -= e.ltm
	}
	if e.started {
		e.prev = e.cur
	} else {
		e.prev = x
		e.started = true
	}
	e.cur = x
}

func gaussian(x, x0, xb float64) float64 {
	z := (x - x0) / xb
	return math.Exp(-0.5 * z * z)
}

func (e *doubleGaussian) branch(sp int, x float64) float64 {
	c := e.threshold.At(sp)
	if x < c {
		return gaussian(x, c, e.lowBreadth.At(sp))
	}
	return gaussian(x, c, e.hiBreadth.At(sp))
}

func (e *doubleGaussian) Effect(sp int, _ *plot.Climate) float64 {
	w := e.currWeight.At(sp)
	if e.localDiff {
		w *= gaussian(e.ltm, e.ltmX0.At(sp), e.ltmXb.At(sp))
	}
	return clamp01(w*e.branch(sp, e.cur) + (1-w)*e.branch(sp, e.prev))
}

// NewNitrogen builds the named nitrogen effect.
func NewNitrogen(variant string, env *Env) (ClimateEffect, error) {
	switch variant {
	case "", "none":
		return noneClimate{}, nil
	case "gaussian":
		t, err := tables(env, "nciN", "X0", "Xb")
		if err != nil {
			return nil, err
		}
		e := &nitrogen{x0: t[0], xb: t[1]}
		return e, e.xb.NonZero()
	}
	return nil, simerr.Config(env.Params.Component(), "nitrogen", "unknown nitrogen effect %q", variant)
}

// nitrogen is exp(-0.5·((Ndep-X0)/Xb)²).
type nitrogen struct {
	x0, xb params.Table
}

func (e *nitrogen) Effect(sp int, clim *plot.Climate) float64 {
	return clamp01(gaussian(clim.NitrogenDeposition, e.x0.At(sp), e.xb.At(sp)))
}
