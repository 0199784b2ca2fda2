package nci

import (
	"math"
	"sort"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// Mode selects whether an Engine produces growth or survival.
type Mode uint8

const (
	Growth Mode = iota
	Mortality
)

func (m Mode) String() string {
	if m == Mortality {
		return "mortality"
	}
	return "growth"
}

// Term slot names as they appear in a behavior's terms block.
const (
	SlotNCI           = "nci"
	SlotCrowding      = "crowding"
	SlotSize          = "size"
	SlotShading       = "shading"
	SlotDamage        = "damage"
	SlotTemperature   = "temperature"
	SlotPrecipitation = "precipitation"
	SlotPrecipSource  = "precipitation_source"
	SlotNitrogen      = "nitrogen"
	SlotInfection     = "infection"
)

var knownSlots = map[string]bool{
	SlotNCI: true, SlotCrowding: true, SlotSize: true, SlotShading: true, SlotDamage: true,
	SlotTemperature: true, SlotPrecipitation: true, SlotPrecipSource: true, SlotNitrogen: true,
	SlotInfection: true,
}

// Engine combines a competition index with every effect slot into a per-tree growth
// increment or survival probability.
type Engine struct {
	mode    Mode
	pop     *population.Population
	years   int
	maxRate params.Table
	covered []int

	term          Term
	crowding      SizedEffect
	size          SizedEffect
	shading       TreeEffect
	damage        TreeEffect
	infection     TreeEffect
	temperature   ClimateEffect
	precipitation ClimateEffect
	nitrogen      ClimateEffect

	preCalcs []PreCalcer
	climate  []float64 // per species, refreshed by Prepare
}

// New builds an engine from a behavior's term selectors. years is the number of years per
// timestep. Growth reads nciMaxPotentialGrowth (cm/yr); mortality reads nciMaxSurvival
// (annual probability).
func New(mode Mode, terms map[string]string, env *Env, years int) (*Engine, error) {
	component := env.Params.Component()
	slots := make([]string, 0, len(terms))
	for slot := range terms {
		slots = append(slots, slot)
	}
	sort.Strings(slots)
	for _, slot := range slots {
		if !knownSlots[slot] {
			return nil, simerr.Config(component, slot, "unknown term slot")
		}
	}
	if years < 1 {
		return nil, simerr.Config(component, "years_per_timestep", "must be at least 1, got %d", years)
	}
	if len(env.Covered) == 0 {
		return nil, simerr.Config(component, "applies", "behavior covers no species")
	}

	e := &Engine{
		mode:    mode,
		pop:     env.Pop,
		years:   years,
		covered: env.Covered,
		climate: make([]float64, env.Pop.NumSpecies()),
	}

	var err error
	switch mode {
	case Growth:
		if e.maxRate, err = env.Params.Species("nciMaxPotentialGrowth", env.Covered); err == nil {
			err = e.maxRate.NonNegative()
		}
	case Mortality:
		if e.maxRate, err = env.Params.Species("nciMaxSurvival", env.Covered); err == nil {
			err = e.maxRate.Within01()
		}
	}
	if err != nil {
		return nil, err
	}

	if e.term, err = NewTerm(terms[SlotNCI], env); err != nil {
		return nil, err
	}
	if e.crowding, err = NewCrowding(terms[SlotCrowding], env); err != nil {
		return nil, err
	}
	if e.size, err = NewSize(terms[SlotSize], env); err != nil {
		return nil, err
	}
	if e.shading, err = NewShading(terms[SlotShading], env); err != nil {
		return nil, err
	}
	if e.damage, err = NewDamage(terms[SlotDamage], env); err != nil {
		return nil, err
	}
	if e.infection, err = NewInfection(terms[SlotInfection], env); err != nil {
		return nil, err
	}
	if e.temperature, err = NewTemperature(terms[SlotTemperature], env); err != nil {
		return nil, err
	}
	src, err := plot.ParsePrecipSource(terms[SlotPrecipSource])
	if err != nil {
		return nil, simerr.Config(component, SlotPrecipSource, "%v", err)
	}
	if e.precipitation, err = NewPrecipitation(terms[SlotPrecipitation], src, env); err != nil {
		return nil, err
	}
	if e.nitrogen, err = NewNitrogen(terms[SlotNitrogen], env); err != nil {
		return nil, err
	}

	e.collectPreCalcs()
	return e, nil
}

func (e *Engine) collectPreCalcs() {
	e.preCalcs = e.preCalcs[:0]
	for _, slot := range []any{
		e.term, e.crowding, e.size, e.shading, e.damage, e.infection,
		e.temperature, e.precipitation, e.nitrogen,
	} {
		if p, ok := slot.(PreCalcer); ok {
			e.preCalcs = append(e.preCalcs, p)
		}
	}
}

// Mode returns what the engine produces.
func (e *Engine) Mode() Mode {
	return e.mode
}

// Prepare runs once per timestep before any tree: it refreshes timestep-scoped term state
// and evaluates the climate effects for every covered species.
func (e *Engine) Prepare(clim *plot.Climate) {
	for _, p := range e.preCalcs {
		p.PreCalcs(clim)
	}
	for _, sp := range e.covered {
		e.climate[sp] = e.temperature.Effect(sp, clim) *
			e.precipitation.Effect(sp, clim) *
			e.nitrogen.Effect(sp, clim)
	}
}

// Skip reports whether a tree is excluded: trees killed by anything other than natural
// mortality neither grow nor die again.
func (e *Engine) Skip(t population.Tree) bool {
	return !e.pop.DeathCode(t).Competes()
}

// Growth returns a tree's diameter increment over the whole timestep, cm. Diameter-dependent
// effects are re-evaluated each year with the diameter grown so far; sapling increments are
// converted to DBH before advancing.
func (e *Engine) Growth(t population.Tree) float64 {
	sp := t.Species()
	v := e.term.Compute(t)
	fixed := e.maxRate.At(sp) *
		e.shading.Effect(t) *
		e.damage.Effect(t) *
		e.infection.Effect(t) *
		e.climate[sp]

	sapling := t.Type() == components.Sapling
	diam := t.Diam()
	var total float64
	for range e.years {
		inc := fixed * e.size.Effect(t, v, diam) * e.crowding.Effect(t, v, diam)
		total += inc
		if sapling {
			diam += e.pop.ConvertDiam10ToDBH(inc, sp)
		} else {
			diam += inc
		}
	}
	return total
}

// Survival returns a tree's probability of surviving the whole timestep.
func (e *Engine) Survival(t population.Tree) float64 {
	sp := t.Species()
	v := e.term.Compute(t)
	diam := t.Diam()
	annual := e.maxRate.At(sp) *
		e.size.Effect(t, v, diam) *
		e.crowding.Effect(t, v, diam) *
		e.shading.Effect(t) *
		e.damage.Effect(t) *
		e.infection.Effect(t) *
		e.climate[sp]
	return math.Pow(annual, float64(e.years))
}

// Dies reports whether a tree dies this timestep given a uniform draw in [0, 1).
func (e *Engine) Dies(t population.Tree, draw float64) bool {
	return draw > e.Survival(t)
}
