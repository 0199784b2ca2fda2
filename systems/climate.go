package systems

import (
	"math"

	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/simerr"
)

// Climate writes the configured climate schedule into the plot climate each timestep.
type Climate struct {
	base
	noFields
	schedule config.ClimateConfig
}

// NewClimate creates the climate behavior.
func NewClimate(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	return &Climate{base: b}, nil
}

func (c *Climate) Setup(env *Env) error {
	c.schedule = env.Cfg.Plot.Climate
	for _, s := range []struct {
		name   string
		series []float64
	}{
		{"temp", c.schedule.Temp},
		{"precip", c.schedule.Precip},
		{"seasonal_precip", c.schedule.SeasonalPrecip},
		{"water_deficit", c.schedule.WaterDeficit},
		{"n_dep", c.schedule.NDep},
	} {
		for i, v := range s.series {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return simerr.Config(c.name, s.name, "element %d is not a finite number", i)
			}
		}
	}

	clim := env.Climate
	clim.LongTermTemp = deref(c.schedule.LongTermTemp)
	clim.LongTermPrecip = deref(c.schedule.LongTermPrecip)
	clim.LongTermSeasonal = deref(c.schedule.LongTermSeasonal)
	clim.LongTermWaterDeficit = deref(c.schedule.LongTermWaterDeficit)
	clim.LongTermNitrogen = deref(c.schedule.LongTermNDep)
	return nil
}

func (c *Climate) Action(env *Env) error {
	clim := env.Climate
	clim.MeanAnnualTemp = at(c.schedule.Temp, env.Step, clim.LongTermTemp)
	clim.MeanAnnualPrecip = at(c.schedule.Precip, env.Step, clim.LongTermPrecip)
	clim.SeasonalPrecip = at(c.schedule.SeasonalPrecip, env.Step, clim.LongTermSeasonal)
	clim.WaterDeficit = at(c.schedule.WaterDeficit, env.Step, clim.LongTermWaterDeficit)
	clim.NitrogenDeposition = at(c.schedule.NDep, env.Step, clim.LongTermNitrogen)
	return nil
}

// at returns the element for 1-based step, repeating the last element once the series runs
// out. An empty series holds the long-term mean.
func at(series []float64, step int, def float64) float64 {
	if len(series) == 0 {
		return def
	}
	i := min(max(step-1, 0), len(series)-1)
	return series[i]
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
