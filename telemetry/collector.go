package telemetry

import (
	"math"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/population"
)

// Collector accumulates events within a timestep and produces StandStats.
type Collector struct {
	yearsPerStep int

	// Event counters for the current step
	deaths         int
	disturbDeaths  int
	establishments int
	recruits       int

	// Reused sample buffers
	dbh    []float64
	gli    []float64
	growth []float64
}

// NewCollector creates a stats collector for steps of the given length in years.
func NewCollector(yearsPerStep int) *Collector {
	if yearsPerStep < 1 {
		yearsPerStep = 1
	}
	return &Collector{yearsPerStep: yearsPerStep}
}

// RecordDeath records a tree death with its cause.
func (c *Collector) RecordDeath(code components.DeathCode) {
	if code == components.Natural {
		c.deaths++
	} else {
		c.disturbDeaths++
	}
}

// RecordEstablishment records new seedlings.
func (c *Collector) RecordEstablishment(n int) {
	c.establishments += n
}

// RecordTransition records a life-stage change.
func (c *Collector) RecordTransition(from, to components.TreeType) {
	if from == components.Sapling && to == components.Adult {
		c.recruits++
	}
}

// Flush samples the population, produces a StandStats for the step and resets counters.
func (c *Collector) Flush(step int, pop *population.Population) StandStats {
	s := StandStats{
		Step:           step,
		Year:           float64(step * c.yearsPerStep),
		Deaths:         c.deaths,
		DisturbDeaths:  c.disturbDeaths,
		Establishments: c.establishments,
		Recruits:       c.recruits,
	}

	lightCode, hasLight := pop.FieldCode(population.FieldLight, population.FloatField)
	growthCode, hasGrowth := pop.FieldCode(population.FieldGrowth, population.FloatField)

	c.dbh, c.gli, c.growth = c.dbh[:0], c.gli[:0], c.growth[:0]
	var basal float64
	for t := range pop.All() {
		typ := t.Type()
		switch typ {
		case components.Seedling:
			s.Seedlings++
		case components.Sapling:
			s.Saplings++
		case components.Adult:
			s.Adults++
		case components.Snag:
			s.Snags++
			continue
		}
		if typ != components.Seedling {
			d := t.DBH()
			basal += math.Pi * (d / 200) * (d / 200)
			c.dbh = append(c.dbh, d)
		}
		sp := t.Species()
		if hasLight && pop.Registered(population.FieldLight, sp, typ) {
			c.gli = append(c.gli, t.Float(lightCode))
		}
		if hasGrowth && pop.Registered(population.FieldGrowth, sp, typ) {
			c.growth = append(c.growth, t.Float(growthCode))
		}
	}

	if area := pop.Plot().Area(); area > 0 {
		s.BasalArea = basal / area
		s.Density = float64(s.Saplings+s.Adults) / area
	}
	dbh := ComputeDistribution(c.dbh)
	s.DBHMean, s.DBHStd = dbh.Mean, dbh.Std
	s.DBHP10, s.DBHP50, s.DBHP90 = dbh.P10, dbh.P50, dbh.P90
	gli := ComputeDistribution(c.gli)
	s.GLIMean, s.GLIP10 = gli.Mean, gli.P10
	s.GrowthMean = ComputeDistribution(c.growth).Mean

	c.deaths = 0
	c.disturbDeaths = 0
	c.establishments = 0
	c.recruits = 0

	return s
}
