package plot

import "fmt"

// Climate is the plot-wide climate for the current timestep. Climate behaviors write it once
// per timestep before any growth or mortality behavior reads it.
type Climate struct {
	MeanAnnualTemp     float64 // °C
	MeanAnnualPrecip   float64 // mm
	SeasonalPrecip     float64 // mm
	WaterDeficit       float64 // mm
	NitrogenDeposition float64 // kg/ha/yr

	LongTermTemp         float64
	LongTermPrecip       float64
	LongTermSeasonal     float64
	LongTermWaterDeficit float64
	LongTermNitrogen     float64
}

// PrecipSource selects which moisture variable a precipitation effect reads.
type PrecipSource uint8

const (
	PrecipMeanAnnual PrecipSource = iota
	PrecipSeasonal
	PrecipWaterDeficit
)

// ParsePrecipSource converts a config name into a PrecipSource.
func ParsePrecipSource(s string) (PrecipSource, error) {
	switch s {
	case "", "mean_annual":
		return PrecipMeanAnnual, nil
	case "seasonal":
		return PrecipSeasonal, nil
	case "water_deficit":
		return PrecipWaterDeficit, nil
	}
	return 0, fmt.Errorf("unknown precipitation source %q", s)
}

// Precip returns the current value of the selected moisture variable.
func (c *Climate) Precip(src PrecipSource) float64 {
	switch src {
	case PrecipSeasonal:
		return c.SeasonalPrecip
	case PrecipWaterDeficit:
		return c.WaterDeficit
	default:
		return c.MeanAnnualPrecip
	}
}

// LongTermPrecipOf returns the long-term mean of the selected moisture variable.
func (c *Climate) LongTermPrecipOf(src PrecipSource) float64 {
	switch src {
	case PrecipSeasonal:
		return c.LongTermSeasonal
	case PrecipWaterDeficit:
		return c.LongTermWaterDeficit
	default:
		return c.LongTermPrecip
	}
}
