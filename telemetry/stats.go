// Package telemetry provides per-timestep stand statistics, stand-event bookmarks,
// performance timing and CSV output.
package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StandStats holds the stand summary at the end of one timestep.
type StandStats struct {
	Step int     `csv:"step"`
	Year float64 `csv:"year"`

	// Live stems at step end
	Seedlings int `csv:"seedlings"`
	Saplings  int `csv:"saplings"`
	Adults    int `csv:"adults"`
	Snags     int `csv:"snags"`

	BasalArea float64 `csv:"basal_area"` // m²/ha, saplings and adults
	Density   float64 `csv:"density"`    // stems/ha, saplings and adults

	// Events during the step
	Deaths         int `csv:"deaths"`
	DisturbDeaths  int `csv:"disturb_deaths"`
	Establishments int `csv:"establishments"`
	Recruits       int `csv:"recruits"` // saplings that became adults

	// DBH distribution of saplings and adults, cm
	DBHMean float64 `csv:"dbh_mean"`
	DBHStd  float64 `csv:"dbh_std"`
	DBHP10  float64 `csv:"dbh_p10"`
	DBHP50  float64 `csv:"dbh_p50"`
	DBHP90  float64 `csv:"dbh_p90"`

	// Light and growth of trees that carry those fields
	GLIMean    float64 `csv:"gli_mean"`
	GLIP10     float64 `csv:"gli_p10"`
	GrowthMean float64 `csv:"growth_mean"` // cm per step
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// ComputeDistribution calculates mean, population standard deviation and percentiles.
// values is sorted in place.
func ComputeDistribution(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sort.Float64s(values)
	mean, std := stat.PopMeanStdDev(values, nil)
	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  Percentile(values, 0.10),
		P50:  Percentile(values, 0.50),
		P90:  Percentile(values, 0.90),
	}
}

// Live returns the number of live stems.
func (s StandStats) Live() int {
	return s.Seedlings + s.Saplings + s.Adults
}

// LogValue implements slog.LogValuer for structured logging.
func (s StandStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("step", s.Step),
		slog.Float64("year", s.Year),
		slog.Int("seedlings", s.Seedlings),
		slog.Int("saplings", s.Saplings),
		slog.Int("adults", s.Adults),
		slog.Int("snags", s.Snags),
		slog.Float64("basal_area", s.BasalArea),
		slog.Float64("density", s.Density),
		slog.Int("deaths", s.Deaths),
		slog.Int("disturb_deaths", s.DisturbDeaths),
		slog.Int("establishments", s.Establishments),
		slog.Int("recruits", s.Recruits),
		slog.Float64("dbh_mean", s.DBHMean),
		slog.Float64("dbh_std", s.DBHStd),
		slog.Float64("dbh_p50", s.DBHP50),
		slog.Float64("gli_mean", s.GLIMean),
		slog.Float64("growth_mean", s.GrowthMean),
	)
}

// LogStats logs the stand stats using slog.
func (s StandStats) LogStats() {
	slog.Info("stats",
		"step", s.Step,
		"year", s.Year,
		"seedlings", s.Seedlings,
		"saplings", s.Saplings,
		"adults", s.Adults,
		"snags", s.Snags,
		"basal_area", s.BasalArea,
		"density", s.Density,
		"deaths", s.Deaths,
		"disturb_deaths", s.DisturbDeaths,
		"establishments", s.Establishments,
		"recruits", s.Recruits,
		"dbh_mean", s.DBHMean,
		"dbh_p10", s.DBHP10,
		"dbh_p50", s.DBHP50,
		"dbh_p90", s.DBHP90,
		"gli_mean", s.GLIMean,
		"gli_p10", s.GLIP10,
		"growth_mean", s.GrowthMean,
	)
}
