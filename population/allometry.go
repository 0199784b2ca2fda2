package population

import (
	"math"

	"github.com/pthm-cable/canopy/config"
)

// breastHeight is the height at which DBH is measured, m.
const breastHeight = 1.35

// Allometry holds one species' size relationships.
type Allometry struct {
	config.AllometryConfig
}

// AdultHeight returns the Chapman-Richards height for a DBH, capped at the species maximum.
func (a *Allometry) AdultHeight(dbh float64) float64 {
	if dbh <= 0 {
		return breastHeight
	}
	return breastHeight + (a.MaxHeight-breastHeight)*(1-math.Exp(-a.HeightSlope*dbh))
}

// SeedlingHeight returns a seedling's height for its diam10, m.
func (a *Allometry) SeedlingHeight(diam10 float64) float64 {
	h := a.SeedlingHeightC * diam10 / 100
	return math.Min(h, a.MaxHeight)
}

// DBH converts diam10 to DBH.
func (a *Allometry) DBH(diam10 float64) float64 {
	return math.Max(a.Diam10Intercept+a.Diam10Slope*diam10, 0)
}

// Diam10 converts DBH to diam10.
func (a *Allometry) Diam10(dbh float64) float64 {
	if a.Diam10Slope == 0 {
		return dbh
	}
	return math.Max((dbh-a.Diam10Intercept)/a.Diam10Slope, 0)
}

// Diam10DeltaToDBH converts a change in diam10 into the matching change in DBH.
func (a *Allometry) Diam10DeltaToDBH(delta float64) float64 {
	return delta * a.Diam10Slope
}

// CrownRadius returns the crown radius for a DBH, m.
func (a *Allometry) CrownRadius(dbh float64) float64 {
	if dbh <= 0 {
		return 0
	}
	return math.Min(a.CrownRadiusC1*math.Pow(dbh, a.CrownRadiusC2), a.MaxCrownRadius)
}

// CrownDepth returns the crown depth for a tree height, never more than the height itself.
func (a *Allometry) CrownDepth(height float64) float64 {
	if height <= 0 {
		return 0
	}
	return math.Min(a.CrownDepthC1*math.Pow(height, a.CrownDepthC2), height)
}
