// Package gli computes the Global Light Index at a point by simulating a hemispherical
// fisheye photograph of the sky, shading it with neighboring crowns and integrating the
// result against an unobstructed sky-brightness map.
package gli

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/simerr"
)

// SkyModel holds the site inputs of the sky-brightness model.
type SkyModel struct {
	Latitude float64 // degrees
	Light    config.LightConfig
}

// Validate checks the light settings.
func (m SkyModel) Validate() error {
	l := m.Light
	switch {
	case l.BeamFraction < 0 || l.BeamFraction > 1:
		return simerr.Config("light", "beam_fraction", "must be in [0, 1], got %v", l.BeamFraction)
	case l.ClearSkyTransmission <= 0 || l.ClearSkyTransmission > 1:
		return simerr.Config("light", "clear_sky_transmission", "must be in (0, 1], got %v", l.ClearSkyTransmission)
	case l.FirstDayOfGrowth < 1 || l.LastDayOfGrowth > 366 || l.FirstDayOfGrowth > l.LastDayOfGrowth:
		return simerr.Config("light", "first_day_of_growth", "growing season %d-%d is not within 1-366",
			l.FirstDayOfGrowth, l.LastDayOfGrowth)
	case l.SunSampleMinutes <= 0:
		return simerr.Config("light", "sun_sample_minutes", "must be positive, got %v", l.SunSampleMinutes)
	case m.Latitude < -90 || m.Latitude > 90:
		return simerr.Config("plot", "latitude", "must be in [-90, 90], got %v", m.Latitude)
	}
	return nil
}

// Sky is an immutable brightness grid indexed by [altitude row, azimuth column]. Row 0 is
// the band just above the horizon; column 0 starts at north and columns run clockwise.
// Brightness sums to 1, so an unshaded photo integrates to a GLI of 100.
type Sky struct {
	NumAlt, NumAzi int
	Cutoff         int // rows below this are never visible
	Brightness     []float64
}

// At returns the brightness of one cell.
func (s *Sky) At(row, col int) float64 {
	return s.Brightness[row*s.NumAzi+col]
}

// AltChunk returns the angular height of one altitude row, radians.
func (s *Sky) AltChunk() float64 {
	return math.Pi / 2 / float64(s.NumAlt)
}

// AziChunk returns the angular width of one azimuth column, radians.
func (s *Sky) AziChunk() float64 {
	return 2 * math.Pi / float64(s.NumAzi)
}

// cutoffRow returns the first altitude row that is visible above minSunAngle.
func cutoffRow(numAlt int, minSunAngle float64) int {
	return int(minSunAngle / (math.Pi / 2 / float64(numAlt)))
}

// NewSky computes the brightness grid: direct beam from the sun track over the growing
// season plus standard-overcast diffuse light, blended by the beam fraction, with rows
// below the cutoff zeroed and the rest normalized to sum to 1.
func NewSky(m SkyModel, numAlt, numAzi, cutoff int) (*Sky, error) {
	if numAlt < 1 || numAzi < 1 {
		return nil, simerr.Config("gli", "gliNumAltDivs", "sky grid must be at least 1x1, got %dx%d", numAlt, numAzi)
	}
	if cutoff >= numAlt {
		return nil, simerr.Config("gli", "gliMinSunAngle", "minimum sun angle hides the whole sky")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	s := &Sky{NumAlt: numAlt, NumAzi: numAzi, Cutoff: cutoff}
	beam := m.beam(numAlt, numAzi)
	diffuse := diffuse(numAlt, numAzi)
	normalize(beam)
	normalize(diffuse)

	s.Brightness = make([]float64, numAlt*numAzi)
	floats.AddScaled(s.Brightness, m.Light.BeamFraction, beam)
	floats.AddScaled(s.Brightness, 1-m.Light.BeamFraction, diffuse)
	for i := range cutoff * numAzi {
		s.Brightness[i] = 0
	}
	if normalize(s.Brightness) == 0 {
		return nil, simerr.Consistency("gli", "sky brightness is zero above row %d", cutoff)
	}
	return s, nil
}

// normalize scales v to sum to 1 and returns the original sum. A zero vector is left alone.
func normalize(v []float64) float64 {
	sum := floats.Sum(v)
	if sum > 0 {
		floats.Scale(1/sum, v)
	}
	return sum
}

// beam accumulates horizontal-surface beam radiation from sun positions sampled over the
// growing season.
func (m SkyModel) beam(numAlt, numAzi int) []float64 {
	out := make([]float64, numAlt*numAzi)
	altChunk := math.Pi / 2 / float64(numAlt)
	aziChunk := 2 * math.Pi / float64(numAzi)

	lat := m.Latitude * math.Pi / 180
	sinLat, cosLat := math.Sincos(lat)
	step := m.Light.SunSampleMinutes * 2 * math.Pi / 1440

	for day := m.Light.FirstDayOfGrowth; day <= m.Light.LastDayOfGrowth; day++ {
		decl := 23.45 * math.Pi / 180 * math.Sin(2*math.Pi*float64(284+day)/365)
		sinDecl, cosDecl := math.Sincos(decl)
		for h := -math.Pi; h < math.Pi; h += step {
			sinAlt := sinLat*sinDecl + cosLat*cosDecl*math.Cos(h)
			if sinAlt <= 0 {
				continue
			}
			alt := math.Asin(sinAlt)

			var az float64
			if d := math.Cos(alt) * cosLat; d > 1e-12 {
				az = math.Acos(math.Max(-1, math.Min(1, (sinDecl-sinAlt*sinLat)/d)))
			}
			if h > 0 {
				az = 2*math.Pi - az
			}

			row := min(int(alt/altChunk), numAlt-1)
			col := min(int(az/aziChunk), numAzi-1)
			out[row*numAzi+col] += math.Pow(m.Light.ClearSkyTransmission, 1/sinAlt) * sinAlt
		}
	}
	return out
}

// diffuse is the standard overcast sky, radiance (1+2·sin alt)/3, projected onto a
// horizontal surface over each cell's solid angle.
func diffuse(numAlt, numAzi int) []float64 {
	out := make([]float64, numAlt*numAzi)
	altChunk := math.Pi / 2 / float64(numAlt)
	aziChunk := 2 * math.Pi / float64(numAzi)
	for row := range numAlt {
		lo, hi := float64(row)*altChunk, float64(row+1)*altChunk
		c := (lo + hi) / 2
		radiance := (1 + 2*math.Sin(c)) / 3
		w := radiance * math.Sin(c) * aziChunk * (math.Sin(hi) - math.Sin(lo))
		for col := range numAzi {
			out[row*numAzi+col] = w
		}
	}
	return out
}
