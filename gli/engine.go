package gli

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// Settings configures one engine's fisheye photo.
type Settings struct {
	NumAlt       int     // altitude rows between horizon and zenith
	NumAzi       int     // azimuth columns around the compass
	MinSunAngle  float64 // radians; sky below is never visible
	IncludeSnags bool    // snags shade like live crowns
}

// ReadSettings reads gliNumAltDivs, gliNumAziDivs, gliMinSunAngle and gliIncludeSnags.
func ReadSettings(src *params.Source) (Settings, error) {
	s := Settings{NumAlt: 12, NumAzi: 18, MinSunAngle: 0.1745}
	if err := src.Int("gliNumAltDivs", &s.NumAlt, false); err != nil {
		return s, err
	}
	if err := src.Int("gliNumAziDivs", &s.NumAzi, false); err != nil {
		return s, err
	}
	if err := src.Single("gliMinSunAngle", &s.MinSunAngle, false); err != nil {
		return s, err
	}
	if err := src.Bool("gliIncludeSnags", &s.IncludeSnags, false); err != nil {
		return s, err
	}
	switch {
	case s.NumAlt < 1:
		return s, simerr.Config(src.Component(), "gliNumAltDivs", "must be at least 1, got %d", s.NumAlt)
	case s.NumAzi < 1:
		return s, simerr.Config(src.Component(), "gliNumAziDivs", "must be at least 1, got %d", s.NumAzi)
	case s.MinSunAngle < 0 || s.MinSunAngle >= math.Pi/2:
		return s, simerr.Config(src.Component(), "gliMinSunAngle", "must be in [0, π/2), got %v", s.MinSunAngle)
	}
	return s, nil
}

// Engine evaluates GLI at points in a population. The photo grid is reused between
// evaluations, so an Engine must not be shared between goroutines.
type Engine struct {
	pop        *population.Population
	sky        *Sky
	extinction []float64 // fraction of light each species' crown transmits
	types      components.TypeMask

	altChunk  float64
	aziChunk  float64
	tanMinSun float64
	maxRadius float64
	sinAzi    []float64 // per column, of the column's central azimuth
	cosAzi    []float64
	photo     []float64
	neighbors []population.Neighbor
}

// New builds an engine sharing its brightness grid through cache. extinction holds each
// species' crown light transmission in [0, 1].
func New(pop *population.Population, cache *Cache, s Settings, extinction []float64) (*Engine, error) {
	if len(extinction) != pop.NumSpecies() {
		return nil, simerr.Consistency("gli", "have %d extinction coefficients for %d species",
			len(extinction), pop.NumSpecies())
	}
	for sp, ext := range extinction {
		if ext < 0 || ext > 1 || math.IsNaN(ext) {
			return nil, simerr.Config("species", "light_extinction", "species %s: value %v must be in [0, 1]",
				pop.SpeciesNames()[sp], ext)
		}
	}
	sky, err := cache.Sky(s.NumAlt, s.NumAzi, s.MinSunAngle)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		pop:        pop,
		sky:        sky,
		extinction: extinction,
		types:      components.MaskOf(components.Sapling, components.Adult),
		altChunk:   sky.AltChunk(),
		aziChunk:   sky.AziChunk(),
		tanMinSun:  math.Tan(s.MinSunAngle),
		sinAzi:     make([]float64, s.NumAzi),
		cosAzi:     make([]float64, s.NumAzi),
		photo:      make([]float64, s.NumAlt*s.NumAzi),
	}
	if s.IncludeSnags {
		e.types |= components.MaskOf(components.Snag)
	}
	for col := range s.NumAzi {
		e.sinAzi[col], e.cosAzi[col] = math.Sincos((float64(col) + 0.5) * e.aziChunk)
	}
	p := pop.Plot()
	e.maxRadius = math.Hypot(p.LenX, p.LenY) / 2
	return e, nil
}

// Sky returns the engine's brightness grid.
func (e *Engine) Sky() *Sky {
	return e.sky
}

// SearchRadius returns how far from a point a crown can still cast shade at height.
func (e *Engine) SearchRadius(height float64) float64 {
	rise := math.Max(e.pop.MaxTreeHeight()-height, 0)
	if e.tanMinSun <= 0 {
		return e.maxRadius
	}
	return math.Min(rise/e.tanMinSun+e.pop.MaxCrownRadius(), e.maxRadius)
}

// Evaluate returns the GLI (0-100) at a point and height above ground.
func (e *Engine) Evaluate(x, y, height float64) (float64, error) {
	return e.evaluate(x, y, height, population.Tree{})
}

// EvaluateTree returns the GLI at height above t's base, ignoring t's own crown.
func (e *Engine) EvaluateTree(t population.Tree, height float64) (float64, error) {
	pos := t.Position()
	return e.evaluate(pos.X, pos.Y, height, t)
}

func (e *Engine) evaluate(x, y, height float64, self population.Tree) (float64, error) {
	for i := range e.photo {
		e.photo[i] = 1
	}

	e.neighbors = e.pop.FindInto(e.neighbors[:0], population.Query{
		X:         x,
		Y:         y,
		Radius:    e.SearchRadius(height),
		MinHeight: height,
		Types:     e.types,
		Exclude:   self,
	})
	for i := range e.neighbors {
		n := &e.neighbors[i]
		// a stem on the point itself has no direction to shade from
		if n.Dist == 0 || !e.pop.DeathCode(n.Tree).Competes() {
			continue
		}
		e.shade(n, height)
	}

	gli := 100 * floats.Dot(e.photo, e.sky.Brightness)
	if math.IsNaN(gli) || gli < -1e-9 || gli > 100+1e-9 {
		return 0, simerr.Consistency("gli", "GLI %v at (%.2f, %.2f) is outside [0, 100]", gli, x, y)
	}
	return math.Max(0, math.Min(gli, 100)), nil
}

// shade multiplies a neighbor's extinction into every photo cell its crown hides.
func (e *Engine) shade(n *population.Neighbor, height float64) {
	top := n.Height() - height
	if top <= 0 {
		return
	}
	base := n.Height() - n.CrownDepth() - height
	r := n.CrownRadius()
	ext := e.extinction[n.Species()]

	if n.Dist > r {
		e.shadeOutside(n, top, base, r, ext)
		return
	}

	// The point is under the crown.
	if base <= 0 {
		for i := range e.photo {
			e.photo[i] *= ext
		}
		return
	}
	for col := range e.sky.NumAzi {
		_, far, _ := e.intersect(n, col, r)
		e.shadeColumn(col, math.Atan2(base, far), math.Pi/2, ext)
	}
}

// shadeOutside handles a crown whose footprint does not contain the point: starting from
// the column holding the trunk it walks outward both ways until a column's central ray
// misses the crown or the whole compass is covered.
func (e *Engine) shadeOutside(n *population.Neighbor, top, base, r, ext float64) {
	num := e.sky.NumAzi
	start := min(int(plot.AzimuthOf(n.DX, n.DY)/e.aziChunk), num-1)

	column := func(col int) bool {
		near, far, ok := e.intersect(n, col, r)
		if !ok {
			return false
		}
		lo := 0.0
		if base > 0 {
			lo = math.Atan2(base, far)
		}
		e.shadeColumn(col, lo, math.Atan2(top, near), ext)
		return true
	}

	column(start)
	right, left := true, true
	for k := 1; k <= num/2 && (right || left); k++ {
		rc := (start + k) % num
		lc := ((start-k)%num + num) % num
		didRight := false
		if right {
			right = column(rc)
			didRight = true
		}
		if left && !(lc == rc && didRight) {
			left = column(lc)
		}
	}
}

// intersect solves for where the central ray of a column enters and leaves the crown
// circle in the horizontal plane. ok is false when the ray misses.
func (e *Engine) intersect(n *population.Neighbor, col int, r float64) (near, far float64, ok bool) {
	proj := e.sinAzi[col]*n.DX + e.cosAzi[col]*n.DY
	disc := proj*proj - (n.Dist*n.Dist - r*r)
	if disc < 0 {
		return 0, 0, false
	}
	root := math.Sqrt(disc)
	near, far = proj-root, proj+root
	if far <= 0 {
		return 0, 0, false
	}
	return math.Max(near, 0), far, true
}

// shadeColumn applies ext to the rows of col whose central altitude lies in [lo, hi].
func (e *Engine) shadeColumn(col int, lo, hi, ext float64) {
	first := max(int(math.Ceil(lo/e.altChunk-0.5)), e.sky.Cutoff)
	last := min(int(math.Floor(hi/e.altChunk-0.5)), e.sky.NumAlt-1)
	for row := first; row <= last; row++ {
		e.photo[row*e.sky.NumAzi+col] *= ext
	}
}
