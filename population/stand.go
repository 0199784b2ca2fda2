package population

import (
	"math"
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/simerr"
)

// maxPlacementTries bounds rejection sampling when clumping is enabled.
const maxPlacementTries = 64

// PlantInitial creates the initial stand. Stem counts are density times plot area, rounded;
// diameters are uniform within each entry's range. With clumping enabled, positions are
// drawn by rejection against a simplex noise field so stems gather in patches.
func (p *Population) PlantInitial(stands []config.StandConfig, clump config.ClumpConfig, rng *rand.Rand, seed int64) (int, error) {
	index := make(map[string]int, len(p.names))
	for i, n := range p.names {
		index[n] = i
	}

	var noise opensimplex.Noise
	if clump.Enabled {
		noise = opensimplex.NewNormalized(seed)
	}

	planted := 0
	for _, st := range stands {
		sp, ok := index[st.Species]
		if !ok {
			return planted, simerr.Config("initial stand", "species", "unknown species %q", st.Species)
		}
		typ, ok := components.ParseTreeType(st.Type)
		if !ok {
			return planted, simerr.Config("initial stand", "type", "unknown tree type %q", st.Type)
		}
		if st.Density < 0 || st.MinDiam <= 0 || st.MaxDiam < st.MinDiam {
			return planted, simerr.Config("initial stand", "density", "species %s %s: bad density or diameter range", st.Species, st.Type)
		}

		n := int(math.Round(st.Density * p.plot.Area()))
		for range n {
			x, y := p.placement(noise, clump, rng)
			diam := st.MinDiam + rng.Float64()*(st.MaxDiam-st.MinDiam)
			p.Add(sp, typ, x, y, diam)
			planted++
		}
	}
	return planted, nil
}

func (p *Population) placement(noise opensimplex.Noise, clump config.ClumpConfig, rng *rand.Rand) (float64, float64) {
	x := rng.Float64() * p.plot.LenX
	y := rng.Float64() * p.plot.LenY
	if noise == nil {
		return x, y
	}
	contrast := clump.Contrast
	if contrast <= 0 {
		contrast = 1
	}
	for range maxPlacementTries {
		accept := math.Pow(noise.Eval2(x*clump.Scale, y*clump.Scale), contrast)
		if rng.Float64() < accept {
			break
		}
		x = rng.Float64() * p.plot.LenX
		y = rng.Float64() * p.plot.LenY
	}
	return x, y
}
