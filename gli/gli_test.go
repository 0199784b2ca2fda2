package gli

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

func testModel() SkyModel {
	return SkyModel{
		Latitude: 45,
		Light: config.LightConfig{
			BeamFraction:         0.5,
			ClearSkyTransmission: 0.65,
			FirstDayOfGrowth:     120,
			LastDayOfGrowth:      270,
			SunSampleMinutes:     30,
		},
	}
}

func testPopulation(t *testing.T) *population.Population {
	t.Helper()
	a := config.AllometryConfig{
		MaxHeight:       35,
		HeightSlope:     0.03,
		CrownRadiusC1:   0.1,
		CrownRadiusC2:   1,
		MaxCrownRadius:  8,
		CrownDepthC1:    0.5,
		CrownDepthC2:    1,
		Diam10Slope:     0.8,
		SeedlingHeightC: 30,
		MaxSaplingDBH:   10,
	}
	pop, err := population.New(plot.New(100, 100, 45),
		[]config.SpeciesConfig{{Name: "A", Allometry: a}, {Name: "B", Allometry: a}},
		config.PopulationConfig{GridCellSize: 10, SeedlingHeight: 1.35})
	if err != nil {
		t.Fatal(err)
	}
	return pop
}

var testSettings = Settings{NumAlt: 12, NumAzi: 18, MinSunAngle: 0.1745}

func testEngine(t *testing.T, pop *population.Population) *Engine {
	t.Helper()
	e, err := New(pop, NewCache(testModel()), testSettings, []float64{0.1, 0.3})
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestSkyBrightness(t *testing.T) {
	sky, err := NewSky(testModel(), 12, 18, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := floats.Sum(sky.Brightness); math.Abs(got-1) > 1e-12 {
		t.Errorf("brightness sums to %v, want 1", got)
	}
	for row := range sky.NumAlt {
		for col := range sky.NumAzi {
			b := sky.At(row, col)
			if b < 0 {
				t.Fatalf("negative brightness at [%d,%d]", row, col)
			}
			if row < sky.Cutoff && b != 0 {
				t.Fatalf("row %d below cutoff has brightness %v", row, b)
			}
		}
	}

	// the noon sun in the northern hemisphere is due south
	south := sky.At(8, 8) + sky.At(8, 9)
	north := sky.At(8, 0) + sky.At(8, 17)
	if south <= north {
		t.Errorf("south sky %v not brighter than north %v", south, north)
	}
}

func TestSkyRejectsBadInput(t *testing.T) {
	m := testModel()
	if _, err := NewSky(m, 12, 18, 12); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("cutoff hiding the sky: err = %v", err)
	}
	m.Light.BeamFraction = 1.5
	if _, err := NewSky(m, 12, 18, 0); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("beam fraction 1.5: err = %v", err)
	}
}

func TestOpenSky(t *testing.T) {
	pop := testPopulation(t)
	e := testEngine(t, pop)

	got, err := e.Evaluate(50, 50, 1)
	if err != nil {
		t.Fatal(err)
	}
	want := 100 * floats.Sum(e.Sky().Brightness)
	if math.Abs(got-want) > 1e-9 || math.Abs(got-100) > 1e-9 {
		t.Errorf("open sky GLI = %v, want %v", got, want)
	}

	// a crown entirely below the evaluation height casts no shade
	pop.Add(0, components.Sapling, 52, 50, 2)
	if got, _ := e.Evaluate(50, 50, 20); math.Abs(got-100) > 1e-9 {
		t.Errorf("GLI above a short tree = %v, want 100", got)
	}
}

func TestOverheadNeighbor(t *testing.T) {
	pop := testPopulation(t)
	tree := pop.Add(0, components.Adult, 50.1, 50, 30)
	e := testEngine(t, pop)

	// crown base is below 15 m and the point is under the crown: the whole sky is blocked
	if base := tree.Height() - tree.CrownDepth(); base >= 15 || tree.Height() <= 15 {
		t.Fatalf("setup: crown spans %v-%v m", base, tree.Height())
	}
	got, err := e.Evaluate(50, 50, 15)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-10) > 1e-9 {
		t.Errorf("GLI under crown = %v, want 100 * 0.1", got)
	}

	// below the crown base only the sky near the zenith is hidden
	low, err := e.Evaluate(50, 50, 1)
	if err != nil {
		t.Fatal(err)
	}
	if low >= 100 || low <= got {
		t.Errorf("GLI below crown base = %v, want in (%v, 100)", low, got)
	}
}

func TestShadeFallsInTrunkDirection(t *testing.T) {
	pop := testPopulation(t)
	pop.Add(0, components.Adult, 50, 60, 30) // due north
	e := testEngine(t, pop)

	if _, err := e.Evaluate(50, 50, 1); err != nil {
		t.Fatal(err)
	}
	num := e.sky.NumAzi
	if got := e.photo[6*num+0]; math.Abs(got-0.1) > 1e-12 {
		t.Errorf("north photo cell = %v, want 0.1", got)
	}
	for row := range e.sky.NumAlt {
		if got := e.photo[row*num+num/2]; got != 1 {
			t.Errorf("south photo row %d = %v, want 1", row, got)
		}
		if got := e.photo[row*num+0]; row < 5 && got != 1 {
			t.Errorf("north photo row %d below crown = %v, want 1", row, got)
		}
	}
}

func TestNeighborOrderIndependence(t *testing.T) {
	gliOf := func(order []int) float64 {
		pop := testPopulation(t)
		spots := [][3]float64{{55, 50, 30}, {50, 56, 40}, {44, 47, 25}}
		for _, i := range order {
			s := spots[i]
			pop.Add(i%2, components.Adult, s[0], s[1], s[2])
		}
		got, err := testEngine(t, pop).Evaluate(50, 50, 1)
		if err != nil {
			t.Fatal(err)
		}
		return got
	}

	a := gliOf([]int{0, 1, 2})
	b := gliOf([]int{2, 1, 0})
	if math.Abs(a-b) > 1e-12 {
		t.Errorf("GLI depends on neighbor order: %v vs %v", a, b)
	}
	if a >= 100 {
		t.Errorf("GLI with three neighbors = %v, want < 100", a)
	}
}

func TestGLIBounds(t *testing.T) {
	pop := testPopulation(t)
	rng := rand.New(rand.NewSource(7))
	for range 300 {
		typ := components.Adult
		diam := 10 + rng.Float64()*60
		if rng.Intn(3) == 0 {
			typ = components.Sapling
			diam = 1 + rng.Float64()*8
		}
		pop.Add(rng.Intn(2), typ, rng.Float64()*100, rng.Float64()*100, diam)
	}
	e := testEngine(t, pop)
	for range 200 {
		got, err := e.Evaluate(rng.Float64()*100, rng.Float64()*100, rng.Float64()*30)
		if err != nil {
			t.Fatal(err)
		}
		if got < 0 || got > 100 {
			t.Fatalf("GLI = %v outside [0, 100]", got)
		}
	}
}

func TestDeadNeighbors(t *testing.T) {
	tests := []struct {
		code  components.DeathCode
		shade bool
	}{
		{components.NotDead, true},
		{components.Natural, true},
		{components.Storm, false},
	}
	for _, tt := range tests {
		t.Run(tt.code.String(), func(t *testing.T) {
			pop := testPopulation(t)
			code, err := pop.RegisterInt(population.FieldDead, []population.Combo{{Species: 0, Type: components.Adult}})
			if err != nil {
				t.Fatal(err)
			}
			tree := pop.Add(0, components.Adult, 50.1, 50, 30)
			tree.SetInt(code, int32(tt.code))

			got, err := testEngine(t, pop).Evaluate(50, 50, 15)
			if err != nil {
				t.Fatal(err)
			}
			if shaded := got < 100-1e-9; shaded != tt.shade {
				t.Errorf("GLI = %v, shaded = %v, want %v", got, shaded, tt.shade)
			}
		})
	}
}

func TestEvaluateTreeIgnoresSelf(t *testing.T) {
	pop := testPopulation(t)
	tree := pop.Add(0, components.Adult, 50, 50, 30)
	e := testEngine(t, pop)

	got, err := e.EvaluateTree(tree, tree.Height()-tree.CrownDepth()/2)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("GLI of a lone tree = %v, want 100", got)
	}
}

func TestZeroDistanceNeighborSkipped(t *testing.T) {
	pop := testPopulation(t)
	pop.Add(0, components.Adult, 50, 50, 30)
	e := testEngine(t, pop)

	got, err := e.Evaluate(50, 50, 1)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(got-100) > 1e-9 {
		t.Errorf("GLI on a stem = %v, want 100", got)
	}

	// the same stem a few centimetres away shades the point
	off, err := e.Evaluate(50.05, 50, 1)
	if err != nil {
		t.Fatal(err)
	}
	if off >= 100 {
		t.Errorf("GLI next to a stem = %v, want below 100", off)
	}
}

func TestSnagsShadeOnlyWhenIncluded(t *testing.T) {
	for _, include := range []bool{false, true} {
		pop := testPopulation(t)
		snag := pop.Add(0, components.Adult, 50.1, 50, 30)
		pop.MakeSnag(snag)

		s := testSettings
		s.IncludeSnags = include
		e, err := New(pop, NewCache(testModel()), s, []float64{0.1, 0.3})
		if err != nil {
			t.Fatal(err)
		}
		got, err := e.Evaluate(50, 50, 15)
		if err != nil {
			t.Fatal(err)
		}
		if shaded := got < 100-1e-9; shaded != include {
			t.Errorf("include snags %v: GLI = %v", include, got)
		}
	}
}

func TestCacheSharesGrids(t *testing.T) {
	pop := testPopulation(t)
	cache := NewCache(testModel())
	ext := []float64{0.1, 0.3}

	a, err := New(pop, cache, testSettings, ext)
	if err != nil {
		t.Fatal(err)
	}
	// a slightly different angle that falls in the same cutoff row
	s := testSettings
	s.MinSunAngle = 0.2
	b, err := New(pop, cache, s, ext)
	if err != nil {
		t.Fatal(err)
	}
	if a.Sky() != b.Sky() {
		t.Error("engines with the same key do not share a grid")
	}
	if cache.Builds() != 1 {
		t.Errorf("builds = %d, want 1", cache.Builds())
	}

	s.NumAzi = 24
	c, err := New(pop, cache, s, ext)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sky() == a.Sky() || cache.Builds() != 2 {
		t.Errorf("different resolution shared a grid, builds = %d", cache.Builds())
	}
}

func TestNewRejectsBadExtinction(t *testing.T) {
	pop := testPopulation(t)
	_, err := New(pop, NewCache(testModel()), testSettings, []float64{0.1, 1.4})
	if !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
	_, err = New(pop, NewCache(testModel()), testSettings, []float64{0.1})
	if !errors.Is(err, simerr.ErrDataConsistency) {
		t.Errorf("err = %v, want data consistency error", err)
	}
}

func TestReadSettings(t *testing.T) {
	names := []string{"A", "B"}
	tests := []struct {
		name    string
		block   config.ParamBlock
		want    Settings
		wantErr bool
	}{
		{"defaults", config.ParamBlock{}, Settings{NumAlt: 12, NumAzi: 18, MinSunAngle: 0.1745}, false},
		{"configured", config.ParamBlock{
			"gliNumAltDivs":   config.Float(6),
			"gliNumAziDivs":   config.Float(36),
			"gliMinSunAngle":  config.Float(0.3),
			"gliIncludeSnags": config.Float(1),
		}, Settings{NumAlt: 6, NumAzi: 36, MinSunAngle: 0.3, IncludeSnags: true}, false},
		{"fractional divisions", config.ParamBlock{"gliNumAltDivs": config.Float(6.5)}, Settings{}, true},
		{"zero azimuths", config.ParamBlock{"gliNumAziDivs": config.Float(0)}, Settings{}, true},
		{"sun angle too high", config.ParamBlock{"gliMinSunAngle": config.Float(2)}, Settings{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadSettings(params.NewSource("gli_light", tt.block, names))
			if tt.wantErr {
				if !errors.Is(err, simerr.ErrConfiguration) {
					t.Errorf("err = %v, want configuration error", err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("settings = %+v, want %+v", got, tt.want)
			}
		})
	}
}
