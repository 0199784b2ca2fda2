package nci

import (
	"errors"
	"math"
	"testing"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

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

func testEnv(pop *population.Population, block config.ParamBlock) *Env {
	var combos []population.Combo
	for sp := range 2 {
		for _, typ := range []components.TreeType{components.Sapling, components.Adult} {
			combos = append(combos, population.Combo{Species: sp, Type: typ})
		}
	}
	return &Env{
		Pop:     pop,
		Params:  params.NewSource("test", block, pop.SpeciesNames()),
		Covered: []int{0, 1},
		Combos:  combos,
	}
}

func both(v float64) config.ParamValue {
	return config.PerSpecies(map[string]float64{"A": v, "B": v})
}

func lambdaOnes() config.ParamValue {
	return config.ParamValue{Matrix: map[string]map[string]float64{
		"A": {"A": 1, "B": 1},
		"B": {"A": 1, "B": 1},
	}}
}

func nciBlock() config.ParamBlock {
	return config.ParamBlock{
		"nciMaxCrowdingRadius": both(10),
		"nciAlpha":             both(1),
		"nciBeta":              both(1),
		"nciDbhDivisor":        config.Float(1),
		"nciMinNeighborDBH":    both(0),
		"nciLambda":            lambdaOnes(),
	}
}

func TestDefaultNCISingleNeighbor(t *testing.T) {
	pop := testPopulation(t)
	target := pop.Add(0, components.Adult, 50, 50, 30)
	pop.Add(1, components.Adult, 55, 50, 20)

	term, err := NewTerm("default", testEnv(pop, nciBlock()))
	if err != nil {
		t.Fatal(err)
	}
	got := term.Compute(target).NCI
	if math.Abs(got-4.0) > 1e-12 {
		t.Errorf("NCI = %v, want 4.0", got)
	}
}

func TestDefaultNCINeighborRules(t *testing.T) {
	pop := testPopulation(t)
	deadCode, _ := pop.RegisterInt(population.FieldDead, []population.Combo{{Species: 1, Type: components.Adult}})
	dmgCode, _ := pop.RegisterInt(population.FieldStormDamage, []population.Combo{{Species: 1, Type: components.Adult}})

	target := pop.Add(0, components.Adult, 50, 50, 30)
	natural := pop.Add(1, components.Adult, 55, 50, 20) // contributes 4
	storm := pop.Add(1, components.Adult, 50, 55, 20)   // excluded
	damaged := pop.Add(1, components.Adult, 45, 50, 20) // 4 * eta
	pop.Add(0, components.Seedling, 52, 50, 0.5)        // seedlings never compete
	pop.Add(0, components.Adult, 50, 45, 5)             // below min DBH
	pop.Add(0, components.Adult, 50, 50, 40)            // same spot, skipped
	pop.Add(0, components.Adult, 70, 50, 40)            // out of radius

	natural.SetInt(deadCode, int32(components.Natural))
	storm.SetInt(deadCode, int32(components.Storm))
	damaged.SetInt(dmgCode, 1003)

	block := nciBlock()
	block["nciMinNeighborDBH"] = both(10)
	block["nciDamageEta"] = config.PerSpecies(map[string]float64{"B": 0.5})

	term, err := NewTerm("default", testEnv(pop, block))
	if err != nil {
		t.Fatal(err)
	}
	got := term.Compute(target).NCI
	if want := 4.0 + 2.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("NCI = %v, want %v", got, want)
	}
}

func TestLargerNeighborsAndBARatio(t *testing.T) {
	pop := testPopulation(t)
	target := pop.Add(0, components.Adult, 50, 50, 20)
	pop.Add(0, components.Adult, 53, 50, 30)
	pop.Add(1, components.Adult, 50, 53, 40)
	pop.Add(1, components.Adult, 47, 50, 10)
	pop.Add(1, components.Sapling, 50, 48, 4) // inside sapling radius
	pop.Add(1, components.Sapling, 50, 44, 4) // outside sapling radius

	block := nciBlock()
	block["nciBAAdultRadius"] = config.Float(5)
	block["nciBASaplingRadius"] = config.Float(3)
	env := testEnv(pop, block)

	larger, err := NewTerm("larger_neighbors", env)
	if err != nil {
		t.Fatal(err)
	}
	if got := larger.Compute(target).NCI; got != 2 {
		t.Errorf("larger neighbors = %v, want 2", got)
	}

	ba, err := NewTerm("ba_ratio", env)
	if err != nil {
		t.Fatal(err)
	}
	v := ba.Compute(target)
	total := basalArea(30) + basalArea(40) + basalArea(10) + basalArea(4)
	if math.Abs(v.Sum-total) > 1e-12 {
		t.Errorf("BA sum = %v, want %v", v.Sum, total)
	}
	if want := total / 4 / basalArea(20); math.Abs(v.NCI-want) > 1e-12 {
		t.Errorf("BA ratio = %v, want %v", v.NCI, want)
	}
}

func TestCrowdingScenario(t *testing.T) {
	pop := testPopulation(t)
	tree := pop.Add(0, components.Adult, 10, 10, 30)
	block := config.ParamBlock{
		"nciCrowdingC":     both(0.01),
		"nciCrowdingD":     both(1),
		"nciCrowdingGamma": both(1),
	}
	ce, err := NewCrowding("default", testEnv(pop, block))
	if err != nil {
		t.Fatal(err)
	}

	got := ce.Effect(tree, Value{NCI: 4}, 30)
	want := math.Exp(-1.2)
	if math.Abs(got-want)/want > 1e-6 {
		t.Errorf("crowding = %v, want %v", got, want)
	}
	if got := ce.Effect(tree, Value{}, 30); got != 1 {
		t.Errorf("crowding at NCI 0 = %v, want 1", got)
	}
}

func TestCrowdingNonIncreasingInNCI(t *testing.T) {
	prev := 1.0
	for nci := 0.0; nci <= 50; nci += 0.5 {
		got := crowding(0.2, 1.3, 0.4, 25, nci)
		if got > prev+1e-15 {
			t.Fatalf("crowding increased at NCI %v: %v > %v", nci, got, prev)
		}
		prev = got
	}
}

func TestTemperatureDependentCrowding(t *testing.T) {
	pop := testPopulation(t)
	tree := pop.Add(0, components.Adult, 10, 10, 30)
	block := config.ParamBlock{
		"nciCrowdingC":      both(0.5),
		"nciCrowdingD":      both(1),
		"nciCrowdingGamma":  both(0),
		"nciCrowdingTempX0": both(10),
		"nciCrowdingTempXb": both(2),
	}
	ce, err := NewCrowding("temperature_dependent", testEnv(pop, block))
	if err != nil {
		t.Fatal(err)
	}
	pre := ce.(PreCalcer)

	// at the optimum temperature C is 0 and crowding has no effect
	pre.PreCalcs(&plot.Climate{MeanAnnualTemp: 10})
	if got := ce.Effect(tree, Value{NCI: 3}, 30); math.Abs(got-1) > 1e-12 {
		t.Errorf("crowding at X0 = %v, want 1", got)
	}

	pre.PreCalcs(&plot.Climate{MeanAnnualTemp: 14})
	c := 0.5 * (1 - math.Exp(-0.5*4))
	if got, want := ce.Effect(tree, Value{NCI: 3}, 30), math.Exp(-c*3); math.Abs(got-want) > 1e-12 {
		t.Errorf("crowding at 14°C = %v, want %v", got, want)
	}
}

func TestSizeEffect(t *testing.T) {
	pop := testPopulation(t)
	tree := pop.Add(0, components.Adult, 10, 10, 30)
	block := config.ParamBlock{
		"nciSizeX0":     both(40),
		"nciSizeXb":     both(1.5),
		"nciSizeMinDBH": both(5),
	}
	env := testEnv(pop, block)

	size, err := NewSize("lognormal", env)
	if err != nil {
		t.Fatal(err)
	}
	if got := size.Effect(tree, Value{}, 40); math.Abs(got-1) > 1e-12 {
		t.Errorf("size at X0 = %v, want 1", got)
	}
	// unimodal: increasing below X0, decreasing above
	prev := 0.0
	for d := 1.0; d <= 40; d++ {
		got := size.Effect(tree, Value{}, d)
		if got < prev {
			t.Fatalf("size decreased below X0 at %v", d)
		}
		prev = got
	}
	for d := 41.0; d <= 200; d++ {
		got := size.Effect(tree, Value{}, d)
		if got > prev {
			t.Fatalf("size increased above X0 at %v", d)
		}
		prev = got
	}
	if got := size.Effect(tree, Value{}, 0); got != 0 {
		t.Errorf("size at 0 = %v", got)
	}

	bounded, err := NewSize("lower_bounded", env)
	if err != nil {
		t.Fatal(err)
	}
	if a, b := bounded.Effect(tree, Value{}, 0.1), bounded.Effect(tree, Value{}, 5); a != b {
		t.Errorf("lower bounded: %v at 0.1, %v at the bound", a, b)
	}

	block["nciSizeX0"] = both(0)
	if _, err := NewSize("lognormal", testEnv(pop, block)); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("X0 = 0: err = %v", err)
	}
}

func TestShadingRequiresLight(t *testing.T) {
	pop := testPopulation(t)
	block := config.ParamBlock{
		"nciShadingCoefficient": both(0.5),
		"nciShadingExponent":    both(1.5),
	}

	if _, err := NewShading("gli", testEnv(pop, block)); !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Fatalf("no Light field: err = %v", err)
	}

	// registered for adults only: saplings still missing
	_, _ = pop.RegisterFloat(population.FieldLight, []population.Combo{{Species: 0, Type: components.Adult}, {Species: 1, Type: components.Adult}})
	if _, err := NewShading("default", testEnv(pop, block)); !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Fatalf("partial Light field: err = %v", err)
	}

	code, _ := pop.RegisterFloat(population.FieldLight, []population.Combo{{Species: 0, Type: components.Sapling}, {Species: 1, Type: components.Sapling}})
	sh, err := NewShading("gli", testEnv(pop, block))
	if err != nil {
		t.Fatal(err)
	}
	tree := pop.Add(0, components.Adult, 10, 10, 30)

	tree.SetFloat(code, 100)
	if got := sh.Effect(tree); got != 1 {
		t.Errorf("full light shading = %v, want 1", got)
	}
	tree.SetFloat(code, 36)
	want := math.Exp(-0.5 * math.Pow(0.64, 1.5))
	if got := sh.Effect(tree); math.Abs(got-want) > 1e-12 {
		t.Errorf("shading at GLI 36 = %v, want %v", got, want)
	}
}

func TestDamageEffect(t *testing.T) {
	pop := testPopulation(t)
	block := config.ParamBlock{
		"nciStormDamageMedium": both(0.8),
		"nciStormDamageFull":   both(0.3),
	}
	if _, err := NewDamage("default", testEnv(pop, block)); !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Fatalf("no stm_dmg: %v", err)
	}

	env := testEnv(pop, block)
	code, _ := pop.RegisterInt(population.FieldStormDamage, env.Combos)
	dmg, err := NewDamage("default", env)
	if err != nil {
		t.Fatal(err)
	}
	tree := pop.Add(0, components.Adult, 10, 10, 30)

	tests := []struct {
		code int32
		want float64
	}{
		{0, 1},
		{1002, 0.8},
		{2000, 0.3},
	}
	for _, tt := range tests {
		tree.SetInt(code, tt.code)
		if got := dmg.Effect(tree); got != tt.want {
			t.Errorf("damage code %d = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestInfectionEffect(t *testing.T) {
	pop := testPopulation(t)
	block := config.ParamBlock{
		"nciInfA":         both(-0.2),
		"nciInfB":         both(0.9),
		"nciInfSizeX0":    both(30),
		"nciInfSizeXb":    both(1),
		"nciInfSizeShift": both(0),
	}
	env := testEnv(pop, block)
	if _, err := NewInfection("log_linear", env); !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Fatalf("no YearsInfested: %v", err)
	}
	code, _ := pop.RegisterInt(population.FieldYearsInfested, env.Combos)

	inf, err := NewInfection("log_linear", env)
	if err != nil {
		t.Fatal(err)
	}
	tree := pop.Add(0, components.Adult, 10, 10, 30)
	if got := inf.Effect(tree); got != 1 {
		t.Errorf("uninfested = %v, want 1", got)
	}
	tree.SetInt(code, 4)
	want := -0.2*math.Log(4) + 0.9
	if got := inf.Effect(tree); math.Abs(got-want) > 1e-12 {
		t.Errorf("infested 4 years = %v, want %v", got, want)
	}

	sized, err := NewInfection("size_dependent", env)
	if err != nil {
		t.Fatal(err)
	}
	// DBH equals X0, so the size term is 1
	if got := sized.Effect(tree); math.Abs(got-want) > 1e-12 {
		t.Errorf("size-dependent at X0 = %v, want %v", got, want)
	}

	tree.SetInt(code, 1000)
	if got := inf.Effect(tree); got != 0 {
		t.Errorf("long infestation = %v, want clamp to 0", got)
	}
}

func climateBlock() config.ParamBlock {
	return config.ParamBlock{
		"nciTempA":             both(5),
		"nciTempB":             both(2),
		"nciTempC":             both(10),
		"nciPrecipAl":          both(0.1),
		"nciPrecipBl":          both(600),
		"nciPrecipCl":          both(4),
		"nciPrecipAh":          both(0.2),
		"nciPrecipBh":          both(1800),
		"nciPrecipCh":          both(3),
		"nciTempThreshold":     both(8),
		"nciTempLowBreadth":    both(3),
		"nciTempHighBreadth":   both(6),
		"nciTempCurrWeight":    both(0.7),
		"nciTempLTMX0":         both(9),
		"nciTempLTMXb":         both(4),
		"nciPrecipThreshold":   both(0),
		"nciPrecipLowBreadth":  both(200),
		"nciPrecipHighBreadth": both(300),
		"nciPrecipCurrWeight":  both(0.5),
		"nciNX0":               both(10),
		"nciNXb":               both(5),
	}
}

func TestClimateEffects(t *testing.T) {
	pop := testPopulation(t)
	env := testEnv(pop, climateBlock())

	weibull, err := NewTemperature("weibull", env)
	if err != nil {
		t.Fatal(err)
	}
	if got := weibull.Effect(0, &plot.Climate{MeanAnnualTemp: 10}); got != 1 {
		t.Errorf("weibull at C = %v", got)
	}
	if got, want := weibull.Effect(0, &plot.Climate{MeanAnnualTemp: 15}), math.Exp(-0.5); math.Abs(got-want) > 1e-12 {
		t.Errorf("weibull one A away = %v, want %v", got, want)
	}

	dl, err := NewPrecipitation("double_logistic", plot.PrecipMeanAnnual, env)
	if err != nil {
		t.Fatal(err)
	}
	if got := dl.Effect(0, &plot.Climate{MeanAnnualPrecip: 0}); math.Abs(got-0.1*(0.2+0.8)) > 1e-12 {
		t.Errorf("double logistic at 0 = %v, want al", got)
	}
	mid := dl.Effect(0, &plot.Climate{MeanAnnualPrecip: 1000})
	if mid <= dl.Effect(0, &plot.Climate{MeanAnnualPrecip: 200}) || mid <= dl.Effect(0, &plot.Climate{MeanAnnualPrecip: 5000}) {
		t.Errorf("double logistic not peaked in the middle: %v", mid)
	}

	n, err := NewNitrogen("gaussian", env)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := n.Effect(1, &plot.Climate{NitrogenDeposition: 15}), math.Exp(-0.5); math.Abs(got-want) > 1e-12 {
		t.Errorf("nitrogen = %v, want %v", got, want)
	}
}

func TestDoubleGaussianRollsYears(t *testing.T) {
	pop := testPopulation(t)
	env := testEnv(pop, climateBlock())

	eff, err := NewTemperature("double_no_local_diff", env)
	if err != nil {
		t.Fatal(err)
	}
	pre := eff.(PreCalcer)
	branch := func(x float64) float64 {
		if x < 8 {
			return math.Exp(-0.5 * math.Pow((x-8)/3, 2))
		}
		return math.Exp(-0.5 * math.Pow((x-8)/6, 2))
	}

	// first year: previous equals current
	pre.PreCalcs(&plot.Climate{MeanAnnualTemp: 5})
	if got, want := eff.Effect(0, nil), branch(5); math.Abs(got-want) > 1e-12 {
		t.Errorf("first year = %v, want %v", got, want)
	}

	pre.PreCalcs(&plot.Climate{MeanAnnualTemp: 14})
	if got, want := eff.Effect(0, nil), 0.7*branch(14)+0.3*branch(5); math.Abs(got-want) > 1e-12 {
		t.Errorf("second year = %v, want %v", got, want)
	}

	local, err := NewTemperature("double_local_diff", env)
	if err != nil {
		t.Fatal(err)
	}
	local.(PreCalcer).PreCalcs(&plot.Climate{MeanAnnualTemp: 11, LongTermTemp: 9})
	// anomaly 2, weight 0.7 at the long-term optimum
	if got, want := local.Effect(0, nil), branch(2); math.Abs(got-want) > 1e-12 {
		t.Errorf("local diff = %v, want %v", got, want)
	}
}

func TestEffectsStayInUnitInterval(t *testing.T) {
	pop := testPopulation(t)
	block := climateBlock()
	for k, v := range nciBlock() {
		block[k] = v
	}
	block["nciCrowdingC"] = both(0.3)
	block["nciCrowdingD"] = both(2)
	block["nciCrowdingGamma"] = both(-0.5)
	block["nciCrowdingRatioExp"] = both(1.5)
	block["nciSizeX0"] = both(20)
	block["nciSizeXb"] = both(-2)
	block["nciSizeMinDBH"] = both(1)
	env := testEnv(pop, block)
	tree := pop.Add(0, components.Adult, 10, 10, 30)

	var sized []SizedEffect
	for _, v := range []string{"default", "two_value", "none"} {
		e, err := NewCrowding(v, env)
		if err != nil {
			t.Fatalf("crowding %s: %v", v, err)
		}
		sized = append(sized, e)
	}
	for _, v := range []string{"lognormal", "lower_bounded", "none"} {
		e, err := NewSize(v, env)
		if err != nil {
			t.Fatalf("size %s: %v", v, err)
		}
		sized = append(sized, e)
	}

	var climate []ClimateEffect
	for _, v := range []string{"weibull", "double_no_local_diff", "double_local_diff", "none"} {
		e, err := NewTemperature(v, env)
		if err != nil {
			t.Fatalf("temperature %s: %v", v, err)
		}
		climate = append(climate, e)
	}
	for _, v := range []string{"double_logistic", "none"} {
		e, err := NewPrecipitation(v, plot.PrecipMeanAnnual, env)
		if err != nil {
			t.Fatalf("precipitation %s: %v", v, err)
		}
		climate = append(climate, e)
	}

	for _, nci := range []float64{0, 0.01, 1, 10, 1e4} {
		for _, diam := range []float64{0, 0.1, 5, 50, 500} {
			for i, e := range sized {
				got := e.Effect(tree, Value{NCI: nci, Sum: nci * 2}, diam)
				if got < 0 || got > 1 || math.IsNaN(got) {
					t.Errorf("sized effect %d at NCI %v diam %v = %v", i, nci, diam, got)
				}
			}
		}
	}
	for _, x := range []float64{-40, -1, 0, 3, 10, 25, 800, 5000} {
		clim := &plot.Climate{MeanAnnualTemp: x, MeanAnnualPrecip: x, LongTermTemp: x / 2}
		for i, e := range climate {
			if p, ok := e.(PreCalcer); ok {
				p.PreCalcs(clim)
			}
			got := e.Effect(0, clim)
			if got < 0 || got > 1 || math.IsNaN(got) {
				t.Errorf("climate effect %d at %v = %v", i, x, got)
			}
		}
	}
}

func TestNoneVariantsAreIdentity(t *testing.T) {
	pop := testPopulation(t)
	env := testEnv(pop, config.ParamBlock{})
	tree := pop.Add(0, components.Adult, 10, 10, 30)

	term, err := NewTerm("none", env)
	if err != nil {
		t.Fatal(err)
	}
	v := term.Compute(tree)
	if v.NCI != 0 || v.Sum != 0 {
		t.Errorf("NCI none = %+v", v)
	}

	for name, build := range map[string]func(string, *Env) (SizedEffect, error){
		"crowding": NewCrowding,
		"size":     NewSize,
	} {
		e, err := build("none", env)
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Effect(tree, Value{NCI: 7}, 12); got != 1 {
			t.Errorf("%s none = %v", name, got)
		}
	}
	for name, build := range map[string]func(string, *Env) (TreeEffect, error){
		"shading":   NewShading,
		"damage":    NewDamage,
		"infection": NewInfection,
	} {
		e, err := build("none", env)
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Effect(tree); got != 1 {
			t.Errorf("%s none = %v", name, got)
		}
	}
	for name, build := range map[string]func(string, *Env) (ClimateEffect, error){
		"temperature": NewTemperature,
		"nitrogen":    NewNitrogen,
	} {
		e, err := build("none", env)
		if err != nil {
			t.Fatal(err)
		}
		if got := e.Effect(0, &plot.Climate{MeanAnnualTemp: -50}); got != 1 {
			t.Errorf("%s none = %v", name, got)
		}
	}
}

func TestUnknownVariant(t *testing.T) {
	pop := testPopulation(t)
	env := testEnv(pop, config.ParamBlock{})
	if _, err := NewCrowding("gaussian", env); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("err = %v", err)
	}
	if _, err := NewTerm("default", env); !errors.Is(err, simerr.ErrConfiguration) {
		t.Errorf("missing NCI params: err = %v", err)
	}
}
