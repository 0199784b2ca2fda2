package systems

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/gli"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
	"github.com/pthm-cable/canopy/telemetry"
)

// testEnv returns an empty stand on the default configuration.
func testEnv(t *testing.T, workers int) *Env {
	t.Helper()
	cfg, err := config.Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	pop, err := population.New(plot.New(cfg.Plot.LenX, cfg.Plot.LenY, cfg.Plot.Latitude), cfg.Species, cfg.Population)
	if err != nil {
		t.Fatal(err)
	}
	pool := NewWorkerPool(workers)
	t.Cleanup(pool.Stop)
	return &Env{
		Cfg:       cfg,
		Pop:       pop,
		Climate:   &plot.Climate{},
		Sky:       gli.NewCache(gli.SkyModel{Latitude: cfg.Plot.Latitude, Light: cfg.Light}),
		Rng:       rand.New(rand.NewSource(1)),
		Pool:      pool,
		Collector: telemetry.NewCollector(cfg.Run.YearsPerTimestep),
		Step:      1,
		Years:     cfg.Run.YearsPerTimestep,
	}
}

// prepare builds behaviors and runs RegisterFields then Setup on all of them.
func prepare(t *testing.T, env *Env, cfgs ...config.BehaviorConfig) []Behavior {
	t.Helper()
	behaviors, err := NewBehaviorRegistry().BuildAll(cfgs, env.Cfg.Derived.SpeciesNames)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range behaviors {
		if err := b.RegisterFields(env.Pop); err != nil {
			t.Fatal(err)
		}
	}
	for _, b := range behaviors {
		if err := b.Setup(env); err != nil {
			t.Fatalf("%s setup: %v", b.Name(), err)
		}
	}
	return behaviors
}

func act(t *testing.T, env *Env, behaviors ...Behavior) {
	t.Helper()
	for _, b := range behaviors {
		if err := b.Action(env); err != nil {
			t.Fatalf("%s: %v", b.Name(), err)
		}
	}
}

func applies(species string, types ...string) []config.ComboConfig {
	out := make([]config.ComboConfig, len(types))
	for i, typ := range types {
		out[i] = config.ComboConfig{Species: species, Type: typ}
	}
	return out
}

func acsa(v float64) config.ParamValue {
	return config.PerSpecies(map[string]float64{"ACSA": v})
}

func TestRegistryBuildsDefaultBehaviors(t *testing.T) {
	env := testEnv(t, 1)
	reg := NewBehaviorRegistry()

	behaviors, err := reg.BuildAll(env.Cfg.Behaviors, env.Cfg.Derived.SpeciesNames)
	if err != nil {
		t.Fatal(err)
	}
	if len(behaviors) != len(env.Cfg.Behaviors) {
		t.Fatalf("built %d behaviors, want %d", len(behaviors), len(env.Cfg.Behaviors))
	}
	for i, b := range behaviors {
		if b.Name() != env.Cfg.Behaviors[i].Name || b.Kind() != env.Cfg.Behaviors[i].Kind {
			t.Errorf("behavior %d = %s/%s", i, b.Name(), b.Kind())
		}
		if _, ok := reg.Get(b.Kind()); !ok {
			t.Errorf("kind %q has no registry entry", b.Kind())
		}
	}

	if got := reg.GetName("nci_growth"); got != "NCI Growth" {
		t.Errorf("GetName = %q", got)
	}
	if got := len(reg.ByCategory("light")); got != 3 {
		t.Errorf("light behaviors = %d, want 3", got)
	}
}

func TestRegistryRejectsBadConfig(t *testing.T) {
	names := []string{"ACSA"}
	reg := NewBehaviorRegistry()

	tests := []struct {
		name string
		cfgs []config.BehaviorConfig
	}{
		{"unknown kind", []config.BehaviorConfig{{Name: "x", Kind: "harvest"}}},
		{"missing name", []config.BehaviorConfig{{Kind: "climate"}}},
		{"duplicate name", []config.BehaviorConfig{{Name: "c", Kind: "climate"}, {Name: "c", Kind: "climate"}}},
		{"unknown species", []config.BehaviorConfig{{Name: "g", Kind: "nci_growth", Applies: applies("FAGR", "adult")}}},
		{"unknown type", []config.BehaviorConfig{{Name: "g", Kind: "nci_growth", Applies: applies("ACSA", "stump")}}},
		{"no applies", []config.BehaviorConfig{{Name: "g", Kind: "nci_growth"}}},
		{"no points", []config.BehaviorConfig{{Name: "p", Kind: "gli_points"}}},
		{"unknown epiphyte", []config.BehaviorConfig{{Name: "e", Kind: "epiphytic_establishment",
			Applies: applies("ACSA", "adult"), Epiphyte: "FAGR"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := reg.BuildAll(tt.cfgs, names)
			if !errors.Is(err, simerr.ErrConfiguration) {
				t.Errorf("err = %v, want configuration error", err)
			}
		})
	}
}

func TestShadingWithoutLightIsPrerequisiteError(t *testing.T) {
	env := testEnv(t, 1)
	growth, _ := env.Cfg.Behavior("nci_growth")
	state, _ := env.Cfg.Behavior("tree_state")

	behaviors, err := NewBehaviorRegistry().BuildAll([]config.BehaviorConfig{*state, *growth}, env.Cfg.Derived.SpeciesNames)
	if err != nil {
		t.Fatal(err)
	}
	for _, b := range behaviors {
		if err := b.RegisterFields(env.Pop); err != nil {
			t.Fatal(err)
		}
	}
	err = behaviors[1].Setup(env)
	if !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Fatalf("err = %v, want prerequisite error", err)
	}
	if !strings.Contains(err.Error(), population.FieldLight) {
		t.Errorf("error %q does not name the Light field", err)
	}
}

func TestClimateSchedule(t *testing.T) {
	env := testEnv(t, 1)
	env.Cfg.Plot.Climate = config.ClimateConfig{
		Temp:   []float64{5, 6, 7},
		Precip: []float64{900},
	}
	lt := 1000.0
	env.Cfg.Plot.Climate.LongTermPrecip = &lt
	lnd := 4.0
	env.Cfg.Plot.Climate.LongTermNDep = &lnd
	bs := prepare(t, env, config.BehaviorConfig{Name: "climate", Kind: "climate"})

	tests := []struct {
		step     int
		temp     float64
		nitrogen float64
	}{
		{1, 5, 4},
		{3, 7, 4},
		{10, 7, 4}, // last element repeats
	}
	for _, tt := range tests {
		env.Step = tt.step
		act(t, env, bs...)
		if env.Climate.MeanAnnualTemp != tt.temp || env.Climate.NitrogenDeposition != tt.nitrogen {
			t.Errorf("step %d: temp %v nitrogen %v, want %v %v", tt.step,
				env.Climate.MeanAnnualTemp, env.Climate.NitrogenDeposition, tt.temp, tt.nitrogen)
		}
		if env.Climate.MeanAnnualPrecip != 900 || env.Climate.LongTermPrecip != 1000 {
			t.Errorf("step %d: precip %v long-term %v", tt.step, env.Climate.MeanAnnualPrecip, env.Climate.LongTermPrecip)
		}
	}
}

func TestNCIGrowthWritesGrowthField(t *testing.T) {
	env := testEnv(t, 1)
	bs := prepare(t, env, config.BehaviorConfig{
		Name:    "growth",
		Kind:    "nci_growth",
		Applies: applies("ACSA", "sapling", "adult"),
		Terms:   map[string]string{"nci": "none", "crowding": "none", "size": "none"},
		Params:  config.ParamBlock{"nciMaxPotentialGrowth": acsa(0.4)},
	})
	adult := env.Pop.Add(0, components.Adult, 10, 10, 30)
	other := env.Pop.Add(1, components.Adult, 20, 20, 30)
	act(t, env, bs...)

	code, _ := env.Pop.FieldCode(population.FieldGrowth, population.FloatField)
	want := 0.4 * float64(env.Years)
	if got := adult.Float(code); math.Abs(got-want) > 1e-12 {
		t.Errorf("growth = %v, want %v", got, want)
	}
	if got := other.Float(code); got != 0 {
		t.Errorf("uncovered tree growth = %v, want 0", got)
	}
}

func TestNCIMortality(t *testing.T) {
	for _, tt := range []struct {
		name     string
		survival float64
		dead     int
	}{
		{"certain death", 0, 3},
		{"certain survival", 1, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			env := testEnv(t, 1)
			bs := prepare(t, env,
				config.BehaviorConfig{
					Name:    "mortality",
					Kind:    "nci_mortality",
					Applies: applies("ACSA", "adult"),
					Terms:   map[string]string{"nci": "none", "crowding": "none", "size": "none"},
					Params:  config.ParamBlock{"nciMaxSurvival": acsa(tt.survival)},
				},
				config.BehaviorConfig{Name: "removal", Kind: "dead_removal"},
			)
			for i := range 3 {
				env.Pop.Add(0, components.Adult, float64(10+20*i), 50, 25)
			}

			act(t, env, bs[0])
			dead := 0
			for tr := range env.Pop.All() {
				if env.Pop.DeathCode(tr) == components.Natural {
					dead++
				}
			}
			if dead != tt.dead {
				t.Fatalf("dead = %d, want %d", dead, tt.dead)
			}

			act(t, env, bs[1])
			if got := env.Pop.Count(); got != 3-tt.dead {
				t.Errorf("count after removal = %d, want %d", got, 3-tt.dead)
			}
			if s := env.Collector.Flush(1, env.Pop); s.Deaths != tt.dead {
				t.Errorf("recorded deaths = %d, want %d", s.Deaths, tt.dead)
			}
		})
	}
}

func TestGrowthApplierReclassifies(t *testing.T) {
	env := testEnv(t, 1)
	combos := []population.Combo{
		{Species: 0, Type: components.Seedling},
		{Species: 0, Type: components.Sapling},
		{Species: 0, Type: components.Adult},
	}
	code, err := env.Pop.RegisterFloat(population.FieldGrowth, combos)
	if err != nil {
		t.Fatal(err)
	}
	bs := prepare(t, env, config.BehaviorConfig{
		Name:    "applier",
		Kind:    "growth_applier",
		Applies: applies("ACSA", "seedling", "sapling", "adult"),
	})

	seedling := env.Pop.Add(0, components.Seedling, 10, 10, 0.5)
	sapling := env.Pop.Add(0, components.Sapling, 20, 20, 9.5)
	adult := env.Pop.Add(0, components.Adult, 30, 30, 20)
	seedling.SetFloat(code, 5)
	sapling.SetFloat(code, 2)
	adult.SetFloat(code, 1.5)
	act(t, env, bs...)

	if seedling.Type() != components.Sapling {
		t.Errorf("seedling type = %v, want sapling", seedling.Type())
	}
	if sapling.Type() != components.Adult {
		t.Errorf("sapling type = %v, want adult (DBH %v)", sapling.Type(), sapling.DBH())
	}
	if got := adult.DBH(); math.Abs(got-21.5) > 1e-12 {
		t.Errorf("adult DBH = %v, want 21.5", got)
	}
	if s := env.Collector.Flush(1, env.Pop); s.Recruits != 1 {
		t.Errorf("recruits = %d, want 1", s.Recruits)
	}
}

func TestGrowthApplierNeedsGrowthField(t *testing.T) {
	env := testEnv(t, 1)
	b, err := NewGrowthApplier(config.BehaviorConfig{Name: "applier", Kind: "growth_applier",
		Applies: applies("ACSA", "adult")}, env.Cfg.Derived.SpeciesNames)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Setup(env); !errors.Is(err, simerr.ErrPrerequisiteMissing) {
		t.Errorf("err = %v, want prerequisite error", err)
	}
}
