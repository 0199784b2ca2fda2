package main

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/gli"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/systems"
	"github.com/pthm-cable/canopy/telemetry"
)

// Observation is one stem of the measured stand. Growth is the observed diameter increment
// in cm per year (diam10 for seedlings and saplings, DBH for adults); it is only fitted
// when Measured is set, so unmeasured stems still act as competitors.
type Observation struct {
	Species  string  `csv:"species"`
	Type     string  `csv:"type"`
	X        float64 `csv:"x"`
	Y        float64 `csv:"y"`
	Diam     float64 `csv:"diam"`
	GLI      float64 `csv:"gli"`
	Growth   float64 `csv:"growth"`
	Measured bool    `csv:"measured"`
}

// Residual compares one measured stem with the model.
type Residual struct {
	Species   string  `csv:"species"`
	Type      string  `csv:"type"`
	X         float64 `csv:"x"`
	Y         float64 `csv:"y"`
	Diam      float64 `csv:"diam"`
	Observed  float64 `csv:"observed"`
	Predicted float64 `csv:"predicted"`
	Residual  float64 `csv:"residual"`
}

type measured struct {
	tree     population.Tree
	observed float64
}

// FitnessEvaluator scores parameter vectors by the mean squared growth residual.
type FitnessEvaluator struct {
	params   *ParamVector
	behavior config.BehaviorConfig
	names    []string
	registry *systems.BehaviorRegistry
	env      *systems.Env
	measured []measured

	lastErr error
}

// NewFitnessEvaluator plants the observed stand and rolls the climate to step.
func NewFitnessEvaluator(cfg *config.Config, behavior string, obs []Observation, params *ParamVector, step int) (*FitnessEvaluator, error) {
	bc, ok := cfg.Behavior(behavior)
	if !ok {
		return nil, fmt.Errorf("no behavior named %q", behavior)
	}
	if bc.Kind != "nci_growth" {
		return nil, fmt.Errorf("behavior %q is %s, want nci_growth", behavior, bc.Kind)
	}

	pop, err := population.New(plot.New(cfg.Plot.LenX, cfg.Plot.LenY, cfg.Plot.Latitude), cfg.Species, cfg.Population)
	if err != nil {
		return nil, err
	}
	fe := &FitnessEvaluator{
		params:   params,
		behavior: *bc,
		names:    cfg.Derived.SpeciesNames,
		registry: systems.NewBehaviorRegistry(),
		env: &systems.Env{
			Cfg:       cfg,
			Pop:       pop,
			Climate:   &plot.Climate{},
			Sky:       gli.NewCache(gli.SkyModel{Latitude: cfg.Plot.Latitude, Light: cfg.Light}),
			Rng:       rand.New(rand.NewSource(1)),
			Pool:      systems.NewWorkerPool(1),
			Collector: telemetry.NewCollector(cfg.Run.YearsPerTimestep),
			Step:      step,
			Years:     cfg.Run.YearsPerTimestep,
		},
	}

	// Observed light stands in for a light behavior.
	var combos []population.Combo
	for sp := range cfg.Derived.NumSpecies {
		for _, typ := range []components.TreeType{components.Seedling, components.Sapling, components.Adult} {
			combos = append(combos, population.Combo{Species: sp, Type: typ})
		}
	}
	light, err := pop.RegisterFloat(population.FieldLight, combos)
	if err != nil {
		return nil, err
	}

	for i, o := range obs {
		sp, ok := cfg.Derived.SpeciesIndex[o.Species]
		if !ok {
			return nil, fmt.Errorf("row %d: unknown species %q", i+1, o.Species)
		}
		typ, ok := components.ParseTreeType(o.Type)
		if !ok || typ == components.Snag {
			return nil, fmt.Errorf("row %d: bad tree type %q", i+1, o.Type)
		}
		if o.Diam <= 0 {
			return nil, fmt.Errorf("row %d: diameter must be positive, got %v", i+1, o.Diam)
		}
		t := pop.Add(sp, typ, o.X, o.Y, o.Diam)
		t.SetFloat(light, o.GLI)
		if o.Measured {
			fe.measured = append(fe.measured, measured{tree: t, observed: o.Growth})
		}
	}
	if len(fe.measured) == 0 {
		return nil, fmt.Errorf("no measured stems in the stand")
	}

	// Tree state fields start at zero: no stem is damaged or infested. The climate is
	// rolled to the requested step.
	for _, c := range cfg.Behaviors {
		if c.Kind != "climate" && c.Kind != "tree_state" {
			continue
		}
		b, err := fe.registry.Build(c, fe.names)
		if err != nil {
			return nil, err
		}
		if err := b.RegisterFields(pop); err != nil {
			return nil, err
		}
		if c.Kind != "climate" {
			continue
		}
		if err := b.Setup(fe.env); err != nil {
			return nil, err
		}
		if err := b.Action(fe.env); err != nil {
			return nil, err
		}
	}
	return fe, nil
}

// Close stops the evaluator's worker pool.
func (fe *FitnessEvaluator) Close() {
	fe.env.Pool.Stop()
}

// predict runs the growth behavior with raw parameter values x and returns the annual
// increment of every measured stem.
func (fe *FitnessEvaluator) predict(x []float64) ([]float64, error) {
	bc := fe.behavior
	bc.Params = fe.params.Apply(bc.Params, x, fe.names)

	b, err := fe.registry.Build(bc, fe.names)
	if err != nil {
		return nil, err
	}
	if err := b.RegisterFields(fe.env.Pop); err != nil {
		return nil, err
	}
	if err := b.Setup(fe.env); err != nil {
		return nil, err
	}
	if err := b.Action(fe.env); err != nil {
		return nil, err
	}

	code, _ := fe.env.Pop.FieldCode(population.FieldGrowth, population.FloatField)
	years := float64(fe.env.Years)
	out := make([]float64, len(fe.measured))
	for i, m := range fe.measured {
		out[i] = m.tree.Float(code) / years
	}
	return out, nil
}

// Evaluate returns the mean squared residual for raw parameter values x (lower = better).
// Parameter sets the model rejects score +Inf.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	pred, err := fe.predict(x)
	if err != nil {
		if fe.lastErr == nil || fe.lastErr.Error() != err.Error() {
			slog.Warn("parameter set rejected", "error", err)
		}
		fe.lastErr = err
		return math.Inf(1)
	}
	var sse float64
	for i, m := range fe.measured {
		d := pred[i] - m.observed
		sse += d * d
	}
	return sse / float64(len(fe.measured))
}

// Residuals returns per-stem residuals for raw parameter values x.
func (fe *FitnessEvaluator) Residuals(x []float64) ([]Residual, error) {
	pred, err := fe.predict(x)
	if err != nil {
		return nil, err
	}
	out := make([]Residual, len(fe.measured))
	for i, m := range fe.measured {
		pos := m.tree.Position()
		out[i] = Residual{
			Species:   fe.names[m.tree.Species()],
			Type:      m.tree.Type().String(),
			X:         pos.X,
			Y:         pos.Y,
			Diam:      m.tree.Diam(),
			Observed:  m.observed,
			Predicted: pred[i],
			Residual:  pred[i] - m.observed,
		}
	}
	return out, nil
}

// Measured returns the number of fitted stems.
func (fe *FitnessEvaluator) Measured() int {
	return len(fe.measured)
}
