package systems

import (
	"math"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/gli"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
	"github.com/pthm-cable/canopy/telemetry"
)

// lightEngines holds one GLI engine per pool worker. Engines share their sky through the
// run's brightness cache.
type lightEngines struct {
	settings gli.Settings
	engines  []*gli.Engine
}

func (l *lightEngines) setup(b *base, env *Env) error {
	s, err := gli.ReadSettings(b.params)
	if err != nil {
		return err
	}
	l.settings = s
	ext := env.Extinction()
	l.engines = make([]*gli.Engine, env.Pool.Workers())
	for i := range l.engines {
		if l.engines[i], err = gli.New(env.Pop, env.Sky, s, ext); err != nil {
			return err
		}
	}
	return nil
}

// lightJob is one GLI evaluation. Tree is the zero value for free-standing points.
type lightJob struct {
	tree   population.Tree
	x, y   float64
	height float64
}

// evaluate computes every job on the pool and returns the first error by job order.
func (l *lightEngines) evaluate(env *Env, jobs []lightJob, out []float64) error {
	env.Pop.Reindex()
	errs := make([]error, len(jobs))
	env.Pool.Run(len(jobs), func(worker, start, end int) {
		e := l.engines[worker]
		for i := start; i < end; i++ {
			j := &jobs[i]
			if j.tree.Valid() {
				out[i], errs[i] = e.EvaluateTree(j.tree, j.height)
			} else {
				out[i], errs[i] = e.Evaluate(j.x, j.y, j.height)
			}
		}
	})
	return firstErr(errs...)
}

// GLILight stores each covered tree's GLI in its Light field. Seedlings are evaluated at
// gliPhotoHeight; saplings and adults at the middle of their crown.
type GLILight struct {
	base
	lightEngines

	photoHeight float64
	lightCode   int

	jobs   []lightJob
	values []float64
}

// NewGLILight creates the GLI light behavior.
func NewGLILight(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if err := b.requireApplies(); err != nil {
		return nil, err
	}
	return &GLILight{base: b}, nil
}

func (g *GLILight) RegisterFields(pop *population.Population) error {
	var err error
	g.lightCode, err = pop.RegisterFloat(population.FieldLight, g.combos)
	return err
}

func (g *GLILight) Setup(env *Env) error {
	if err := g.params.Single("gliPhotoHeight", &g.photoHeight, false); err != nil {
		return err
	}
	if g.photoHeight < 0 {
		return simerr.Config(g.name, "gliPhotoHeight", "must not be negative, got %v", g.photoHeight)
	}
	return g.lightEngines.setup(&g.base, env)
}

// heightOf returns where a tree's light is measured, m above its base.
func (g *GLILight) heightOf(t population.Tree) float64 {
	if t.Type() == components.Seedling {
		return g.photoHeight
	}
	return math.Max(t.Height()-t.CrownDepth()/2, 0)
}

func (g *GLILight) Action(env *Env) error {
	g.jobs = g.jobs[:0]
	for t := range env.Pop.All() {
		if !g.covers(t) || !env.Pop.DeathCode(t).Competes() {
			continue
		}
		g.jobs = append(g.jobs, lightJob{tree: t, height: g.heightOf(t)})
	}

	g.values = grow(g.values, len(g.jobs))
	if err := g.evaluate(env, g.jobs, g.values); err != nil {
		return err
	}
	for i, j := range g.jobs {
		j.tree.SetFloat(g.lightCode, g.values[i])
	}
	return nil
}

// GLIPoints evaluates GLI at fixed points and appends them to gli_points.csv.
type GLIPoints struct {
	base
	noFields
	lightEngines

	points  []config.PointConfig
	jobs    []lightJob
	values  []float64
	records []telemetry.GLIPointRecord
}

// NewGLIPoints creates the GLI points behavior.
func NewGLIPoints(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	if len(cfg.Points) == 0 {
		return nil, simerr.Config(cfg.Name, "points", "no points configured")
	}
	return &GLIPoints{base: b, points: cfg.Points}, nil
}

func (g *GLIPoints) Setup(env *Env) error {
	p := env.Pop.Plot()
	g.jobs = g.jobs[:0]
	for _, pt := range g.points {
		if pt.X < 0 || pt.X >= p.LenX || pt.Y < 0 || pt.Y >= p.LenY {
			return simerr.Config(g.name, "points", "point %q at (%v, %v) is outside the plot", pt.Name, pt.X, pt.Y)
		}
		if pt.Height < 0 {
			return simerr.Config(g.name, "points", "point %q has negative height", pt.Name)
		}
		g.jobs = append(g.jobs, lightJob{x: pt.X, y: pt.Y, height: pt.Height})
	}
	g.values = make([]float64, len(g.jobs))
	return g.lightEngines.setup(&g.base, env)
}

func (g *GLIPoints) Action(env *Env) error {
	if err := g.evaluate(env, g.jobs, g.values); err != nil {
		return err
	}
	g.records = g.records[:0]
	for i, pt := range g.points {
		g.records = append(g.records, telemetry.GLIPointRecord{
			Step: env.Step, Name: pt.Name, X: pt.X, Y: pt.Y, Height: pt.Height, GLI: g.values[i],
		})
	}
	return env.Output.WriteGLIPoints(g.records)
}

// Values returns the GLI of each point from the last timestep, in configured order.
func (g *GLIPoints) Values() []float64 {
	return g.values
}

// GLIMap evaluates GLI at the centre of every cell of a regular grid over the plot.
// Parameters: gliMapResolution (cell size, m) and gliMapHeight (m above ground).
type GLIMap struct {
	base
	noFields
	lightEngines

	cols, rows int
	cellW      float64
	cellH      float64
	write      bool

	jobs    []lightJob
	values  []float64
	records []telemetry.GLIMapRecord
}

// NewGLIMap creates the GLI map behavior.
func NewGLIMap(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	b, err := newBase(cfg, names)
	if err != nil {
		return nil, err
	}
	return &GLIMap{base: b}, nil
}

func (g *GLIMap) Setup(env *Env) error {
	res, height := 10.0, 1.0
	if err := g.params.Single("gliMapResolution", &res, false); err != nil {
		return err
	}
	if err := g.params.Single("gliMapHeight", &height, false); err != nil {
		return err
	}
	if res <= 0 {
		return simerr.Config(g.name, "gliMapResolution", "must be greater than 0, got %v", res)
	}
	if height < 0 {
		return simerr.Config(g.name, "gliMapHeight", "must not be negative, got %v", height)
	}

	p := env.Pop.Plot()
	g.cols = max(1, int(math.Ceil(p.LenX/res)))
	g.rows = max(1, int(math.Ceil(p.LenY/res)))
	g.cellW = p.LenX / float64(g.cols)
	g.cellH = p.LenY / float64(g.rows)
	g.jobs = make([]lightJob, 0, g.cols*g.rows)
	for row := range g.rows {
		for col := range g.cols {
			g.jobs = append(g.jobs, lightJob{
				x:      (float64(col) + 0.5) * g.cellW,
				y:      (float64(row) + 0.5) * g.cellH,
				height: height,
			})
		}
	}
	g.values = make([]float64, len(g.jobs))
	g.write = env.Cfg.Telemetry.WriteGLIMap
	return g.lightEngines.setup(&g.base, env)
}

func (g *GLIMap) Action(env *Env) error {
	if err := g.evaluate(env, g.jobs, g.values); err != nil {
		return err
	}
	if !g.write {
		return nil
	}
	g.records = g.records[:0]
	for i, j := range g.jobs {
		g.records = append(g.records, telemetry.GLIMapRecord{
			Step: env.Step, Map: g.name, X: j.x, Y: j.y, GLI: g.values[i],
		})
	}
	return env.Output.WriteGLIMap(g.records)
}

// Grid returns the map size and its values in row-major order, row 0 at y = 0.
func (g *GLIMap) Grid() (cols, rows int, values []float64) {
	return g.cols, g.rows, g.values
}

func grow(s []float64, n int) []float64 {
	if cap(s) < n {
		return make([]float64, n)
	}
	return s[:n]
}
