// Package sim assembles a stand from configuration and advances it one timestep at a time.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/gli"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/storage"
	"github.com/pthm-cable/canopy/systems"
	"github.com/pthm-cable/canopy/telemetry"
)

// Options configures a simulation run.
type Options struct {
	Seed      int64  // 0 falls back to the config seed, then to the clock
	LogStats  bool   // log full stand and perf stats each timestep
	OutputDir string // CSV output; empty disables it
	DBPath    string // overrides storage.path when set
	Workers   int    // GLI worker goroutines; 0 = GOMAXPROCS
}

// Sim holds the complete simulation state.
type Sim struct {
	cfg       *config.Config
	env       *systems.Env
	behaviors []systems.Behavior

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	bookmarks *telemetry.BookmarkDetector
	output    *telemetry.OutputManager

	store *storage.DB
	runID uuid.UUID

	seed     int64
	logStats bool
	last     telemetry.StandStats

	statsCallback func(telemetry.StandStats)

	// reused tree snapshot buffers
	trees []population.Tree
	rows  []storage.Tree
}

// New builds a simulation: plot, population, sky cache, behaviors and outputs. Behaviors
// register their fields before the initial stand is planted and are set up afterwards.
func New(cfg *config.Config, opts Options) (s *Sim, err error) {
	seed := opts.Seed
	if seed == 0 {
		seed = cfg.Run.Seed
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	s = &Sim{
		cfg:       cfg,
		seed:      seed,
		logStats:  opts.LogStats,
		collector: telemetry.NewCollector(cfg.Run.YearsPerTimestep),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		bookmarks: telemetry.NewBookmarkDetector(10),
	}
	defer func() {
		if err != nil {
			s.Close()
			s = nil
		}
	}()

	p := plot.New(cfg.Plot.LenX, cfg.Plot.LenY, cfg.Plot.Latitude)
	pop, err := population.New(p, cfg.Species, cfg.Population)
	if err != nil {
		return s, err
	}

	sky := gli.SkyModel{Latitude: cfg.Plot.Latitude, Light: cfg.Light}
	if err := sky.Validate(); err != nil {
		return s, err
	}

	rng := rand.New(rand.NewSource(seed))
	s.env = &systems.Env{
		Cfg:       cfg,
		Pop:       pop,
		Climate:   &plot.Climate{},
		Sky:       gli.NewCache(sky),
		Rng:       rng,
		Pool:      systems.NewWorkerPool(opts.Workers),
		Collector: s.collector,
		Years:     cfg.Run.YearsPerTimestep,
	}

	s.behaviors, err = systems.NewBehaviorRegistry().BuildAll(cfg.Behaviors, cfg.Derived.SpeciesNames)
	if err != nil {
		return s, err
	}
	for _, b := range s.behaviors {
		if err := b.RegisterFields(pop); err != nil {
			return s, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}

	planted, err := pop.PlantInitial(cfg.Population.Initial, cfg.Population.Clumping, rng, seed)
	if err != nil {
		return s, err
	}

	s.output, err = telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return s, err
	}
	s.env.Output = s.output
	if err := s.output.WriteConfig(cfg); err != nil {
		return s, err
	}

	for _, b := range s.behaviors {
		if err := b.Setup(s.env); err != nil {
			return s, fmt.Errorf("%s: %w", b.Name(), err)
		}
		slog.Debug("behavior ready", "behavior", b.Name(), "kind", b.Kind())
	}

	dbPath := cfg.Storage.Path
	if opts.DBPath != "" {
		dbPath = opts.DBPath
	}
	if dbPath != "" {
		if err := s.openStore(dbPath); err != nil {
			return s, err
		}
	}

	slog.Info("stand ready",
		"seed", seed,
		"trees", planted,
		"behaviors", len(s.behaviors),
		"workers", s.env.Pool.Workers(),
	)
	return s, nil
}

func (s *Sim) openStore(path string) error {
	db, err := storage.Open(path)
	if err != nil {
		return err
	}
	s.store = db
	data, err := yaml.Marshal(s.cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	s.runID, err = db.BeginRun(s.seed, data)
	return err
}

// Step runs every behavior once in configured order, then records the timestep.
func (s *Sim) Step() error {
	s.env.Step++
	step := s.env.Step

	s.perf.StartStep()
	s.perf.StartPhase(telemetry.PhaseSpatialGrid)
	s.env.Pop.Reindex()

	for _, b := range s.behaviors {
		s.perf.StartPhase(b.Name())
		if err := b.Action(s.env); err != nil {
			s.perf.EndStep()
			return fmt.Errorf("timestep %d: %s: %w", step, b.Name(), err)
		}
	}

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	stats := s.collector.Flush(step, s.env.Pop)
	s.last = stats
	s.flushTelemetry(stats)

	s.perf.StartPhase(telemetry.PhaseStorage)
	err := s.saveTimestep(stats)
	s.perf.EndStep()
	return err
}

// Run advances n timesteps, or the configured number when n <= 0.
func (s *Sim) Run(n int) error {
	if n <= 0 {
		n = s.cfg.Run.Timesteps
	}
	for range n {
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Close stops the worker pool and flushes outputs.
func (s *Sim) Close() error {
	var errs []error
	if s.env != nil && s.env.Pool != nil {
		s.env.Pool.Stop()
	}
	if err := s.output.Close(); err != nil {
		errs = append(errs, err)
	}
	s.output = nil
	if s.env != nil {
		s.env.Output = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, err)
		}
		s.store = nil
	}
	return errors.Join(errs...)
}

// SetStatsCallback sets a function called with each timestep's stats.
func (s *Sim) SetStatsCallback(fn func(telemetry.StandStats)) {
	s.statsCallback = fn
}

// Population returns the stand.
func (s *Sim) Population() *population.Population { return s.env.Pop }

// Climate returns the current plot climate.
func (s *Sim) Climate() *plot.Climate { return s.env.Climate }

// Behaviors returns the configured behaviors in run order.
func (s *Sim) Behaviors() []systems.Behavior { return s.behaviors }

// Timestep returns the number of completed timesteps.
func (s *Sim) Timestep() int { return s.env.Step }

// Seed returns the RNG seed in use.
func (s *Sim) Seed() int64 { return s.seed }

// RunID returns the run identifier in the store, or uuid.Nil without one.
func (s *Sim) RunID() uuid.UUID { return s.runID }

// LastStats returns the stats of the latest timestep.
func (s *Sim) LastStats() telemetry.StandStats { return s.last }

// Perf returns performance stats over the recent window.
func (s *Sim) Perf() telemetry.PerfStats { return s.perf.Stats() }
