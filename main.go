package main

import (
	"flag"
	"log/slog"
	"os"
	"time"

	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output full stand and perf stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	dbPath := flag.String("db", "", "SQLite run store (empty = use config)")
	seed := flag.Int64("seed", 0, "RNG seed (0 = config seed, then time-based)")
	timesteps := flag.Int("timesteps", 0, "Number of timesteps (0 = use config)")
	workers := flag.Int("workers", 0, "Light worker goroutines (0 = GOMAXPROCS)")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	s, err := sim.New(cfg, sim.Options{
		Seed:      *seed,
		LogStats:  *logStats,
		OutputDir: *outputDir,
		DBPath:    *dbPath,
		Workers:   *workers,
	})
	if err != nil {
		slog.Error("failed to set up simulation", "error", err)
		os.Exit(1)
	}

	n := *timesteps
	if n <= 0 {
		n = cfg.Run.Timesteps
	}
	slog.Info("starting simulation",
		"seed", s.Seed(),
		"timesteps", n,
		"years_per_timestep", cfg.Run.YearsPerTimestep,
		"output_dir", *outputDir,
	)

	start := time.Now()
	runErr := s.Run(n)
	if err := s.Close(); err != nil {
		slog.Error("failed to close outputs", "error", err)
	}
	if runErr != nil {
		slog.Error("simulation aborted", "timestep", s.Timestep(), "error", runErr)
		os.Exit(1)
	}

	final := s.LastStats()
	slog.Info("simulation finished",
		"timesteps", s.Timestep(),
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
		"stand", final,
	)
}
