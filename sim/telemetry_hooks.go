package sim

import (
	"log/slog"

	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/storage"
	"github.com/pthm-cable/canopy/telemetry"
)

// flushTelemetry reports a finished timestep and handles bookmarks.
func (s *Sim) flushTelemetry(stats telemetry.StandStats) {
	perfStats := s.perf.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	} else {
		slog.Info("timestep", "step", stats.Step, "year", stats.Year, "live", stats.Live(), "basal_area", stats.BasalArea)
	}

	if err := s.output.WriteStand(stats); err != nil {
		slog.Error("failed to write stand stats", "error", err)
	}
	if err := s.output.WritePerf(perfStats, stats.Step); err != nil {
		slog.Error("failed to write perf", "error", err)
	}

	for _, bm := range s.bookmarks.Check(stats) {
		if s.logStats {
			bm.LogBookmark()
		}
		if err := s.output.WriteBookmark(bm); err != nil {
			slog.Error("failed to write bookmark", "error", err)
		}
	}
}

// saveTimestep stores the stand summary and, every storage.snapshot_every timesteps, the
// trees themselves.
func (s *Sim) saveTimestep(stats telemetry.StandStats) error {
	if s.store == nil {
		return nil
	}
	var rows []storage.Tree
	if every := s.cfg.Storage.SnapshotEvery; every > 0 && stats.Step%every == 0 {
		rows = s.snapshotTrees()
	}
	return s.store.SaveTimestep(s.runID, stats, rows)
}

func (s *Sim) snapshotTrees() []storage.Tree {
	pop := s.env.Pop
	light, hasLight := pop.FieldCode(population.FieldLight, population.FloatField)
	growth, hasGrowth := pop.FieldCode(population.FieldGrowth, population.FloatField)
	names := pop.SpeciesNames()

	s.trees = pop.Snapshot(s.trees[:0])
	s.rows = s.rows[:0]
	for _, t := range s.trees {
		pos := t.Position()
		row := storage.Tree{
			TreeID:  int64(t.ID()),
			Species: names[t.Species()],
			Type:    t.Type().String(),
			X:       pos.X,
			Y:       pos.Y,
			DBH:     t.DBH(),
			Diam10:  t.Diam10(),
			Height:  t.Height(),
		}
		if hasLight && pop.Registered(population.FieldLight, t.Species(), t.Type()) {
			row.GLI = t.Float(light)
		}
		if hasGrowth && pop.Registered(population.FieldGrowth, t.Species(), t.Type()) {
			row.Growth = t.Float(growth)
		}
		s.rows = append(s.rows, row)
	}
	clear(s.trees)
	return s.rows
}
