// Package storage provides SQLite-based storage of run results: one row per timestep with
// the stand summary and periodic per-tree snapshots.
package storage

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pthm-cable/canopy/telemetry"
)

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		started TEXT NOT NULL,
		config TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS timesteps (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		year REAL NOT NULL,
		seedlings INTEGER NOT NULL,
		saplings INTEGER NOT NULL,
		adults INTEGER NOT NULL,
		snags INTEGER NOT NULL,
		basal_area REAL NOT NULL,
		deaths INTEGER NOT NULL,
		disturb_deaths INTEGER NOT NULL,
		establishments INTEGER NOT NULL,
		dbh_mean REAL NOT NULL,
		gli_mean REAL NOT NULL,
		growth_mean REAL NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS trees (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		tree_id INTEGER NOT NULL,
		species TEXT NOT NULL,
		type TEXT NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		dbh REAL NOT NULL,
		diam10 REAL NOT NULL,
		height REAL NOT NULL,
		gli REAL NOT NULL,
		growth REAL NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trees_run_step ON trees(run_id, step);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is one row of the runs table.
type Run struct {
	ID      string `db:"id"`
	Seed    int64  `db:"seed"`
	Started string `db:"started"`
	Config  string `db:"config"`
}

// Timestep is one row of the timesteps table.
type Timestep struct {
	Step           int     `db:"step"`
	Year           float64 `db:"year"`
	Seedlings      int     `db:"seedlings"`
	Saplings       int     `db:"saplings"`
	Adults         int     `db:"adults"`
	Snags          int     `db:"snags"`
	BasalArea      float64 `db:"basal_area"`
	Deaths         int     `db:"deaths"`
	DisturbDeaths  int     `db:"disturb_deaths"`
	Establishments int     `db:"establishments"`
	DBHMean        float64 `db:"dbh_mean"`
	GLIMean        float64 `db:"gli_mean"`
	GrowthMean     float64 `db:"growth_mean"`
}

// Tree is one tree in a snapshot. GLI and Growth are zero for trees that do not carry
// those fields.
type Tree struct {
	TreeID  int64   `db:"tree_id"`
	Species string  `db:"species"`
	Type    string  `db:"type"`
	X       float64 `db:"x"`
	Y       float64 `db:"y"`
	DBH     float64 `db:"dbh"`
	Diam10  float64 `db:"diam10"`
	Height  float64 `db:"height"`
	GLI     float64 `db:"gli"`
	Growth  float64 `db:"growth"`
}

// BeginRun records a new run and returns its identifier.
func (db *DB) BeginRun(seed int64, configYAML []byte) (uuid.UUID, error) {
	id := uuid.New()
	_, err := db.conn.Exec("INSERT INTO runs (id, seed, started, config) VALUES (?, ?, ?, ?)",
		id.String(), seed, time.Now().UTC().Format(time.RFC3339), string(configYAML))
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert run: %w", err)
	}
	slog.Info("run started", "run", id.String(), "seed", seed)
	return id, nil
}

// SaveTimestep stores a step's stand summary and, if trees is non-empty, a snapshot of
// every tree, in one transaction.
func (db *DB) SaveTimestep(run uuid.UUID, stats telemetry.StandStats, trees []Tree) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO timesteps
		(run_id, step, year, seedlings, saplings, adults, snags, basal_area,
		 deaths, disturb_deaths, establishments, dbh_mean, gli_mean, growth_mean)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.String(), stats.Step, stats.Year, stats.Seedlings, stats.Saplings, stats.Adults,
		stats.Snags, stats.BasalArea, stats.Deaths, stats.DisturbDeaths, stats.Establishments,
		stats.DBHMean, stats.GLIMean, stats.GrowthMean,
	)
	if err != nil {
		return fmt.Errorf("insert timestep %d: %w", stats.Step, err)
	}

	if len(trees) > 0 {
		stmt, err := tx.Preparex(`INSERT INTO trees
			(run_id, step, tree_id, species, type, x, y, dbh, diam10, height, gli, growth)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range trees {
			_, err := stmt.Exec(run.String(), stats.Step, t.TreeID, t.Species, t.Type,
				t.X, t.Y, t.DBH, t.Diam10, t.Height, t.GLI, t.Growth)
			if err != nil {
				return fmt.Errorf("insert tree %d: %w", t.TreeID, err)
			}
		}
	}

	return tx.Commit()
}

// Runs returns every stored run, oldest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs, "SELECT id, seed, started, config FROM runs ORDER BY started, id")
	return runs, err
}

// Timesteps returns a run's stand summaries in step order.
func (db *DB) Timesteps(run uuid.UUID) ([]Timestep, error) {
	var steps []Timestep
	err := db.conn.Select(&steps, `SELECT step, year, seedlings, saplings, adults, snags, basal_area,
		deaths, disturb_deaths, establishments, dbh_mean, gli_mean, growth_mean
		FROM timesteps WHERE run_id = ? ORDER BY step`, run.String())
	return steps, err
}

// Trees returns the tree snapshot of one step.
func (db *DB) Trees(run uuid.UUID, step int) ([]Tree, error) {
	var trees []Tree
	err := db.conn.Select(&trees, `SELECT tree_id, species, type, x, y, dbh, diam10, height, gli, growth
		FROM trees WHERE run_id = ? AND step = ? ORDER BY tree_id`, run.String(), step)
	return trees, err
}
