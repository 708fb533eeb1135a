// Package store persists simulation runs in a local SQLite database.
//
// Each run gets one row in the runs table keyed by a UUID; windowed
// telemetry and full population snapshots reference it. The database
// runs in WAL mode so inspection queries can follow a live run.
package store

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	finished_at   TEXT NOT NULL DEFAULT '',
	seed          INTEGER NOT NULL,
	config        TEXT NOT NULL,
	steps         INTEGER NOT NULL DEFAULT 0,
	agents        INTEGER NOT NULL DEFAULT 0,
	trichome_tips INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS window_stats (
	run_id            TEXT NOT NULL,
	window_end        INTEGER NOT NULL,
	sim_time          REAL NOT NULL,
	agents            INTEGER NOT NULL,
	growing           INTEGER NOT NULL,
	differentiating   INTEGER NOT NULL,
	mature            INTEGER NOT NULL,
	trichome_tips     INTEGER NOT NULL,
	tip_fraction      REAL NOT NULL,
	divisions         INTEGER NOT NULL,
	skipped_divisions INTEGER NOT NULL,
	differentiations  INTEGER NOT NULL,
	migrations        INTEGER NOT NULL,
	inconsistencies   INTEGER NOT NULL,
	radius_mean       REAL NOT NULL,
	radius_p10        REAL NOT NULL,
	radius_p50        REAL NOT NULL,
	radius_p90        REAL NOT NULL,
	PRIMARY KEY (run_id, window_end)
);

CREATE TABLE IF NOT EXISTS snapshot_agents (
	run_id    TEXT NOT NULL,
	step      INTEGER NOT NULL,
	agent_id  INTEGER NOT NULL,
	seed      INTEGER NOT NULL,
	x         REAL NOT NULL,
	y         REAL NOT NULL,
	vx        REAL NOT NULL,
	vy        REAL NOT NULL,
	radius    REAL NOT NULL,
	stage     TEXT NOT NULL,
	progress  REAL NOT NULL,
	divisions INTEGER NOT NULL,
	PRIMARY KEY (run_id, step, agent_id)
);
`

// Store wraps the SQLite connection.
type Store struct {
	conn *sqlx.DB
}

// Open opens the database at path, creating it and applying the schema
// if needed.
func Open(path string) (*Store, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	_, err := s.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// BeginRun registers a new run and returns its ID. The configuration is
// stored as YAML so a run can be reproduced from the database alone.
func (s *Store) BeginRun(cfg *config.Config, start time.Time) (string, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return "", fmt.Errorf("marshaling config: %w", err)
	}

	id := uuid.NewString()
	_, err = s.conn.Exec(
		`INSERT INTO runs (id, started_at, seed, config) VALUES (?, ?, ?, ?)`,
		id, start.UTC().Format(time.RFC3339), int64(cfg.Simulation.Seed), string(raw),
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}
	return id, nil
}

// FinishRun records the end time and final tallies of a run.
func (s *Store) FinishRun(runID string, end time.Time, steps int64, agents, tips int) error {
	_, err := s.conn.Exec(
		`UPDATE runs SET finished_at = ?, steps = ?, agents = ?, trichome_tips = ? WHERE id = ?`,
		end.UTC().Format(time.RFC3339), steps, agents, tips, runID,
	)
	if err != nil {
		return fmt.Errorf("updating run %s: %w", runID, err)
	}
	return nil
}

// SaveStats appends one telemetry window to a run.
func (s *Store) SaveStats(runID string, w telemetry.WindowStats) error {
	_, err := s.conn.Exec(
		`INSERT INTO window_stats (
			run_id, window_end, sim_time,
			agents, growing, differentiating, mature, trichome_tips, tip_fraction,
			divisions, skipped_divisions, differentiations, migrations, inconsistencies,
			radius_mean, radius_p10, radius_p50, radius_p90
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, w.WindowEnd, w.SimTime,
		w.Agents, w.Growing, w.Differentiating, w.Mature, w.TrichomeTips, w.TipFraction,
		w.Divisions, w.SkippedDivisions, w.Differentiations, w.Migrations, w.Inconsistencies,
		w.RadiusMean, w.RadiusP10, w.RadiusP50, w.RadiusP90,
	)
	if err != nil {
		return fmt.Errorf("inserting stats window %d: %w", w.WindowEnd, err)
	}
	return nil
}

// SaveAgents stores the full population snapshot for one step inside a
// single transaction.
func (s *Store) SaveAgents(runID string, step int64, agents []components.AgentState) error {
	tx, err := s.conn.Beginx()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO snapshot_agents (
		run_id, step, agent_id, seed, x, y, vx, vy, radius, stage, progress, divisions
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, a := range agents {
		// Seeds use the full uint64 range; store the bit pattern as a
		// signed integer and flip it back on read.
		_, err := stmt.Exec(
			runID, step, int64(a.ID), int64(a.Seed),
			a.X, a.Y, a.VX, a.VY, a.Radius,
			a.Stage.String(), a.Progress, a.Divisions,
		)
		if err != nil {
			return fmt.Errorf("inserting agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// RunInfo is one row of the runs table without the config blob.
// Timestamps are RFC 3339 strings; FinishedAt is empty while a run is
// still in progress.
type RunInfo struct {
	ID           string `db:"id"`
	StartedAt    string `db:"started_at"`
	FinishedAt   string `db:"finished_at"`
	Seed         int64  `db:"seed"`
	Steps        int64  `db:"steps"`
	Agents       int    `db:"agents"`
	TrichomeTips int    `db:"trichome_tips"`
}

// Runs lists all recorded runs, oldest first.
func (s *Store) Runs() ([]RunInfo, error) {
	var runs []RunInfo
	err := s.conn.Select(&runs,
		`SELECT id, started_at, finished_at, seed, steps, agents, trichome_tips
		 FROM runs ORDER BY started_at, id`)
	if err != nil {
		return nil, fmt.Errorf("querying runs: %w", err)
	}
	return runs, nil
}

// ConfigYAML returns the configuration a run was started with.
func (s *Store) ConfigYAML(runID string) (string, error) {
	var raw string
	if err := s.conn.Get(&raw, `SELECT config FROM runs WHERE id = ?`, runID); err != nil {
		return "", fmt.Errorf("querying config for run %s: %w", runID, err)
	}
	return raw, nil
}

type statsRow struct {
	WindowEnd        int64   `db:"window_end"`
	SimTime          float64 `db:"sim_time"`
	Agents           int     `db:"agents"`
	Growing          int     `db:"growing"`
	Differentiating  int     `db:"differentiating"`
	Mature           int     `db:"mature"`
	TrichomeTips     int     `db:"trichome_tips"`
	TipFraction      float64 `db:"tip_fraction"`
	Divisions        int     `db:"divisions"`
	SkippedDivisions int     `db:"skipped_divisions"`
	Differentiations int     `db:"differentiations"`
	Migrations       int     `db:"migrations"`
	Inconsistencies  int     `db:"inconsistencies"`
	RadiusMean       float64 `db:"radius_mean"`
	RadiusP10        float64 `db:"radius_p10"`
	RadiusP50        float64 `db:"radius_p50"`
	RadiusP90        float64 `db:"radius_p90"`
}

// StatsFor returns the telemetry windows of a run in window order.
func (s *Store) StatsFor(runID string) ([]telemetry.WindowStats, error) {
	var rows []statsRow
	err := s.conn.Select(&rows,
		`SELECT window_end, sim_time,
		        agents, growing, differentiating, mature, trichome_tips, tip_fraction,
		        divisions, skipped_divisions, differentiations, migrations, inconsistencies,
		        radius_mean, radius_p10, radius_p50, radius_p90
		 FROM window_stats WHERE run_id = ? ORDER BY window_end`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying stats for run %s: %w", runID, err)
	}

	stats := make([]telemetry.WindowStats, 0, len(rows))
	for _, r := range rows {
		stats = append(stats, telemetry.WindowStats{
			WindowEnd:        r.WindowEnd,
			SimTime:          r.SimTime,
			Agents:           r.Agents,
			Growing:          r.Growing,
			Differentiating:  r.Differentiating,
			Mature:           r.Mature,
			TrichomeTips:     r.TrichomeTips,
			TipFraction:      r.TipFraction,
			Divisions:        r.Divisions,
			SkippedDivisions: r.SkippedDivisions,
			Differentiations: r.Differentiations,
			Migrations:       r.Migrations,
			Inconsistencies:  r.Inconsistencies,
			RadiusMean:       r.RadiusMean,
			RadiusP10:        r.RadiusP10,
			RadiusP50:        r.RadiusP50,
			RadiusP90:        r.RadiusP90,
		})
	}
	return stats, nil
}

// Snapshots lists the steps a run has stored populations for, ascending.
func (s *Store) Snapshots(runID string) ([]int64, error) {
	var steps []int64
	err := s.conn.Select(&steps,
		`SELECT DISTINCT step FROM snapshot_agents WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot steps for run %s: %w", runID, err)
	}
	return steps, nil
}

type agentRow struct {
	AgentID   int64   `db:"agent_id"`
	Seed      int64   `db:"seed"`
	X         float64 `db:"x"`
	Y         float64 `db:"y"`
	VX        float64 `db:"vx"`
	VY        float64 `db:"vy"`
	Radius    float64 `db:"radius"`
	Stage     string  `db:"stage"`
	Progress  float64 `db:"progress"`
	Divisions int     `db:"divisions"`
}

// AgentsAt loads the population snapshot stored for one step, ordered
// by agent ID.
func (s *Store) AgentsAt(runID string, step int64) ([]components.AgentState, error) {
	var rows []agentRow
	err := s.conn.Select(&rows,
		`SELECT agent_id, seed, x, y, vx, vy, radius, stage, progress, divisions
		 FROM snapshot_agents WHERE run_id = ? AND step = ? ORDER BY agent_id`,
		runID, step)
	if err != nil {
		return nil, fmt.Errorf("querying snapshot at step %d: %w", step, err)
	}

	agents := make([]components.AgentState, 0, len(rows))
	for _, r := range rows {
		var stage components.Stage
		if err := stage.UnmarshalText([]byte(r.Stage)); err != nil {
			return nil, fmt.Errorf("agent %d: %w", r.AgentID, err)
		}
		agents = append(agents, components.AgentState{
			ID:        uint64(r.AgentID),
			Seed:      uint64(r.Seed),
			X:         r.X,
			Y:         r.Y,
			VX:        r.VX,
			VY:        r.VY,
			Radius:    r.Radius,
			Stage:     stage,
			Progress:  r.Progress,
			Divisions: r.Divisions,
		})
	}
	return agents, nil
}
