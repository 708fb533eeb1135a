package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/store"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Simulation.Steps = 10
	cfg.Simulation.Workers = 2
	cfg.Seeding.Rings = 1
	cfg.Output.Dir = filepath.Join(t.TempDir(), "out")
	cfg.Output.SnapshotEvery = 5
	cfg.Output.StatsWindow = 5
	return cfg
}

func TestRunSimulationEndToEnd(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Store.Enabled = true

	if err := runSimulation(context.Background(), cfg, false); err != nil {
		t.Fatalf("runSimulation: %v", err)
	}

	runDir, err := telemetry.LatestRunDir(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("LatestRunDir: %v", err)
	}

	for _, name := range []string{"config.yaml", "telemetry.csv", "perf.csv", "runs.db"} {
		if _, err := os.Stat(filepath.Join(runDir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	iters, err := telemetry.Iterations(runDir)
	if err != nil {
		t.Fatalf("Iterations: %v", err)
	}
	if !reflect.DeepEqual(iters, []int64{0, 5, 10}) {
		t.Errorf("iterations = %v, want [0 5 10]", iters)
	}

	raw, err := os.ReadFile(filepath.Join(runDir, "telemetry.csv"))
	if err != nil {
		t.Fatalf("reading telemetry.csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 3 {
		t.Errorf("telemetry.csv has %d lines, want header + 2 windows", len(lines))
	}

	db, err := store.Open(filepath.Join(runDir, "runs.db"))
	if err != nil {
		t.Fatalf("opening run store: %v", err)
	}
	defer db.Close()

	runs, err := db.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("store has %d runs, want 1", len(runs))
	}
	if runs[0].Steps != 10 {
		t.Errorf("recorded steps = %d, want 10", runs[0].Steps)
	}
	if runs[0].FinishedAt == "" {
		t.Error("run not marked finished")
	}
	if runs[0].Agents < 7 {
		t.Errorf("recorded agents = %d, want at least the 7 seeds", runs[0].Agents)
	}

	steps, err := db.Snapshots(runs[0].ID)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if !reflect.DeepEqual(steps, []int64{0, 5, 10}) {
		t.Errorf("stored snapshots = %v, want [0 5 10]", steps)
	}

	stats, err := db.StatsFor(runs[0].ID)
	if err != nil {
		t.Fatalf("StatsFor: %v", err)
	}
	if len(stats) != 2 || stats[0].WindowEnd != 5 || stats[1].WindowEnd != 10 {
		t.Errorf("stored stats windows = %+v, want ends 5 and 10", stats)
	}
}

func TestRunSimulationRequiresStorePath(t *testing.T) {
	cfg := smallConfig(t)
	cfg.Output.Dir = ""
	cfg.Store.Enabled = true

	err := runSimulation(context.Background(), cfg, false)
	if err == nil || !strings.Contains(err.Error(), "store.path") {
		t.Fatalf("expected store.path error, got %v", err)
	}
}

func TestPlotRendersStoredRun(t *testing.T) {
	cfg := smallConfig(t)
	if err := runSimulation(context.Background(), cfg, false); err != nil {
		t.Fatalf("runSimulation: %v", err)
	}
	runDir, err := telemetry.LatestRunDir(cfg.Output.Dir)
	if err != nil {
		t.Fatalf("LatestRunDir: %v", err)
	}

	cmd := newPlotCmd()
	cmd.SetArgs([]string{runDir, "--size", "64"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("plot: %v", err)
	}

	for _, step := range []string{
		"snapshot-00000000000000000000.png",
		"snapshot-00000000000000000005.png",
		"snapshot-00000000000000000010.png",
	} {
		if _, err := os.Stat(filepath.Join(runDir, "images", step)); err != nil {
			t.Errorf("missing image %s: %v", step, err)
		}
	}
}

func TestNewRunCmdFlags(t *testing.T) {
	cmd := newRunCmd()
	for _, name := range []string{"steps", "seed", "workers", "output-dir", "store", "log-stats"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("missing --%s flag", name)
		}
	}
}

func TestNewPlotCmdFlags(t *testing.T) {
	cmd := newPlotCmd()
	if cmd.Flags().Lookup("size") == nil {
		t.Error("missing --size flag")
	}
	size, _ := cmd.Flags().GetInt("size")
	if size != 1200 {
		t.Errorf("default size = %d, want 1200", size)
	}
}
