package store

import (
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	cfg := config.Default()
	cfg.Simulation.Seed = 7

	first, err := s.BeginRun(cfg, time.Date(2024, 7, 31, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	second, err := s.BeginRun(cfg, time.Date(2024, 7, 31, 13, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct run IDs, both %q", first)
	}

	end := time.Date(2024, 7, 31, 12, 30, 0, 0, time.UTC)
	if err := s.FinishRun(first, end, 500, 64, 9); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := s.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != first || runs[1].ID != second {
		t.Errorf("runs out of order: got %q, %q", runs[0].ID, runs[1].ID)
	}
	if runs[0].Steps != 500 || runs[0].Agents != 64 || runs[0].TrichomeTips != 9 {
		t.Errorf("finished run tallies = %d/%d/%d, want 500/64/9",
			runs[0].Steps, runs[0].Agents, runs[0].TrichomeTips)
	}
	if runs[0].FinishedAt != "2024-07-31T12:30:00Z" {
		t.Errorf("FinishedAt = %q, want 2024-07-31T12:30:00Z", runs[0].FinishedAt)
	}
	if runs[1].FinishedAt != "" {
		t.Errorf("unfinished run has FinishedAt %q", runs[1].FinishedAt)
	}
	if runs[0].Seed != 7 {
		t.Errorf("Seed = %d, want 7", runs[0].Seed)
	}

	raw, err := s.ConfigYAML(first)
	if err != nil {
		t.Fatalf("ConfigYAML: %v", err)
	}
	if !strings.Contains(raw, "seed: 7") {
		t.Errorf("stored config missing seed, got:\n%s", raw)
	}
}

func TestSaveStatsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	run, err := s.BeginRun(config.Default(), time.Now())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	windows := []telemetry.WindowStats{
		{
			WindowEnd: 50, SimTime: 10,
			Agents: 37, Growing: 30, Differentiating: 5, Mature: 1, TrichomeTips: 1,
			TipFraction: 1.0 / 37.0,
			Divisions:   3, SkippedDivisions: 1, Differentiations: 2, Migrations: 4,
			RadiusMean: 12.5, RadiusP10: 11, RadiusP50: 12, RadiusP90: 14,
		},
		{
			WindowEnd: 100, SimTime: 20,
			Agents: 41, Growing: 31, Differentiating: 6, Mature: 2, TrichomeTips: 2,
			TipFraction: 2.0 / 41.0,
			Divisions:   4, Inconsistencies: 1,
			RadiusMean: 13.1, RadiusP10: 11.2, RadiusP50: 12.8, RadiusP90: 15,
		},
	}
	// Insert out of order; StatsFor sorts by window.
	for _, i := range []int{1, 0} {
		if err := s.SaveStats(run, windows[i]); err != nil {
			t.Fatalf("SaveStats: %v", err)
		}
	}

	got, err := s.StatsFor(run)
	if err != nil {
		t.Fatalf("StatsFor: %v", err)
	}
	if !reflect.DeepEqual(got, windows) {
		t.Errorf("StatsFor = %+v, want %+v", got, windows)
	}

	other, err := s.StatsFor("no-such-run")
	if err != nil {
		t.Fatalf("StatsFor unknown run: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("unknown run has %d stats windows", len(other))
	}
}

func TestSaveAgentsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	run, err := s.BeginRun(config.Default(), time.Now())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	// Seeds exercise the full uint64 range, including the high bit.
	agents := []components.AgentState{
		{ID: 3, Seed: 0xDEADBEEFDEADBEEF, X: 400, Y: 300, VX: -0.25, VY: 0.5,
			Radius: 16, Stage: components.StageTrichomeTip, Progress: 3.5, Divisions: 2},
		{ID: 1, Seed: 42, X: 100.5, Y: 200.25, Radius: 11,
			Stage: components.StageGrowing, Progress: 0.75},
		{ID: 2, Seed: 1 << 63, X: 250, Y: 250, Radius: 14,
			Stage: components.StageDifferentiating, Progress: 3.1, Divisions: 1},
	}
	if err := s.SaveAgents(run, 50, agents); err != nil {
		t.Fatalf("SaveAgents: %v", err)
	}
	if err := s.SaveAgents(run, 0, agents[:1]); err != nil {
		t.Fatalf("SaveAgents: %v", err)
	}
	if err := s.SaveAgents(run, 100, agents[:2]); err != nil {
		t.Fatalf("SaveAgents: %v", err)
	}

	steps, err := s.Snapshots(run)
	if err != nil {
		t.Fatalf("Snapshots: %v", err)
	}
	if !reflect.DeepEqual(steps, []int64{0, 50, 100}) {
		t.Errorf("Snapshots = %v, want [0 50 100]", steps)
	}

	got, err := s.AgentsAt(run, 50)
	if err != nil {
		t.Fatalf("AgentsAt: %v", err)
	}
	want := []components.AgentState{agents[1], agents[2], agents[0]}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AgentsAt = %+v, want %+v", got, want)
	}

	empty, err := s.AgentsAt(run, 999)
	if err != nil {
		t.Fatalf("AgentsAt missing step: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("missing step returned %d agents", len(empty))
	}
}

func TestOpenCreatesFileOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runs.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	run, err := s.BeginRun(config.Default(), time.Now())
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Reopening must keep existing rows and tolerate the existing schema.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	runs, err := s2.Runs()
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != run {
		t.Errorf("after reopen runs = %+v, want one run %q", runs, run)
	}
}
