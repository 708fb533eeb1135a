package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
)

func testAgents() []components.AgentState {
	return []components.AgentState{
		{ID: 1, Seed: 11, X: 100, Y: 200, VX: 1, VY: -1, Radius: 8, Stage: components.StageGrowing, Progress: 0.5},
		{ID: 2, Seed: 12, X: 300, Y: 400, Radius: 12, Stage: components.StageTrichomeTip, Divisions: 2},
	}
}

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("", time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if om != nil {
		t.Fatal("empty root should disable output")
	}

	// All methods are no-ops on the nil manager.
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if err := om.WriteCells(0, testAgents()); err != nil {
		t.Error(err)
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Error(err)
	}
	if om.Dir() != "" {
		t.Errorf("nil manager dir = %q, want empty", om.Dir())
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
}

func TestOutputManagerRunDirectory(t *testing.T) {
	root := t.TempDir()
	start := time.Date(2024, 7, 31, 17, 34, 27, 0, time.UTC)

	om, err := NewOutputManager(root, start)
	if err != nil {
		t.Fatal(err)
	}
	defer om.Close()

	want := filepath.Join(root, "2024-07-31-T17-34-27")
	if om.Dir() != want {
		t.Errorf("run dir = %q, want %q", om.Dir(), want)
	}

	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(om.Dir(), "config.yaml")); err != nil {
		t.Errorf("config.yaml missing: %v", err)
	}
}

func TestTelemetryCSVHeaderOnce(t *testing.T) {
	om, err := NewOutputManager(t.TempDir(), time.Now())
	if err != nil {
		t.Fatal(err)
	}

	if err := om.WriteTelemetry(WindowStats{WindowEnd: 50, Agents: 37}); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteTelemetry(WindowStats{WindowEnd: 100, Agents: 41}); err != nil {
		t.Fatal(err)
	}
	if err := om.WritePerf(PerfStats{}, 50); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(om.Dir(), "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("telemetry.csv has %d lines, want header + 2 rows", len(lines))
	}
	if !strings.Contains(lines[0], "window_end") || !strings.Contains(lines[0], "tip_fraction") {
		t.Errorf("header missing expected columns: %q", lines[0])
	}
	if strings.Contains(lines[1], "window_end") {
		t.Error("header repeated in data rows")
	}

	data, err = os.ReadFile(filepath.Join(om.Dir(), "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines = strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("perf.csv has %d lines, want header + 1 row", len(lines))
	}
}

func TestCellBatchRoundTrip(t *testing.T) {
	runDir := t.TempDir()
	agents := testAgents()

	path, err := WriteCellBatch(runDir, 50, agents)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(runDir, "cells", "json", "00000000000000000050", "batch-0.json"); path != want {
		t.Errorf("batch path = %q, want %q", path, want)
	}

	loaded, err := LoadCells(runDir, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(loaded) != len(agents) {
		t.Fatalf("loaded %d agents, want %d", len(loaded), len(agents))
	}
	for i := range agents {
		if loaded[i] != agents[i] {
			t.Errorf("agent %d changed in round trip: %+v vs %+v", i, loaded[i], agents[i])
		}
	}

	if _, err := LoadCells(runDir, 999); err == nil {
		t.Error("loading a missing snapshot should fail")
	}
}

func TestIterationsSorted(t *testing.T) {
	runDir := t.TempDir()
	for _, step := range []int64{100, 0, 50} {
		if _, err := WriteCellBatch(runDir, step, testAgents()); err != nil {
			t.Fatal(err)
		}
	}

	steps, err := Iterations(runDir)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{0, 50, 100}
	if len(steps) != len(want) {
		t.Fatalf("iterations = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("iterations = %v, want %v", steps, want)
		}
	}
}

func TestLatestRunDir(t *testing.T) {
	root := t.TempDir()

	if _, err := LatestRunDir(root); err == nil {
		t.Error("empty root should report no runs")
	}

	for _, name := range []string{"2024-07-31-T17-34-27", "2024-07-31-T17-34-57", "2024-07-31-T17-34-40"} {
		if err := os.Mkdir(filepath.Join(root, name), 0755); err != nil {
			t.Fatal(err)
		}
	}

	dir, err := LatestRunDir(root)
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(root, "2024-07-31-T17-34-57"); dir != want {
		t.Errorf("latest run = %q, want %q", dir, want)
	}
}
