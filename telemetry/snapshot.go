package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/jonaspleyer/cr-trichome/components"
)

// Cell snapshots live under <run dir>/cells/json/<iteration>/, one
// directory per snapshot with zero-padded iteration numbers so plain
// lexicographic listings sort by step. Each directory holds one or
// more batch files, each wrapping its agents in a data/element
// envelope.

// iterationDigits is the zero padding of iteration directory names.
const iterationDigits = 20

type cellBatch struct {
	Data []cellElement `json:"data"`
}

type cellElement struct {
	Element []components.AgentState `json:"element"`
}

// iterationDir returns the snapshot directory for a step.
func iterationDir(runDir string, step int64) string {
	return filepath.Join(runDir, "cells", "json", fmt.Sprintf("%0*d", iterationDigits, step))
}

// WriteCellBatch writes one snapshot batch for the given step and
// returns the file path.
func WriteCellBatch(runDir string, step int64, agents []components.AgentState) (string, error) {
	dir := iterationDir(runDir, step)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	batch := cellBatch{Data: make([]cellElement, len(agents))}
	for i, a := range agents {
		batch.Data[i] = cellElement{Element: []components.AgentState{a}}
	}

	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	path := filepath.Join(dir, "batch-0.json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return path, nil
}

// LoadCells reads every batch file of one snapshot back into agent
// states.
func LoadCells(runDir string, step int64) ([]components.AgentState, error) {
	files, err := filepath.Glob(filepath.Join(iterationDir(runDir, step), "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list snapshot batches: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no snapshot batches for step %d under %s", step, runDir)
	}
	sort.Strings(files)

	var agents []components.AgentState
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read snapshot batch: %w", err)
		}
		var batch cellBatch
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", file, err)
		}
		for _, e := range batch.Data {
			agents = append(agents, e.Element...)
		}
	}
	return agents, nil
}

// Iterations lists the snapshot steps present in a run directory, in
// ascending order.
func Iterations(runDir string) ([]int64, error) {
	entries, err := os.ReadDir(filepath.Join(runDir, "cells", "json"))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	var steps []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		n, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		steps = append(steps, n)
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i] < steps[j] })
	return steps, nil
}

// LatestRunDir returns the newest run directory under root. Run
// directories are named by start time, so the lexicographically last
// entry is the most recent.
func LatestRunDir(root string) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("list runs: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no runs found under %s", root)
	}
	sort.Strings(names)
	return filepath.Join(root, names[len(names)-1]), nil
}
