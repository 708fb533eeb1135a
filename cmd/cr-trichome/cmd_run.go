package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonaspleyer/cr-trichome/components"
	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/engine"
	"github.com/jonaspleyer/cr-trichome/seed"
	"github.com/jonaspleyer/cr-trichome/store"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a simulation",
		Long: `Run a simulation from the hexagonal seed population until the
configured step count, writing telemetry and snapshots as it goes.
Interrupting with Ctrl-C stops cleanly at the next step boundary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			// Flag overrides beat both defaults and the config file.
			if cmd.Flags().Changed("steps") {
				cfg.Simulation.Steps, _ = cmd.Flags().GetInt("steps")
			}
			if cmd.Flags().Changed("seed") {
				cfg.Simulation.Seed, _ = cmd.Flags().GetUint64("seed")
			}
			if cmd.Flags().Changed("workers") {
				cfg.Simulation.Workers, _ = cmd.Flags().GetInt("workers")
			}
			if cmd.Flags().Changed("output-dir") {
				cfg.Output.Dir, _ = cmd.Flags().GetString("output-dir")
			}
			if cmd.Flags().Changed("store") {
				cfg.Store.Enabled, _ = cmd.Flags().GetBool("store")
			}
			logStats, _ := cmd.Flags().GetBool("log-stats")

			logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
			slog.SetDefault(logger)

			if cfg.Simulation.Seed == 0 {
				cfg.Simulation.Seed = uint64(time.Now().UnixNano())
			}

			return runSimulation(cmd.Context(), cfg, logStats)
		},
	}

	cmd.Flags().Int("steps", 0, "Number of steps to run (overrides config)")
	cmd.Flags().Uint64("seed", 0, "Run seed (overrides config; 0 = time-based)")
	cmd.Flags().Int("workers", 0, "Worker count (overrides config; 0 = one per CPU)")
	cmd.Flags().String("output-dir", "", "Run output root (overrides config; empty disables file output)")
	cmd.Flags().Bool("store", false, "Record the run to SQLite (overrides config)")
	cmd.Flags().Bool("log-stats", false, "Log window stats to the console")

	return cmd
}

func runSimulation(parent context.Context, cfg *config.Config, logStats bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	start := time.Now()

	seeds := seed.Hexagonal(cfg)
	sim, err := engine.New(cfg, seeds)
	if err != nil {
		return err
	}
	defer sim.Close()

	out, err := telemetry.NewOutputManager(cfg.Output.Dir, start)
	if err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return fmt.Errorf("writing run config: %w", err)
	}

	var db *store.Store
	var runID string
	if cfg.Store.Enabled {
		path := cfg.Store.Path
		if path == "" {
			if out.Dir() == "" {
				return fmt.Errorf("store.path must be set when file output is disabled")
			}
			path = filepath.Join(out.Dir(), "runs.db")
		}
		db, err = store.Open(path)
		if err != nil {
			return err
		}
		defer db.Close()

		runID, err = db.BeginRun(cfg, start)
		if err != nil {
			return err
		}
	}

	collector := telemetry.NewCollector(cfg.Output.StatsWindow, cfg.Simulation.DT)
	perf := telemetry.NewPerfCollector(cfg.Output.PerfWindow)

	slog.Info("starting simulation",
		"seed", cfg.Simulation.Seed,
		"steps", cfg.Simulation.Steps,
		"workers", sim.Workers(),
		"agents", len(seeds),
		"output", out.Dir(),
	)

	// Iteration zero is the seed population, before any step.
	snapshotEvery := int64(cfg.Output.SnapshotEvery)
	if snapshotEvery > 0 {
		initial := sim.Snapshot()
		if err := out.WriteCells(0, initial); err != nil {
			slog.Error("failed to write cells", "step", 0, "error", err)
		}
		if db != nil {
			if err := db.SaveAgents(runID, 0, initial); err != nil {
				slog.Error("failed to save agents", "step", 0, "error", err)
			}
		}
	}

	steps := int64(cfg.Simulation.Steps)
loop:
	for sim.StepCount() < steps {
		select {
		case <-ctx.Done():
			slog.Info("interrupted", "step", sim.StepCount())
			break loop
		default:
		}

		perf.StartStep()
		perf.StartPhase(telemetry.PhaseStep)
		res, err := sim.Step()
		if err != nil {
			return fmt.Errorf("step %d: %w", res.Step, err)
		}
		collector.Record(res)

		// Snapshots are pulled lazily; the telemetry flush and the
		// snapshot writers share one per-step copy.
		var agents []components.AgentState
		snapshot := func() []components.AgentState {
			if agents == nil {
				agents = sim.Snapshot()
			}
			return agents
		}

		if collector.ShouldFlush(res.Step) {
			perf.StartPhase(telemetry.PhaseTelemetry)
			stats := collector.Flush(res.Step, snapshot())
			perfStats := perf.Stats()
			if logStats {
				stats.LogStats()
				perfStats.LogStats()
			}
			if err := out.WriteTelemetry(stats); err != nil {
				slog.Error("failed to write telemetry", "error", err)
			}
			if err := out.WritePerf(perfStats, stats.WindowEnd); err != nil {
				slog.Error("failed to write perf", "error", err)
			}
			if db != nil {
				if err := db.SaveStats(runID, stats); err != nil {
					slog.Error("failed to save stats", "error", err)
				}
			}
		}

		if snapshotEvery > 0 && res.Step%snapshotEvery == 0 {
			perf.StartPhase(telemetry.PhaseSnapshot)
			if err := out.WriteCells(res.Step, snapshot()); err != nil {
				slog.Error("failed to write cells", "step", res.Step, "error", err)
			}
			if db != nil {
				perf.StartPhase(telemetry.PhaseStore)
				if err := db.SaveAgents(runID, res.Step, snapshot()); err != nil {
					slog.Error("failed to save agents", "step", res.Step, "error", err)
				}
			}
		}
		perf.EndStep()
	}

	final := sim.Snapshot()
	_, _, _, tips := telemetry.StageCounts(final)
	slog.Info("run complete",
		"steps", sim.StepCount(),
		"sim_time", sim.Time(),
		"agents", len(final),
		"trichome_tips", tips,
		"elapsed", time.Since(start).Round(time.Millisecond).String(),
	)

	if db != nil {
		if err := db.FinishRun(runID, time.Now(), sim.StepCount(), len(final), tips); err != nil {
			return fmt.Errorf("finishing run record: %w", err)
		}
	}
	return nil
}
