package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jonaspleyer/cr-trichome/config"
	"github.com/jonaspleyer/cr-trichome/render"
	"github.com/jonaspleyer/cr-trichome/telemetry"
)

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [run-dir]",
		Short: "Render PNG snapshots for a stored run",
		Long: `Render every stored cell snapshot of a run into images/ inside the
run directory. With no argument the most recent run under the output
root is used. Images that already exist are kept unless --overwrite.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			var runDir string
			if len(args) == 1 {
				runDir = args[0]
			} else {
				runDir, err = telemetry.LatestRunDir(cfg.Output.Dir)
				if err != nil {
					return err
				}
			}

			// The run's own config knows the domain the cells lived in.
			if runCfg, err := config.Load(filepath.Join(runDir, "config.yaml")); err == nil {
				cfg = runCfg
			}

			size, _ := cmd.Flags().GetInt("size")
			overwrite, _ := cmd.Flags().GetBool("overwrite")
			white, _ := cmd.Flags().GetBool("white-background")

			iterations, err := telemetry.Iterations(runDir)
			if err != nil {
				return err
			}
			if len(iterations) == 0 {
				return fmt.Errorf("no cell snapshots under %s", runDir)
			}

			r := render.New(cfg.Domain.Width, cfg.Domain.Height, size)
			if white {
				r.Background = color.RGBA{R: 255, G: 255, B: 255, A: 255}
			}

			rendered := 0
			for _, it := range iterations {
				path, err := render.SnapshotPath(runDir, it)
				if err != nil {
					return err
				}
				if !overwrite && fileExists(path) {
					continue
				}

				cells, err := telemetry.LoadCells(runDir, it)
				if err != nil {
					return fmt.Errorf("iteration %d: %w", it, err)
				}
				if err := render.WritePNG(path, r.Render(cells)); err != nil {
					return err
				}
				rendered++
			}

			fmt.Printf("rendered %d of %d snapshots to %s\n",
				rendered, len(iterations), filepath.Join(runDir, "images"))
			return nil
		},
	}

	cmd.Flags().Int("size", 1200, "Image width in pixels")
	cmd.Flags().Bool("overwrite", false, "Re-render images that already exist")
	cmd.Flags().Bool("white-background", false, "Fill the background white instead of transparent")

	return cmd
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
