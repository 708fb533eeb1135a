package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0-dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "cr-trichome",
		Short: "Agent-based trichome emergence simulation",
		Long: `cr-trichome simulates the emergence of trichomes on a growing leaf
surface as a population of mechanically interacting cell agents.

A run steps the engine, writes windowed CSV telemetry and JSON cell
snapshots under the output directory, and can record everything to a
SQLite database. Stored snapshots render to PNG with the plot command.`,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to config.yaml (empty = embedded defaults)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newPlotCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("cr-trichome version %s\n", version)
		},
	}
}
