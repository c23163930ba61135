// Package main is the entry point for the simstream CLI, the query surface
// over simulation event logs.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/szaher/simstream/internal/config"
	"github.com/szaher/simstream/internal/query"
	"github.com/szaher/simstream/internal/telemetry"
)

// Version information set at build time.
var version = "0.1.0"

// Global flags.
var (
	outputRoot string
	configPath string
	verbose    bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "simstream",
		Short: "Query and manage simulation event logs",
		Long: `Simstream reads the append-only JSONL event logs produced by
simulation runs: listing simulations, filtering and paginating events,
walking causality chains, tailing live runs, and managing rotated
segments via retention and S3 archival.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&outputRoot, "output-root", "", "Directory holding per-simulation event logs")
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to a simstream YAML config file")
	root.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newShowCmd())
	root.AddCommand(newChainCmd())
	root.AddCommand(newTailCmd())
	root.AddCommand(newPruneCmd())
	root.AddCommand(newArchiveCmd())

	return root
}

// loadConfig resolves the effective configuration: file values first, then
// flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	if outputRoot != "" {
		cfg.OutputRoot = outputRoot
	}
	return cfg, nil
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return telemetry.NewLogger(os.Stderr, level)
}

func newService() (*query.Service, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return query.NewService(cfg.OutputRoot, newLogger()), nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
