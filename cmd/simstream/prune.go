package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/simstream/internal/retention"
)

func newPruneCmd() *cobra.Command {
	var (
		maxAge      time.Duration
		maxSegments int
		daemon      bool
	)

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove rotated segments per the retention rules",
		Long: `Prune deletes rotated segments that exceed the configured age or
per-simulation count. The current segment of each simulation is never
touched. With --daemon it keeps sweeping on the configured cron
schedule until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			opts := retention.Options{
				OutputRoot:  cfg.OutputRoot,
				MaxAge:      time.Duration(cfg.Retention.MaxAge),
				MaxSegments: cfg.Retention.MaxSegments,
				Schedule:    cfg.Retention.Schedule,
				Logger:      newLogger(),
			}
			if cmd.Flags().Changed("max-age") {
				opts.MaxAge = maxAge
			}
			if cmd.Flags().Changed("max-segments") {
				opts.MaxSegments = maxSegments
			}

			pruner, err := retention.NewPruner(opts)
			if err != nil {
				return err
			}

			if !daemon {
				removed, err := pruner.PruneOnce()
				if err != nil {
					return err
				}
				fmt.Printf("Removed %d segment(s).\n", removed)
				return nil
			}

			if err := pruner.Start(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			pruner.Stop()
			return nil
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Remove rotated segments older than this (overrides config)")
	cmd.Flags().IntVar(&maxSegments, "max-segments", 0, "Keep at most this many rotated segments per simulation (overrides config)")
	cmd.Flags().BoolVar(&daemon, "daemon", false, "Run sweeps on the configured schedule until interrupted")

	return cmd
}
