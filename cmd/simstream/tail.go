package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/szaher/simstream/internal/event"
	"github.com/szaher/simstream/internal/watch"
)

func newTailCmd() *cobra.Command {
	var (
		n      int
		follow bool
	)

	cmd := &cobra.Command{
		Use:   "tail <simulation-id>",
		Short: "Print the most recent events from a simulation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			events, err := svc.Tail(cmd.Context(), args[0], n)
			if err != nil {
				return fmt.Errorf("tailing events: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			for _, e := range events {
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dir := filepath.Join(cfg.OutputRoot, args[0])

			// Events already printed above are skipped by ID; the follower
			// re-reads the current segment from the start.
			seen := make(map[string]bool, len(events))
			for _, e := range events {
				seen[e.EventID] = true
			}
			follower, err := watch.NewFollower(dir, func(e *event.Event) {
				if seen[e.EventID] {
					return
				}
				enc.Encode(e)
			}, newLogger())
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := follower.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&n, "lines", "n", 10, "Number of recent events to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new events as they are written")

	return cmd
}
