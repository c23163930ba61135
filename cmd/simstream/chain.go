package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newChainCmd() *cobra.Command {
	var depth int

	cmd := &cobra.Command{
		Use:   "chain <simulation-id> <event-id>",
		Short: "Show the causality chain around an event",
		Long: `Chain resolves an event's ancestors by following caused_by links up
to --depth hops, plus the events it directly caused, and prints the
result as indented JSON.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			chain, err := svc.CausalityChain(cmd.Context(), args[0], args[1], depth)
			if err != nil {
				return fmt.Errorf("resolving causality chain: %w", err)
			}
			if chain == nil {
				return fmt.Errorf("event %s not found in simulation %s", args[1], args[0])
			}

			out, err := json.MarshalIndent(chain, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	cmd.Flags().IntVar(&depth, "depth", 5, "Maximum upstream hops to follow")

	return cmd
}
