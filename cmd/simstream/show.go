package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <simulation-id> <event-id>",
		Short: "Print a single event by ID",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService()
			if err != nil {
				return err
			}

			e, err := svc.EventByID(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("looking up event: %w", err)
			}
			if e == nil {
				return fmt.Errorf("event %s not found in simulation %s", args[1], args[0])
			}

			out, err := json.MarshalIndent(e, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
